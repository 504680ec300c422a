// Package resolution chains pseudonym exchange, subject resolution and study
// aggregation into one request-scoped operation.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pseudonym-gateway/internal/exchange"
	studyservice "pseudonym-gateway/internal/study/service"
	subjectservice "pseudonym-gateway/internal/subject/service"
	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
	audit "pseudonym-gateway/pkg/platform/audit"
	"pseudonym-gateway/pkg/requestcontext"
)

var tracer = otel.Tracer("pseudonym-gateway/resolution")

// ErrStoreUnavailable is returned when subjects could not be enumerated. It
// is never reported as an empty result.
var ErrStoreUnavailable = subjectservice.ErrStoreUnavailable

type Exchanger interface {
	Exchange(ctx context.Context, external domain.ExternalPseudonym) (domain.ProviderPseudonym, error)
}

type SubjectResolver interface {
	ResolveSubjects(ctx context.Context, pseudonym domain.ProviderPseudonym) ([]domain.SubjectID, error)
}

type DependentAggregator interface {
	AggregateDependents(ctx context.Context, ids []domain.SubjectID) ([]*fhir.ImagingStudy, studyservice.Report)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// State is a stage of a resolution.
type State string

const (
	StateStart       State = "start"
	StateExchanging  State = "exchanging"
	StateResolving   State = "resolving"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Result is the outcome of a resolution. It is never persisted.
type Result struct {
	Studies  []*fhir.ImagingStudy
	Subjects int
	// Outcome is one of the audit.Outcome* values.
	Outcome string
	// Partial is set when some subjects' studies could not be fetched.
	Partial bool
	State   State
}

// Pipeline runs Start → Exchanging → Resolving → Aggregating → Done. An
// exchange failure ends in Done with an empty result; a store failure ends
// in Failed.
type Pipeline struct {
	exchanger  Exchanger
	resolver   SubjectResolver
	aggregator DependentAggregator
	auditor    AuditPublisher
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(p *Pipeline) {
		p.auditor = publisher
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func New(exchanger Exchanger, resolver SubjectResolver, aggregator DependentAggregator, opts ...Option) (*Pipeline, error) {
	if exchanger == nil {
		return nil, errors.New("exchanger is required")
	}
	if resolver == nil {
		return nil, errors.New("subject resolver is required")
	}
	if aggregator == nil {
		return nil, errors.New("dependent aggregator is required")
	}
	p := &Pipeline{
		exchanger:  exchanger,
		resolver:   resolver,
		aggregator: aggregator,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Resolve returns the deduplicated studies of every subject enrolled under
// the provider pseudonym that external maps to.
func (p *Pipeline) Resolve(ctx context.Context, external domain.ExternalPseudonym) (Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Resolution.Pipeline.Resolve")
	defer span.End()

	requestID := requestcontext.RequestID(ctx)
	event := audit.Event{
		Timestamp:     requestcontext.Now(ctx),
		Action:        string(audit.EventPseudonymResolved),
		PseudonymHash: audit.HashIdentifier(external.String()),
		RequestID:     requestID,
		Caller:        requestcontext.Caller(ctx),
	}

	provider, err := p.exchange(ctx, external)
	if err != nil {
		// Fail closed: an exchange failure is indistinguishable from "no
		// subject" to the caller.
		p.logger.WarnContext(ctx, "pseudonym exchange failed",
			"request_id", requestID,
			"category", string(exchange.CategoryOf(err)),
			"error", err,
		)
		event.Outcome = audit.OutcomeExchangeFailed
		event.Reason = string(exchange.CategoryOf(err))
		return p.finish(ctx, span, start, event, Result{Studies: []*fhir.ImagingStudy{}, Outcome: event.Outcome, State: StateDone}, nil)
	}

	subjects, err := p.resolve(ctx, provider)
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		p.logger.ErrorContext(ctx, "subject resolution failed",
			"request_id", requestID,
			"error", err,
		)
		event.Outcome = audit.OutcomeStoreUnavailable
		span.SetStatus(codes.Error, "subject store unavailable")
		return p.finish(ctx, span, start, event, Result{Outcome: event.Outcome, State: StateFailed}, err)
	}
	event.SubjectCount = len(subjects)

	if len(subjects) == 0 {
		event.Outcome = audit.OutcomeNoMatch
		return p.finish(ctx, span, start, event, Result{Studies: []*fhir.ImagingStudy{}, Outcome: event.Outcome, State: StateDone}, nil)
	}

	studies, report := p.aggregate(ctx, subjects)
	if report.Partial() {
		p.metrics.partial()
		p.logger.WarnContext(ctx, "partial aggregation failure",
			"request_id", requestID,
			"subjects", len(subjects),
			"failed_subjects", len(report.Failed),
		)
	}
	event.Outcome = audit.OutcomeResolved
	event.StudyCount = len(studies)
	event.PartialFailures = len(report.Failed)

	return p.finish(ctx, span, start, event, Result{
		Studies:  studies,
		Subjects: len(subjects),
		Outcome:  event.Outcome,
		Partial:  report.Partial(),
		State:    StateDone,
	}, nil)
}

func (p *Pipeline) exchange(ctx context.Context, external domain.ExternalPseudonym) (domain.ProviderPseudonym, error) {
	ctx, span := tracer.Start(ctx, "Resolution.Pipeline.Exchange", trace.WithAttributes(
		attribute.String("pipeline.state", string(StateExchanging)),
	))
	defer span.End()

	provider, err := p.exchanger.Exchange(ctx, external)
	if err == nil && provider.IsZero() {
		err = fmt.Errorf("%w: empty provider pseudonym", exchange.ErrExchangeFailed)
	}
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("exchange.category", string(exchange.CategoryOf(err))))
		return "", err
	}
	return provider, nil
}

func (p *Pipeline) resolve(ctx context.Context, provider domain.ProviderPseudonym) ([]domain.SubjectID, error) {
	ctx, span := tracer.Start(ctx, "Resolution.Pipeline.ResolveSubjects", trace.WithAttributes(
		attribute.String("pipeline.state", string(StateResolving)),
	))
	defer span.End()

	ids, err := p.resolver.ResolveSubjects(ctx, provider)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve subjects")
		return nil, err
	}
	span.SetAttributes(attribute.Int("subjects.count", len(ids)))
	return ids, nil
}

func (p *Pipeline) aggregate(ctx context.Context, ids []domain.SubjectID) ([]*fhir.ImagingStudy, studyservice.Report) {
	ctx, span := tracer.Start(ctx, "Resolution.Pipeline.Aggregate", trace.WithAttributes(
		attribute.String("pipeline.state", string(StateAggregating)),
		attribute.Int("subjects.count", len(ids)),
	))
	defer span.End()

	studies, report := p.aggregator.AggregateDependents(ctx, ids)
	span.SetAttributes(
		attribute.Int("studies.count", len(studies)),
		attribute.Int("subjects.failed", len(report.Failed)),
	)
	return studies, report
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, start time.Time, event audit.Event, result Result, err error) (Result, error) {
	span.SetAttributes(attribute.String("resolution.outcome", result.Outcome))
	p.metrics.observe(result.Outcome, time.Since(start))

	if p.auditor != nil {
		if auditErr := p.auditor.Emit(ctx, event); auditErr != nil {
			p.logger.ErrorContext(ctx, "failed to emit resolution audit event",
				"request_id", event.RequestID,
				"error", auditErr,
			)
		}
	}
	return result, err
}
