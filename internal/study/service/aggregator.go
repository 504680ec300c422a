// Package service aggregates the imaging studies of a set of subjects.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/requestcontext"
)

const defaultConcurrency = 4

// Report describes an aggregation run.
type Report struct {
	Subjects int
	// Failed lists subjects whose search failed and contributed nothing.
	Failed []domain.SubjectID
}

// Partial reports whether any subject search failed.
func (r Report) Partial() bool { return len(r.Failed) > 0 }

// Aggregator collects studies for many subjects, tolerating per-subject
// failures.
type Aggregator struct {
	store       Store
	concurrency int
	logger      *slog.Logger
	metrics     *Metrics
}

type Option func(*Aggregator)

// WithConcurrency bounds the number of in-flight subject searches.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

func NewAggregator(store Store, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("study store is required")
	}
	a := &Aggregator{store: store, concurrency: defaultConcurrency, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AggregateDependents returns the union of studies referencing any of ids,
// deduplicated by study id and ordered by id. A failed subject search is
// logged and recorded in the report; it never fails the aggregation.
func (a *Aggregator) AggregateDependents(ctx context.Context, ids []domain.SubjectID) ([]*fhir.ImagingStudy, Report) {
	subjects := distinct(ids)
	report := Report{Subjects: len(subjects)}
	if len(subjects) == 0 {
		a.metrics.aggregated(0)
		return []*fhir.ImagingStudy{}, report
	}

	results := make([][]*fhir.ImagingStudy, len(subjects))
	var (
		mu     sync.Mutex
		failed []domain.SubjectID
	)

	// Goroutines never return an error so one failure cannot cancel the
	// remaining searches.
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, id := range subjects {
		g.Go(func() error {
			studies, err := a.store.SearchBySubject(ctx, id)
			if err != nil {
				a.metrics.search(false)
				a.logger.WarnContext(ctx, "study search failed for subject",
					"request_id", requestcontext.RequestID(ctx),
					"subject_id", id.String(),
					"error", err,
				)
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
				return nil
			}
			a.metrics.search(true)
			results[i] = studies
			return nil
		})
	}
	_ = g.Wait()

	out := merge(results)
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	report.Failed = failed
	a.metrics.aggregated(len(out))
	return out, report
}

// merge keeps the first occurrence of each study id, walking results in
// subject order, then sorts by id.
func merge(results [][]*fhir.ImagingStudy) []*fhir.ImagingStudy {
	seen := make(map[string]struct{})
	out := make([]*fhir.ImagingStudy, 0)
	for _, studies := range results {
		for _, st := range studies {
			if st == nil {
				continue
			}
			if _, dup := seen[st.ID]; dup {
				continue
			}
			seen[st.ID] = struct{}{}
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func distinct(ids []domain.SubjectID) []domain.SubjectID {
	seen := make(map[domain.SubjectID]struct{}, len(ids))
	out := make([]domain.SubjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
