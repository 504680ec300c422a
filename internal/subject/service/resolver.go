// Package service resolves provider pseudonyms to subjects and enrolls new
// subjects under a fresh pseudonym.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"pseudonym-gateway/pkg/domain"
	dErrors "pseudonym-gateway/pkg/domain-errors"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/sentinel"
	"pseudonym-gateway/pkg/requestcontext"
)

// Resolver finds every subject carrying a provider pseudonym in any of its
// extensions. Matching is exact string equality, without trimming or case
// folding.
type Resolver struct {
	store   Store
	index   EnrollmentIndex
	logger  *slog.Logger
	metrics *Metrics
}

type ResolverOption func(*Resolver)

// WithIndex enables the enrollment index fast path.
func WithIndex(index EnrollmentIndex) ResolverOption {
	return func(r *Resolver) {
		r.index = index
	}
}

func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithResolverMetrics(m *Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("subject store is required")
	}
	r := &Resolver{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveSubjects returns the ids of matching subjects. An empty result is
// not an error; a store failure wraps ErrStoreUnavailable.
func (r *Resolver) ResolveSubjects(ctx context.Context, pseudonym domain.ProviderPseudonym) ([]domain.SubjectID, error) {
	if pseudonym.IsZero() {
		return nil, nil
	}

	rebuild := false
	var generation uint64
	if r.index != nil {
		ids, ok, err := r.fromIndex(ctx, pseudonym)
		if err != nil {
			return nil, err
		}
		if ok {
			r.metrics.lookup("index", len(ids))
			return ids, nil
		}
		generation, err = r.index.Generation(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "enrollment index generation unavailable, skipping rebuild",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		rebuild = err == nil
	}

	patients, err := r.store.ListPatients(ctx)
	if err != nil {
		return nil, storeUnavailable("list subjects", err)
	}
	if rebuild {
		if err := r.index.Rebuild(ctx, generation, patients); err != nil {
			r.logger.WarnContext(ctx, "enrollment index rebuild failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	ids := matchAll(patients, pseudonym)
	r.metrics.lookup("scan", len(ids))
	return ids, nil
}

// fromIndex answers from the index when it is ready. Every candidate is
// re-read and re-checked so a stale entry never produces a false match.
func (r *Resolver) fromIndex(ctx context.Context, pseudonym domain.ProviderPseudonym) ([]domain.SubjectID, bool, error) {
	candidates, ready, err := r.index.Candidates(ctx, pseudonym)
	if err != nil {
		r.logger.WarnContext(ctx, "enrollment index unavailable, scanning store",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, false, nil
	}
	if !ready {
		return nil, false, nil
	}

	ids := make([]domain.SubjectID, 0, len(candidates))
	for _, id := range candidates {
		patient, err := r.store.FindPatient(ctx, id)
		if r.skippable(ctx, id, err) {
			continue
		}
		if err != nil {
			return nil, false, storeUnavailable("read subject "+id.String(), err)
		}
		if Matches(patient, pseudonym) {
			ids = append(ids, id)
		}
	}
	return ids, true, nil
}

// skippable reports whether a candidate read should be dropped rather than
// fail the lookup: the subject is gone, or its stored record is unreadable.
func (r *Resolver) skippable(ctx context.Context, id domain.SubjectID, err error) bool {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return true
	case errors.Is(err, sentinel.ErrInvalidRecord):
		r.logger.WarnContext(ctx, "skipping unreadable subject",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", id,
			"error", err,
		)
		return true
	}
	return false
}

func matchAll(patients []*fhir.Patient, pseudonym domain.ProviderPseudonym) []domain.SubjectID {
	var ids []domain.SubjectID
	seen := make(map[domain.SubjectID]struct{})
	for _, p := range patients {
		if p == nil || !Matches(p, pseudonym) {
			continue
		}
		id := domain.SubjectID(p.ID)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Matches reports whether any extension of patient carries pseudonym as its
// primitive value.
func Matches(patient *fhir.Patient, pseudonym domain.ProviderPseudonym) bool {
	if patient == nil || pseudonym.IsZero() {
		return false
	}
	for _, ext := range patient.Extension {
		if ext.PrimitiveValue() == string(pseudonym) {
			return true
		}
	}
	return false
}

// ResolvePatients returns the matching subjects themselves, in id order.
// Subjects deleted between resolution and read are skipped.
func (r *Resolver) ResolvePatients(ctx context.Context, pseudonym domain.ProviderPseudonym) ([]*fhir.Patient, error) {
	ids, err := r.ResolveSubjects(ctx, pseudonym)
	if err != nil {
		return nil, err
	}
	patients := make([]*fhir.Patient, 0, len(ids))
	for _, id := range ids {
		p, err := r.store.FindPatient(ctx, id)
		if r.skippable(ctx, id, err) {
			continue
		}
		if err != nil {
			return nil, storeUnavailable("read subject "+id.String(), err)
		}
		patients = append(patients, p)
	}
	sort.Slice(patients, func(i, j int) bool { return patients[i].ID < patients[j].ID })
	return patients, nil
}

// Patient reads one subject. A missing subject is a CodeNotFound error.
func (r *Resolver) Patient(ctx context.Context, id domain.SubjectID) (*fhir.Patient, error) {
	p, err := r.store.FindPatient(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Patient/%s not found", id))
	}
	if errors.Is(err, sentinel.ErrInvalidRecord) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored patient cannot be read")
	}
	if err != nil {
		return nil, storeUnavailable("read subject "+id.String(), err)
	}
	return p, nil
}
