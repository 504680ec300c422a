package service

import (
	"context"
	"errors"
	"log/slog"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/sentinel"
	"pseudonym-gateway/pkg/requestcontext"
)

// Enroller creates subjects with exactly one enrollment extension holding a
// freshly generated provider pseudonym.
type Enroller struct {
	store        Store
	index        EnrollmentIndex
	logger       *slog.Logger
	metrics      *Metrics
	newPseudonym func() domain.ProviderPseudonym
}

type EnrollerOption func(*Enroller)

func WithEnrollmentIndex(index EnrollmentIndex) EnrollerOption {
	return func(e *Enroller) {
		e.index = index
	}
}

func WithEnrollerLogger(logger *slog.Logger) EnrollerOption {
	return func(e *Enroller) {
		e.logger = logger
	}
}

func WithEnrollerMetrics(m *Metrics) EnrollerOption {
	return func(e *Enroller) {
		e.metrics = m
	}
}

// WithPseudonymGenerator overrides pseudonym generation (tests).
func WithPseudonymGenerator(fn func() domain.ProviderPseudonym) EnrollerOption {
	return func(e *Enroller) {
		if fn != nil {
			e.newPseudonym = fn
		}
	}
}

func NewEnroller(store Store, opts ...EnrollerOption) (*Enroller, error) {
	if store == nil {
		return nil, errors.New("subject store is required")
	}
	e := &Enroller{store: store, logger: slog.Default(), newPseudonym: domain.NewProviderPseudonym}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Enroll persists a copy of patient carrying one new enrollment extension.
// Enrollment extensions supplied by the caller are discarded; other
// extensions are kept.
func (e *Enroller) Enroll(ctx context.Context, patient *fhir.Patient) (*fhir.Patient, error) {
	if patient == nil {
		return nil, errors.New("patient is required")
	}

	p := patient.Clone()
	p.ResourceType = fhir.TypePatient
	kept := make([]fhir.Extension, 0, len(p.Extension)+1)
	for _, ext := range p.Extension {
		if ext.URL != fhir.EnrollmentExtensionURL {
			kept = append(kept, ext)
		}
	}
	p.Extension = append(kept, fhir.Extension{
		URL:       fhir.EnrollmentExtensionURL,
		ValueUUID: e.newPseudonym().String(),
	})

	created, err := e.store.CreatePatient(ctx, p)
	if errors.Is(err, sentinel.ErrConflict) {
		return nil, err
	}
	if err != nil {
		return nil, storeUnavailable("create subject", err)
	}
	e.metrics.enrolled()

	if e.index != nil {
		if err := e.index.Index(ctx, created); err != nil {
			// A partial index would hide this subject, so force the next
			// resolution back to a full scan.
			e.logger.WarnContext(ctx, "enrollment index write failed, invalidating",
				"request_id", requestcontext.RequestID(ctx),
				"subject_id", created.ID,
				"error", err,
			)
			if err := e.index.Invalidate(ctx); err != nil {
				e.logger.ErrorContext(ctx, "enrollment index invalidation failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
			}
		}
	}
	return created, nil
}

// Pseudonym returns the enrollment pseudonym of patient, if any.
func Pseudonym(patient *fhir.Patient) (domain.ProviderPseudonym, bool) {
	if patient == nil {
		return "", false
	}
	for _, ext := range patient.Extension {
		if ext.URL == fhir.EnrollmentExtensionURL && ext.PrimitiveValue() != "" {
			return domain.ProviderPseudonym(ext.PrimitiveValue()), true
		}
	}
	return "", false
}
