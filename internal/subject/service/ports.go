package service

import (
	"context"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
)

// Store is the subject side of the backing store. Implementations return
// clones and wrap sentinel.ErrUnavailable on connectivity failures.
type Store interface {
	ListPatients(ctx context.Context) ([]*fhir.Patient, error)
	FindPatient(ctx context.Context, id domain.SubjectID) (*fhir.Patient, error)
	CreatePatient(ctx context.Context, patient *fhir.Patient) (*fhir.Patient, error)
}

// EnrollmentIndex maps extension values to subject ids.
//
// Candidates reports ready=false when the index has not been built (or its
// build has expired); the resolver then scans the store and rebuilds it.
// When ready, the candidate list is complete for every subject written
// through a gateway sharing the index, so an index may only front a store
// that no other writer touches.
//
// Rebuild receives the Generation read before the scan and must not mark the
// index ready if Invalidate ran in between.
type EnrollmentIndex interface {
	Candidates(ctx context.Context, pseudonym domain.ProviderPseudonym) (ids []domain.SubjectID, ready bool, err error)
	Index(ctx context.Context, patient *fhir.Patient) error
	Generation(ctx context.Context) (uint64, error)
	Rebuild(ctx context.Context, generation uint64, patients []*fhir.Patient) error
	Invalidate(ctx context.Context) error
}
