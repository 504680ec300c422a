package service

import (
	"context"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
)

// Store is the imaging study side of the backing store.
type Store interface {
	SearchBySubject(ctx context.Context, id domain.SubjectID) ([]*fhir.ImagingStudy, error)
	CreateStudy(ctx context.Context, study *fhir.ImagingStudy) (*fhir.ImagingStudy, error)
}
