package service

import (
	"context"
	"errors"
	"fmt"

	"pseudonym-gateway/pkg/domain"
	dErrors "pseudonym-gateway/pkg/domain-errors"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/sentinel"
)

// SubjectLookup confirms a study's subject exists before it is stored.
type SubjectLookup interface {
	FindPatient(ctx context.Context, id domain.SubjectID) (*fhir.Patient, error)
}

// Registrar stores new imaging studies for existing subjects.
type Registrar struct {
	store    Store
	subjects SubjectLookup
}

func NewRegistrar(store Store, subjects SubjectLookup) (*Registrar, error) {
	if store == nil {
		return nil, errors.New("study store is required")
	}
	if subjects == nil {
		return nil, errors.New("subject lookup is required")
	}
	return &Registrar{store: store, subjects: subjects}, nil
}

// Register validates the subject reference and persists study.
func (r *Registrar) Register(ctx context.Context, study *fhir.ImagingStudy) (*fhir.ImagingStudy, error) {
	if study == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "imaging study is required")
	}
	subject := fhir.ReferencedID(study.Subject, fhir.TypePatient)
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject must reference a Patient")
	}
	id, err := domain.ParseSubjectID(subject)
	if err != nil {
		return nil, err
	}

	if _, err := r.subjects.FindPatient(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("subject Patient/%s does not exist", id))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "subject lookup failed")
	}

	st := study.Clone()
	st.Subject = fhir.SubjectReference(id.String())
	created, err := r.store.CreateStudy(ctx, st)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "imaging study already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "store imaging study")
	}
	return created, nil
}
