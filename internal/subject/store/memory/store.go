// Package memory is the in-memory subject store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/sentinel"
)

// InMemoryPatientStore keeps patients keyed by id. Every read returns
// clones, so callers never share backing arrays with the store.
type InMemoryPatientStore struct {
	mu       sync.RWMutex
	patients map[domain.SubjectID]*fhir.Patient
	now      func() time.Time
}

func New() *InMemoryPatientStore {
	return &InMemoryPatientStore{
		patients: make(map[domain.SubjectID]*fhir.Patient),
		now:      time.Now,
	}
}

func (s *InMemoryPatientStore) ListPatients(_ context.Context) ([]*fhir.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*fhir.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryPatientStore) FindPatient(_ context.Context, id domain.SubjectID) (*fhir.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, sentinel.ErrNotFound)
	}
	return p.Clone(), nil
}

// CreatePatient stores a copy of patient, assigning an id when it has none.
func (s *InMemoryPatientStore) CreatePatient(_ context.Context, patient *fhir.Patient) (*fhir.Patient, error) {
	p := patient.Clone()
	p.ResourceType = fhir.TypePatient
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Meta = &fhir.Meta{VersionID: "1", LastUpdated: s.now().UTC().Format(time.RFC3339)}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.SubjectID(p.ID)
	if _, exists := s.patients[id]; exists {
		return nil, fmt.Errorf("patient %s: %w", id, sentinel.ErrConflict)
	}
	s.patients[id] = p
	return p.Clone(), nil
}
