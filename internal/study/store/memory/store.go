// Package memory is the in-memory imaging study store.
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

// InMemoryStudyStore indexes studies by the subject they reference.
type InMemoryStudyStore struct {
	mu        sync.RWMutex
	studies   map[domain.RecordID]*fhir.ImagingStudy
	bySubject map[domain.SubjectID][]domain.RecordID
	now       func() time.Time
}

func New() *InMemoryStudyStore {
	return &InMemoryStudyStore{
		studies:   make(map[domain.RecordID]*fhir.ImagingStudy),
		bySubject: make(map[domain.SubjectID][]domain.RecordID),
		now:       time.Now,
	}
}

// SearchBySubject returns every study whose subject references Patient/id.
func (s *InMemoryStudyStore) SearchBySubject(_ context.Context, id domain.SubjectID) ([]*fhir.ImagingStudy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySubject[id]
	out := make([]*fhir.ImagingStudy, 0, len(ids))
	for _, rid := range ids {
		out = append(out, s.studies[rid].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStudyStore) CreateStudy(_ context.Context, study *fhir.ImagingStudy) (*fhir.ImagingStudy, error) {
	st := study.Clone()
	st.ResourceType = fhir.TypeImagingStudy
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.Meta = &fhir.Meta{VersionID: "1", LastUpdated: s.now().UTC().Format(time.RFC3339)}

	s.mu.Lock()
	defer s.mu.Unlock()
	rid := domain.RecordID(st.ID)
	if _, exists := s.studies[rid]; exists {
		return nil, fmt.Errorf("imaging study %s: %w", rid, sentinel.ErrConflict)
	}
	s.studies[rid] = st
	if subject := fhir.ReferencedID(st.Subject, fhir.TypePatient); subject != "" {
		sid := domain.SubjectID(subject)
		s.bySubject[sid] = append(s.bySubject[sid], rid)
	}
	return st.Clone(), nil
}
