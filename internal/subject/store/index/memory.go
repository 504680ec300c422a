package index

import (
	"context"
	"sync"
	"time"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
)

// InMemoryIndex is a process-local enrollment index. It is only complete
// for a single gateway instance that owns its store.
type InMemoryIndex struct {
	mu         sync.RWMutex
	entries    map[string]map[domain.SubjectID]struct{}
	generation uint64
	readyUntil time.Time
	ready      bool
	ttl        time.Duration
	now        func() time.Time
}

type MemoryOption func(*InMemoryIndex)

// WithTTL bounds how long a rebuild is trusted. Non-positive values fall
// back to DefaultTTL.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(i *InMemoryIndex) {
		i.ttl = ttl
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(i *InMemoryIndex) {
		i.now = now
	}
}

func NewInMemory(opts ...MemoryOption) *InMemoryIndex {
	i := &InMemoryIndex{
		entries: make(map[string]map[domain.SubjectID]struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.ttl = boundedTTL(i.ttl)
	return i
}

func (i *InMemoryIndex) Candidates(_ context.Context, pseudonym domain.ProviderPseudonym) ([]domain.SubjectID, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.isReady() {
		return nil, false, nil
	}
	set := i.entries[string(pseudonym)]
	raw := make([]string, 0, len(set))
	for id := range set {
		raw = append(raw, string(id))
	}
	return sortedIDs(raw), true, nil
}

func (i *InMemoryIndex) Index(_ context.Context, patient *fhir.Patient) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.add(patient)
	return nil
}

func (i *InMemoryIndex) Generation(_ context.Context) (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.generation, nil
}

// Rebuild adds every patient. The index becomes ready only if generation is
// still current.
func (i *InMemoryIndex) Rebuild(_ context.Context, generation uint64, patients []*fhir.Patient) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, p := range patients {
		i.add(p)
	}
	if generation != i.generation {
		return nil
	}
	i.ready = true
	i.readyUntil = i.now().Add(i.ttl)
	return nil
}

func (i *InMemoryIndex) Invalidate(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.generation++
	i.ready = false
	return nil
}

func (i *InMemoryIndex) add(patient *fhir.Patient) {
	if patient == nil || patient.ID == "" {
		return
	}
	id := domain.SubjectID(patient.ID)
	for _, v := range values(patient) {
		set, ok := i.entries[v]
		if !ok {
			set = make(map[domain.SubjectID]struct{})
			i.entries[v] = set
		}
		set[id] = struct{}{}
	}
}

func (i *InMemoryIndex) isReady() bool {
	return i.ready && i.now().Before(i.readyUntil)
}
