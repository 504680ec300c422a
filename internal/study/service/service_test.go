package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"pseudonym-gateway/internal/platform/logger"
	"pseudonym-gateway/internal/study/store/memory"
	subjectmemory "pseudonym-gateway/internal/subject/store/memory"
	"pseudonym-gateway/pkg/domain"
	dErrors "pseudonym-gateway/pkg/domain-errors"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/sentinel"
)

// scriptedStore fails searches for selected subjects and tracks concurrency.
type scriptedStore struct {
	*memory.InMemoryStudyStore
	fail     map[domain.SubjectID]error
	delay    time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	searched []domain.SubjectID
}

func (s *scriptedStore) SearchBySubject(ctx context.Context, id domain.SubjectID) ([]*fhir.ImagingStudy, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.mu.Lock()
	s.searched = append(s.searched, id)
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err := s.fail[id]; err != nil {
		return nil, err
	}
	return s.InMemoryStudyStore.SearchBySubject(ctx, id)
}

type AggregatorSuite struct {
	suite.Suite
	ctx   context.Context
	store *scriptedStore
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = &scriptedStore{InMemoryStudyStore: memory.New(), fail: map[domain.SubjectID]error{}}
}

func (s *AggregatorSuite) seed(id, subject string) {
	_, err := s.store.InMemoryStudyStore.CreateStudy(s.ctx, &fhir.ImagingStudy{ID: id, Subject: fhir.SubjectReference(subject)})
	s.Require().NoError(err)
}

func (s *AggregatorSuite) newAggregator(opts ...Option) *Aggregator {
	a, err := NewAggregator(s.store, append([]Option{WithLogger(logger.Discard())}, opts...)...)
	s.Require().NoError(err)
	return a
}

func ids(studies []*fhir.ImagingStudy) []string {
	out := make([]string, len(studies))
	for i, st := range studies {
		out[i] = st.ID
	}
	return out
}

// =============================================================================
// Aggregation
// =============================================================================

func (s *AggregatorSuite) TestAggregateDependents() {
	s.Run("empty input makes no store calls", func() {
		s.SetupTest()
		got, report := s.newAggregator().AggregateDependents(s.ctx, nil)
		s.NotNil(got)
		s.Empty(got)
		s.False(report.Partial())
		s.Equal(int32(0), s.store.calls.Load())
	})

	s.Run("union across subjects sorted by id", func() {
		s.SetupTest()
		s.seed("s3", "p1")
		s.seed("s1", "p2")
		s.seed("s2", "p1")
		s.seed("s9", "p3")

		got, report := s.newAggregator().AggregateDependents(s.ctx, []domain.SubjectID{"p1", "p2"})
		s.Equal([]string{"s1", "s2", "s3"}, ids(got))
		s.Equal(2, report.Subjects)
		s.False(report.Partial())
	})

	s.Run("subjects without studies contribute nothing", func() {
		s.SetupTest()
		s.seed("s1", "p1")
		got, _ := s.newAggregator().AggregateDependents(s.ctx, []domain.SubjectID{"p1", "empty"})
		s.Equal([]string{"s1"}, ids(got))
	})

	s.Run("repeated subject ids are searched once", func() {
		s.SetupTest()
		s.seed("s1", "p1")
		got, report := s.newAggregator().AggregateDependents(s.ctx, []domain.SubjectID{"p1", "p1", "p1"})
		s.Equal([]string{"s1"}, ids(got))
		s.Equal(1, report.Subjects)
		s.Equal(int32(1), s.store.calls.Load())
	})

	s.Run("aggregation is idempotent", func() {
		s.SetupTest()
		s.seed("s2", "p2")
		s.seed("s1", "p1")
		a := s.newAggregator()
		first, _ := a.AggregateDependents(s.ctx, []domain.SubjectID{"p2", "p1"})
		second, _ := a.AggregateDependents(s.ctx, []domain.SubjectID{"p1", "p2"})
		s.Equal(ids(first), ids(second))
	})
}

func (s *AggregatorSuite) TestMerge_DeduplicatesFirstOccurrence() {
	first := &fhir.ImagingStudy{ID: "s1", Description: "from p1"}
	dup := &fhir.ImagingStudy{ID: "s1", Description: "from p2"}
	other := &fhir.ImagingStudy{ID: "s0"}

	got := merge([][]*fhir.ImagingStudy{{first}, {dup, other}, nil})

	s.Equal([]string{"s0", "s1"}, ids(got))
	s.Equal("from p1", got[1].Description)
}

// =============================================================================
// Tolerant failure policy
// =============================================================================

func (s *AggregatorSuite) TestAggregateDependents_PartialFailure() {
	s.seed("s1", "p1")
	s.seed("s2", "p2")
	s.seed("s3", "p3")
	s.store.fail["p2"] = fmt.Errorf("timeout: %w", sentinel.ErrUnavailable)
	m := NewMetrics(prometheus.NewRegistry())

	got, report := s.newAggregator(WithMetrics(m)).AggregateDependents(s.ctx, []domain.SubjectID{"p1", "p2", "p3"})

	s.Equal([]string{"s1", "s3"}, ids(got))
	s.True(report.Partial())
	s.Equal([]domain.SubjectID{"p2"}, report.Failed)
	s.Equal(int32(3), s.store.calls.Load(), "a failure must not cancel sibling searches")
	s.Equal(float64(1), testutil.ToFloat64(m.SubjectSearches.WithLabelValues("failed")))
	s.Equal(float64(2), testutil.ToFloat64(m.SubjectSearches.WithLabelValues("ok")))
}

func (s *AggregatorSuite) TestAggregateDependents_AllFail() {
	s.store.fail["p1"] = errors.New("boom")
	s.store.fail["p2"] = errors.New("boom")

	got, report := s.newAggregator().AggregateDependents(s.ctx, []domain.SubjectID{"p2", "p1"})

	s.Empty(got)
	s.Equal([]domain.SubjectID{"p1", "p2"}, report.Failed)
}

func (s *AggregatorSuite) TestAggregateDependents_BoundedConcurrency() {
	s.store.delay = 20 * time.Millisecond
	subjects := make([]domain.SubjectID, 10)
	for i := range subjects {
		subjects[i] = domain.SubjectID(fmt.Sprintf("p%d", i))
	}

	_, report := s.newAggregator(WithConcurrency(2)).AggregateDependents(s.ctx, subjects)

	s.False(report.Partial())
	s.Equal(int32(10), s.store.calls.Load())
	s.LessOrEqual(s.store.peak.Load(), int32(2))
}

// =============================================================================
// Registrar
// =============================================================================

func (s *AggregatorSuite) TestRegister() {
	subjects := subjectmemory.New()
	_, err := subjects.CreatePatient(s.ctx, &fhir.Patient{ID: "p1"})
	s.Require().NoError(err)
	r, err := NewRegistrar(s.store, subjects)
	s.Require().NoError(err)

	s.Run("stores study for an existing subject", func() {
		created, err := r.Register(s.ctx, &fhir.ImagingStudy{
			Subject: fhir.Reference{Reference: "https://fhir.example/Patient/p1"},
			Status:  "available",
		})
		s.Require().NoError(err)
		s.NotEmpty(created.ID)
		s.Equal("Patient/p1", created.Subject.Reference)

		got, _ := s.newAggregator().AggregateDependents(s.ctx, []domain.SubjectID{"p1"})
		s.Equal([]string{created.ID}, ids(got))
	})

	s.Run("subject must reference a Patient", func() {
		_, err := r.Register(s.ctx, &fhir.ImagingStudy{Subject: fhir.Reference{Reference: "Group/g1"}})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown subject is rejected", func() {
		_, err := r.Register(s.ctx, &fhir.ImagingStudy{Subject: fhir.SubjectReference("missing")})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("duplicate id conflicts", func() {
		_, err := r.Register(s.ctx, &fhir.ImagingStudy{ID: "dup", Subject: fhir.SubjectReference("p1")})
		s.Require().NoError(err)
		_, err = r.Register(s.ctx, &fhir.ImagingStudy{ID: "dup", Subject: fhir.SubjectReference("p1")})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
