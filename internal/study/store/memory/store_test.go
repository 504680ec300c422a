package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/sentinel"
)

func TestInMemoryStudyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("search returns only studies referencing the subject", func(t *testing.T) {
		store := New()
		for _, st := range []*fhir.ImagingStudy{
			{ID: "s2", Subject: fhir.SubjectReference("p1")},
			{ID: "s1", Subject: fhir.Reference{Reference: "https://fhir.example/Patient/p1/_history/3"}},
			{ID: "s3", Subject: fhir.SubjectReference("p2")},
			{ID: "s4", Subject: fhir.Reference{Reference: "Group/p1"}},
		} {
			_, err := store.CreateStudy(ctx, st)
			require.NoError(t, err)
		}

		got, err := store.SearchBySubject(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "s1", got[0].ID)
		assert.Equal(t, "s2", got[1].ID)
	})

	t.Run("unknown subject yields empty result", func(t *testing.T) {
		got, err := New().SearchBySubject(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		store := New()
		_, err := store.CreateStudy(ctx, &fhir.ImagingStudy{ID: "s1"})
		require.NoError(t, err)
		_, err = store.CreateStudy(ctx, &fhir.ImagingStudy{ID: "s1"})
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})
}
