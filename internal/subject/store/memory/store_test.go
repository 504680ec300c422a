package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/sentinel"
)

func TestInMemoryPatientStore(t *testing.T) {
	ctx := context.Background()

	t.Run("create assigns id and lists sorted", func(t *testing.T) {
		store := New()
		_, err := store.CreatePatient(ctx, &fhir.Patient{ID: "b"})
		require.NoError(t, err)
		_, err = store.CreatePatient(ctx, &fhir.Patient{ID: "a"})
		require.NoError(t, err)
		generated, err := store.CreatePatient(ctx, &fhir.Patient{})
		require.NoError(t, err)
		assert.NotEmpty(t, generated.ID)
		assert.Equal(t, fhir.TypePatient, generated.ResourceType)

		all, err := store.ListPatients(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a", all[0].ID)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		store := New()
		_, err := store.CreatePatient(ctx, &fhir.Patient{ID: "a"})
		require.NoError(t, err)
		_, err = store.CreatePatient(ctx, &fhir.Patient{ID: "a"})
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("find missing returns not found", func(t *testing.T) {
		_, err := New().FindPatient(ctx, domain.SubjectID("nope"))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("callers cannot mutate stored extensions", func(t *testing.T) {
		store := New()
		_, err := store.CreatePatient(ctx, &fhir.Patient{
			ID:        "a",
			Extension: []fhir.Extension{{URL: fhir.EnrollmentExtensionURL, ValueUUID: "v"}},
		})
		require.NoError(t, err)

		listed, err := store.ListPatients(ctx)
		require.NoError(t, err)
		listed[0].Extension = nil

		found, err := store.FindPatient(ctx, "a")
		require.NoError(t, err)
		found.Extension[0].ValueUUID = "changed"

		again, err := store.FindPatient(ctx, "a")
		require.NoError(t, err)
		require.Len(t, again.Extension, 1)
		assert.Equal(t, "v", again.Extension[0].ValueUUID)
	})
}
