package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/sentinel"
)

func TestDecode(t *testing.T) {
	t.Run("valid resource", func(t *testing.T) {
		p := &fhir.Patient{}
		require.NoError(t, decode("patient", "p1", []byte(`{"resourceType":"Patient","id":"p1"}`), p))
		assert.Equal(t, "p1", p.ID)
	})

	t.Run("wrong shape is an invalid record", func(t *testing.T) {
		err := decode("patient", "p1", []byte(`{"extension":"not-a-list"}`), &fhir.Patient{})
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrInvalidRecord)
		assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
		assert.Contains(t, err.Error(), "decode patient p1")
	})
}
