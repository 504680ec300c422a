package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "pseudonym-gateway/pkg/platform/audit"
)

func TestNew_RequiresBrokersAndTopic(t *testing.T) {
	_, err := New(context.Background(), nil, "audit")
	assert.Error(t, err)

	_, err = New(context.Background(), []string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestToPayload_CarriesNoPseudonym(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	p := toPayload(audit.Event{
		Category:      audit.CategoryCompliance,
		Timestamp:     ts,
		Action:        string(audit.EventPseudonymResolved),
		Outcome:       audit.OutcomeResolved,
		PseudonymHash: audit.HashIdentifier("677b33c7-30e0-4fe1-a740-87fd73c4dfaf"),
		SubjectCount:  1,
		StudyCount:    2,
		RequestID:     "req-1",
	})

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "677b33c7")
	assert.Equal(t, ts.UTC(), p.Timestamp)
	assert.Contains(t, string(raw), `"study_count":2`)
}
