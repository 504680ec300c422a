package audit

import (
	"context"
	"log/slog"
)

// LogStore writes events as structured log lines.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit",
		"category", string(event.Category),
		"action", event.Action,
		"outcome", event.Outcome,
		"reason", event.Reason,
		"pseudonym_hash", event.PseudonymHash,
		"subject_count", event.SubjectCount,
		"study_count", event.StudyCount,
		"partial_failures", event.PartialFailures,
		"resource_id", event.ResourceID,
		"request_id", event.RequestID,
		"caller", event.Caller,
	)
	return nil
}
