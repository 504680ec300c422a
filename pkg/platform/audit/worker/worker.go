package worker

import (
	"context"
	"log/slog"

	audit "pseudonym-gateway/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. A failed
// append is logged and the worker moves on to the next event.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox until it is closed. Events are persisted with a
// background context so a cancelled request does not lose its audit trail.
func (w *Worker) Run() {
	for event := range w.inbox {
		if err := w.store.Append(context.Background(), event); err != nil {
			w.logger.Error("audit append failed",
				"action", event.Action,
				"request_id", event.RequestID,
				"error", err,
			)
		}
	}
}
