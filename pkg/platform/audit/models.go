package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers record access and creation: who resolved or
	// enrolled which subjects, kept for regulatory review.
	CategoryCompliance EventCategory = "compliance"
	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventPseudonymResolved AuditEvent = "pseudonym_resolved"
	EventSubjectEnrolled   AuditEvent = "subject_enrolled"
	EventStudyRegistered   AuditEvent = "study_registered"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPseudonymResolved: CategoryCompliance,
	EventSubjectEnrolled:   CategoryCompliance,
	EventStudyRegistered:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Outcome of a resolution.
const (
	OutcomeResolved         = "resolved"
	OutcomeNoMatch          = "no_match"
	OutcomeExchangeFailed   = "exchange_failed"
	OutcomeStoreUnavailable = "store_unavailable"
	OutcomeCreated          = "created"
)

// Event is emitted from domain logic to capture key actions. Pseudonyms are
// never carried in clear; PseudonymHash holds HashIdentifier of the external
// pseudonym for traceability.
type Event struct {
	Category      EventCategory
	Timestamp     time.Time
	Action        string
	Outcome       string
	Reason        string
	PseudonymHash string
	SubjectCount  int
	StudyCount    int
	// PartialFailures counts subjects whose study search failed.
	PartialFailures int
	ResourceID      string
	RequestID       string
	Caller          string
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// HashIdentifier returns the hex SHA-256 of an identifier.
func HashIdentifier(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
