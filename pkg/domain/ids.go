// Package domain defines the typed identifiers that cross trust boundaries.
//
// Pseudonyms are request-scoped tokens and are never persisted. Keeping them
// as distinct named types prevents an external pseudonym from being matched
// against subject metadata without first passing through the exchange.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "pseudonym-gateway/pkg/domain-errors"
)

// ExternalPseudonym is the token a caller presents. Structurally a UUID.
type ExternalPseudonym string

// ProviderPseudonym is the provider-local token returned by the exchange
// service. It is kept verbatim: enrollment matching is exact string equality.
type ProviderPseudonym string

// SubjectID is the store-assigned identity of a subject (Patient) record.
type SubjectID string

// RecordID is the store-assigned identity of a dependent record.
type RecordID string

const (
	maxIDLength = 64
	// uuidLength is the hyphenated 8-4-4-4-12 form. uuid.Parse also accepts
	// braced, urn:uuid: and unhyphenated forms, which are rejected here.
	uuidLength = 36
)

// ParseExternalPseudonym validates caller input at the HTTP edge. The value
// is returned exactly as given.
func ParseExternalPseudonym(s string) (ExternalPseudonym, error) {
	if err := checkUUID(s); err != nil {
		return "", err
	}
	return ExternalPseudonym(s), nil
}

// ParseProviderPseudonym validates a provider pseudonym supplied directly by
// a caller (patient search). The value is returned exactly as given, since
// enrollment matching is case sensitive.
func ParseProviderPseudonym(s string) (ProviderPseudonym, error) {
	if err := checkUUID(s); err != nil {
		return "", err
	}
	return ProviderPseudonym(s), nil
}

// NewProviderPseudonym mints a fresh enrollment value for a new subject.
func NewProviderPseudonym() ProviderPseudonym {
	return ProviderPseudonym(uuid.NewString())
}

// ParseSubjectID accepts a FHIR logical id ([A-Za-z0-9\-\.]{1,64}).
func ParseSubjectID(s string) (SubjectID, error) {
	if !validLogicalID(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid subject id")
	}
	return SubjectID(s), nil
}

func (p ExternalPseudonym) String() string { return string(p) }
func (p ProviderPseudonym) String() string { return string(p) }
func (id SubjectID) String() string        { return string(id) }
func (id RecordID) String() string         { return string(id) }

// IsZero reports whether the pseudonym is empty.
func (p ProviderPseudonym) IsZero() bool { return p == "" }

func checkUUID(s string) error {
	if s == "" || strings.TrimSpace(s) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "pseudonym is required")
	}
	if len(s) > maxIDLength {
		return dErrors.New(dErrors.CodeInvalidInput, "pseudonym is too long")
	}
	if len(s) != uuidLength {
		return dErrors.New(dErrors.CodeInvalidInput, "pseudonym must be a UUID")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "pseudonym must be a UUID")
	}
	if u == uuid.Nil {
		return dErrors.New(dErrors.CodeInvalidInput, "pseudonym must not be the nil UUID")
	}
	return nil
}

func validLogicalID(s string) bool {
	if s == "" || len(s) > maxIDLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
