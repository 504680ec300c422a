package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into component errors:
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: record with the same identity already exists
//   - ErrUnavailable: store or remote dependency cannot be reached
//   - ErrInvalidRecord: a stored record exists but cannot be decoded
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnavailable   = errors.New("unavailable")
	ErrInvalidRecord = errors.New("invalid stored record")
)
