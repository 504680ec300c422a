package exchange

import (
	"errors"
	"fmt"
)

// ErrExchangeFailed is wrapped by every error the client returns. Callers
// treat it as "no subject resolvable", never as an outage.
var ErrExchangeFailed = errors.New("pseudonym exchange failed")

// Category is the normalized failure taxonomy for exchange calls.
type Category string

const (
	// CategoryTimeout: the exchange did not answer within the configured timeout.
	CategoryTimeout Category = "timeout"
	// CategoryOutage: transport failure or 5xx from the exchange.
	CategoryOutage Category = "provider_outage"
	// CategoryBadData: the body was not a JSON object.
	CategoryBadData Category = "bad_data"
	// CategoryContractMismatch: JSON without a usable "pseudonym", or a 4xx.
	CategoryContractMismatch Category = "contract_mismatch"
	// CategoryCircuitOpen: the breaker short-circuited the call.
	CategoryCircuitOpen Category = "circuit_open"
	// CategoryInternal: request could not be built.
	CategoryInternal Category = "internal"
)

// Error wraps an exchange failure with its category.
type Error struct {
	Category   Category
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("pseudonym exchange [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("pseudonym exchange [%s]: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Underlying != nil {
		return []error{ErrExchangeFailed, e.Underlying}
	}
	return []error{ErrExchangeFailed}
}

func newError(category Category, message string, underlying error) *Error {
	return &Error{Category: category, Message: message, Underlying: underlying}
}

// CategoryOf extracts the category from err, or CategoryInternal.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryInternal
}
