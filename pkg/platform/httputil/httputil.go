// Package httputil renders resources and coded errors as FHIR JSON.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "pseudonym-gateway/pkg/domain-errors"
	"pseudonym-gateway/pkg/fhir"
)

// WriteResource writes v as FHIR JSON with the given status.
func WriteResource(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", fhir.ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSON writes v as plain JSON for non-FHIR endpoints.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded error to a status and an OperationOutcome. Internal
// and unavailable errors never echo their message to the caller.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, issueCode := StatusFor(code)

	diagnostics := ""
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeUnauthorized:
		var de *dErrors.Error
		if errors.As(err, &de) {
			diagnostics = de.Message
		}
	}
	WriteResource(w, status, fhir.NewOperationOutcome(issueCode, diagnostics))
}

// StatusFor maps an error code to an HTTP status and FHIR issue type.
func StatusFor(code dErrors.Code) (int, string) {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest, "invalid"
	case dErrors.CodeNotFound:
		return http.StatusNotFound, "not-found"
	case dErrors.CodeConflict:
		return http.StatusConflict, "duplicate"
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized, "security"
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable, "transient"
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "exception"
	}
}
