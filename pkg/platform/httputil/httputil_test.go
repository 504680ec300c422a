package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	dErrors "pseudonym-gateway/pkg/domain-errors"
	"pseudonym-gateway/pkg/fhir"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits diagnostics", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body fhir.OperationOutcome
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.ResourceType != fhir.TypeOperationOutcome {
			t.Fatalf("expected OperationOutcome, got %q", body.ResourceType)
		}
		if body.Issue[0].Diagnostics != "" {
			t.Fatalf("expected diagnostics to be omitted for internal errors, got %q", body.Issue[0].Diagnostics)
		}
	})

	t.Run("unavailable maps to 503 without diagnostics", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeUnavailable, "postgres: connection refused"))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
		var body fhir.OperationOutcome
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Issue[0].Code != "transient" || body.Issue[0].Diagnostics != "" {
			t.Fatalf("unexpected issue %+v", body.Issue[0])
		}
	})

	t.Run("bad request includes diagnostics", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "pseudonym must be a UUID"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != fhir.ContentType {
			t.Fatalf("expected content type %s, got %s", fhir.ContentType, ct)
		}
		var body fhir.OperationOutcome
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Issue[0].Diagnostics != "pseudonym must be a UUID" {
			t.Fatalf("expected diagnostics to be returned for bad request, got %q", body.Issue[0].Diagnostics)
		}
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.ErrHandlerTimeout)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestStatusFor_Conflict(t *testing.T) {
	status, issue := StatusFor(dErrors.CodeConflict)
	if status != http.StatusConflict || issue != "duplicate" {
		t.Fatalf("unexpected mapping %d %q", status, issue)
	}
}
