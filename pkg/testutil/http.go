// Package testutil provides helpers for exercising the FHIR HTTP surface in
// tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pseudonym-gateway/pkg/fhir"
)

// NewFHIRRequest creates a request with a FHIR JSON body. An empty body
// yields a request without Content-Type.
func NewFHIRRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", fhir.ContentType)
	}
	return req
}

// DoRequest executes a request against a handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalResponse unmarshals the response body into T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var result T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result), "failed to unmarshal response")
	return &result
}

// RequireSearchset decodes a searchset Bundle and returns it.
func RequireSearchset(t *testing.T, rr *httptest.ResponseRecorder) *fhir.Bundle {
	t.Helper()
	b := UnmarshalResponse[fhir.Bundle](t, rr)
	require.Equal(t, fhir.TypeBundle, b.ResourceType, "expected a Bundle")
	require.Equal(t, fhir.BundleTypeSearchset, b.Type)
	require.NotNil(t, b.Total, "searchset must carry total")
	return b
}

// RequireOutcome decodes an OperationOutcome and returns its first issue.
func RequireOutcome(t *testing.T, rr *httptest.ResponseRecorder) fhir.Issue {
	t.Helper()
	o := UnmarshalResponse[fhir.OperationOutcome](t, rr)
	require.Equal(t, fhir.TypeOperationOutcome, o.ResourceType, "expected an OperationOutcome")
	require.NotEmpty(t, o.Issue)
	return o.Issue[0]
}

// AssertStatusAndIssue asserts the status and the OperationOutcome issue code.
func AssertStatusAndIssue(t *testing.T, rr *httptest.ResponseRecorder, status int, issueCode string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, "unexpected status code")
	assert.Equal(t, issueCode, RequireOutcome(t, rr).Code, "unexpected issue code")
}

// AssertNoExtensions fails when any extension key survives in the body.
func AssertNoExtensions(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	body := rr.Body.String()
	assert.NotContains(t, body, `"extension"`, "response leaks extensions")
	assert.NotContains(t, body, `"modifierExtension"`, "response leaks modifier extensions")
}
