package sanitizer

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/httputil"
	"pseudonym-gateway/pkg/requestcontext"
)

// Middleware buffers every response and strips Patient extensions before it
// is written. A JSON body that cannot be decoded is replaced by a 500
// OperationOutcome, so an unverified payload never reaches the client.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
			next.ServeHTTP(buf, r)

			body := buf.body.Bytes()
			if mustInspect(buf.header.Get("Content-Type"), body) {
				clean, err := SanitizeJSON(body)
				if err != nil {
					logger.ErrorContext(r.Context(), "outbound response could not be sanitized",
						"request_id", requestcontext.RequestID(r.Context()),
						"path", r.URL.Path,
						"error", err,
					)
					httputil.WriteResource(w, http.StatusInternalServerError,
						fhir.NewOperationOutcome("exception", ""))
					return
				}
				body = clean
			}

			for k, v := range buf.header {
				w.Header()[k] = v
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(buf.status)
			if r.Method != http.MethodHead {
				_, _ = w.Write(body)
			}
		})
	}
}

// mustInspect selects JSON bodies, including ones sent without a
// Content-Type.
func mustInspect(contentType string, body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	if contentType == "" {
		return trimmed[0] == '{' || trimmed[0] == '['
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || mt == fhir.ContentType
}

// bufferedWriter holds the handler's response until it has been sanitized.
type bufferedWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.status = code
	b.wroteHeader = true
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}
