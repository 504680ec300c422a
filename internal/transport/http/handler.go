package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pseudonym-gateway/internal/platform/metrics"
	"pseudonym-gateway/internal/platform/middleware"
	"pseudonym-gateway/internal/resolution"
	"pseudonym-gateway/pkg/domain"
	dErrors "pseudonym-gateway/pkg/domain-errors"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/platform/httputil"
	"pseudonym-gateway/pkg/platform/sentinel"
	"pseudonym-gateway/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Resolver runs the full pseudonym resolution for study searches.
type Resolver interface {
	Resolve(ctx context.Context, external domain.ExternalPseudonym) (resolution.Result, error)
}

// PatientService answers patient reads and provider-pseudonym searches.
type PatientService interface {
	ResolvePatients(ctx context.Context, pseudonym domain.ProviderPseudonym) ([]*fhir.Patient, error)
	Patient(ctx context.Context, id domain.SubjectID) (*fhir.Patient, error)
}

// Enroller creates a subject under a fresh provider pseudonym.
type Enroller interface {
	Enroll(ctx context.Context, patient *fhir.Patient) (*fhir.Patient, error)
}

// StudyRegistrar stores imaging studies for existing subjects.
type StudyRegistrar interface {
	Register(ctx context.Context, study *fhir.ImagingStudy) (*fhir.ImagingStudy, error)
}

// HealthChecker is checked by /healthz.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Services groups the domain services the handler delegates to.
type Services struct {
	Resolver  Resolver
	Patients  PatientService
	Enroller  Enroller
	Registrar StudyRegistrar
}

// Handler is the FHIR HTTP surface. It holds no business logic.
type Handler struct {
	services       Services
	logger         *slog.Logger
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	jwtValidator   middleware.JWTValidator
	requestTimeout time.Duration
	enableCreate   bool
	health         map[string]HealthChecker
}

type Option func(*Handler)

// WithJWTValidator guards /fhir routes. A nil validator leaves them open.
func WithJWTValidator(v middleware.JWTValidator) Option {
	return func(h *Handler) {
		h.jwtValidator = v
	}
}

func WithMetrics(m *metrics.Metrics, exposition http.Handler) Option {
	return func(h *Handler) {
		h.metrics = m
		h.metricsHandler = exposition
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

// WithCreateRoutes toggles POST /fhir/Patient and POST /fhir/ImagingStudy.
func WithCreateRoutes(enabled bool) Option {
	return func(h *Handler) {
		h.enableCreate = enabled
	}
}

func WithHealthCheck(name string, c HealthChecker) Option {
	return func(h *Handler) {
		if c != nil {
			h.health[name] = c
		}
	}
}

// New constructs the handler. Resolver and Patients are required; the create
// routes additionally need Enroller and Registrar.
func New(services Services, logger *slog.Logger, opts ...Option) (*Handler, error) {
	if services.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if services.Patients == nil {
		return nil, errors.New("patient service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		services:       services,
		logger:         logger,
		requestTimeout: 30 * time.Second,
		health:         make(map[string]HealthChecker),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.enableCreate && (services.Enroller == nil || services.Registrar == nil) {
		return nil, errors.New("enroller and registrar are required when create routes are enabled")
	}
	return h, nil
}

// handleSearchStudies handles GET /fhir/ImagingStudy?pseudonym=<external>.
func (h *Handler) handleSearchStudies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	external, err := domain.ParseExternalPseudonym(r.FormValue("pseudonym"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid pseudonym",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.services.Resolver.Resolve(ctx, external)
	if err != nil {
		h.logger.ErrorContext(ctx, "imaging study search failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, coded(err))
		return
	}

	bundle, err := fhir.NewSearchset(result.Studies)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build search bundle"))
		return
	}
	httputil.WriteResource(w, http.StatusOK, bundle)
}

// handleSearchPatients handles GET /fhir/Patient?pseudonym=<provider>.
func (h *Handler) handleSearchPatients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	pseudonym, err := domain.ParseProviderPseudonym(r.FormValue("pseudonym"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid pseudonym",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	patients, err := h.services.Patients.ResolvePatients(ctx, pseudonym)
	if err != nil {
		h.logger.ErrorContext(ctx, "patient search failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, coded(err))
		return
	}

	bundle, err := fhir.NewSearchset(patients)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build search bundle"))
		return
	}
	httputil.WriteResource(w, http.StatusOK, bundle)
}

// handleReadPatient handles GET /fhir/Patient/{id}.
func (h *Handler) handleReadPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseSubjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	patient, err := h.services.Patients.Patient(ctx, id)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "patient read failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, coded(err))
		return
	}
	httputil.WriteResource(w, http.StatusOK, patient)
}

// handleCreatePatient handles POST /fhir/Patient. The stored patient is
// always enrolled under a fresh pseudonym.
func (h *Handler) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var patient fhir.Patient
	if err := decodeResource(w, r, fhir.TypePatient, &patient); err != nil {
		h.logger.WarnContext(ctx, "invalid patient body",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	created, err := h.services.Enroller.Enroll(ctx, &patient)
	if err != nil {
		h.logger.ErrorContext(ctx, "patient enrollment failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, coded(err))
		return
	}

	h.logger.InfoContext(ctx, "patient enrolled",
		"request_id", requestID,
		"subject_id", created.ID,
	)
	w.Header().Set("Location", fhir.TypePatient+"/"+created.ID)
	httputil.WriteResource(w, http.StatusCreated, created)
}

// handleCreateStudy handles POST /fhir/ImagingStudy.
func (h *Handler) handleCreateStudy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var study fhir.ImagingStudy
	if err := decodeResource(w, r, fhir.TypeImagingStudy, &study); err != nil {
		h.logger.WarnContext(ctx, "invalid imaging study body",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	created, err := h.services.Registrar.Register(ctx, &study)
	if err != nil {
		h.logger.WarnContext(ctx, "imaging study registration failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, coded(err))
		return
	}

	w.Header().Set("Location", fhir.TypeImagingStudy+"/"+created.ID)
	httputil.WriteResource(w, http.StatusCreated, created)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth handles GET /healthz.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := healthResponse{Status: "ok"}
	if len(h.health) > 0 {
		resp.Checks = make(map[string]string, len(h.health))
	}
	for name, c := range h.health {
		if err := c.Health(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				"request_id", requestcontext.RequestID(ctx),
				"check", name,
				"error", err,
			)
			resp.Status = "unavailable"
			resp.Checks[name] = "unavailable"
			continue
		}
		resp.Checks[name] = "ok"
	}
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no such route"))
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteResource(w, http.StatusMethodNotAllowed,
		fhir.NewOperationOutcome("not-supported", fmt.Sprintf("%s is not supported on %s", r.Method, r.URL.Path)))
}

// decodeResource reads a single FHIR JSON resource of the given type.
func decodeResource(w http.ResponseWriter, r *http.Request, resourceType string, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || (mediaType != "application/json" && mediaType != fhir.ContentType) {
			return dErrors.New(dErrors.CodeBadRequest, "content type must be application/fhir+json")
		}
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "request body too large or unreadable")
	}
	if got := fhir.PeekResourceType(raw); got != "" && got != resourceType {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("expected resourceType %s, got %s", resourceType, got))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// coded maps infrastructure sentinels to transport codes. Coded errors pass
// through unchanged.
func coded(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "resource not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "resource already exists")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "backing store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
}
