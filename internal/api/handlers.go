// Package api exposes HTTP handlers for the measurement service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/igorgomez/medidascorporais/internal/auth"
	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/identity"
)

// Handler coordinates HTTP requests with the measurement and identity services.
type Handler struct {
	service  *domain.Service
	identity *identity.Provider
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger overrides the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithClock overrides the time source used for default dates and export names.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, provider *identity.Provider, opts ...Option) *Handler {
	h := &Handler{service: service, identity: provider, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	r.HandleFunc("/v1/auth/signup", h.signUp).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/signin", h.signIn).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/signout", h.signOut).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/me", h.me).Methods(http.MethodGet)

	r.HandleFunc("/v1/measurements", h.listMeasurements).Methods(http.MethodGet)
	r.HandleFunc("/v1/measurements", h.createMeasurement).Methods(http.MethodPost)
	r.HandleFunc("/v1/measurements/timeline", h.timeline).Methods(http.MethodGet)
	r.HandleFunc("/v1/measurements/radar", h.radar).Methods(http.MethodGet)
	r.HandleFunc("/v1/measurements/export", h.export).Methods(http.MethodGet)
	r.HandleFunc("/v1/measurements/{id}", h.deleteMeasurement).Methods(http.MethodDelete)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listMeasurements(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMeasurementsRead)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListMeasurementsResponse{Items: nonNil(items)})
}

func (h *Handler) createMeasurement(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMeasurementsWrite)
	if !ok {
		return
	}

	var req CreateMeasurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	date := h.now().UTC()
	if strings.TrimSpace(req.Date) != "" {
		// The server has no client zone; clients send an explicit offset.
		parsed, err := domain.ParseDateIn(req.Date, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		date = parsed
	}

	m, replay, err := h.service.Create(r.Context(), claims.Subject, domain.CreateInput{
		Date:           date,
		Values:         req.Values,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, CreateMeasurementResponse{Measurement: *m, Replay: replay})
}

func (h *Handler) deleteMeasurement(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMeasurementsWrite)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), claims.Subject, mux.Vars(r)["id"]); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMeasurementsRead)
	if !ok {
		return
	}

	var field domain.Field
	if raw := r.URL.Query().Get("field"); raw != "" {
		parsed, err := domain.ParseField(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		field = parsed
	}

	items, err := h.service.List(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if field != "" {
		writeJSON(w, http.StatusOK, TimelineResponse{Series: map[domain.Field][]domain.TimelinePoint{
			field: domain.Timeline(items, field),
		}})
		return
	}
	writeJSON(w, http.StatusOK, TimelineResponse{Series: domain.TimelineSeries(items)})
}

func (h *Handler) radar(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMeasurementsRead)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RadarResponse{Axes: domain.Radar(items)})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMeasurementsRead)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	file, err := domain.Export(items, h.now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Content)
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	detail := domain.Message(err)
	switch {
	case errors.Is(err, domain.ErrEmptyMeasurement):
		writeError(w, http.StatusBadRequest, "empty_measurement", detail)
	case errors.Is(err, domain.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "validation_failed", detail)
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", detail)
	case errors.Is(err, domain.ErrNothingToExport):
		writeError(w, http.StatusNotFound, "nothing_to_export", detail)
	case errors.Is(err, domain.ErrFetchFailed):
		writeError(w, http.StatusInternalServerError, "fetch_failed", detail)
	case errors.Is(err, domain.ErrCreateFailed):
		writeError(w, http.StatusInternalServerError, "create_failed", detail)
	case errors.Is(err, domain.ErrDeleteFailed):
		writeError(w, http.StatusInternalServerError, "delete_failed", detail)
	default:
		h.logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", detail)
	}
}

// CreateMeasurementRequest is the payload for POST /v1/measurements. An empty
// date means now.
type CreateMeasurementRequest struct {
	Date string `json:"date"`
	domain.Values
}

// CreateMeasurementResponse wraps the stored record.
type CreateMeasurementResponse struct {
	Measurement domain.Measurement `json:"measurement"`
	Replay      bool               `json:"idempotent_replay"`
}

// ListMeasurementsResponse packages list results, most recent first.
type ListMeasurementsResponse struct {
	Items []domain.Measurement `json:"items"`
}

// TimelineResponse carries one series per requested field.
type TimelineResponse struct {
	Series map[domain.Field][]domain.TimelinePoint `json:"series"`
}

// RadarResponse carries the radar snapshot of the latest record.
type RadarResponse struct {
	Axes []domain.RadarAxis `json:"axes"`
}

func nonNil(items []domain.Measurement) []domain.Measurement {
	if items == nil {
		return []domain.Measurement{}
	}
	return items
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
