// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/alerthistory"
	"github.com/tomtom215/tourguard/internal/anomaly"
	"github.com/tomtom215/tourguard/internal/detection"
	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/models"
	"github.com/tomtom215/tourguard/internal/state"
	"github.com/tomtom215/tourguard/internal/validation"
)

// DefaultHistoryLimit is used when the history request has no limit.
const DefaultHistoryLimit = 100

// Pipeline ingests observations and manages detectors.
type Pipeline interface {
	Ingest(ctx context.Context, obs *models.Observation) ([]*models.Alert, error)
	Detectors() []detection.DetectorInfo
	Reconfigure(kind models.AlertKind, enabled *bool, config json.RawMessage) (detection.DetectorInfo, error)
}

// EntityStore is the read side of the state store plus route registration.
type EntityStore interface {
	AddRoute(plan *models.RoutePlan) error
	GetRecentHistory(key models.EntityKey, limit int) []models.Observation
	ListGeofenceStatus() []models.GeofenceStatus
	Capacity() int
	Stats() state.Stats
}

// ZoneIndex reports danger zone load state.
type ZoneIndex interface {
	Len() int
	Degraded() bool
}

// ModelStatus reports whether a trained scorer is installed.
type ModelStatus interface {
	Ready() bool
}

// Trainer serves training requests.
type Trainer interface {
	HandleTrainRequest(ctx context.Context, retrainWithNewData, persist bool) (*anomaly.TrainResult, error)
}

// Narrator produces safety text for an alert.
type Narrator interface {
	Narrate(ctx context.Context, alert *models.Alert) (string, error)
}

// JournalExporter streams the observation journal as CSV.
type JournalExporter interface {
	ExportCSV(ctx context.Context, w io.Writer) (int, error)
}

// Dependencies wires the handler. Narrator, Journal and Trainer may be nil;
// their endpoints then answer 503 or skip the optional feature.
type Dependencies struct {
	Pipeline Pipeline
	Store    EntityStore
	Zones    ZoneIndex
	Model    ModelStatus
	History  alerthistory.Reader
	Trainer  Trainer
	Narrator Narrator
	Journal  JournalExporter
}

// Handler implements the API endpoints.
type Handler struct {
	deps Dependencies
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	ZonesLoaded      int    `json:"zones_loaded"`
	GeofenceDegraded bool   `json:"geofence_degraded"`
	ModelReady       bool   `json:"model_ready"`
	Entities         int    `json:"entities"`
	Observations     int    `json:"observations"`
	Routes           int    `json:"routes"`
}

// Health reports liveness plus zone, model and store state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.deps.Store.Stats()
	resp := HealthResponse{
		Status:       "ok",
		Entities:     stats.Entities,
		Observations: stats.Observations,
		Routes:       stats.Routes,
	}
	if h.deps.Zones != nil {
		resp.ZonesLoaded = h.deps.Zones.Len()
		resp.GeofenceDegraded = h.deps.Zones.Degraded()
	}
	if h.deps.Model != nil {
		resp.ModelReady = h.deps.Model.Ready()
	}
	NewResponseWriter(w, r).Success(resp)
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreateRoute registers or replaces a route plan.
func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var plan models.RoutePlan
	if err := decodeBody(r, &plan); err != nil {
		rw.DecodeError(err)
		return
	}
	if err := validation.ValidateRoutePlan(&plan); err != nil {
		writeValidation(rw, err)
		return
	}
	if err := h.deps.Store.AddRoute(&plan); err != nil {
		if errors.Is(err, models.ErrRouteTooShort) {
			rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		rw.InternalError("failed to store route", err)
		return
	}
	rw.Created(MessageResponse{Message: "Route stored"})
}

// IngestResponse is returned by POST /observations.
type IngestResponse struct {
	Message string `json:"message"`

	// AlertsTriggered is a decimal string, kept for existing dashboard clients.
	AlertsTriggered string          `json:"alerts_triggered"`
	Alerts          []*models.Alert `json:"alerts"`
}

// IngestObservation validates, records and evaluates one observation.
func (h *Handler) IngestObservation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var obs models.Observation
	if err := decodeBody(r, &obs); err != nil {
		rw.DecodeError(err)
		return
	}

	alerts, err := h.deps.Pipeline.Ingest(r.Context(), &obs)
	if err != nil {
		writeValidation(rw, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	rw.Success(IngestResponse{
		Message:         "Observation ingested",
		AlertsTriggered: strconv.Itoa(len(alerts)),
		Alerts:          alerts,
	})
}

// NarratedAlert is an alert with optional safety text.
type NarratedAlert struct {
	*models.Alert
	Narrative string `json:"narrative,omitempty"`
}

// AlertsResponse is returned by GET /alerts/{trip_id}.
type AlertsResponse struct {
	TripID string          `json:"trip_id"`
	Alerts []NarratedAlert `json:"alerts"`
}

// TripAlerts lists a trip's accepted alerts, oldest first.
func (h *Handler) TripAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tripID := chi.URLParam(r, "trip_id")

	alerts, err := h.deps.History.ByTrip(r.Context(), tripID)
	if err != nil {
		rw.InternalError("failed to read alert history", err)
		return
	}

	narrate := h.deps.Narrator != nil && r.URL.Query().Get("narrate") == "true"
	out := make([]NarratedAlert, 0, len(alerts))
	for _, a := range alerts {
		na := NarratedAlert{Alert: a}
		if narrate {
			text, err := h.deps.Narrator.Narrate(r.Context(), a)
			if err != nil {
				logging.Ctx(r.Context()).Warn().Err(err).Str("alert_id", a.ID).Msg("narrative unavailable")
			} else {
				na.Narrative = text
			}
		}
		out = append(out, na)
	}
	rw.Success(AlertsResponse{TripID: tripID, Alerts: out})
}

// GeofenceStatus lists the last containment result of every entity.
func (h *Handler) GeofenceStatus(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.deps.Store.ListGeofenceStatus())
}

// HistoryResponse is returned by the entity history endpoint.
type HistoryResponse struct {
	TouristID    string               `json:"tourist_id"`
	TripID       string               `json:"trip_id"`
	Observations []models.Observation `json:"observations"`
}

// EntityHistory returns the newest observations for one entity.
func (h *Handler) EntityHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	key := models.EntityKey{
		TouristID: chi.URLParam(r, "tourist_id"),
		TripID:    chi.URLParam(r, "trip_id"),
	}

	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.deps.Store.Capacity() {
			rw.BadRequest("limit must be between 1 and " + strconv.Itoa(h.deps.Store.Capacity()))
			return
		}
		limit = n
	}

	rw.Success(HistoryResponse{
		TouristID:    key.TouristID,
		TripID:       key.TripID,
		Observations: h.deps.Store.GetRecentHistory(key, limit),
	})
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeValidation writes err as a validation failure.
func writeValidation(rw *ResponseWriter, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		rw.ValidationError(verr)
		return
	}
	rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
}
