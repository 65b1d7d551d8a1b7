// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/detection"
	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/models"
)

// TrainRequest is the optional body of POST /model/train.
type TrainRequest struct {
	RetrainWithNewData *bool `json:"retrain_with_new_data"`
	PersistModel       *bool `json:"persist_model"`
}

// TrainModel retrains (or reloads) the anomaly model.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Trainer == nil {
		rw.ServiceUnavailable("model training is not configured")
		return
	}

	var req TrainRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		rw.DecodeError(err)
		return
	}
	retrain, persist := true, true
	if req.RetrainWithNewData != nil {
		retrain = *req.RetrainWithNewData
	}
	if req.PersistModel != nil {
		persist = *req.PersistModel
	}

	result, err := h.deps.Trainer.HandleTrainRequest(r.Context(), retrain, persist)
	if err != nil {
		rw.InternalError("model training failed", err)
		return
	}
	rw.Success(result)
}

// ExportJournal streams the observation journal as CSV.
func (h *Handler) ExportJournal(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		NewResponseWriter(w, r).ServiceUnavailable("observation journal is disabled")
		return
	}

	filename := fmt.Sprintf("observations-%s.csv", time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	n, err := h.deps.Journal.ExportCSV(r.Context(), w)
	log := logging.Ctx(r.Context())
	if err != nil {
		// headers are already sent; the truncated body is all the client gets
		log.Error().Err(err).Int("rows", n).Msg("journal export aborted")
		return
	}
	log.Info().Int("rows", n).Msg("journal exported")
}

// ListDetectors describes every detector in evaluation order.
func (h *Handler) ListDetectors(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.deps.Pipeline.Detectors())
}

// DetectorUpdate is the body of PUT /detectors/{kind}.
type DetectorUpdate struct {
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

// UpdateDetector toggles or reconfigures one detector at runtime.
func (h *Handler) UpdateDetector(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind := models.AlertKind(chi.URLParam(r, "kind"))

	var req DetectorUpdate
	if err := decodeBody(r, &req); err != nil {
		rw.DecodeError(err)
		return
	}
	if req.Enabled == nil && len(req.Config) == 0 {
		rw.BadRequest("nothing to update: set enabled and/or config")
		return
	}

	info, err := h.deps.Pipeline.Reconfigure(kind, req.Enabled, req.Config)
	if err != nil {
		if errors.Is(err, detection.ErrUnknownDetector) {
			rw.NotFound(err.Error())
			return
		}
		rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	rw.Success(info)
}
