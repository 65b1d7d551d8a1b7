// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package anomaly

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
)

// DefaultMinTrainingRows is the fewest rows Train fits a forest on.
const DefaultMinTrainingRows = 32

// ObservationSource replays stored observations.
type ObservationSource interface {
	Iterate(ctx context.Context, fn func(*models.Observation) error) error
}

// TrainerConfig configures a Trainer.
type TrainerConfig struct {
	Forest ForestOptions

	// ModelPath is where trained models are persisted and loaded from.
	ModelPath string

	MinTrainingRows int

	// DefaultBatteryPct fills missing battery readings. It must match the
	// anomaly detector's value so rows are trained the way they are scored.
	DefaultBatteryPct float64
}

// TrainResult describes one training or load.
type TrainResult struct {
	TrainedOnRows      int                `json:"trained_on_rows"`
	ModelPath          *string            `json:"model_path"`
	FeatureImportances map[string]float64 `json:"feature_importances"`

	// Neutral is set when too few rows were available and NeutralScorer
	// was installed instead of a forest.
	Neutral   bool      `json:"neutral"`
	Loaded    bool      `json:"loaded"`
	TrainedAt time.Time `json:"trained_at"`
}

// Trainer fits isolation forests from observation sources and installs
// them in a Holder. Training runs are serialized.
type Trainer struct {
	holder  *Holder
	sources []ObservationSource
	cfg     TrainerConfig
	logger  zerolog.Logger

	mu   sync.Mutex
	last *TrainResult
}

// NewTrainer creates a Trainer. Rows are read from every source in order.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTrainer(holder *Holder, cfg TrainerConfig, logger zerolog.Logger, sources ...ObservationSource) *Trainer {
	if cfg.MinTrainingRows <= 0 {
		cfg.MinTrainingRows = DefaultMinTrainingRows
	}
	cfg.MinTrainingRows = max(cfg.MinTrainingRows, MinFitRows)
	return &Trainer{
		holder:  holder,
		sources: sources,
		cfg:     cfg,
		logger:  logger.With().Str("component", "anomaly-trainer").Logger(),
	}
}

// Train fits a new model on all available rows and installs it. With fewer
// than MinTrainingRows rows NeutralScorer is installed instead. When persist
// is set a fitted forest is also written to ModelPath.
func (t *Trainer) Train(ctx context.Context, persist bool) (*TrainResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	rows, err := t.collectRows(ctx)
	if err != nil {
		metrics.RecordTraining("error", 0, time.Since(start))
		return nil, fmt.Errorf("collect training rows: %w", err)
	}

	if len(rows) < t.cfg.MinTrainingRows {
		t.holder.Store(NeutralScorer{})
		res := &TrainResult{
			TrainedOnRows:      len(rows),
			FeatureImportances: nil,
			Neutral:            true,
			TrainedAt:          time.Now().UTC(),
		}
		t.last = res
		metrics.RecordTraining("neutral", len(rows), time.Since(start))
		t.logger.Warn().Int("rows", len(rows)).Int("min_rows", t.cfg.MinTrainingRows).
			Msg("too few rows to train; anomaly scoring is neutral")
		return res, nil
	}

	forest, err := Fit(rows, t.cfg.Forest)
	if err != nil {
		metrics.RecordTraining("error", len(rows), time.Since(start))
		return nil, fmt.Errorf("fit isolation forest: %w", err)
	}

	res := &TrainResult{
		TrainedOnRows:      len(rows),
		FeatureImportances: forest.FeatureImportances(),
		TrainedAt:          forest.TrainedAt,
	}
	if persist && t.cfg.ModelPath != "" {
		if err := SaveModel(t.cfg.ModelPath, forest); err != nil {
			metrics.RecordTraining("error", len(rows), time.Since(start))
			return nil, err
		}
		path := t.cfg.ModelPath
		res.ModelPath = &path
	}

	t.holder.Store(forest)
	t.last = res
	metrics.RecordTraining("trained", len(rows), time.Since(start))
	t.logger.Info().
		Int("rows", len(rows)).
		Int("trees", len(forest.Trees)).
		Float64("offset", forest.Offset).
		Bool("persisted", res.ModelPath != nil).
		Dur("duration", time.Since(start)).
		Msg("anomaly model trained")
	return res, nil
}

// LoadOrTrain installs the persisted model if one exists, otherwise trains
// and persists a new one.
func (t *Trainer) LoadOrTrain(ctx context.Context) (*TrainResult, error) {
	if t.cfg.ModelPath != "" {
		start := time.Now()
		forest, err := LoadModel(t.cfg.ModelPath)
		switch {
		case err == nil:
			t.mu.Lock()
			t.holder.Store(forest)
			path := t.cfg.ModelPath
			res := &TrainResult{
				TrainedOnRows:      forest.TrainedRows,
				ModelPath:          &path,
				FeatureImportances: forest.FeatureImportances(),
				Loaded:             true,
				TrainedAt:          forest.TrainedAt,
			}
			t.last = res
			t.mu.Unlock()
			metrics.RecordTraining("loaded", forest.TrainedRows, time.Since(start))
			t.logger.Info().Str("path", path).Int("rows", forest.TrainedRows).Msg("anomaly model loaded")
			return res, nil
		case errors.Is(err, os.ErrNotExist):
			t.logger.Info().Str("path", t.cfg.ModelPath).Msg("no persisted anomaly model; training")
		default:
			t.logger.Warn().Err(err).Str("path", t.cfg.ModelPath).Msg("persisted anomaly model unusable; retraining")
		}
	}
	return t.Train(ctx, true)
}

// HandleTrainRequest serves the admin training endpoint.
func (t *Trainer) HandleTrainRequest(ctx context.Context, retrainWithNewData, persist bool) (*TrainResult, error) {
	if retrainWithNewData {
		return t.Train(ctx, persist)
	}
	return t.LoadOrTrain(ctx)
}

// Last returns the most recent result, if any.
func (t *Trainer) Last() (*TrainResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return nil, false
	}
	res := *t.last
	return &res, true
}

// ModelPath returns the configured model location.
func (t *Trainer) ModelPath() string { return t.cfg.ModelPath }

func (t *Trainer) collectRows(ctx context.Context) ([][3]float64, error) {
	var rows [][3]float64
	for _, src := range t.sources {
		err := src.Iterate(ctx, func(obs *models.Observation) error {
			if f := obs.Features(t.cfg.DefaultBatteryPct); finite(f) {
				rows = append(rows, f)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// ModelPathFor joins dir and filename.
func ModelPathFor(dir, filename string) string {
	return filepath.Join(dir, filename)
}
