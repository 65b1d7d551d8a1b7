// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tourguard/internal/anomaly"
)

// ModelTrainer matches *anomaly.Trainer.
type ModelTrainer interface {
	LoadOrTrain(ctx context.Context) (*anomaly.TrainResult, error)
	Train(ctx context.Context, persist bool) (*anomaly.TrainResult, error)
}

// TrainerServiceConfig holds configuration for the trainer service.
type TrainerServiceConfig struct {
	// TrainOnStartup loads the persisted model, training if none is usable.
	TrainOnStartup bool

	// RetrainInterval is how often to retrain from the journal; zero disables it.
	RetrainInterval time.Duration

	// TrainTimeout bounds one training run.
	TrainTimeout time.Duration
}

// TrainerService manages the anomaly model lifecycle.
type TrainerService struct {
	trainer ModelTrainer
	config  TrainerServiceConfig
	logger  zerolog.Logger
	name    string
}

// NewTrainerService creates the service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTrainerService(trainer ModelTrainer, cfg TrainerServiceConfig, logger zerolog.Logger) *TrainerService {
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = 10 * time.Minute
	}
	return &TrainerService{
		trainer: trainer,
		config:  cfg,
		logger:  logger.With().Str("service", "trainer").Logger(),
		name:    "model-trainer",
	}
}

// Serve loads or trains once, then retrains on schedule until ctx ends.
// Training failures are logged and leave the current scorer in place.
func (s *TrainerService) Serve(ctx context.Context) error {
	if s.config.TrainOnStartup {
		s.run(ctx, "startup", s.trainer.LoadOrTrain)
	}

	if s.config.RetrainInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.config.RetrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx, "scheduled", func(ctx context.Context) (*anomaly.TrainResult, error) {
				return s.trainer.Train(ctx, true)
			})
		}
	}
}

func (s *TrainerService) run(ctx context.Context, trigger string, fn func(context.Context) (*anomaly.TrainResult, error)) {
	trainCtx, cancel := context.WithTimeout(ctx, s.config.TrainTimeout)
	defer cancel()

	start := time.Now()
	res, err := fn(trainCtx)
	if err != nil {
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("model training failed")
		return
	}
	s.logger.Info().
		Str("trigger", trigger).
		Int("rows", res.TrainedOnRows).
		Bool("loaded", res.Loaded).
		Bool("neutral", res.Neutral).
		Dur("duration", time.Since(start)).
		Msg("anomaly model ready")
}

func (s *TrainerService) String() string {
	return s.name
}
