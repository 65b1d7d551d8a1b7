// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package main

import (
	"context"

	"github.com/tomtom215/tourguard/internal/alerthistory"
	"github.com/tomtom215/tourguard/internal/archive"
	"github.com/tomtom215/tourguard/internal/config"
	"github.com/tomtom215/tourguard/internal/detection"
	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/narrative"
	"github.com/tomtom215/tourguard/internal/rabbitmq"
)

// closer is anything holding a connection that must be released at exit.
type closer interface {
	Close() error
}

// Sinks are the optional alert destinations built from config.
type Sinks struct {
	// History answers GET /alerts/{trip_id}.
	History alerthistory.Reader

	// Narrator is nil unless narrative enrichment is enabled.
	Narrator *narrative.Client

	closers []namedCloser
}

type namedCloser struct {
	name string
	c    closer
}

// Close releases every sink connection in reverse creation order.
func (s *Sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		nc := s.closers[i]
		if err := nc.c.Close(); err != nil {
			logging.Warn().Err(err).Str("sink", nc.name).Msg("Error closing alert sink")
		}
	}
}

func (s *Sinks) track(name string, c closer) {
	s.closers = append(s.closers, namedCloser{name: name, c: c})
}

// newNarrator returns the narrative client, or nil when disabled.
func newNarrator(ctx context.Context, cfg *config.NarrativeConfig) *narrative.Client {
	if !cfg.Enabled {
		logging.Info().Msg("Narrative enrichment disabled (NARRATIVE_ENABLED=false)")
		return nil
	}
	client := narrative.New(narrative.Config{
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
	})
	if err := client.Ping(ctx); err != nil {
		logging.Warn().Err(err).Str("url", cfg.BaseURL).Msg("Narrative endpoint unreachable; templated text will be used until it recovers")
	} else {
		logging.Info().Str("url", cfg.BaseURL).Str("model", cfg.Model).Msg("Narrative enrichment enabled")
	}
	return client
}

// InitSinks registers the history recorder and every enabled notifier on
// the dispatcher. A sink that fails to connect is logged and skipped; the
// service keeps running with the rest.
func InitSinks(ctx context.Context, cfg *config.Config, dispatcher *detection.AlertDispatcher) *Sinks {
	sinks := &Sinks{}

	dispatcher.AddRecorder(detection.LogRecorder{})
	memory := alerthistory.NewMemory(int(cfg.Redis.HistoryLimit))
	dispatcher.AddRecorder(memory)
	sinks.History = memory

	if cfg.Redis.Enabled {
		history, err := alerthistory.NewRedisHistory(ctx, alerthistory.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Limit:     cfg.Redis.HistoryLimit,
			TTL:       cfg.Redis.HistoryTTL,
		})
		if err != nil {
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis alert history unavailable, using in-memory history")
		} else {
			dispatcher.AddNotifier(history)
			sinks.History = history
			sinks.track("redis", history)
			logging.Info().Str("addr", cfg.Redis.Addr).Msg("Redis alert history enabled")
		}
	}

	sinks.Narrator = newNarrator(ctx, &cfg.Narrative)

	if cfg.Webhook.Enabled {
		var narrator detection.Narrator
		if cfg.Webhook.IncludeNarrative && sinks.Narrator != nil {
			narrator = sinks.Narrator
		}
		dispatcher.AddNotifier(detection.NewWebhookNotifier(detection.WebhookConfig{
			URL:             cfg.Webhook.URL,
			Enabled:         true,
			Timeout:         cfg.Webhook.Timeout,
			RatePerSecond:   cfg.Webhook.RatePerSecond,
			Burst:           cfg.Webhook.Burst,
			BreakerFailures: cfg.Webhook.BreakerFailures,
			BreakerTimeout:  cfg.Webhook.BreakerTimeout,
		}, narrator))
		logging.Info().
			Str("url", cfg.Webhook.URL).
			Float64("rate_per_second", cfg.Webhook.RatePerSecond).
			Bool("narrative", narrator != nil).
			Msg("Webhook notifier registered")
	}

	if cfg.RabbitMQ.Enabled {
		pub, err := rabbitmq.NewAlertPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logging.Warn().Err(err).Msg("RabbitMQ alert publisher unavailable")
		} else {
			dispatcher.AddNotifier(pub)
			sinks.track("rabbitmq", pub)
			logging.Info().Str("exchange", cfg.RabbitMQ.Exchange).Msg("RabbitMQ alert publisher registered")
		}
	}

	if cfg.Archive.Enabled {
		arch, err := archive.Open(ctx, archive.Config{
			Driver:       cfg.Archive.Driver,
			DSN:          cfg.Archive.DSN,
			MaxOpenConns: cfg.Archive.MaxOpenConns,
		})
		if err != nil {
			logging.Warn().Err(err).Str("driver", cfg.Archive.Driver).Msg("Alert archive unavailable")
		} else {
			dispatcher.AddNotifier(arch)
			sinks.track("archive", arch)
			logging.Info().Str("driver", cfg.Archive.Driver).Msg("Alert archive registered")
		}
	}

	return sinks
}
