// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tourguard/internal/config"
	"github.com/tomtom215/tourguard/internal/eventprocessor"
	"github.com/tomtom215/tourguard/internal/ingest"
	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/supervisor"
	"github.com/tomtom215/tourguard/internal/supervisor/services"
)

// streamName is the JetStream stream holding observations, poison messages
// and published alerts.
const streamName = "TOURGUARD"

// NATSComponents holds the NATS pieces that outlive InitNATS.
type NATSComponents struct {
	server     *eventprocessor.EmbeddedServer
	publisher  *eventprocessor.Publisher
	subscriber *eventprocessor.Subscriber
	router     *eventprocessor.Router
	alerts     *eventprocessor.AlertPublisher
}

// AlertPublisher returns the alert notifier, or nil when alert publishing is off.
func (c *NATSComponents) AlertPublisher() *eventprocessor.AlertPublisher {
	if c == nil {
		return nil
	}
	return c.alerts
}

// streamSubjects lists every subject the stream must capture.
func streamSubjects(cfg *config.NATSConfig) []string {
	subjects := []string{cfg.ObservationTopic, cfg.PoisonTopic}
	if cfg.PublishAlerts {
		subjects = append(subjects, cfg.AlertTopicPrefix+".>")
	}
	return subjects
}

// routerConfig maps NATS settings onto the router middleware.
func routerConfig(cfg *config.NATSConfig) eventprocessor.RouterConfig {
	rc := eventprocessor.DefaultRouterConfig()
	rc.RetryMaxRetries = cfg.MaxRetries
	if cfg.RetryInterval > 0 {
		rc.RetryInitialInterval = cfg.RetryInterval
		rc.RetryMaxInterval = cfg.RetryInterval * 10
	}
	rc.ThrottlePerSecond = cfg.ThrottlePerSec
	if cfg.PoisonTopic != "" {
		rc.PoisonQueueTopic = cfg.PoisonTopic
	}
	if cfg.CloseTimeout > 0 {
		rc.CloseTimeout = cfg.CloseTimeout
	}
	return rc
}

// InitNATS starts the embedded server when configured, then builds the
// publisher, the observation subscriber and the router. It returns nil, nil
// when NATS is disabled.
func InitNATS(ctx context.Context, cfg *config.NATSConfig, in ingest.Ingester) (*NATSComponents, error) {
	if !cfg.Enabled {
		logging.Info().Msg("NATS ingestion disabled (NATS_ENABLED=false)")
		return nil, nil
	}

	c := &NATSComponents{}
	natsURL := cfg.URL

	if cfg.EmbeddedServer {
		serverCfg, err := eventprocessor.ServerConfigFromURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		serverCfg.JetStream = cfg.JetStream
		serverCfg.StoreDir = cfg.StoreDir

		srv, err := eventprocessor.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, err
		}
		c.server = srv
		natsURL = srv.ClientURL()
		logging.Info().Str("url", natsURL).Bool("jetstream", cfg.JetStream).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", natsURL).Msg("Using external NATS server")
	}

	if cfg.JetStream {
		streamCfg := eventprocessor.StreamConfig{
			Name:     streamName,
			Subjects: streamSubjects(cfg),
			MaxAge:   7 * 24 * time.Hour,
		}
		if err := eventprocessor.EnsureStream(ctx, natsURL, streamCfg); err != nil {
			c.Close(ctx)
			return nil, err
		}
		logging.Info().Str("stream", streamName).Strs("subjects", streamCfg.Subjects).Msg("JetStream stream ready")
	}

	wmLogger := eventprocessor.NewWatermillLogger()

	pub, err := eventprocessor.NewPublisher(eventprocessor.PublisherConfig{
		URL:           natsURL,
		JetStream:     cfg.JetStream,
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: cfg.ReconnectWait,
	}, wmLogger)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	pub.SetCircuitBreaker(eventprocessor.NewCircuitBreaker(eventprocessor.DefaultCircuitBreakerConfig("nats-publisher")))
	c.publisher = pub

	if cfg.PublishAlerts {
		c.alerts = eventprocessor.NewAlertPublisher(pub, cfg.AlertTopicPrefix)
	}

	sub, err := eventprocessor.NewSubscriber(&eventprocessor.SubscriberConfig{
		URL:              natsURL,
		QueueGroup:       cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		MaxReconnects:    cfg.MaxReconnects,
		ReconnectWait:    cfg.ReconnectWait,
		JetStream:        cfg.JetStream,
		StreamName:       streamName,
		DurableName:      cfg.DurableName,
	}, wmLogger)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.subscriber = sub

	rc := routerConfig(cfg)
	router, err := eventprocessor.NewRouter(&rc, pub, wmLogger)
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("create router: %w", err)
	}
	router.AddConsumerHandler("observations", cfg.ObservationTopic, sub, eventprocessor.ObservationHandler(in))
	c.router = router

	logging.Info().
		Str("topic", cfg.ObservationTopic).
		Str("poison_topic", rc.PoisonQueueTopic).
		Int("retries", rc.RetryMaxRetries).
		Bool("publish_alerts", cfg.PublishAlerts).
		Msg("NATS observation router ready")
	return c, nil
}

// AddNATSToSupervisor adds the embedded server and the router to the
// messaging layer. It is a no-op for nil components.
func AddNATSToSupervisor(tree *supervisor.SupervisorTree, c *NATSComponents, shutdownTimeout time.Duration) {
	if c == nil {
		return
	}
	if c.server != nil {
		tree.AddMessagingService(services.NewEmbeddedNATSService(c.server, shutdownTimeout))
	}
	if c.router != nil {
		tree.AddMessagingService(services.NewNATSRouterService(c.router))
	}
	logging.Info().Msg("NATS components added to supervisor tree")
}

// Close releases the publisher and subscriber, then stops the embedded
// server if the supervisor has not already done so.
func (c *NATSComponents) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing NATS subscriber")
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing NATS publisher")
		}
	}
	if c.server != nil && c.server.IsRunning() {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Error shutting down embedded NATS server")
		}
	}
}
