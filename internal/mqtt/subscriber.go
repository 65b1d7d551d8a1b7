// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package mqtt ingests observations published by devices to an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tomtom215/tourguard/internal/ingest"
	"github.com/tomtom215/tourguard/internal/logging"
)

// Transport labels MQTT traffic in metrics and logs.
const Transport = "mqtt"

// ErrConnectTimeout is returned when the broker does not answer in time.
var ErrConnectTimeout = errors.New("mqtt connect timed out")

// Config configures Subscriber.
type Config struct {
	BrokerURL      string
	ClientID       string
	Topic          string
	QoS            byte
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// Subscriber is a supervised service that subscribes to cfg.Topic and feeds
// every message through ingest.Handle.
type Subscriber struct {
	cfg      Config
	ingester ingest.Ingester

	// newClient is replaced in tests.
	newClient func(*paho.ClientOptions) paho.Client

	mu  sync.RWMutex
	ctx context.Context
}

// NewSubscriber creates a Subscriber. Nothing connects until Serve.
func NewSubscriber(cfg Config, in ingest.Ingester) *Subscriber {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Subscriber{
		cfg:       cfg,
		ingester:  in,
		newClient: paho.NewClient,
		ctx:       context.Background(),
	}
}

// clientOptions builds the paho options. The client id gets a random
// suffix so replicas sharing one config do not kick each other off the
// broker.
func (s *Subscriber) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetOrderMatters(false)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}

	log := logging.WithComponent("mqtt")
	opts.SetOnConnectHandler(func(c paho.Client) {
		// clean sessions drop subscriptions, so subscribe on every connect
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
		if !token.WaitTimeout(s.cfg.ConnectTimeout) {
			log.Error().Str("topic", s.cfg.Topic).Msg("mqtt subscribe timed out")
			return
		}
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", s.cfg.Topic).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("broker", s.cfg.BrokerURL).Str("topic", s.cfg.Topic).Msg("mqtt subscribed")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})
	return opts
}

// Serve connects and blocks until ctx is canceled.
func (s *Subscriber) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	client := s.newClient(s.clientOptions())
	token := client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("%w: %s", ErrConnectTimeout, s.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.BrokerURL, err)
	}

	<-ctx.Done()
	client.Disconnect(250)
	return ctx.Err()
}

func (s *Subscriber) String() string {
	return "mqtt-subscriber"
}

func (s *Subscriber) handleMessage(_ paho.Client, msg paho.Message) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	outcome, err := ingest.Handle(ctx, s.ingester, Transport, msg.Payload())
	if outcome == ingest.OutcomeError {
		logging.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic()).
			Msg("mqtt observation not ingested")
	}
}
