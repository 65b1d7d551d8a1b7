// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package eventprocessor

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// Subscriber wraps the Watermill NATS subscriber.
type Subscriber struct {
	subscriber message.Subscriber
	config     SubscriberConfig
	logger     watermill.LoggerAdapter
}

// NewSubscriber creates a queue-group subscriber so several TourGuard
// instances share one observation feed. With cfg.JetStream it becomes a
// durable consumer bound to cfg.StreamName.
func NewSubscriber(cfg *SubscriberConfig, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}
	if cfg.JetStream && cfg.StreamName == "" {
		return nil, fmt.Errorf("%w: jetstream subscriber needs a stream name", ErrInvalidConfig)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS subscriber reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	jsConfig := wmNats.JetStreamConfig{Disabled: true}
	if cfg.JetStream {
		maxDeliver := cfg.MaxDeliver
		if maxDeliver <= 0 {
			maxDeliver = 5
		}
		durable := cfg.DurableName
		jsConfig = wmNats.JetStreamConfig{
			AutoProvision: false,
			AckAsync:      false,
			DurablePrefix: durable,
			// Wildcard topics cannot appear in a durable name.
			DurableCalculator: func(string, string) string { return durable },
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(cfg.StreamName),
				natsgo.MaxDeliver(maxDeliver),
				natsgo.AckWait(cfg.AckWaitTimeout),
				natsgo.DeliverNew(),
			},
		}
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:               cfg.URL,
		QueueGroupPrefix:  cfg.QueueGroup,
		SubscribersCount:  cfg.SubscribersCount,
		AckWaitTimeout:    cfg.AckWaitTimeout,
		CloseTimeout:      cfg.CloseTimeout,
		NatsOptions:       natsOpts,
		Unmarshaler:       &wmNats.NATSMarshaler{},
		SubjectCalculator: queueSubject,
		JetStream:         jsConfig,
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &Subscriber{
		subscriber: sub,
		config:     *cfg,
		logger:     logger,
	}, nil
}

// queueSubject subscribes to topic as-is and uses the configured group name
// verbatim; the default calculator appends the topic, which may hold
// wildcards.
func queueSubject(queueGroupPrefix, topic string) *wmNats.SubjectDetail {
	return &wmNats.SubjectDetail{
		Primary:    topic,
		QueueGroup: queueGroupPrefix,
	}
}

// Subscribe returns a channel of messages for topic. It satisfies
// message.Subscriber.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.subscriber.Subscribe(ctx, topic)
}

// Close stops all subscriptions.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}
