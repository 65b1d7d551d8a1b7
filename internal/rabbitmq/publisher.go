// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package rabbitmq fans accepted alerts out to a RabbitMQ exchange.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/models"
)

// DefaultExchange is the fanout exchange alerts are published to.
const DefaultExchange = "tourguard.alerts"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("rabbitmq publisher is closed")

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AlertPublisher is a detection notifier publishing each alert as a
// persistent JSON message. The routing key is the alert type so topic
// exchanges can be bound instead of the default fanout.
type AlertPublisher struct {
	exchange string
	dial     func() (*amqp.Connection, channel, error)

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	closed bool
}

// NewAlertPublisher dials url and declares a durable fanout exchange.
func NewAlertPublisher(url, exchange string) (*AlertPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	dial := func() (*amqp.Connection, channel, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbitmq connect: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
		}
		return conn, ch, nil
	}
	p := &AlertPublisher{exchange: exchange, dial: dial}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func newWithChannel(exchange string, ch channel) (*AlertPublisher, error) {
	p := &AlertPublisher{
		exchange: exchange,
		dial: func() (*amqp.Connection, channel, error) {
			return nil, ch, nil
		},
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect (re)opens the channel and declares the exchange. Callers hold mu
// or own p exclusively.
func (p *AlertPublisher) connect() error {
	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AlertPublisher) Name() string { return "rabbitmq" }

func (p *AlertPublisher) Enabled() bool { return true }

// Send publishes alert. A publish on a closed channel reconnects once and
// retries.
func (p *AlertPublisher) Send(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    alert.ID,
		Timestamp:    alert.Timestamp,
		Type:         string(alert.Kind),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, string(alert.Kind), false, false, msg)
	if !errors.Is(err, amqp.ErrClosed) {
		return err
	}

	logging.Ctx(ctx).Warn().Str("exchange", p.exchange).Msg("rabbitmq channel closed, reconnecting")
	p.closeLocked()
	if err := p.connect(); err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, string(alert.Kind), false, false, msg)
}

func (p *AlertPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Close closes the channel and connection.
func (p *AlertPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.closeLocked()
	return nil
}
