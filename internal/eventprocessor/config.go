// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package eventprocessor

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Host      string
	Port      int
	JetStream bool
	StoreDir  string

	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// ServerConfigFromURL derives host and port from a nats:// URL. Port -1
// asks the server for a random free port.
func ServerConfigFromURL(rawURL string) (ServerConfig, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("%w: nats url %q: %v", ErrInvalidConfig, rawURL, err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("%w: nats url %q: %v", ErrInvalidConfig, rawURL, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("%w: nats port %q", ErrInvalidConfig, portStr)
	}
	return ServerConfig{
		Host:              host,
		Port:              port,
		JetStreamMaxMem:   64 << 20,
		JetStreamMaxStore: 1 << 30,
	}, nil
}

// PublisherConfig configures Publisher.
type PublisherConfig struct {
	URL           string
	JetStream     bool
	MaxReconnects int
	ReconnectWait time.Duration
}

// SubscriberConfig configures Subscriber.
type SubscriberConfig struct {
	URL              string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration

	// JetStream consumers bind to StreamName with a durable named DurableName.
	JetStream   bool
	StreamName  string
	DurableName string
	MaxDeliver  int
}

// RouterConfig configures the Watermill router middleware.
type RouterConfig struct {
	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// ThrottlePerSecond caps handled messages per second; 0 disables.
	ThrottlePerSecond int64

	// PoisonQueueTopic receives messages that still fail after the retries.
	// It must not match the observation subscription.
	PoisonQueueTopic string
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     "tourguard.poison.observations",
	}
}

// CircuitBreakerConfig configures NewCircuitBreaker.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // allowed in half-open state
	Interval         time.Duration // reset interval for counts
	Timeout          time.Duration // time to stay open
	FailureThreshold uint32        // consecutive failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}
