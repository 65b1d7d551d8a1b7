// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
)

// Narrator turns an alert into a short human-readable paragraph.
type Narrator interface {
	Narrate(ctx context.Context, alert *models.Alert) (string, error)
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Enabled bool              `json:"enabled"`
	Timeout time.Duration     `json:"timeout"`

	// RatePerSecond and Burst size the token bucket; zero disables it.
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`

	// BreakerFailures consecutive failures open the breaker for BreakerTimeout.
	BreakerFailures uint32        `json:"breaker_failures"`
	BreakerTimeout  time.Duration `json:"breaker_timeout"`
}

// WebhookPayload is the JSON body posted to the endpoint.
type WebhookPayload struct {
	Alert     *models.Alert `json:"alert"`
	EventType string        `json:"event_type"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Narrative string        `json:"narrative,omitempty"`
}

// WebhookNotifier posts alerts to an HTTP endpoint behind a rate limiter
// and a circuit breaker.
type WebhookNotifier struct {
	client   *resty.Client
	headers  map[string]string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[interface{}]
	narrator Narrator

	mu      sync.RWMutex
	url     string
	enabled bool
}

// NewWebhookNotifier creates a webhook notifier. narrator may be nil.
func NewWebhookNotifier(cfg WebhookConfig, narrator Narrator) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	const name = "webhook"
	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerGauge(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &WebhookNotifier{
		client: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "tourguard-webhook"),
		headers:  headers,
		limiter:  limiter,
		breaker:  breaker,
		narrator: narrator,
		url:      cfg.URL,
		enabled:  cfg.Enabled,
	}
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// BreakerState reports the breaker state ("closed", "half-open", "open").
func (n *WebhookNotifier) BreakerState() string {
	return n.breaker.State().String()
}

// Send posts alert. It waits for a rate-limit token, and fails fast while
// the breaker is open.
func (n *WebhookNotifier) Send(ctx context.Context, alert *models.Alert) error {
	n.mu.RLock()
	url, enabled := n.url, n.enabled
	n.mu.RUnlock()
	if !enabled || url == "" {
		return nil
	}

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("webhook rate limit: %w", err)
		}
	}

	payload := WebhookPayload{
		Alert:     alert,
		EventType: "tourguard_alert",
		Timestamp: time.Now().UTC(),
		Source:    "tourguard",
	}
	if n.narrator != nil {
		text, err := n.narrator.Narrate(ctx, alert)
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Msg("narrative unavailable, sending plain alert")
		} else {
			payload.Narrative = text
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	_, err = n.breaker.Execute(func() (interface{}, error) {
		resp, err := n.client.R().
			SetContext(ctx).
			SetHeaders(n.headers).
			SetBody(body).
			Post(url)
		if err != nil {
			return nil, fmt.Errorf("failed to send webhook: %w", err)
		}
		if resp.StatusCode() >= 400 {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode())
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("webhook circuit open: %w", err)
	}
	return err
}
