// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package narrative turns alerts into short safety advice using an
// Ollama-compatible chat endpoint. Output is advisory text only and is
// never fed back into detection.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/cache"
	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/models"
)

// MaxLength is the exclusive upper bound on accepted model output; longer
// replies are replaced by the fallback text.
const MaxLength = 300

const systemPrompt = `You are a travel safety assistant. Rewrite the alert for the tourist:
explain the situation, give one or two immediate steps, and reassure where it fits.
Answer in two or three plain sentences.`

// Config configures Client.
type Config struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	RetryCount  int
	MaxTokens   int
	Temperature float64
	CacheSize   int
	CacheTTL    time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// Client narrates alerts. It is safe for concurrent use.
type Client struct {
	http  *resty.Client
	cfg   Config
	cache *cache.LRU[string]
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 160
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(250*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &Client{
		http:  client,
		cfg:   cfg,
		cache: cache.NewLRU[string](cfg.CacheSize, cfg.CacheTTL),
	}
}

// Narrate returns advice for alert. When the model is unreachable or its
// reply is empty or too long, the templated Fallback is returned instead;
// only a canceled ctx yields an error.
func (c *Client) Narrate(ctx context.Context, alert *models.Alert) (string, error) {
	key := string(alert.Kind) + "|" + string(alert.Severity) + "|" + alert.Message
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}

	text, err := c.chat(ctx, prompt(alert))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		logging.Ctx(ctx).Debug().Err(err).Str("alert_type", string(alert.Kind)).Msg("narrative fallback")
		return Fallback(alert), nil
	}
	if text == "" || len(text) >= MaxLength {
		return Fallback(alert), nil
	}

	c.cache.Add(key, text)
	return text, nil
}

func (c *Client) chat(ctx context.Context, userPrompt string) (string, error) {
	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			Options: map[string]any{
				"num_predict": c.cfg.MaxTokens,
				"temperature": c.cfg.Temperature,
			},
		}).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("chat returned status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return strings.TrimSpace(out.Message.Content), nil
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return fmt.Errorf("narrative ping: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("narrative ping: status %d", resp.StatusCode())
	}
	return nil
}

func prompt(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert type: %s\nSeverity: %s\nMessage: %s\n", alert.Kind, alert.Severity, alert.Message)
	if len(alert.Metadata) > 0 {
		if meta, err := json.Marshal(alert.Metadata); err == nil {
			fmt.Fprintf(&b, "Context: %s\n", meta)
		}
	}
	b.WriteString("Rewrite this alert with practical advice. Be concise.")
	return b.String()
}

// Fallback builds advice from the alert alone.
func Fallback(alert *models.Alert) string {
	var advice string
	switch alert.Kind {
	case models.AlertRouteDeviation:
		advice = "Head back towards your planned route or share your live location with your group."
	case models.AlertLongInactivity:
		advice = "Please check in to confirm you are safe."
	case models.AlertDangerZone:
		advice = "Stay in busy, well-lit public areas and leave the zone when you can."
	case models.AlertAnomaly:
		advice = "Your movement looks unusual. Confirm you are safe or contact local support."
	default:
		advice = "Please confirm you are safe."
	}
	msg := strings.TrimSpace(alert.Message)
	if msg == "" {
		return advice
	}
	return msg + " " + advice
}
