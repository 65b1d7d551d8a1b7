// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package config

import (
	"fmt"
	"net/url"
	"strings"
)

var knownAlertKinds = map[string]bool{
	"route_deviation": true,
	"long_inactivity": true,
	"danger_zone":     true,
	"anomaly":         true,
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateDetection,
		c.validateStore,
		c.validateGeofence,
		c.validateJournal,
		c.validateAnomaly,
		c.validateNATS,
		c.validateMQTT,
		c.validateRabbitMQ,
		c.validateRedis,
		c.validateWebhook,
		c.validateNarrative,
		c.validateArchive,
		c.validateSecurity,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateDetection() error {
	d := c.Detection
	if d.RouteDeviationThresholdM <= 0 {
		return fmt.Errorf("ROUTE_DEVIATION_THRESHOLD_M must be positive")
	}
	if d.RouteDistanceMode != "waypoint" && d.RouteDistanceMode != "segment" {
		return fmt.Errorf("ROUTE_DISTANCE_MODE must be waypoint or segment, got %q", d.RouteDistanceMode)
	}
	if d.InactivityThreshold <= 0 {
		return fmt.Errorf("INACTIVITY_THRESHOLD must be positive")
	}
	if d.MotionSpeedMPS < 0 {
		return fmt.Errorf("MOTION_SPEED_MPS must not be negative")
	}
	if d.AlertCooldown <= 0 {
		return fmt.Errorf("ALERT_COOLDOWN must be positive")
	}
	if d.DefaultBatteryPct < 0 || d.DefaultBatteryPct > 100 {
		return fmt.Errorf("detection.default_battery_pct must be within [0,100]")
	}
	for _, kind := range d.DisabledDetectors {
		if !knownAlertKinds[kind] {
			return fmt.Errorf("DISABLED_DETECTORS contains unknown detector %q", kind)
		}
	}
	if d.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.HistoryCapacity < 1 {
		return fmt.Errorf("HISTORY_CAPACITY must be at least 1")
	}
	if c.Store.Shards < 1 {
		return fmt.Errorf("STORE_SHARDS must be at least 1")
	}
	return nil
}

func (c *Config) validateGeofence() error {
	switch c.Geofence.Source {
	case "file":
		if c.Geofence.Path == "" {
			return fmt.Errorf("DANGER_ZONES_PATH is required when DANGER_ZONES_SOURCE=file")
		}
	case "http":
		if err := validateURL(c.Geofence.URL, "http", "https"); err != nil {
			return fmt.Errorf("DANGER_ZONES_URL is invalid: %w", err)
		}
	default:
		return fmt.Errorf("DANGER_ZONES_SOURCE must be file or http, got %q", c.Geofence.Source)
	}
	return nil
}

func (c *Config) validateJournal() error {
	if !c.Journal.Enabled {
		return nil
	}
	if !c.Journal.InMemory && c.Journal.Path == "" {
		return fmt.Errorf("JOURNAL_PATH is required when the journal is enabled")
	}
	if c.Journal.Retention < 0 {
		return fmt.Errorf("JOURNAL_RETENTION must not be negative")
	}
	if c.Journal.GCDiscardRatio <= 0 || c.Journal.GCDiscardRatio >= 1 {
		return fmt.Errorf("journal.gc_discard_ratio must be in (0,1)")
	}
	return nil
}

func (c *Config) validateAnomaly() error {
	a := c.Anomaly
	if a.Trees < 1 {
		return fmt.Errorf("anomaly.trees must be at least 1")
	}
	if a.SampleSize < 2 {
		return fmt.Errorf("anomaly.sample_size must be at least 2")
	}
	if a.Contamination <= 0 || a.Contamination > 0.5 {
		return fmt.Errorf("anomaly.contamination must be in (0,0.5]")
	}
	if a.MinTrainingRows < 2 {
		return fmt.Errorf("ANOMALY_MIN_ROWS must be at least 2")
	}
	if a.ModelFilename == "" {
		return fmt.Errorf("MODEL_FILENAME is required")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if err := validateURL(c.NATS.URL, "nats", "tls"); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.NATS.ObservationTopic == "" {
		return fmt.Errorf("NATS_OBSERVATION_TOPIC is required when NATS is enabled")
	}
	if c.NATS.SubscribersCount < 1 {
		return fmt.Errorf("nats.subscribers_count must be at least 1")
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if !c.MQTT.Enabled {
		return nil
	}
	if err := validateURL(c.MQTT.BrokerURL, "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts"); err != nil {
		return fmt.Errorf("MQTT_BROKER_URL is invalid: %w", err)
	}
	if c.MQTT.Topic == "" {
		return fmt.Errorf("MQTT_TOPIC is required when MQTT is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Enabled {
		return nil
	}
	if err := validateURL(c.RabbitMQ.URL, "amqp", "amqps"); err != nil {
		return fmt.Errorf("RABBITMQ_URL is invalid: %w", err)
	}
	if c.RabbitMQ.Exchange == "" {
		return fmt.Errorf("RABBITMQ_EXCHANGE is required when RabbitMQ is enabled")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if !c.Redis.Enabled {
		return nil
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when Redis is enabled")
	}
	if c.Redis.HistoryLimit < 1 {
		return fmt.Errorf("redis.history_limit must be at least 1")
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if !c.Webhook.Enabled {
		return nil
	}
	if err := validateURL(c.Webhook.URL, "http", "https"); err != nil {
		return fmt.Errorf("WEBHOOK_URL is invalid: %w", err)
	}
	if c.Webhook.RatePerSecond <= 0 || c.Webhook.Burst < 1 {
		return fmt.Errorf("webhook rate limit must be positive")
	}
	return nil
}

func (c *Config) validateNarrative() error {
	if !c.Narrative.Enabled {
		return nil
	}
	if err := validateURL(c.Narrative.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("NARRATIVE_BASE_URL is invalid: %w", err)
	}
	if c.Narrative.Model == "" {
		return fmt.Errorf("NARRATIVE_MODEL is required when narrative is enabled")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if c.Archive.Driver != "duckdb" && c.Archive.Driver != "postgres" {
		return fmt.Errorf("ARCHIVE_DRIVER must be duckdb or postgres, got %q", c.Archive.Driver)
	}
	if c.Archive.DSN == "" {
		return fmt.Errorf("ARCHIVE_DSN is required when the archive is enabled")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "none":
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE=jwt")
		}
		if c.Security.AdminRole == "" {
			return fmt.Errorf("ADMIN_ROLE must not be empty when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be none or jwt, got %q", c.Security.AuthMode)
	}
	if !c.Security.RateLimitDisabled && (c.Security.RateLimitRequests < 1 || c.Security.RateLimitWindow <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive")
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			if u.Host == "" {
				return fmt.Errorf("missing host in %q", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("scheme %q not in %v", u.Scheme, schemes)
}
