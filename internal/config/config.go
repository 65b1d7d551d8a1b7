// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package config loads TourGuard configuration.
//
// Loading order (later layers win):
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/tourguard/config.yaml)
//  3. A .env file, if present, is loaded into the process environment
//  4. Environment variables listed in envMappings
//
// Config is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Detection DetectionConfig `koanf:"detection"`
	Store     StoreConfig     `koanf:"store"`
	Geofence  GeofenceConfig  `koanf:"geofence"`
	Journal   JournalConfig   `koanf:"journal"`
	Anomaly   AnomalyConfig   `koanf:"anomaly"`
	NATS      NATSConfig      `koanf:"nats"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	RabbitMQ  RabbitMQConfig  `koanf:"rabbitmq"`
	Redis     RedisConfig     `koanf:"redis"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	Narrative NarrativeConfig `koanf:"narrative"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Security  SecurityConfig  `koanf:"security"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies on JSON endpoints.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DetectionConfig holds the thresholds used by the four detectors and the
// dedup gate.
type DetectionConfig struct {
	// RouteDeviationThresholdM applies when a route plan has no override.
	RouteDeviationThresholdM float64 `koanf:"route_deviation_threshold_m"`

	// RouteDistanceMode is "waypoint" (nearest listed point) or "segment"
	// (nearest point on the polyline).
	RouteDistanceMode string `koanf:"route_distance_mode"`

	InactivityThreshold time.Duration `koanf:"inactivity_threshold"`

	// MotionSpeedMPS is the speed above which an observation counts as motion.
	MotionSpeedMPS float64 `koanf:"motion_speed_mps"`

	// AlertCooldown is the per-entity window during which any second alert is suppressed.
	AlertCooldown time.Duration `koanf:"alert_cooldown"`

	AnomalyThreshold  float64 `koanf:"anomaly_threshold"`
	DefaultBatteryPct float64 `koanf:"default_battery_pct"`

	// DisabledDetectors lists alert kinds whose detectors start disabled.
	DisabledDetectors []string `koanf:"disabled_detectors"`

	// DispatchTimeout bounds each asynchronous notifier call.
	DispatchTimeout time.Duration `koanf:"dispatch_timeout"`
}

// StoreConfig sizes the entity state store.
type StoreConfig struct {
	HistoryCapacity int `koanf:"history_capacity"`
	Shards          int `koanf:"shards"`
}

// GeofenceConfig selects where danger zones are loaded from.
type GeofenceConfig struct {
	// Source is "file" or "http".
	Source string `koanf:"source"`

	Path         string        `koanf:"path"`
	URL          string        `koanf:"url"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	RetryCount   int           `koanf:"retry_count"`
}

// JournalConfig configures the BadgerDB observation journal.
type JournalConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// SyncWrites fsyncs every append.
	SyncWrites bool `koanf:"sync_writes"`

	// Retention is the TTL on journal entries; zero keeps them forever.
	Retention time.Duration `koanf:"retention"`

	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio"`
}

// AnomalyConfig configures the isolation forest and its trainer.
type AnomalyConfig struct {
	ModelDir        string        `koanf:"model_dir"`
	ModelFilename   string        `koanf:"model_filename"`
	Trees           int           `koanf:"trees"`
	SampleSize      int           `koanf:"sample_size"`
	Contamination   float64       `koanf:"contamination"`
	Seed            uint64        `koanf:"seed"`
	MinTrainingRows int           `koanf:"min_training_rows"`
	TrainOnStartup  bool          `koanf:"train_on_startup"`
	RetrainInterval time.Duration `koanf:"retrain_interval"`

	// DatasetPath is an optional historical observations CSV added to the
	// journal rows at training time. A missing file is ignored.
	DatasetPath string `koanf:"dataset_path"`
}

// NATSConfig configures NATS ingestion and alert publishing via Watermill.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// EmbeddedServer starts an in-process nats-server listening on URL's port.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	JetStream      bool   `koanf:"jetstream"`

	ObservationTopic string `koanf:"observation_topic"`
	AlertTopicPrefix string `koanf:"alert_topic_prefix"`
	QueueGroup       string `koanf:"queue_group"`
	DurableName      string `koanf:"durable_name"`

	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`

	// Router middleware
	MaxRetries     int           `koanf:"max_retries"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	ThrottlePerSec int64         `koanf:"throttle_per_sec"`
	PoisonTopic    string        `koanf:"poison_topic"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`

	// PublishAlerts sends accepted alerts to AlertTopicPrefix.<kind>.
	PublishAlerts bool `koanf:"publish_alerts"`
}

// MQTTConfig configures the paho MQTT observation subscriber.
type MQTTConfig struct {
	Enabled        bool          `koanf:"enabled"`
	BrokerURL      string        `koanf:"broker_url"`
	ClientID       string        `koanf:"client_id"`
	Topic          string        `koanf:"topic"`
	QoS            int           `koanf:"qos"`
	Username       string        `koanf:"username"`
	Password       string        `koanf:"password"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// RabbitMQConfig configures the alert fanout publisher.
type RabbitMQConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

// RedisConfig configures the shared alert history.
type RedisConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	KeyPrefix    string        `koanf:"key_prefix"`
	HistoryLimit int64         `koanf:"history_limit"`
	HistoryTTL   time.Duration `koanf:"history_ttl"`
}

// WebhookConfig configures outbound alert webhooks.
type WebhookConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`

	// RatePerSecond and Burst feed a token bucket in front of the endpoint.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`

	IncludeNarrative bool `koanf:"include_narrative"`
}

// NarrativeConfig configures the optional text-generation client.
type NarrativeConfig struct {
	Enabled    bool          `koanf:"enabled"`
	BaseURL    string        `koanf:"base_url"`
	Model      string        `koanf:"model"`
	Timeout    time.Duration `koanf:"timeout"`
	RetryCount int           `koanf:"retry_count"`
}

// ArchiveConfig configures the SQL alert archive.
type ArchiveConfig struct {
	Enabled bool `koanf:"enabled"`

	// Driver is "duckdb" or "postgres".
	Driver       string `koanf:"driver"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// SecurityConfig configures API authentication, CORS and rate limiting.
type SecurityConfig struct {
	// AuthMode is "none" or "jwt". With jwt, admin routes need a bearer token.
	AuthMode    string        `koanf:"auth_mode"`
	JWTSecret   string        `koanf:"jwt_secret"`
	JWTIssuer   string        `koanf:"jwt_issuer"`
	JWTTTL      time.Duration `koanf:"jwt_ttl"`
	AdminRole   string        `koanf:"admin_role"`
	CORSOrigins []string      `koanf:"cors_origins"`

	// PolicyPath is an optional casbin policy CSV for admin routes. Empty
	// uses the built-in policy derived from AdminRole.
	PolicyPath string `koanf:"policy_path"`

	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
