// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package alerthistory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/models"
)

// RedisConfig configures RedisHistory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix is prepended to "alerts:<trip_id>".
	KeyPrefix string
	Limit     int64
	TTL       time.Duration
}

// RedisHistory stores each trip's alerts in a capped Redis list so every
// replica serves the same history. It is registered as a notifier.
type RedisHistory struct {
	client *redis.Client
	prefix string
	limit  int64
	ttl    time.Duration
}

// NewRedisHistory connects to Redis and verifies the connection.
func NewRedisHistory(ctx context.Context, cfg RedisConfig) (*RedisHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisHistoryFromClient(client, cfg), nil
}

// NewRedisHistoryFromClient wraps an existing client.
func NewRedisHistoryFromClient(client *redis.Client, cfg RedisConfig) *RedisHistory {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &RedisHistory{
		client: client,
		prefix: cfg.KeyPrefix,
		limit:  cfg.Limit,
		ttl:    cfg.TTL,
	}
}

func (r *RedisHistory) key(tripID string) string {
	return r.prefix + "alerts:" + tripID
}

func (r *RedisHistory) Name() string  { return "redis-history" }
func (r *RedisHistory) Enabled() bool { return true }

// Send appends the alert, trims the list to the limit and refreshes its TTL
// in one transaction.
func (r *RedisHistory) Send(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	key := r.key(alert.TripID)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, data)
		p.LTrim(ctx, key, -r.limit, -1)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", key, err)
	}
	return nil
}

// ByTrip reads the trip's alerts, oldest first. Entries that fail to decode
// are skipped with a warning.
func (r *RedisHistory) ByTrip(ctx context.Context, tripID string) ([]*models.Alert, error) {
	key := r.key(tripID)
	raw, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis read %s: %w", key, err)
	}
	out := make([]*models.Alert, 0, len(raw))
	for _, s := range raw {
		var a models.Alert
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("skipping undecodable alert")
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

// Ping checks the connection for the health endpoint.
func (r *RedisHistory) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisHistory) Close() error {
	return r.client.Close()
}
