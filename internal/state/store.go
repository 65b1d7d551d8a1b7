// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package state holds all per-entity state: bounded observation history,
// route plans, last-motion and last-alert clocks, and the cached geofence
// status.
//
// Entities are spread over shards by FNV hash of their key. Each shard guards
// its map with an RWMutex held only for the duration of a single read or
// write. Callers that need a multi-step update of one entity to be atomic
// (the detection pipeline) take the per-key lock returned by Lock; distinct
// keys never contend on it.
package state

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultHistoryCapacity = 5000
	DefaultShards          = 64
	DefaultAlertCooldown   = 5 * time.Minute
)

// Journal is the durable observation log.
type Journal interface {
	Append(ctx context.Context, obs *models.Observation) error
}

// Options configures a Store.
type Options struct {
	HistoryCapacity int
	Shards          int
	AlertCooldown   time.Duration

	// Journal is optional. Append failures are logged and counted.
	Journal Journal
}

// Stats summarizes store contents.
type Stats struct {
	Entities     int `json:"entities"`
	Observations int `json:"observations"`
	Routes       int `json:"routes"`
}

type entity struct {
	history *ring

	route *models.RoutePlan

	lastMotion    time.Time
	hasLastMotion bool

	lastAlert    time.Time
	hasLastAlert bool

	status *models.GeofenceStatus
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type shard struct {
	mu       sync.RWMutex
	entities map[models.EntityKey]*entity

	locksMu sync.Mutex
	locks   map[models.EntityKey]*keyLock
}

// Store is the sharded entity state store.
type Store struct {
	shards   []*shard
	capacity int
	cooldown time.Duration
	journal  Journal
	logger   zerolog.Logger
}

// New creates a Store.
func New(opts Options) *Store {
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = DefaultHistoryCapacity
	}
	if opts.Shards <= 0 {
		opts.Shards = DefaultShards
	}
	if opts.AlertCooldown <= 0 {
		opts.AlertCooldown = DefaultAlertCooldown
	}

	s := &Store{
		shards:   make([]*shard, opts.Shards),
		capacity: opts.HistoryCapacity,
		cooldown: opts.AlertCooldown,
		journal:  opts.Journal,
		logger:   logging.WithComponent("state"),
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			entities: make(map[models.EntityKey]*entity),
			locks:    make(map[models.EntityKey]*keyLock),
		}
	}
	return s
}

// Cooldown returns the alert cooldown window.
func (s *Store) Cooldown() time.Duration { return s.cooldown }

// Capacity returns the per-entity history capacity.
func (s *Store) Capacity() int { return s.capacity }

func (s *Store) shardFor(key models.EntityKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.TouristID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.TripID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// entityLocked returns the entity for key, creating it. sh.mu must be held for writing.
func (s *Store) entityLocked(sh *shard, key models.EntityKey) *entity {
	e, ok := sh.entities[key]
	if !ok {
		e = &entity{history: newRing(s.capacity)}
		sh.entities[key] = e
		metrics.TrackedEntities.Inc()
	}
	return e
}

// Lock serializes updates for one entity and returns the matching unlock.
// The lock entry is dropped once no goroutine holds or waits for it.
func (s *Store) Lock(key models.EntityKey) (unlock func()) {
	sh := s.shardFor(key)

	sh.locksMu.Lock()
	kl, ok := sh.locks[key]
	if !ok {
		kl = &keyLock{}
		sh.locks[key] = kl
	}
	kl.refs++
	sh.locksMu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		sh.locksMu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(sh.locks, key)
		}
		sh.locksMu.Unlock()
	}
}

// AddObservation appends obs to its entity's history, evicting the oldest
// entry at capacity, then forwards it to the journal.
func (s *Store) AddObservation(ctx context.Context, obs *models.Observation) {
	key := obs.Key()
	sh := s.shardFor(key)

	sh.mu.Lock()
	s.entityLocked(sh, key).history.push(*obs)
	sh.mu.Unlock()

	if s.journal == nil {
		return
	}
	// the observation is already in history; a caller going away must not
	// keep it out of the journal
	start := time.Now()
	err := s.journal.Append(context.WithoutCancel(ctx), obs)
	metrics.RecordJournalAppend(time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("tourist_id", key.TouristID).
			Str("trip_id", key.TripID).
			Msg("journal append failed; observation kept in memory only")
	}
}

// GetHistory returns a chronological copy of the entity's history.
func (s *Store) GetHistory(key models.EntityKey) []models.Observation {
	return s.GetRecentHistory(key, 0)
}

// GetRecentHistory returns at most limit of the newest observations, oldest
// first. A limit of zero or less returns everything.
func (s *Store) GetRecentHistory(key models.EntityKey, limit int) []models.Observation {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entities[key]
	if !ok {
		return []models.Observation{}
	}
	return e.history.tail(limit)
}

// AddRoute stores plan, replacing any previous plan for the same key.
func (s *Store) AddRoute(plan *models.RoutePlan) error {
	if len(plan.Points) < models.MinRoutePoints {
		return models.ErrRouteTooShort
	}
	key := plan.Key()
	sh := s.shardFor(key)

	sh.mu.Lock()
	s.entityLocked(sh, key).route = plan.Clone()
	sh.mu.Unlock()

	metrics.RoutesRegistered.Inc()
	s.logger.Debug().Str("tourist_id", key.TouristID).Str("trip_id", key.TripID).
		Int("points", len(plan.Points)).Msg("route stored")
	return nil
}

// GetRoute returns a copy of the entity's route plan.
func (s *Store) GetRoute(key models.EntityKey) (*models.RoutePlan, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entities[key]
	if !ok || e.route == nil {
		return nil, false
	}
	return e.route.Clone(), true
}

// LastMotion returns the timestamp of the last observation counted as motion.
func (s *Store) LastMotion(key models.EntityKey) (time.Time, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entities[key]
	if !ok || !e.hasLastMotion {
		return time.Time{}, false
	}
	return e.lastMotion, true
}

// SetLastMotion records ts as the entity's last motion.
func (s *Store) SetLastMotion(key models.EntityKey, ts time.Time) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e := s.entityLocked(sh, key)
	e.lastMotion = ts
	e.hasLastMotion = true
	sh.mu.Unlock()
}

// UpdateGeofenceStatus replaces the entity's geofence status.
func (s *Store) UpdateGeofenceStatus(status models.GeofenceStatus) {
	key := status.Key()
	sh := s.shardFor(key)
	sh.mu.Lock()
	s.entityLocked(sh, key).status = &status
	sh.mu.Unlock()
}

// GeofenceStatus returns the entity's last geofence status.
func (s *Store) GeofenceStatus(key models.EntityKey) (models.GeofenceStatus, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entities[key]
	if !ok || e.status == nil {
		return models.GeofenceStatus{}, false
	}
	return *e.status, true
}

// ListGeofenceStatus returns a snapshot of every status, sorted by key.
func (s *Store) ListGeofenceStatus() []models.GeofenceStatus {
	out := make([]models.GeofenceStatus, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.entities {
			if e.status != nil {
				out = append(out, *e.status)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().Less(out[j].Key())
	})
	return out
}

// TryRegisterAlert is the cooldown gate. It accepts an alert for key at ts
// when no alert of any kind was accepted within the cooldown before ts, and
// records ts as the entity's last alert on acceptance.
func (s *Store) TryRegisterAlert(key models.EntityKey, ts time.Time) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e := s.entityLocked(sh, key)
	if e.hasLastAlert && ts.Sub(e.lastAlert) < s.cooldown {
		return false
	}
	e.lastAlert = ts
	e.hasLastAlert = true
	return true
}

// Keys returns every tracked entity key, sorted.
func (s *Store) Keys() []models.EntityKey {
	keys := make([]models.EntityKey, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.entities {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Stats returns entity, observation and route counts.
func (s *Store) Stats() Stats {
	var st Stats
	for _, sh := range s.shards {
		sh.mu.RLock()
		st.Entities += len(sh.entities)
		for _, e := range sh.entities {
			st.Observations += e.history.len()
			if e.route != nil {
				st.Routes++
			}
		}
		sh.mu.RUnlock()
	}
	return st
}

// Iterate replays held history in key order, so the store can stand in for
// the journal as a training source.
func (s *Store) Iterate(ctx context.Context, fn func(*models.Observation) error) error {
	for _, key := range s.Keys() {
		history := s.GetHistory(key)
		for i := range history {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(&history[i]); err != nil {
				return err
			}
		}
	}
	return nil
}
