// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package journal is the durable, append-only observation log backed by
// BadgerDB.
//
// Every ingested observation is written under a key of the form
// obs:<unix-nanos>:<uuid>, with the nanosecond timestamp zero-padded so that
// key order is chronological order. The journal is replayed to train the
// anomaly model and can be exported as CSV in the historical dataset layout.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/models"
)

const keyPrefix = "obs:"

var (
	// ErrJournalClosed is returned by operations on a closed journal.
	ErrJournalClosed = errors.New("journal is closed")

	// ErrNilObservation is returned by Append(nil).
	ErrNilObservation = errors.New("observation is nil")
)

// Config configures a BadgerJournal.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool

	// Retention is applied as a Badger TTL on each entry; zero keeps entries.
	Retention time.Duration
}

// Stats reports journal activity.
type Stats struct {
	Appends     int64     `json:"appends"`
	LastAppend  time.Time `json:"last_append,omitempty"`
	LSMBytes    int64     `json:"lsm_bytes"`
	VLogBytes   int64     `json:"vlog_bytes"`
	InMemory    bool      `json:"in_memory"`
	Retention   string    `json:"retention,omitempty"`
	LastGC      time.Time `json:"last_gc,omitempty"`
	LastGCError string    `json:"last_gc_error,omitempty"`
}

// BadgerJournal implements state.Journal on BadgerDB.
type BadgerJournal struct {
	db  *badger.DB
	cfg Config

	appends    atomic.Int64
	lastAppend atomic.Int64

	mu     sync.RWMutex
	closed bool

	gcMu        sync.Mutex
	lastGC      time.Time
	lastGCError string
}

// Open opens (or creates) the journal described by cfg.
func Open(cfg Config) (*BadgerJournal, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("journal path is required unless running in memory")
	}
	if cfg.Retention < 0 {
		return nil, fmt.Errorf("journal retention must not be negative, got %v", cfg.Retention)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Dur("retention", cfg.Retention).
		Msg("observation journal opened")

	return &BadgerJournal{db: db, cfg: cfg}, nil
}

// OpenForTesting opens an in-memory journal.
func OpenForTesting() (*BadgerJournal, error) {
	return Open(Config{InMemory: true})
}

func entryKey(obs *models.Observation) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", keyPrefix, obs.Timestamp.UnixNano(), uuid.NewString()))
}

// acquire holds the close lock for reading until release is called, so the
// database cannot be closed under an in-flight operation.
func (j *BadgerJournal) acquire() (release func(), err error) {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil, ErrJournalClosed
	}
	return j.mu.RUnlock, nil
}

// Append persists obs.
func (j *BadgerJournal) Append(ctx context.Context, obs *models.Observation) error {
	release, err := j.acquire()
	if err != nil {
		return err
	}
	defer release()
	if obs == nil {
		return ErrNilObservation
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(entryKey(obs), data)
		if j.cfg.Retention > 0 {
			e = e.WithTTL(j.cfg.Retention)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write to BadgerDB: %w", err)
	}

	j.appends.Add(1)
	j.lastAppend.Store(time.Now().UnixNano())
	return nil
}

// Iterate calls fn for every journaled observation in timestamp order.
// Iteration stops at the first error from fn, which is returned.
func (j *BadgerJournal) Iterate(ctx context.Context, fn func(*models.Observation) error) error {
	release, err := j.acquire()
	if err != nil {
		return err
	}
	defer release()

	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var obs models.Observation
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &obs)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping corrupt journal entry")
				continue
			}
			if err := fn(&obs); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of journaled observations.
func (j *BadgerJournal) Count(ctx context.Context) (int, error) {
	release, err := j.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	n := 0
	err = j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Stats returns a snapshot of journal counters and on-disk size.
func (j *BadgerJournal) Stats() Stats {
	st := Stats{
		Appends:  j.appends.Load(),
		InMemory: j.cfg.InMemory,
	}
	if j.cfg.Retention > 0 {
		st.Retention = j.cfg.Retention.String()
	}
	if ns := j.lastAppend.Load(); ns > 0 {
		st.LastAppend = time.Unix(0, ns).UTC()
	}
	if release, err := j.acquire(); err == nil {
		st.LSMBytes, st.VLogBytes = j.db.Size()
		release()
	}
	j.gcMu.Lock()
	st.LastGC = j.lastGC
	st.LastGCError = j.lastGCError
	j.gcMu.Unlock()
	return st
}

// Close flushes and closes the database. Further calls return ErrJournalClosed.
func (j *BadgerJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	j.closed = true
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("observation journal closed")
	return nil
}
