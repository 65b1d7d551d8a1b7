// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package journal

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/metrics"
)

// RunGC runs Badger value-log GC until nothing more can be rewritten.
// It returns the number of files rewritten.
func (j *BadgerJournal) RunGC(discardRatio float64) (int, error) {
	release, err := j.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	if j.cfg.InMemory {
		return 0, nil
	}

	rewritten := 0
	for {
		err = j.db.RunValueLogGC(discardRatio)
		if err != nil {
			break
		}
		rewritten++
	}
	if errors.Is(err, badger.ErrNoRewrite) {
		err = nil
	}

	j.gcMu.Lock()
	j.lastGC = time.Now().UTC()
	j.lastGCError = ""
	if err != nil {
		j.lastGCError = err.Error()
	}
	j.gcMu.Unlock()
	return rewritten, err
}

// GCService periodically reclaims value-log space. It implements
// suture.Service.
type GCService struct {
	journal      *BadgerJournal
	interval     time.Duration
	discardRatio float64
}

// NewGCService creates a GC service. interval defaults to 10 minutes and
// discardRatio to 0.5.
func NewGCService(j *BadgerJournal, interval time.Duration, discardRatio float64) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &GCService{journal: j, interval: interval, discardRatio: discardRatio}
}

// Serve runs GC on every tick until ctx is canceled.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *GCService) runOnce() {
	n, err := s.journal.RunGC(s.discardRatio)
	switch {
	case errors.Is(err, ErrJournalClosed):
		metrics.JournalGCRuns.WithLabelValues("closed").Inc()
	case err != nil:
		metrics.JournalGCRuns.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Msg("journal value-log GC failed")
	case n == 0:
		metrics.JournalGCRuns.WithLabelValues("noop").Inc()
	default:
		metrics.JournalGCRuns.WithLabelValues("rewritten").Inc()
		logging.Debug().Int("files", n).Msg("journal value-log GC rewrote files")
	}
}

// String names the service in supervisor logs.
func (s *GCService) String() string { return "journal-gc" }
