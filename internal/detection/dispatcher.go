// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
)

// DefaultDispatchTimeout bounds one notifier call when none is configured.
const DefaultDispatchTimeout = 10 * time.Second

// Dispatcher receives every accepted alert exactly once.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert)
}

// Recorder is a local, fast sink run inline by the dispatcher.
type Recorder interface {
	Name() string
	Record(ctx context.Context, alert *models.Alert) error
}

// Notifier is a network sink run in its own goroutine with a timeout.
type Notifier interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, alert *models.Alert) error
}

// AlertDispatcher fans accepted alerts out to recorders and notifiers.
// Recorders run before Dispatch returns; notifiers run asynchronously and
// are detached from the caller's cancellation.
type AlertDispatcher struct {
	timeout time.Duration

	mu        sync.RWMutex
	recorders []Recorder
	notifiers []Notifier

	wg sync.WaitGroup
}

// NewAlertDispatcher creates a dispatcher with no sinks.
func NewAlertDispatcher(timeout time.Duration) *AlertDispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &AlertDispatcher{timeout: timeout}
}

// AddRecorder registers an inline sink.
func (d *AlertDispatcher) AddRecorder(r Recorder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recorders = append(d.recorders, r)
	logging.Info().Str("recorder", r.Name()).Msg("registered alert recorder")
}

// AddNotifier registers an asynchronous sink.
func (d *AlertDispatcher) AddNotifier(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, n)
	logging.Info().Str("notifier", n.Name()).Msg("registered notifier")
}

// Notifiers lists the registered notifier names.
func (d *AlertDispatcher) Notifiers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

func (d *AlertDispatcher) Dispatch(ctx context.Context, alert *models.Alert) {
	d.mu.RLock()
	recorders := d.recorders
	notifiers := make([]Notifier, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		if n.Enabled() {
			notifiers = append(notifiers, n)
		}
	}
	d.mu.RUnlock()

	for _, r := range recorders {
		start := time.Now()
		err := r.Record(ctx, alert)
		metrics.RecordNotifierSend(r.Name(), time.Since(start), err)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("recorder", r.Name()).
				Str("alert_id", alert.ID).
				Msg("failed to record alert")
		}
	}

	// Notifiers outlive the request that produced the alert.
	base := context.WithoutCancel(ctx)
	for _, n := range notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()

			start := time.Now()
			err := n.Send(sendCtx, alert)
			metrics.RecordNotifierSend(n.Name(), time.Since(start), err)
			if err != nil {
				logging.Ctx(base).Error().Err(err).
					Str("notifier", n.Name()).
					Str("alert_id", alert.ID).
					Msg("failed to send alert")
			}
		}(n)
	}
}

// Wait blocks until in-flight notifier calls finish or ctx is done.
func (d *AlertDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogRecorder writes one structured log line per accepted alert.
type LogRecorder struct{}

func (LogRecorder) Name() string { return "log" }

func (LogRecorder) Record(ctx context.Context, alert *models.Alert) error {
	logging.Ctx(ctx).Info().
		Str("alert_id", alert.ID).
		Str("alert_type", string(alert.Kind)).
		Str("severity", string(alert.Severity)).
		Str("tourist_id", alert.TouristID).
		Str("trip_id", alert.TripID).
		Str("recipients", strings.Join(alert.Recipients, ",")).
		Msg(alert.Message)
	return nil
}
