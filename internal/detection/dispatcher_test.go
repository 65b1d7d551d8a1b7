// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/models"
)

type mockRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockRecorder) Name() string { return "mock-recorder" }

func (m *mockRecorder) Record(context.Context, *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

type mockNotifier struct {
	enabled bool
	delay   time.Duration

	mu      sync.Mutex
	calls   int
	ctxErrs []error
}

func (m *mockNotifier) Name() string  { return "mock-notifier" }
func (m *mockNotifier) Enabled() bool { return m.enabled }

func (m *mockNotifier) Send(ctx context.Context, _ *models.Alert) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return nil
}

func testAlert() *models.Alert {
	return models.NewAlert(observation("t1", "trip1", t0, 0, 0, 0), models.AlertAnomaly, models.RiskLow, "Unexpected motion pattern score=-0.20", nil)
}

func TestAlertDispatcher(t *testing.T) {
	d := NewAlertDispatcher(time.Second)
	rec := &mockRecorder{}
	on := &mockNotifier{enabled: true}
	off := &mockNotifier{enabled: false}
	d.AddRecorder(rec)
	d.AddRecorder(LogRecorder{})
	d.AddNotifier(on)
	d.AddNotifier(off)

	// the caller's context is already gone by the time notifiers run
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, testAlert())

	if rec.calls != 1 {
		t.Errorf("recorder calls = %d, want 1 before Dispatch returns", rec.calls)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := d.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	on.mu.Lock()
	defer on.mu.Unlock()
	if on.calls != 1 {
		t.Errorf("enabled notifier calls = %d, want 1", on.calls)
	}
	if on.ctxErrs[0] != nil {
		t.Errorf("notifier context should be detached from the caller: %v", on.ctxErrs[0])
	}
	if off.calls != 0 {
		t.Errorf("disabled notifier was called")
	}
	if names := d.Notifiers(); len(names) != 2 {
		t.Errorf("Notifiers() = %v", names)
	}
}

func TestAlertDispatcherRecorderErrorContinues(t *testing.T) {
	d := NewAlertDispatcher(0)
	failing := &mockRecorder{err: errors.New("boom")}
	next := &mockRecorder{}
	d.AddRecorder(failing)
	d.AddRecorder(next)

	d.Dispatch(context.Background(), testAlert())
	if next.calls != 1 {
		t.Error("a failing recorder must not stop the others")
	}
}

func TestAlertDispatcherWaitTimeout(t *testing.T) {
	d := NewAlertDispatcher(time.Second)
	d.AddNotifier(&mockNotifier{enabled: true, delay: 200 * time.Millisecond})
	d.Dispatch(context.Background(), testAlert())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
	_ = d.Wait(context.Background())
}

type stubNarrator struct{ text string }

func (s stubNarrator) Narrate(context.Context, *models.Alert) (string, error) { return s.text, nil }

func TestWebhookNotifierSend(t *testing.T) {
	var got WebhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:     srv.URL,
		Enabled: true,
		Headers: map[string]string{"Authorization": "Bearer abc"},
	}, stubNarrator{text: "Please move to a safer area."})

	alert := testAlert()
	if err := n.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.EventType != "tourguard_alert" || got.Source != "tourguard" {
		t.Errorf("payload envelope = %+v", got)
	}
	if got.Alert == nil || got.Alert.ID != alert.ID || got.Alert.Kind != models.AlertAnomaly {
		t.Errorf("payload alert = %+v", got.Alert)
	}
	if got.Narrative != "Please move to a safer area." {
		t.Errorf("narrative = %q", got.Narrative)
	}
	if auth != "Bearer abc" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestWebhookNotifierBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:             srv.URL,
		Enabled:         true,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, nil)

	for i := 0; i < 2; i++ {
		err := n.Send(context.Background(), testAlert())
		if err == nil || !strings.Contains(err.Error(), "status 500") {
			t.Fatalf("send %d: err = %v, want status 500", i, err)
		}
	}
	if n.BreakerState() != "open" {
		t.Fatalf("breaker = %s, want open", n.BreakerState())
	}

	err := n.Send(context.Background(), testAlert())
	if err == nil || !strings.Contains(err.Error(), "circuit open") {
		t.Errorf("err = %v, want circuit open", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestWebhookNotifierDisabled(t *testing.T) {
	n := NewWebhookNotifier(WebhookConfig{URL: "http://127.0.0.1:1", Enabled: false}, nil)
	if n.Enabled() {
		t.Error("notifier should be disabled")
	}
	if err := n.Send(context.Background(), testAlert()); err != nil {
		t.Errorf("disabled Send = %v, want nil", err)
	}

	n = NewWebhookNotifier(WebhookConfig{Enabled: true}, nil)
	if n.Enabled() {
		t.Error("notifier without URL should report disabled")
	}
}

func TestWebhookNotifierRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Enabled: true, RatePerSecond: 0.01, Burst: 1}, nil)
	if err := n.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, testAlert()); err == nil {
		t.Error("second send should fail waiting for a token")
	}
}
