// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package narrative

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/models"
)

func dangerAlert() *models.Alert {
	return &models.Alert{
		ID:       "a-1",
		TripID:   "A",
		Kind:     models.AlertDangerZone,
		Severity: models.RiskHigh,
		Message:  "Entered Old Fort. Avoid after dark.",
		Metadata: map[string]string{"zone": "Old Fort"},
	}
}

func chatServer(t *testing.T, status int, reply string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "phi3:mini" || req.Stream || len(req.Messages) != 2 {
			t.Errorf("unexpected chat request %+v", req)
		}
		if !strings.Contains(req.Messages[1].Content, "Alert type: danger_zone") ||
			!strings.Contains(req.Messages[1].Content, `"zone":"Old Fort"`) {
			t.Errorf("prompt missing alert details: %q", req.Messages[1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: reply}, Done: true})
	}))
}

func TestNarrate(t *testing.T) {
	long := strings.Repeat("x", MaxLength)
	tests := []struct {
		name   string
		status int
		reply  string
		want   string
	}{
		{"model reply", http.StatusOK, "  You are in the Old Fort area. Move to a busy street.  ", "You are in the Old Fort area. Move to a busy street."},
		{"too long", http.StatusOK, long, Fallback(dangerAlert())},
		{"empty", http.StatusOK, "", Fallback(dangerAlert())},
		{"server error", http.StatusBadRequest, "ignored", Fallback(dangerAlert())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := chatServer(t, tt.status, tt.reply, &hits)
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL + "/", Model: "phi3:mini", Timeout: 2 * time.Second})
			got, err := c.Narrate(context.Background(), dangerAlert())
			if err != nil {
				t.Fatalf("Narrate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Narrate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNarrateCachesAcceptedReplies(t *testing.T) {
	var hits atomic.Int32
	srv := chatServer(t, http.StatusOK, "Move to a busy street.", &hits)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "phi3:mini"})
	for i := 0; i < 3; i++ {
		if _, err := c.Narrate(context.Background(), dangerAlert()); err != nil {
			t.Fatal(err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestNarrateUnreachableFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, Model: "phi3:mini", Timeout: time.Second})
	got, err := c.Narrate(context.Background(), dangerAlert())
	if err != nil {
		t.Fatalf("Narrate: %v", err)
	}
	if got != Fallback(dangerAlert()) {
		t.Errorf("got %q", got)
	}
}

func TestNarrateCanceled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(Config{BaseURL: srv.URL, Model: "phi3:mini"})
	if _, err := c.Narrate(ctx, dangerAlert()); err == nil {
		t.Error("expected context error")
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		kind models.AlertKind
		msg  string
		want string
	}{
		{models.AlertLongInactivity, "No movement detected for 15+ minutes.", "No movement detected for 15+ minutes. Please check in to confirm you are safe."},
		{models.AlertRouteDeviation, "", "Head back towards your planned route or share your live location with your group."},
		{models.AlertAnomaly, "Unexpected motion pattern score=-0.20", "Unexpected motion pattern score=-0.20 Your movement looks unusual. Confirm you are safe or contact local support."},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := Fallback(&models.Alert{Kind: tt.kind, Message: tt.msg}); got != tt.want {
				t.Errorf("Fallback = %q", got)
			}
		})
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	if err := New(Config{BaseURL: srv.URL}).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
