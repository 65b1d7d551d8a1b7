// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeIngester struct {
	mu  sync.Mutex
	got []*models.Observation
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, obs *models.Observation) ([]*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, obs)
	return nil, f.err
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		err     error
		outcome string
		calls   int
	}{
		{"ingested", `{"tourist_id":"T","trip_id":"A","timestamp":"2026-03-01T10:00:00Z","lat":1,"lng":2}`, nil, "ingested", 1},
		{"malformed", `{"tourist_id":`, nil, "malformed", 0},
		{"pipeline error", `{"tourist_id":"T","trip_id":"A","timestamp":"2026-03-01T10:00:00Z"}`, errors.New("journal down"), "error", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &fakeIngester{err: tt.err}
			s := NewSubscriber(Config{Topic: "tourguard/observations/#"}, in)
			counter := metrics.MessagesConsumed.WithLabelValues(Transport, tt.outcome)
			before := testutil.ToFloat64(counter)

			s.handleMessage(nil, fakeMessage{topic: "tourguard/observations/T", payload: []byte(tt.payload)})

			if d := testutil.ToFloat64(counter) - before; d != 1 {
				t.Errorf("%s counter delta = %v, want 1", tt.outcome, d)
			}
			if len(in.got) != tt.calls {
				t.Errorf("ingest calls = %d, want %d", len(in.got), tt.calls)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	s := NewSubscriber(Config{
		BrokerURL: "tcp://broker:1883",
		ClientID:  "tourguard-ingest",
		Topic:     "tourguard/observations/#",
		QoS:       1,
		Username:  "device",
		Password:  "secret",
	}, &fakeIngester{})

	opts := s.clientOptions()
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if !strings.HasPrefix(opts.ClientID, "tourguard-ingest-") {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if other := s.clientOptions(); other.ClientID == opts.ClientID {
		t.Error("client ids should differ between connections")
	}
	if opts.Username != "device" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto reconnect with clean session")
	}
	if opts.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want default 10s", opts.ConnectTimeout)
	}
}

type fakeToken struct {
	err  error
	done bool
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeClient embeds paho.Client so only the methods Serve uses need bodies.
type fakeClient struct {
	paho.Client
	connect      *fakeToken
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return c.connect }
func (c *fakeClient) Disconnect(uint)     { c.disconnected = true }

func TestServe(t *testing.T) {
	t.Run("connect error", func(t *testing.T) {
		s := NewSubscriber(Config{BrokerURL: "tcp://broker:1883"}, &fakeIngester{})
		s.newClient = func(*paho.ClientOptions) paho.Client {
			return &fakeClient{connect: &fakeToken{done: true, err: errors.New("refused")}}
		}
		err := s.Serve(context.Background())
		if err == nil || !strings.Contains(err.Error(), "refused") {
			t.Errorf("Serve error = %v", err)
		}
	})

	t.Run("connect timeout", func(t *testing.T) {
		s := NewSubscriber(Config{BrokerURL: "tcp://broker:1883"}, &fakeIngester{})
		s.newClient = func(*paho.ClientOptions) paho.Client {
			return &fakeClient{connect: &fakeToken{done: false}}
		}
		if err := s.Serve(context.Background()); !errors.Is(err, ErrConnectTimeout) {
			t.Errorf("Serve error = %v, want ErrConnectTimeout", err)
		}
	})

	t.Run("disconnects on cancel", func(t *testing.T) {
		client := &fakeClient{connect: &fakeToken{done: true}}
		s := NewSubscriber(Config{BrokerURL: "tcp://broker:1883"}, &fakeIngester{})
		s.newClient = func(*paho.ClientOptions) paho.Client { return client }

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := s.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve error = %v", err)
		}
		if !client.disconnected {
			t.Error("client not disconnected")
		}
	})
}
