// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tourguard/internal/anomaly"
	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
	"github.com/tomtom215/tourguard/internal/state"
	"github.com/tomtom215/tourguard/internal/validation"
)

func TestIngestRouteDeviation(t *testing.T) {
	f := newFixture(t, stubScorer{}, state.Options{})
	if err := f.store.AddRoute(twoPointRoute("t1", "trip1")); err != nil {
		t.Fatal(err)
	}

	// 150.5 m north of the first waypoint, about 250 m from the second
	obs := observation("t1", "trip1", t0, 150.5*degPerMeter, 0, 1.2)
	alerts, err := f.pipeline.Ingest(context.Background(), obs)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Kind != models.AlertRouteDeviation || a.Severity != models.RiskMedium {
		t.Errorf("alert = %s/%s, want route_deviation/medium", a.Kind, a.Severity)
	}
	if a.Message != "Off planned route by 150 m." {
		t.Errorf("message = %q", a.Message)
	}
	if got := a.Metadata["route_threshold_m"]; got != "120.0" {
		t.Errorf("route_threshold_m = %q, want 120.0", got)
	}
	if len(a.Recipients) != 3 {
		t.Errorf("recipients = %v", a.Recipients)
	}
	if f.dispatcher.count() != 1 {
		t.Errorf("dispatched %d alerts, want 1", f.dispatcher.count())
	}
}

func TestIngestOnWaypointNeverAlerts(t *testing.T) {
	f := newFixture(t, stubScorer{}, state.Options{})
	plan := twoPointRoute("t1", "trip1")
	tight := 0.001
	plan.AllowableDeviationM = &tight
	if err := f.store.AddRoute(plan); err != nil {
		t.Fatal(err)
	}

	for i, p := range plan.Points {
		obs := observation("t1", "trip1", t0.Add(time.Duration(i)*10*time.Minute), p.Lat, p.Lng, 1)
		alerts, err := f.pipeline.Ingest(context.Background(), obs)
		if err != nil {
			t.Fatal(err)
		}
		if len(alerts) != 0 {
			t.Errorf("waypoint %d: unexpected alerts %v", i, alerts[0].Message)
		}
	}
}

func TestIngestDangerZone(t *testing.T) {
	zone := models.DangerZone{
		Name:      "Cliffs",
		RiskLevel: models.RiskHigh,
		Advisory:  "Stay behind the fence.",
		Geometry:  square(10, 10, 0.01),
	}
	f := newFixture(t, stubScorer{}, state.Options{}, zone)

	alerts, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0, 10, 10, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Kind != models.AlertDangerZone || a.Severity != models.RiskHigh {
		t.Errorf("alert = %s/%s, want danger_zone/high", a.Kind, a.Severity)
	}
	if a.Message != "Entered Cliffs. Stay behind the fence." {
		t.Errorf("message = %q", a.Message)
	}
	if a.Metadata["zone"] != "Cliffs" {
		t.Errorf("metadata = %v", a.Metadata)
	}

	st, ok := f.store.GeofenceStatus(models.EntityKey{TouristID: "t1", TripID: "trip1"})
	if !ok || !st.InsideZone {
		t.Fatalf("status = %+v, want inside", st)
	}
	if st.ZoneName == nil || *st.ZoneName != "Cliffs" || st.RiskLevel == nil || *st.RiskLevel != models.RiskHigh {
		t.Errorf("status zone fields = %+v", st)
	}
	if !st.LastUpdated.Equal(t0) {
		t.Errorf("status last_updated = %v, want observation time %v", st.LastUpdated, t0)
	}

	// leaving the zone clears the status
	if _, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0.Add(time.Minute), 20, 20, 0)); err != nil {
		t.Fatal(err)
	}
	st, _ = f.store.GeofenceStatus(models.EntityKey{TouristID: "t1", TripID: "trip1"})
	if st.InsideZone || st.ZoneName != nil {
		t.Errorf("status after leaving = %+v", st)
	}
}

func TestDisabledDetectorsKeepStateCurrent(t *testing.T) {
	zone := models.DangerZone{Name: "Cliffs", RiskLevel: models.RiskHigh, Geometry: square(10, 10, 0.01)}
	f := newFixture(t, stubScorer{}, state.Options{}, zone)
	key := models.EntityKey{TouristID: "t1", TripID: "trip1"}
	ctx := context.Background()

	inactivity, _ := f.pipeline.Detector(models.AlertLongInactivity)
	danger, _ := f.pipeline.Detector(models.AlertDangerZone)
	inactivity.SetEnabled(false)
	danger.SetEnabled(false)

	alerts, err := f.pipeline.Ingest(ctx, observation("t1", "trip1", t0, 10, 10, 0))
	if err != nil || len(alerts) != 0 {
		t.Fatalf("alerts = %v, err = %v", alerts, err)
	}
	st, ok := f.store.GeofenceStatus(key)
	if !ok || !st.InsideZone || !st.LastUpdated.Equal(t0) {
		t.Errorf("status while disabled = %+v, want inside at %v", st, t0)
	}

	moved := t0.Add(20 * time.Minute)
	if _, err := f.pipeline.Ingest(ctx, observation("t1", "trip1", moved, 20, 20, 1)); err != nil {
		t.Fatal(err)
	}
	if last, _ := f.store.LastMotion(key); !last.Equal(moved) {
		t.Errorf("last motion = %v, want %v", last, moved)
	}
	if st, _ := f.store.GeofenceStatus(key); st.InsideZone {
		t.Error("status should follow the entity out of the zone")
	}

	// 5 minutes after the last movement: re-enabling must not alert on t0
	inactivity.SetEnabled(true)
	alerts, err = f.pipeline.Ingest(ctx, observation("t1", "trip1", moved.Add(5*time.Minute), 20, 20, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 0 {
		t.Errorf("got %d alerts after re-enabling, want 0", len(alerts))
	}
}

func TestCooldownSuppressesAcrossKinds(t *testing.T) {
	zone := models.DangerZone{Name: "Cliffs", RiskLevel: models.RiskHigh, Geometry: square(10, 10, 0.01)}
	f := newFixture(t, stubScorer{score: -0.5}, state.Options{}, zone)
	// anomaly fires on both observations; keep the first one in the zone only
	d, _ := f.pipeline.Detector(models.AlertAnomaly)
	d.SetEnabled(false)

	first, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0, 10, 10, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || first[0].Kind != models.AlertDangerZone {
		t.Fatalf("first ingest = %v, want one danger_zone alert", first)
	}

	d.SetEnabled(true)
	before := testutil.ToFloat64(metrics.AlertsSuppressed.WithLabelValues("anomaly"))
	second, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0.Add(30*time.Second), 20, 20, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("second ingest accepted %d alerts, want 0", len(second))
	}
	if got := testutil.ToFloat64(metrics.AlertsSuppressed.WithLabelValues("anomaly")) - before; got != 1 {
		t.Errorf("suppressed delta = %v, want 1", got)
	}

	// after the cooldown the anomaly goes through
	third, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0.Add(5*time.Minute), 20, 20, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 1 || third[0].Kind != models.AlertAnomaly {
		t.Fatalf("third ingest = %v, want one anomaly alert", third)
	}
	if third[0].Severity != models.RiskLow || third[0].Message != "Unexpected motion pattern score=-0.50" {
		t.Errorf("anomaly alert = %s %q", third[0].Severity, third[0].Message)
	}
	if f.dispatcher.count() != 2 {
		t.Errorf("dispatched %d, want 2", f.dispatcher.count())
	}
}

func TestBurstYieldsOneAlert(t *testing.T) {
	zone := models.DangerZone{Name: "Cliffs", RiskLevel: models.RiskHigh, Geometry: square(1, 0, 0.01)}
	f := newFixture(t, stubScorer{score: -0.9}, state.Options{}, zone)
	if err := f.store.AddRoute(twoPointRoute("t1", "trip1")); err != nil {
		t.Fatal(err)
	}

	// inside the zone, ~111 km off route, anomalous
	alerts, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0, 1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Kind != models.AlertRouteDeviation {
		t.Errorf("first detector in order should win, got %s", alerts[0].Kind)
	}
}

func TestFirstObservationAtRestDoesNotAlert(t *testing.T) {
	f := newFixture(t, stubScorer{}, state.Options{})
	alerts, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0, 41.9, 12.5, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 0 {
		t.Errorf("unexpected alerts: %v", alerts[0].Message)
	}
}

func TestIngestRejectsInvalid(t *testing.T) {
	f := newFixture(t, stubScorer{}, state.Options{})
	bad := observation("t1", "trip1", t0, 91, 0, 0)

	alerts, err := f.pipeline.Ingest(context.Background(), bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *validation.RequestValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error %v is not a validation error", err)
	}
	if alerts != nil {
		t.Errorf("alerts = %v, want nil", alerts)
	}
	if h := f.store.GetHistory(bad.Key()); len(h) != 0 {
		t.Errorf("rejected observation was stored")
	}

	if _, err := f.pipeline.Ingest(context.Background(), nil); err == nil {
		t.Error("nil observation should be rejected")
	}
}

func TestIngestNormalizesTimestampToUTC(t *testing.T) {
	f := newFixture(t, stubScorer{}, state.Options{})
	loc := time.FixedZone("CET", 3600)
	obs := observation("t1", "trip1", t0.In(loc), 41.9, 12.5, 1)

	if _, err := f.pipeline.Ingest(context.Background(), obs); err != nil {
		t.Fatal(err)
	}
	h := f.store.GetHistory(obs.Key())
	if len(h) != 1 || h[0].Timestamp.Location() != time.UTC || !h[0].Timestamp.Equal(t0) {
		t.Errorf("stored timestamp = %v", h)
	}
	if obs.Timestamp.Location() != loc {
		t.Error("caller's observation was modified")
	}
}

func TestScorerErrorDoesNotFailIngest(t *testing.T) {
	f := newFixture(t, stubScorer{err: anomaly.ErrModelNotTrained}, state.Options{})
	before := testutil.ToFloat64(metrics.DetectorErrors.WithLabelValues("anomaly"))

	alerts, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0, 41.9, 12.5, 1))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("unexpected alerts")
	}
	if got := testutil.ToFloat64(metrics.DetectorErrors.WithLabelValues("anomaly")) - before; got != 1 {
		t.Errorf("detector error delta = %v, want 1", got)
	}
}

type failingJournal struct{}

func (failingJournal) Append(context.Context, *models.Observation) error {
	return errors.New("disk full")
}

func TestJournalFailureDoesNotFailIngest(t *testing.T) {
	f := newFixture(t, stubScorer{}, state.Options{Journal: failingJournal{}})
	obs := observation("t1", "trip1", t0, 41.9, 12.5, 1)
	if _, err := f.pipeline.Ingest(context.Background(), obs); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if h := f.store.GetHistory(obs.Key()); len(h) != 1 {
		t.Errorf("history len = %d, want 1", len(h))
	}
}

func TestDetectorsAndReconfigure(t *testing.T) {
	f := newFixture(t, stubScorer{}, state.Options{})

	infos := f.pipeline.Detectors()
	want := []models.AlertKind{models.AlertRouteDeviation, models.AlertLongInactivity, models.AlertDangerZone, models.AlertAnomaly}
	if len(infos) != len(want) {
		t.Fatalf("got %d detectors", len(infos))
	}
	for i, info := range infos {
		if info.Kind != want[i] || !info.Enabled {
			t.Errorf("detector %d = %+v", i, info)
		}
	}

	off := false
	info, err := f.pipeline.Reconfigure(models.AlertRouteDeviation, &off, []byte(`{"distance_mode":"segment"}`))
	if err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if info.Enabled {
		t.Error("route detector should be disabled")
	}
	if cfg := info.Config.(RouteDeviationConfig); cfg.DistanceMode != DistanceModeSegment || cfg.DefaultThresholdM != 120 {
		t.Errorf("config = %+v", cfg)
	}

	on := true
	if _, err := f.pipeline.Reconfigure(models.AlertRouteDeviation, &on, []byte(`{"distance_mode":"spline"}`)); err == nil {
		t.Error("invalid config should be rejected")
	}
	d, _ := f.pipeline.Detector(models.AlertRouteDeviation)
	if d.Enabled() {
		t.Error("a rejected reconfigure must not change the enabled flag")
	}

	if _, err := f.pipeline.Reconfigure("speeding", nil, nil); !errors.Is(err, ErrUnknownDetector) {
		t.Errorf("err = %v, want ErrUnknownDetector", err)
	}
}

func TestApplyDisabled(t *testing.T) {
	f := newFixture(t, stubScorer{score: -1}, state.Options{})
	if err := f.pipeline.ApplyDisabled([]string{" Anomaly "}); err != nil {
		t.Fatal(err)
	}
	alerts, err := f.pipeline.Ingest(context.Background(), observation("t1", "trip1", t0, 41.9, 12.5, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 0 {
		t.Errorf("disabled anomaly detector still fired")
	}
	if err := f.pipeline.ApplyDisabled([]string{"speeding"}); !errors.Is(err, ErrUnknownDetector) {
		t.Errorf("err = %v, want ErrUnknownDetector", err)
	}
}

func TestConcurrentIngest(t *testing.T) {
	f := newFixture(t, stubScorer{score: -1}, state.Options{})

	const workers = 8
	const perWorker = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				at := t0.Add(time.Duration(i) * time.Second)
				// every worker also hits one shared entity
				shared := observation("shared", "trip", at, 41.9, 12.5, 1)
				own := observation(fmt.Sprintf("t%d", w), "trip", at, 41.9, 12.5, 1)
				if _, err := f.pipeline.Ingest(context.Background(), shared); err != nil {
					t.Error(err)
					return
				}
				if _, err := f.pipeline.Ingest(context.Background(), own); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// every observation is anomalous but all fall inside one cooldown window
	if got := f.dispatcher.count(); got != workers+1 {
		t.Errorf("dispatched %d alerts, want %d (one per entity)", got, workers+1)
	}
	if h := f.store.GetHistory(models.EntityKey{TouristID: "shared", TripID: "trip"}); len(h) != workers*perWorker {
		t.Errorf("shared history = %d, want %d", len(h), workers*perWorker)
	}
}
