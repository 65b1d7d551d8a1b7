// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package geofence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/tomtom215/tourguard/internal/models"
)

// Coordinates are [lng, lat].
const testZones = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"name": "Old Port", "risk_level": "low", "advisory": "Pickpockets at night."},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Cliffs", "risk_level": "high", "advisory": "Unstable ground."},
      "geometry": {"type": "Polygon", "coordinates": [[[0.5,0.5],[1.5,0.5],[1.5,1.5],[0.5,1.5],[0.5,0.5]]]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Ring Road", "risk_level": "HIGH"},
      "geometry": {"type": "Polygon", "coordinates": [
        [[10,10],[14,10],[14,14],[10,14],[10,10]],
        [[11,11],[13,11],[13,13],[11,13],[11,11]]
      ]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Viewpoint"},
      "geometry": {"type": "Point", "coordinates": [5,5]}
    },
    {
      "type": "Feature",
      "properties": null,
      "geometry": {"type": "MultiPolygon", "coordinates": [
        [[[20,20],[21,20],[21,21],[20,21],[20,20]]],
        [[[30,30],[31,30],[31,31],[30,31],[30,30]]]
      ]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Market", "risk_level": "extreme"},
      "geometry": {"type": "Polygon", "coordinates": [[[40,40],[41,40],[41,41],[40,41],[40,40]]]}
    }
  ]
}`

func loadTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.geojson")
	if err := os.WriteFile(path, []byte(testZones), 0o600); err != nil {
		t.Fatal(err)
	}
	ix := NewIndex()
	n, err := ix.Load(context.Background(), FileSource{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 5 {
		t.Fatalf("loaded %d zones, want 5", n)
	}
	return ix
}

func TestParseFeatureCollectionDefaults(t *testing.T) {
	zones, err := ParseFeatureCollection([]byte(testZones))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		idx      int
		name     string
		risk     models.RiskLevel
		advisory string
	}{
		{0, "Old Port", models.RiskLow, "Pickpockets at night."},
		{2, "Ring Road", models.RiskHigh, ""},
		{3, DefaultZoneName, models.RiskMedium, ""},
		{4, "Market", models.RiskMedium, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := zones[tt.idx]
			if z.Name != tt.name || z.RiskLevel != tt.risk || z.Advisory != tt.advisory {
				t.Errorf("zone %d = {%q %q %q}, want {%q %q %q}",
					tt.idx, z.Name, z.RiskLevel, z.Advisory, tt.name, tt.risk, tt.advisory)
			}
		})
	}
}

func TestParseFeatureCollectionBlankName(t *testing.T) {
	const fc = `{"type": "FeatureCollection", "features": [{
	  "type": "Feature",
	  "properties": {"name": "", "risk_level": "high", "advisory": 7},
	  "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
	}]}`
	zones, err := ParseFeatureCollection([]byte(fc))
	if err != nil {
		t.Fatal(err)
	}
	if len(zones) != 1 {
		t.Fatalf("got %d zones, want 1", len(zones))
	}
	if zones[0].Name != "" {
		t.Errorf("Name = %q, want the blank name kept", zones[0].Name)
	}
	if zones[0].Advisory != "" {
		t.Errorf("non-string advisory = %q, want default", zones[0].Advisory)
	}
}

func TestParseFeatureCollectionInvalid(t *testing.T) {
	if _, err := ParseFeatureCollection([]byte(`{"type":`)); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestLookup(t *testing.T) {
	ix := loadTestIndex(t)

	tests := []struct {
		name     string
		lat, lng float64
		want     string
	}{
		{"interior", 0.25, 0.25, "Old Port"},
		{"overlap resolved by load order", 0.75, 0.75, "Old Port"},
		{"second zone only", 1.25, 1.25, "Cliffs"},
		{"outside everything", -5, -5, ""},
		{"on edge", 0.5, 0, ""},
		{"on vertex", 0, 0, ""},
		{"inside hole", 12, 12, ""},
		{"on hole edge", 12, 11, ""},
		{"ring interior", 10.5, 10.5, "Ring Road"},
		{"multipolygon second part", 30.5, 30.5, DefaultZoneName},
		{"point feature ignored", 5, 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := ix.Lookup(tt.lat, tt.lng)
			if tt.want == "" {
				if ok {
					t.Errorf("Lookup(%v, %v) = %q, want no match", tt.lat, tt.lng, m.Name)
				}
				return
			}
			if !ok {
				t.Fatalf("Lookup(%v, %v) = no match, want %q", tt.lat, tt.lng, tt.want)
			}
			if m.Name != tt.want {
				t.Errorf("Lookup(%v, %v) = %q, want %q", tt.lat, tt.lng, m.Name, tt.want)
			}
		})
	}
}

func TestLookupDeterministic(t *testing.T) {
	ix := loadTestIndex(t)
	first, _ := ix.Lookup(0.75, 0.75)
	for i := 0; i < 100; i++ {
		m, ok := ix.Lookup(0.75, 0.75)
		if !ok || m.Position != first.Position {
			t.Fatalf("lookup %d returned a different zone", i)
		}
	}
}

func TestLoadMissingFileDegrades(t *testing.T) {
	ix := loadTestIndex(t)

	_, err := ix.Load(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "nope.geojson")})
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}
	if ix.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ix.Len())
	}
	if !ix.Degraded() {
		t.Error("index should be degraded")
	}
	if _, ok := ix.Lookup(0.25, 0.25); ok {
		t.Error("degraded index should match nothing")
	}
}

func TestReloadSwapsZones(t *testing.T) {
	ix := loadTestIndex(t)
	zones, _ := ParseFeatureCollection([]byte(testZones))

	if _, err := ix.Load(context.Background(), StaticSource(zones[1:2])); err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 || ix.Degraded() {
		t.Fatalf("Len=%d Degraded=%v", ix.Len(), ix.Degraded())
	}
	m, ok := ix.Lookup(0.75, 0.75)
	if !ok || m.Name != "Cliffs" {
		t.Errorf("after reload got %+v", m)
	}
	if _, ok := ix.LoadedAt(); !ok {
		t.Error("LoadedAt should be set")
	}
}

func TestHTTPSource(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/zones":
			// first attempt fails to exercise retry
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			_, _ = w.Write([]byte(testZones))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Run("retries then loads", func(t *testing.T) {
		src := NewHTTPSource(srv.URL+"/zones", 0, 2)
		zones, err := src.Zones(context.Background())
		if err != nil {
			t.Fatalf("Zones: %v", err)
		}
		if len(zones) != 5 {
			t.Errorf("got %d zones", len(zones))
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("not found", func(t *testing.T) {
		src := NewHTTPSource(srv.URL+"/missing", 0, 0)
		if _, err := src.Zones(context.Background()); !errors.Is(err, ErrSourceMissing) {
			t.Errorf("err = %v, want ErrSourceMissing", err)
		}
	})
}
