// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package geofence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/models"
)

// Zone property defaults applied when a feature omits them.
const (
	DefaultZoneName  = "Danger Zone"
	DefaultRiskLevel = models.RiskMedium
)

// ErrSourceMissing is returned when the zone file or URL does not exist.
var ErrSourceMissing = errors.New("danger zone source not found")

// ZoneSource produces the danger zones to load.
type ZoneSource interface {
	Zones(ctx context.Context) ([]models.DangerZone, error)
	String() string
}

// FileSource reads a GeoJSON FeatureCollection from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Zones(_ context.Context) ([]models.DangerZone, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, s.Path)
		}
		return nil, fmt.Errorf("read danger zones: %w", err)
	}
	return ParseFeatureCollection(data)
}

func (s FileSource) String() string { return "file:" + s.Path }

// HTTPSource fetches a GeoJSON FeatureCollection over HTTP. Transport errors
// and 5xx responses are retried.
type HTTPSource struct {
	url    string
	client *resty.Client
}

// NewHTTPSource creates a source for url.
func NewHTTPSource(url string, timeout time.Duration, retries int) *HTTPSource {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/geo+json, application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		})
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) Zones(ctx context.Context) ([]models.DangerZone, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch danger zones: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, s.url)
	case resp.IsError():
		return nil, fmt.Errorf("fetch danger zones: unexpected status %d", resp.StatusCode())
	}
	return ParseFeatureCollection(resp.Body())
}

func (s *HTTPSource) String() string { return "http:" + s.url }

// StaticSource serves a fixed zone list.
type StaticSource []models.DangerZone

func (s StaticSource) Zones(context.Context) ([]models.DangerZone, error) {
	out := make([]models.DangerZone, len(s))
	copy(out, s)
	return out, nil
}

func (s StaticSource) String() string { return "static" }

// ParseFeatureCollection converts a GeoJSON FeatureCollection into danger
// zones, preserving feature order. Features without a Polygon or
// MultiPolygon geometry are skipped.
func ParseFeatureCollection(data []byte) ([]models.DangerZone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse danger zones: %w", err)
	}

	logger := logging.WithComponent("geofence")
	zones := make([]models.DangerZone, 0, len(fc.Features))
	for i, f := range fc.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			logger.Warn().Int("feature", i).Str("geometry", geometryType(f.Geometry)).
				Msg("skipping non-polygon feature")
			continue
		}

		name := stringProp(f.Properties, "name", DefaultZoneName)
		risk, err := models.ParseRiskLevel(stringProp(f.Properties, "risk_level", string(DefaultRiskLevel)))
		if err != nil {
			logger.Warn().Int("feature", i).Str("zone", name).Err(err).Msg("unknown risk level, using medium")
			risk = DefaultRiskLevel
		}

		zones = append(zones, models.DangerZone{
			Name:      name,
			RiskLevel: risk,
			Advisory:  stringProp(f.Properties, "advisory", ""),
			Geometry:  mp,
		})
	}
	return zones, nil
}

// stringProp reads a string property. Missing, null, or non-string values
// take def; a present string, even blank, is kept.
func stringProp(props geojson.Properties, key, def string) string {
	v, ok := props[key].(string)
	if !ok {
		return def
	}
	return v
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "none"
	}
	return g.GeoJSONType()
}
