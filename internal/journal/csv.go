// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/tourguard/internal/models"
)

// CSVHeader is the column layout of the historical observations dataset.
var CSVHeader = []string{
	"tourist_id", "trip_id", "timestamp", "lat", "lng", "speed_mps", "accuracy_m", "battery_pct",
}

// ExportCSV writes every journaled observation to w in CSV form and returns
// the number of data rows written. A missing battery is an empty cell.
func (j *BadgerJournal) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return 0, err
	}

	rows := 0
	err := j.Iterate(ctx, func(obs *models.Observation) error {
		rows++
		return cw.Write(csvRecord(obs))
	})
	if err != nil {
		return rows, err
	}
	cw.Flush()
	return rows, cw.Error()
}

func csvRecord(obs *models.Observation) []string {
	battery := ""
	if obs.BatteryPct != nil {
		battery = formatFloat(*obs.BatteryPct)
	}
	return []string{
		obs.TouristID,
		obs.TripID,
		obs.Timestamp.UTC().Format(time.RFC3339Nano),
		formatFloat(obs.Lat),
		formatFloat(obs.Lng),
		formatFloat(obs.SpeedMPS),
		formatFloat(obs.AccuracyM),
		battery,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ReadCSVFile parses a historical observations CSV. A missing file yields no
// rows and no error.
func ReadCSVFile(path string) ([]models.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses observations in the CSVHeader layout. Columns are matched by
// header name, so extra or reordered columns are tolerated; rows that fail to
// parse are returned as an error naming the line.
func ReadCSV(r io.Reader) ([]models.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"speed_mps", "accuracy_m"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", required)
		}
	}

	var out []models.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		obs, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, obs)
	}
}

func parseRecord(rec []string, cols map[string]int) (models.Observation, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(name string) (float64, error) {
		v := field(name)
		if v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		return f, nil
	}

	var obs models.Observation
	obs.TouristID = field("tourist_id")
	obs.TripID = field("trip_id")
	if ts := field("timestamp"); ts != "" {
		t, err := parseTimestamp(ts)
		if err != nil {
			return obs, fmt.Errorf("column timestamp: %w", err)
		}
		obs.Timestamp = t
	}

	var err error
	if obs.Lat, err = num("lat"); err != nil {
		return obs, err
	}
	if obs.Lng, err = num("lng"); err != nil {
		return obs, err
	}
	if obs.SpeedMPS, err = num("speed_mps"); err != nil {
		return obs, err
	}
	if obs.AccuracyM, err = num("accuracy_m"); err != nil {
		return obs, err
	}
	if v := field("battery_pct"); v != "" {
		b, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return obs, fmt.Errorf("column battery_pct: %w", err)
		}
		if !math.IsNaN(b) {
			obs.BatteryPct = &b
		}
	}
	return obs, nil
}

// timestampLayouts are tried in order; zone-less values are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(v string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// CSVFileSource replays a historical observations CSV as if it were journal
// contents. A missing file replays nothing.
type CSVFileSource struct {
	Path string
}

func (s CSVFileSource) Iterate(ctx context.Context, fn func(*models.Observation) error) error {
	rows, err := ReadCSVFile(s.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.Path, err)
	}
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&rows[i]); err != nil {
			return err
		}
	}
	return nil
}
