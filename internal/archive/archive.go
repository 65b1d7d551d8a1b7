// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package archive writes accepted alerts to a SQL table for offline analysis.
// DuckDB (embedded file) is the default backend; PostgreSQL is supported
// through lib/pq. Both accept the same $n-placeholder SQL.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	_ "github.com/lib/pq"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/models"
)

// Supported drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS alerts (
	id          VARCHAR PRIMARY KEY,
	tourist_id  VARCHAR NOT NULL,
	trip_id     VARCHAR NOT NULL,
	ts          TIMESTAMP NOT NULL,
	alert_type  VARCHAR NOT NULL,
	severity    VARCHAR NOT NULL,
	message     VARCHAR NOT NULL,
	metadata    VARCHAR NOT NULL,
	recipients  VARCHAR NOT NULL
)`

const insertAlert = `INSERT INTO alerts
	(id, tourist_id, trip_id, ts, alert_type, severity, message, metadata, recipients)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

const selectByTrip = `SELECT id, tourist_id, trip_id, ts, alert_type, severity, message, metadata, recipients
	FROM alerts WHERE trip_id = $1 ORDER BY ts ASC, id ASC`

const countByKind = `SELECT alert_type, COUNT(*) FROM alerts GROUP BY alert_type`

// Config selects the archive backend.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// SQLArchive is an alert notifier backed by database/sql.
type SQLArchive struct {
	db     *sql.DB
	driver string
}

// Open connects to the archive database and creates the alerts table.
func Open(ctx context.Context, cfg Config) (*SQLArchive, error) {
	switch cfg.Driver {
	case DriverDuckDB:
		if dir := filepath.Dir(cfg.DSN); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s open: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s ping: %w", cfg.Driver, err)
	}

	a := New(db, cfg.Driver)
	if err := a.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Info().Str("driver", cfg.Driver).Msg("alert archive ready")
	return a, nil
}

// New wraps an open database. The caller is expected to run Migrate.
func New(db *sql.DB, driver string) *SQLArchive {
	return &SQLArchive{db: db, driver: driver}
}

// Migrate creates the alerts table if it does not exist.
func (a *SQLArchive) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create alerts table: %w", err)
	}
	return nil
}

func (a *SQLArchive) Name() string  { return "archive-" + a.driver }
func (a *SQLArchive) Enabled() bool { return true }

// Send inserts the alert. Re-sending the same alert id is a no-op.
func (a *SQLArchive) Send(ctx context.Context, alert *models.Alert) error {
	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	recipients, err := json.Marshal(alert.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}
	_, err = a.db.ExecContext(ctx, insertAlert,
		alert.ID, alert.TouristID, alert.TripID, alert.Timestamp.UTC(),
		string(alert.Kind), string(alert.Severity), alert.Message,
		string(metadata), string(recipients),
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// ByTrip returns the archived alerts of a trip, oldest first.
func (a *SQLArchive) ByTrip(ctx context.Context, tripID string) ([]*models.Alert, error) {
	rows, err := a.db.QueryContext(ctx, selectByTrip, tripID)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*models.Alert, 0)
	for rows.Next() {
		var (
			al                   models.Alert
			ts                   time.Time
			kind, severity       string
			metadata, recipients string
		)
		if err := rows.Scan(&al.ID, &al.TouristID, &al.TripID, &ts, &kind, &severity, &al.Message, &metadata, &recipients); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		al.Timestamp = ts.UTC()
		al.Kind = models.AlertKind(kind)
		al.Severity = models.RiskLevel(severity)
		if err := json.Unmarshal([]byte(metadata), &al.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", al.ID, err)
		}
		if err := json.Unmarshal([]byte(recipients), &al.Recipients); err != nil {
			return nil, fmt.Errorf("decode recipients of %s: %w", al.ID, err)
		}
		out = append(out, &al)
	}
	return out, rows.Err()
}

// CountByKind returns the number of archived alerts per alert type.
func (a *SQLArchive) CountByKind(ctx context.Context) (map[models.AlertKind]int64, error) {
	rows, err := a.db.QueryContext(ctx, countByKind)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[models.AlertKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[models.AlertKind(kind)] = n
	}
	return out, rows.Err()
}

// Ping checks the connection for the health endpoint.
func (a *SQLArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *SQLArchive) Close() error {
	return a.db.Close()
}
