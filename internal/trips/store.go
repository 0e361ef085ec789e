// Package trips persists courier package state and tracking history.
package trips

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c-pro/geche"
	_ "modernc.org/sqlite"

	"hitch/internal/models"
)

var ErrUnknownPackage = errors.New("unknown tracking number")

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	tracking_number TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS package_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tracking_number TEXT NOT NULL REFERENCES packages(tracking_number),
	status TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_package_events_tracking
	ON package_events(tracking_number, id);
`

// Store keeps package tracking state in sqlite with a short-lived read
// cache in front of status lookups.
type Store struct {
	db    *sql.DB
	cache geche.Geche[string, models.PackageStatusPayload]
}

func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:    db,
		cache: geche.NewMapTTLCache[string, models.PackageStatusPayload](ctx, 30*time.Second, time.Minute),
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordEvent appends a scan to the package history and moves the package
// to the scanned status, creating the package on first scan.
func (s *Store) RecordEvent(ctx context.Context, event models.PackageEvent) error {
	if event.TrackingNumber == "" {
		return errors.New("event missing tracking number")
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO packages(tracking_number, status, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(tracking_number) DO UPDATE SET
	status=excluded.status,
	updated_at=excluded.updated_at
`, event.TrackingNumber, event.Status, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert package: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO package_events(tracking_number, status, location, note, created_at)
VALUES (?, ?, ?, ?, ?)
`, event.TrackingNumber, event.Status, event.Location, event.Note, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	_ = s.cache.Del(event.TrackingNumber)
	return nil
}

// History returns the scan history of a package, oldest first.
func (s *Store) History(ctx context.Context, trackingNumber string) ([]models.PackageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT tracking_number, status, location, note, created_at
FROM package_events
WHERE tracking_number = ?
ORDER BY id
`, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.PackageEvent
	for rows.Next() {
		var e models.PackageEvent
		if err := rows.Scan(&e.TrackingNumber, &e.Status, &e.Location, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Latest returns the package's current status with its history. Results
// are cached briefly: tracking screens poll this.
func (s *Store) Latest(ctx context.Context, trackingNumber string) (models.PackageStatusPayload, error) {
	if cached, err := s.cache.Get(trackingNumber); err == nil {
		return cached, nil
	}

	var status string
	err := s.db.QueryRowContext(ctx, `
SELECT status FROM packages WHERE tracking_number = ?
`, trackingNumber).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PackageStatusPayload{}, ErrUnknownPackage
	}
	if err != nil {
		return models.PackageStatusPayload{}, fmt.Errorf("query package: %w", err)
	}

	events, err := s.History(ctx, trackingNumber)
	if err != nil {
		return models.PackageStatusPayload{}, err
	}

	payload := models.PackageStatusPayload{
		TrackingNumber: trackingNumber,
		Status:         status,
		Events:         events,
	}
	s.cache.Set(trackingNumber, payload)
	return payload, nil
}
