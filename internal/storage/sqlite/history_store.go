package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/ambient-data/context.engine/internal/inference"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// HypothesisRecord is one persisted hypothesis row.
type HypothesisRecord struct {
	ID              int64
	WindowID        string
	Environment     string
	Activity        string
	Confidence      float64
	SuggestedMode   string
	DetectedObjects []string
	DetectedScene   string
	TSUnixNanos     int64
}

// SwitchRecord is one persisted mode-switch row.
type SwitchRecord struct {
	ID          int64
	Mode        string
	TSUnixNanos int64
}

// HistoryStore persists hypotheses and confirmed mode switches. It
// implements inference.HistorySink.
type HistoryStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path and
// applies pending migrations.
func Open(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db}, nil
}

// migrateUp applies all pending embedded migrations.
func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	// Note: m is not closed here because that would close the underlying
	// DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// RecordHypothesis persists one window's hypothesis.
func (s *HistoryStore) RecordHypothesis(h inference.ContextHypothesis) error {
	_, err := s.db.Exec(`
		INSERT INTO context_hypotheses (
			window_id, environment, activity, confidence,
			suggested_mode, detected_objects, detected_scene, ts_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.WindowID,
		h.Environment,
		h.Activity,
		h.Confidence,
		string(h.SuggestedMode),
		strings.Join(h.DetectedObjects, ","),
		h.DetectedScene,
		h.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert hypothesis: %w", err)
	}
	return nil
}

// RecordModeSwitch persists one confirmed mode switch.
func (s *HistoryStore) RecordModeSwitch(mode inference.Mode, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO mode_switches (mode, ts_unix_nanos) VALUES (?, ?)`,
		string(mode), at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert mode switch: %w", err)
	}
	return nil
}

// RecentHypotheses returns the most recent hypotheses, newest first.
func (s *HistoryStore) RecentHypotheses(limit int) ([]HypothesisRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, window_id, environment, activity, confidence,
		       suggested_mode, detected_objects, detected_scene, ts_unix_nanos
		FROM context_hypotheses
		ORDER BY ts_unix_nanos DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query hypotheses: %w", err)
	}
	defer rows.Close()

	var records []HypothesisRecord
	for rows.Next() {
		var rec HypothesisRecord
		var objects string
		if err := rows.Scan(&rec.ID, &rec.WindowID, &rec.Environment, &rec.Activity,
			&rec.Confidence, &rec.SuggestedMode, &objects, &rec.DetectedScene,
			&rec.TSUnixNanos); err != nil {
			return nil, fmt.Errorf("scan hypothesis: %w", err)
		}
		if objects != "" {
			rec.DetectedObjects = strings.Split(objects, ",")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hypotheses: %w", err)
	}

	return records, nil
}

// RecentSwitches returns the most recent confirmed switches, newest first.
func (s *HistoryStore) RecentSwitches(limit int) ([]SwitchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, mode, ts_unix_nanos
		FROM mode_switches
		ORDER BY ts_unix_nanos DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query mode switches: %w", err)
	}
	defer rows.Close()

	var records []SwitchRecord
	for rows.Next() {
		var rec SwitchRecord
		if err := rows.Scan(&rec.ID, &rec.Mode, &rec.TSUnixNanos); err != nil {
			return nil, fmt.Errorf("scan mode switch: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mode switches: %w", err)
	}

	return records, nil
}

// Compile-time check: HistoryStore satisfies the engine's sink boundary.
var _ inference.HistorySink = (*HistoryStore)(nil)
