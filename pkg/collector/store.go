// Package collector receives analytics events over HTTP and stores them in
// SQLite or PostgreSQL.
package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	_ "github.com/lib/pq"   // postgres driver
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// Dialect selects placeholder style and schema.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Count is the number of events of one type for one tour.
type Count struct {
	TourID string           `json:"tourId"`
	Type   domain.EventType `json:"type"`
	Count  int64            `json:"count"`
}

// Store persists analytics events.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ ports.AnalyticsSink = (*Store)(nil)

// Open connects to the database and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d := Dialect(driver)
	if d != SQLite && d != Postgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if d == SQLite && !strings.Contains(dsn, "?") {
		// WAL + busy timeout to avoid "database is locked"
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d == Postgres {
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	s := NewStore(db, d)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate creates the events table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY"
	if s.dialect == Postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS narrate_events(
		  id         ` + id + `,
		  type       TEXT    NOT NULL,
		  tour_id    TEXT    NOT NULL DEFAULT '',
		  step_id    TEXT    NOT NULL DEFAULT '',
		  session_id TEXT    NOT NULL,
		  metadata   TEXT    NOT NULL DEFAULT '{}',
		  ts_ms      BIGINT  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_narrate_events_tour ON narrate_events(tour_id, type)`,
		`CREATE INDEX IF NOT EXISTS idx_narrate_events_session ON narrate_events(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Validate rejects events the collector cannot store.
func Validate(ev domain.AnalyticsEvent) error {
	var errs []error
	if ev.Type == "" {
		errs = append(errs, errors.New("type cannot be empty"))
	}
	if ev.SessionID == "" {
		errs = append(errs, errors.New("sessionId cannot be empty"))
	}
	if ev.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	return errors.Join(errs...)
}

// Emit implements ports.AnalyticsSink.
func (s *Store) Emit(ctx context.Context, ev domain.AnalyticsEvent) error {
	return s.Insert(ctx, ev)
}

// Insert stores events in one transaction.
func (s *Store) Insert(ctx context.Context, events ...domain.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO narrate_events(type, tour_id, step_id, session_id, metadata, ts_ms) VALUES(?,?,?,?,?,?)`))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if err := Validate(ev); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("invalid event: %w", err)
		}
		meta := []byte("{}")
		if len(ev.Metadata) > 0 {
			if meta, err = json.Marshal(ev.Metadata); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx, string(ev.Type), ev.TourID, ev.StepID, ev.SessionID, string(meta), ev.Timestamp.UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Counts aggregates events by tour and type. An empty tourID covers all tours.
func (s *Store) Counts(ctx context.Context, tourID string) ([]Count, error) {
	q := `SELECT tour_id, type, COUNT(*) FROM narrate_events`
	var args []any
	if tourID != "" {
		q += ` WHERE tour_id = ?`
		args = append(args, tourID)
	}
	q += ` GROUP BY tour_id, type ORDER BY tour_id, type`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query counts: %w", err)
	}
	defer rows.Close()

	counts := []Count{}
	for rows.Next() {
		var c Count
		var typ string
		if err := rows.Scan(&c.TourID, &typ, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		c.Type = domain.EventType(typ)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Sessions returns the events of one session in order.
func (s *Store) Sessions(ctx context.Context, sessionID string) ([]domain.AnalyticsEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT type, tour_id, step_id, session_id, metadata, ts_ms FROM narrate_events WHERE session_id = ? ORDER BY ts_ms, id`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	events := []domain.AnalyticsEvent{}
	for rows.Next() {
		var (
			ev   domain.AnalyticsEvent
			typ  string
			meta string
			ts   int64
		)
		if err := rows.Scan(&typ, &ev.TourID, &ev.StepID, &ev.SessionID, &meta, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = domain.EventType(typ)
		ev.Timestamp = time.UnixMilli(ts).UTC()
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $N for postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
