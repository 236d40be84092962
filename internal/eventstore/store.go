// Package eventstore persists the playback timeline: one row per stream
// session plus every state transition that occurred during it. Retention is
// configurable; ephemeral mode keeps nothing and never opens a database.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/visagelabs/visage-core/internal/config"
)

// Transition is one recorded playback state change.
type Transition struct {
	ID        int64
	StreamID  string
	FromState int
	ToState   int
	Reason    string
	CreatedAt time.Time
}

// Store wraps a SQLite-backed playback timeline store.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS streams (
    stream_id TEXT PRIMARY KEY,
    engine TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    stream_id TEXT NOT NULL,
    from_state INTEGER NOT NULL,
    to_state INTEGER NOT NULL,
    reason TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(stream_id) REFERENCES streams(stream_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_transitions_stream_created ON transitions(stream_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendStream ensures a stream session row exists.
func (s *Store) AppendStream(ctx context.Context, streamID, engine string) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streams(stream_id, engine, created_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(stream_id) DO UPDATE SET engine=excluded.engine`,
		streamID, engine, s.clock().UTC())
	return err
}

// AppendTransition writes a playback state change into the store.
func (s *Store) AppendTransition(ctx context.Context, tr Transition) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions(stream_id, from_state, to_state, reason, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		tr.StreamID, tr.FromState, tr.ToState, tr.Reason, tr.CreatedAt)
	return err
}

// ListTransitions retrieves up to limit transitions for a stream ordered
// ascending by time.
func (s *Store) ListTransitions(ctx context.Context, streamID string, limit int) ([]Transition, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stream_id, from_state, to_state, reason, created_at
		 FROM transitions WHERE stream_id = ? ORDER BY created_at ASC LIMIT ?`, streamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var tr Transition
		var created string
		if err := rows.Scan(&tr.ID, &tr.StreamID, &tr.FromState, &tr.ToState, &tr.Reason, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			tr.CreatedAt = ts
		}
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM transitions WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM streams WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxStreams > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM streams WHERE stream_id IN (
			SELECT stream_id FROM streams ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxStreams)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Ensure supplies a no-op store when persistence disabled.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
