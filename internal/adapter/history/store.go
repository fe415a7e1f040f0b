package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"docstream/internal/domain"
)

// Entry is one finalized transcript record for a conversational context.
type Entry struct {
	SessionID  string         `json:"session_id"`
	ContextID  string         `json:"context_id"`
	State      string         `json:"state"`
	Message    string         `json:"message"`
	Highlights []string       `json:"highlights,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Store persists finalized session results per conversational context using
// SQLite. Only terminal results are recorded; in-flight snapshots never
// touch disk.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			session_id  TEXT PRIMARY KEY,
			context_id  TEXT NOT NULL,
			state       TEXT NOT NULL,
			message     TEXT NOT NULL DEFAULT '',
			highlights  TEXT NOT NULL DEFAULT '[]',
			metadata    TEXT NOT NULL DEFAULT '{}',
			finished_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transcripts_context
			ON transcripts (context_id, finished_at)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a terminal session result. Cancelled and failed sessions are
// recorded too: the UI shows truncated messages and the record keeps the
// conversation replayable.
func (s *Store) Record(ctx context.Context, contextID, sessionID string, res domain.Result) error {
	hlJSON, err := json.Marshal(res.Highlights)
	if err != nil {
		return fmt.Errorf("%w: marshal highlights: %v", domain.ErrHistoryStore, err)
	}
	metaJSON := []byte("{}")
	if res.Envelope.Present {
		metaJSON, err = json.Marshal(res.Envelope.Metadata)
		if err != nil {
			return fmt.Errorf("%w: marshal metadata: %v", domain.ErrHistoryStore, err)
		}
	}
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transcripts
			(session_id, context_id, state, message, highlights, metadata, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, contextID, string(res.State), res.Message,
		string(hlJSON), string(metaJSON), finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: insert transcript: %v", domain.ErrHistoryStore, err)
	}
	return nil
}

// List returns a context's transcripts in finish order, oldest first.
func (s *Store) List(ctx context.Context, contextID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, context_id, state, message, highlights, metadata, finished_at
		 FROM transcripts WHERE context_id = ? ORDER BY finished_at`,
		contextID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query transcripts: %v", domain.ErrHistoryStore, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var hlJSON, metaJSON, finished string
		if err := rows.Scan(&e.SessionID, &e.ContextID, &e.State, &e.Message, &hlJSON, &metaJSON, &finished); err != nil {
			return nil, fmt.Errorf("%w: scan transcript: %v", domain.ErrHistoryStore, err)
		}
		if err := json.Unmarshal([]byte(hlJSON), &e.Highlights); err != nil {
			return nil, fmt.Errorf("%w: decode highlights: %v", domain.ErrHistoryStore, err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decode metadata: %v", domain.ErrHistoryStore, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, finished); err == nil {
			e.FinishedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes transcripts finished before the cutoff. Returns the number
// of rows removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM transcripts WHERE finished_at < ?",
		before.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: prune transcripts: %v", domain.ErrHistoryStore, err)
	}
	return res.RowsAffected()
}
