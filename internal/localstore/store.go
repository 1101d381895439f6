// Package localstore is the durable client-side storage used while no
// server attempt exists: one single-slot session snapshot for the
// in-progress guest attempt, plus looser guest answer/bookmark capture
// used to gate the registration prompt.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // driver: sqlite
)

// AnswerValue is one stored response: free text or a selected option,
// depending on question type.
type AnswerValue struct {
	AnswerText     string `json:"answer_text,omitempty"`
	SelectedOption string `json:"selected_option,omitempty"`
}

// SessionSnapshot is the serializable projection of an in-progress
// session. The store keeps at most one: starting a second paper as a
// guest replaces the first.
type SessionSnapshot struct {
	PaperID       string                 `json:"paper_id"`
	CurrentIndex  int                    `json:"current_index"`
	TotalSeconds  int                    `json:"total_seconds"`
	IsPaused      bool                   `json:"is_paused"`
	PendingSync   bool                   `json:"pending_sync"`
	Answers       map[string]AnswerValue `json:"answers"`
	QuestionTimes map[string]int         `json:"question_times"`
	SavedAt       time.Time              `json:"saved_at"`
}

// Store is a SQLite-backed local store. It survives restarts; loss of
// the file is loss of unsynced guest progress, nothing more.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

const schema = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS session_snapshot (
  slot INTEGER PRIMARY KEY CHECK (slot = 1),
  paper_id TEXT NOT NULL,
  pending_sync INTEGER NOT NULL DEFAULT 0,
  payload TEXT NOT NULL,
  saved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS guest_answers (
  question_id TEXT PRIMARY KEY,
  answer_text TEXT NOT NULL DEFAULT '',
  selected_option TEXT NOT NULL DEFAULT '',
  answered_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS guest_bookmarks (
  resource_id TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL
);
`

// Open opens (creating if needed) the store at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping local store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "localstore").Logger()}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession overwrites the single snapshot slot.
func (s *Store) SaveSession(ctx context.Context, snap *SessionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_snapshot (slot, paper_id, pending_sync, payload, saved_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT (slot) DO UPDATE
		 SET paper_id = excluded.paper_id,
		     pending_sync = excluded.pending_sync,
		     payload = excluded.payload,
		     saved_at = excluded.saved_at`,
		snap.PaperID, boolToInt(snap.PendingSync), string(payload), snap.SavedAt.Unix())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSession reads the snapshot slot. Returns (nil, nil) when empty.
func (s *Store) LoadSession(ctx context.Context) (*SessionSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM session_snapshot WHERE slot = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap := &SessionSnapshot{}
	if err := json.Unmarshal([]byte(payload), snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// TakeSession reads and deletes the snapshot in one transaction, so a
// reconciliation can never be triggered twice for the same snapshot.
// Returns (nil, nil) when empty.
func (s *Store) TakeSession(ctx context.Context) (*SessionSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx,
		`SELECT payload FROM session_snapshot WHERE slot = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_snapshot WHERE slot = 1`); err != nil {
		return nil, fmt.Errorf("delete snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	snap := &SessionSnapshot{}
	if err := json.Unmarshal([]byte(payload), snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// ClearSession deletes the snapshot slot if present.
func (s *Store) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshot WHERE slot = 1`)
	return err
}

// SaveGuestAnswer records that an unauthenticated visitor answered a
// question. Looser than the snapshot: paper-agnostic, last write wins.
func (s *Store) SaveGuestAnswer(ctx context.Context, questionID string, value AnswerValue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guest_answers (question_id, answer_text, selected_option, answered_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (question_id) DO UPDATE
		 SET answer_text = excluded.answer_text,
		     selected_option = excluded.selected_option,
		     answered_at = excluded.answered_at`,
		questionID, value.AnswerText, value.SelectedOption, time.Now().Unix())
	return err
}

// SaveGuestBookmark records a bookmarked resource for a guest.
func (s *Store) SaveGuestBookmark(ctx context.Context, resourceID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guest_bookmarks (resource_id, created_at) VALUES (?, ?)
		 ON CONFLICT (resource_id) DO NOTHING`,
		resourceID, time.Now().Unix())
	return err
}

// HasGuestActivity reports whether the visitor has done anything worth
// a registration prompt.
func (s *Store) HasGuestActivity(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM guest_answers) + (SELECT COUNT(*) FROM guest_bookmarks)`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearGuestData wipes the guest answer and bookmark stores. Called
// after a successful reconciliation.
func (s *Store) ClearGuestData(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM guest_answers`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM guest_bookmarks`)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
