package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"genesis-ai/internal/domain"
)

// SQLiteHistoryStore implements domain.HistoryStore using SQLite.
//
// Messages are append-only. Each message gets a per-session monotonic seq
// assigned inside the append transaction, so ordering never depends on
// wall-clock timestamps.
type SQLiteHistoryStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteHistoryStore opens (or creates) a SQLite database at dbPath and
// runs the schema migration. Parent directories are created as needed.
func NewSQLiteHistoryStore(dbPath string, logger *slog.Logger) (*SQLiteHistoryStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteHistoryStore{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			system_prompt TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq        INTEGER NOT NULL,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (session_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session_seq
			ON messages (session_id, seq DESC);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteHistoryStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteHistoryStore) GetOrCreateSession(ctx context.Context, sessionID, defaultPrompt string) (*domain.Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, system_prompt, created_at, updated_at) VALUES (?, ?, ?, ?)",
		sessionID, defaultPrompt, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		// Lost a create race; the winner's row is authoritative.
		if sess, getErr := s.getSession(ctx, sessionID); getErr == nil {
			return sess, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &domain.Session{
		ID:           sessionID,
		SystemPrompt: defaultPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *SQLiteHistoryStore) getSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, system_prompt, created_at, updated_at FROM sessions WHERE id = ?", sessionID,
	)
	var sess domain.Session
	var createdStr, updatedStr string
	if err := row.Scan(&sess.ID, &sess.SystemPrompt, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &sess, nil
}

func (s *SQLiteHistoryStore) UpdateSystemPrompt(ctx context.Context, sessionID, prompt string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET system_prompt = ?, updated_at = ? WHERE id = ?",
		prompt, now, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update system prompt: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteHistoryStore) ReadRecent(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, payload FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?",
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var seq int64
		var payload string
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg domain.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			s.logger.Warn("skipping undecodable message row",
				"session_id", sessionID, "seq", seq, "error", err)
			continue
		}
		msg.Seq = seq
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteHistoryStore) AppendBatch(ctx context.Context, sessionID string, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return domain.ErrSessionNotFound
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("read max seq: %w", err)
	}

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (id, session_id, seq, payload, created_at) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		seq++
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ulid.Make().String(), sessionID, seq, string(payload),
			now.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?",
		now.Format(time.RFC3339Nano), sessionID,
	); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *SQLiteHistoryStore) ClearSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteHistoryStore) ListSessions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM sessions ORDER BY updated_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteStale removes sessions (and their messages, via cascade) not updated
// within maxAge. Used by the scheduled reaper.
func (s *SQLiteHistoryStore) DeleteStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("reaped stale sessions", "count", n, "max_age", maxAge)
	}
	return n, nil
}
