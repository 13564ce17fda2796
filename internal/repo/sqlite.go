// ABOUTME: SQLite implementation of the Repository interface using modernc.org/sqlite.
// ABOUTME: Mirrors the backend's relational shape so the client works fully offline.

package repo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/teyvat-labs/lorechat/internal/session"

	_ "modernc.org/sqlite"
)

// Local is a sqlite-backed repository. Sessions and messages live in the
// same relational shape the remote backend uses: users keyed by device
// identity, soft-deletable sessions, messages ordered by creation time.
type Local struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLocal opens (or creates) the sqlite database at path and ensures the
// schema exists. Parent directories are created if needed.
func NewLocal(path string) (*Local, error) {
	logger := slog.Default().With("component", "repo.local")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	l := &Local{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("local store initialized", "path", path)
	return l, nil
}

func (l *Local) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted_at DATETIME,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user_updated
			ON chat_sessions(user_id, updated_at);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_created
			ON chat_messages(session_id, created_at);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *Local) Close() error {
	return l.db.Close()
}

// upsertUser inserts the device's user row if missing and bumps last_seen_at.
func (l *Local) upsertUser(ctx context.Context, deviceID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET last_seen_at = excluded.last_seen_at
	`, deviceID, now, now)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// ListSessions returns the device's non-deleted sessions, newest first,
// metadata only.
func (l *Local) ListSessions(ctx context.Context, deviceID string) ([]session.Conversation, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var conversations []session.Conversation
	for rows.Next() {
		var c session.Conversation
		var createdAtStr, updatedAtStr string
		if err := rows.Scan(&c.ID, &c.Title, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		c.Messages = []session.Message{}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return conversations, nil
}

// GetSession returns one owned, non-deleted session with its transcript,
// or ErrNotFound.
func (l *Local) GetSession(ctx context.Context, deviceID, sessionID string) (*session.Conversation, error) {
	var c session.Conversation
	var createdAtStr, updatedAtStr string
	err := l.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM chat_sessions
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL
	`, sessionID, deviceID).Scan(&c.ID, &c.Title, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	c.Messages = []session.Message{}
	for rows.Next() {
		var m session.Message
		var role, msgCreatedAt string
		if err := rows.Scan(&m.ID, &role, &m.Content, &msgCreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = session.Role(role)
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, msgCreatedAt); err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return &c, nil
}

// CreateSession builds a placeholder. No row is written until the first
// message exchange, same as the remote contract.
func (l *Local) CreateSession(string) session.Conversation {
	return session.NewPlaceholder()
}

// SendChatMessage stores the user's turn, produces an offline reply, and
// stores the assistant's turn, creating the session row on first use.
func (l *Local) SendChatMessage(ctx context.Context, deviceID, sessionID, content string) (*ChatResult, error) {
	if err := l.upsertUser(ctx, deviceID); err != nil {
		return nil, err
	}
	if err := l.ensureSession(ctx, deviceID, sessionID); err != nil {
		return nil, err
	}

	if err := l.insertMessage(ctx, sessionID, session.NewMessage(session.RoleUser, content)); err != nil {
		return nil, err
	}

	reply := offlineReply(content)
	if err := l.insertMessage(ctx, sessionID, session.NewMessage(session.RoleAssistant, reply)); err != nil {
		return nil, err
	}

	if err := l.touchSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return &ChatResult{Response: reply}, nil
}

// AppendMessage stores a single message against an existing session.
func (l *Local) AppendMessage(ctx context.Context, deviceID, sessionID string, msg session.Message) error {
	owned, err := l.sessionOwned(ctx, deviceID, sessionID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrNotFound
	}
	if err := l.insertMessage(ctx, sessionID, msg); err != nil {
		return err
	}
	return l.touchSession(ctx, sessionID)
}

// RenameSession sets a new title on an owned session.
func (l *Local) RenameSession(ctx context.Context, deviceID, sessionID, title string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET title = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL
	`, title, now, sessionID, deviceID)
	if err != nil {
		return fmt.Errorf("renaming session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rename result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession soft-deletes an owned session; its messages stay in place
// but the session stops appearing in listings.
func (l *Local) DeleteSession(ctx context.Context, deviceID, sessionID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET deleted_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL
	`, now, sessionID, deviceID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	l.logger.Debug("soft-deleted session", "session_id", sessionID)
	return nil
}

func (l *Local) sessionOwned(ctx context.Context, deviceID, sessionID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `
		SELECT 1 FROM chat_sessions
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL
	`, sessionID, deviceID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking session ownership: %w", err)
	}
	return true, nil
}

func (l *Local) ensureSession(ctx context.Context, deviceID, sessionID string) error {
	owned, err := l.sessionOwned(ctx, deviceID, sessionID)
	if err != nil {
		return err
	}
	if owned {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, deviceID, session.DefaultTitle, now, now)
	if err != nil {
		return fmt.Errorf("creating session row: %w", err)
	}
	return nil
}

func (l *Local) insertMessage(ctx context.Context, sessionID string, msg session.Message) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, created_at, meta)
		VALUES (?, ?, ?, ?, ?, '{}')
	`, msg.ID, sessionID, string(msg.Role), msg.Content, msg.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (l *Local) touchSession(ctx context.Context, sessionID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := l.db.ExecContext(ctx, `
		UPDATE chat_sessions SET updated_at = ? WHERE id = ?
	`, now, sessionID); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// offlineReply is the canned assistant turn used when no backend is
// configured. It keeps the client usable for note-taking offline.
func offlineReply(content string) string {
	return fmt.Sprintf("I'm running in offline mode, so I can't consult the lore archive right now. "+
		"I've saved your question though: %q", content)
}
