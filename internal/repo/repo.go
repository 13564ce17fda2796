// ABOUTME: Repository interface and error taxonomy for conversation persistence.
// ABOUTME: All conversation operations route through this contract; nothing else touches the backend.

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teyvat-labs/lorechat/internal/session"
)

// ErrNotFound marks a session the backend does not know about. It is an
// expected outcome for GetSession, not a failure.
var ErrNotFound = errors.New("session not found")

// ErrUnsupported marks an operation the selected backend has no endpoint
// for. Callers get a real refusal instead of a silent fake success.
var ErrUnsupported = errors.New("operation not supported by this backend")

// RemoteError is returned when the backend answers a list/get request with
// a non-success status.
type RemoteError struct {
	Op     string
	Status int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: backend returned status %d", e.Op, e.Status)
}

// ChatError is returned when the chat exchange itself fails. It carries the
// status and response body for logging; the UI layer never sees it raw.
type ChatError struct {
	Status int
	Body   string
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat request failed with status %d: %s", e.Status, e.Body)
}

// ChatResult is the outcome of one successful message exchange: the
// assistant's reply plus whatever retrieval sources the backend attaches.
type ChatResult struct {
	Response string
	Sources  []json.RawMessage
}

// Repository translates conversation operations into calls against a
// persistence backend. Two implementations exist: Remote (the lore chat
// HTTP API) and Local (sqlite, fully offline).
type Repository interface {
	// ListSessions returns all sessions owned by the device identity,
	// metadata only (transcripts are fetched lazily via GetSession).
	ListSessions(ctx context.Context, deviceID string) ([]session.Conversation, error)

	// GetSession returns the full transcript for one session, or
	// ErrNotFound when the backend does not know the session.
	GetSession(ctx context.Context, deviceID, sessionID string) (*session.Conversation, error)

	// CreateSession constructs a local placeholder conversation. It never
	// touches the backend: the session becomes known server-side through
	// the first successful message exchange, so abandoned conversations
	// leave no orphan rows behind.
	CreateSession(deviceID string) session.Conversation

	// SendChatMessage persists the user's message and returns the
	// assistant's reply in a single exchange.
	SendChatMessage(ctx context.Context, deviceID, sessionID, content string) (*ChatResult, error)

	// AppendMessage stores a single message without producing a reply.
	AppendMessage(ctx context.Context, deviceID, sessionID string, msg session.Message) error

	// RenameSession changes a session's title.
	RenameSession(ctx context.Context, deviceID, sessionID, title string) error

	// DeleteSession removes a session from the backend's listing.
	DeleteSession(ctx context.Context, deviceID, sessionID string) error
}
