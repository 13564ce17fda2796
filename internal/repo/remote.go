// ABOUTME: HTTP implementation of the Repository interface against the lore chat API.
// ABOUTME: Asserts the device identity as a request header on every call, never in the body.

package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teyvat-labs/lorechat/internal/session"
)

// IdentityHeader carries the anonymous device identity on every request.
const IdentityHeader = "X-Device-ID"

// maxErrorBody caps how much of an error response body is kept for logging.
const maxErrorBody = 2048

// Remote talks to the lore chat backend over HTTP/JSON.
type Remote struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewRemote creates a remote repository rooted at baseURL. A nil httpClient
// gets a default with a 30 second timeout.
func NewRemote(baseURL string, httpClient *http.Client) *Remote {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Remote{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:     slog.Default().With("component", "repo.remote"),
	}
}

// Wire shapes, matching the backend's snake_case JSON.

type sessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listSessionsResponse struct {
	Sessions []sessionSummary `json:"sessions"`
}

type wireMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type transcriptResponse struct {
	SessionID string        `json:"session_id"`
	Title     string        `json:"title"`
	Messages  []wireMessage `json:"messages"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response string            `json:"response"`
	Sources  []json.RawMessage `json:"sources,omitempty"`
}

// ListSessions fetches session metadata for the device. Transcripts come
// back empty; they are loaded per session on demand.
func (r *Remote) ListSessions(ctx context.Context, deviceID string) ([]session.Conversation, error) {
	status, body, err := r.do(ctx, http.MethodGet, "/api/v1/sessions", deviceID, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &RemoteError{Op: "list sessions", Status: status}
	}

	var parsed listSessionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding session list: %w", err)
	}

	conversations := make([]session.Conversation, 0, len(parsed.Sessions))
	for _, s := range parsed.Sessions {
		conversations = append(conversations, session.Conversation{
			ID:        s.ID,
			Title:     s.Title,
			Messages:  []session.Message{},
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return conversations, nil
}

// GetSession fetches one session's full transcript. A 404 from the backend
// is the expected ErrNotFound outcome, not a RemoteError.
func (r *Remote) GetSession(ctx context.Context, deviceID, sessionID string) (*session.Conversation, error) {
	status, body, err := r.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, deviceID, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, &RemoteError{Op: "get session", Status: status}
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}

	messages := make([]session.Message, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		messages = append(messages, session.Message{
			ID:        m.ID,
			Role:      session.Role(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	return &session.Conversation{
		ID:       parsed.SessionID,
		Title:    parsed.Title,
		Messages: messages,
	}, nil
}

// CreateSession builds a placeholder without contacting the backend.
func (r *Remote) CreateSession(string) session.Conversation {
	return session.NewPlaceholder()
}

// SendChatMessage persists the user's message and retrieves the assistant's
// reply in one round-trip. This is also what makes a placeholder session
// real on the server.
func (r *Remote) SendChatMessage(ctx context.Context, deviceID, sessionID, content string) (*ChatResult, error) {
	payload := chatRequest{SessionID: sessionID, Message: content}
	status, body, err := r.do(ctx, http.MethodPost, "/api/v1/chat", deviceID, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ChatError{Status: status, Body: truncateBody(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	return &ChatResult{Response: parsed.Response, Sources: parsed.Sources}, nil
}

// AppendMessage has no backing endpoint: the backend persists both turns of
// an exchange inside SendChatMessage.
func (r *Remote) AppendMessage(_ context.Context, _, sessionID string, _ session.Message) error {
	r.logger.Warn("append message has no remote endpoint", "session_id", sessionID)
	return fmt.Errorf("append message: %w", ErrUnsupported)
}

// RenameSession has no backing endpoint on the current API.
func (r *Remote) RenameSession(_ context.Context, _, sessionID, _ string) error {
	r.logger.Warn("rename session has no remote endpoint", "session_id", sessionID)
	return fmt.Errorf("rename session: %w", ErrUnsupported)
}

// DeleteSession has no backing endpoint on the current API.
func (r *Remote) DeleteSession(_ context.Context, _, sessionID string) error {
	r.logger.Warn("delete session has no remote endpoint", "session_id", sessionID)
	return fmt.Errorf("delete session: %w", ErrUnsupported)
}

// do performs one request with the identity header attached and returns the
// status and body. Transport and encoding failures are errors; non-success
// statuses are left to the caller, since their meaning is per endpoint.
func (r *Remote) do(ctx context.Context, method, path, deviceID string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdentityHeader, deviceID)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func truncateBody(body []byte) string {
	s := string(body)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
