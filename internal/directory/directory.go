// ABOUTME: In-memory conversation directory for the current device identity.
// ABOUTME: Best-effort hydration, lazy transcript loading, and whole-record replace updates.

package directory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teyvat-labs/lorechat/internal/repo"
	"github.com/teyvat-labs/lorechat/internal/session"
)

// Directory holds the conversations known to this client. All mutation goes
// through Load/Create/Update/Remove, each of which replaces the matched
// entry wholesale; callers never observe a partially-updated record.
type Directory struct {
	mu            sync.RWMutex
	repository    repo.Repository
	conversations map[string]session.Conversation
	activeID      string
	loading       bool
	// generation invalidates transcript fetches that resolve after the
	// conversation set was replaced under them.
	generation uint64
	logger     *slog.Logger
}

// UpdateFields is a partial conversation update. Nil fields are left alone.
// Messages must always extend the previous transcript in order; the
// directory replaces the slice as given.
type UpdateFields struct {
	Title    *string
	Messages []session.Message
}

// New creates an empty directory backed by the given repository.
func New(repository repo.Repository) *Directory {
	return &Directory{
		repository:    repository,
		conversations: make(map[string]session.Conversation),
		loading:       true,
		logger:        slog.Default().With("component", "directory"),
	}
}

// Load hydrates the directory from the backend. On failure the set becomes
// empty rather than surfacing an error; the client starts blank and the
// user can still create conversations. Loading clears either way.
func (d *Directory) Load(ctx context.Context, deviceID string) {
	d.mu.Lock()
	d.loading = true
	d.mu.Unlock()

	conversations, err := d.repository.ListSessions(ctx, deviceID)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.loading = false

	if err != nil {
		d.logger.Warn("session list unavailable, starting empty", "error", err)
		d.conversations = make(map[string]session.Conversation)
		return
	}

	replaced := make(map[string]session.Conversation, len(conversations))
	for _, c := range conversations {
		replaced[c.ID] = c.Clone()
	}
	d.conversations = replaced

	if _, ok := d.conversations[d.activeID]; !ok {
		d.activeID = ""
	}
}

// Select marks the conversation active and lazily fetches its transcript.
// A conversation that already holds messages is never re-fetched, so
// optimistic appends not yet reflected server-side are never clobbered.
// Fetch failures and unknown sessions leave the record as it was.
func (d *Directory) Select(ctx context.Context, deviceID, id string) {
	d.mu.Lock()
	existing, known := d.conversations[id]
	d.activeID = id
	needsFetch := known && len(existing.Messages) == 0
	gen := d.generation
	d.mu.Unlock()

	if !needsFetch {
		return
	}

	fetched, err := d.repository.GetSession(ctx, deviceID, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			d.logger.Debug("session not yet known to backend", "session_id", id)
		} else {
			d.logger.Warn("transcript fetch failed", "session_id", id, "error", err)
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Drop late results: the set was replaced, the record vanished, or
	// messages arrived while the fetch was in flight.
	if d.generation != gen {
		d.logger.Debug("dropping stale transcript fetch", "session_id", id)
		return
	}
	current, ok := d.conversations[id]
	if !ok || len(current.Messages) > 0 {
		return
	}

	merged := current
	merged.Title = fetched.Title
	merged.Messages = make([]session.Message, len(fetched.Messages))
	copy(merged.Messages, fetched.Messages)
	d.conversations[id] = merged
}

// Create inserts a fresh placeholder conversation and marks it active.
// Synchronous: no network involved.
func (d *Directory) Create(deviceID string) session.Conversation {
	c := d.repository.CreateSession(deviceID)

	d.mu.Lock()
	d.conversations[c.ID] = c.Clone()
	d.activeID = c.ID
	d.mu.Unlock()

	return c
}

// Update merges fields into the matching conversation and refreshes
// UpdatedAt, never moving it backwards. Unknown ids are a no-op: a send
// resolving against a conversation removed in the meantime mutates nothing.
func (d *Directory) Update(id string, fields UpdateFields) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.conversations[id]
	if !ok {
		d.logger.Debug("update for unknown conversation dropped", "conversation_id", id)
		return
	}

	merged := current.Clone()
	if fields.Title != nil {
		merged.Title = *fields.Title
	}
	if fields.Messages != nil {
		merged.Messages = make([]session.Message, len(fields.Messages))
		copy(merged.Messages, fields.Messages)
	}

	now := time.Now().UTC()
	if now.Before(merged.UpdatedAt) {
		now = merged.UpdatedAt
	}
	merged.UpdatedAt = now

	d.conversations[id] = merged
}

// Remove drops a conversation from the directory. The active selection
// falls back to nothing when it pointed at the removed record.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conversations, id)
	if d.activeID == id {
		d.activeID = ""
	}
}

// Get returns a snapshot of one conversation.
func (d *Directory) Get(id string) (session.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.conversations[id]
	if !ok {
		return session.Conversation{}, false
	}
	return c.Clone(), true
}

// Conversations returns snapshots of all conversations, most recently
// updated first.
func (d *Directory) Conversations() []session.Conversation {
	d.mu.RLock()
	out := make([]session.Conversation, 0, len(d.conversations))
	for _, c := range d.conversations {
		out = append(out, c.Clone())
	}
	d.mu.RUnlock()

	session.SortByRecency(out)
	return out
}

// Active returns the currently selected conversation id, empty when none.
func (d *Directory) Active() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeID
}

// SetActive marks a conversation active without any fetching.
func (d *Directory) SetActive(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeID = id
}

// ActiveConversation returns a snapshot of the active conversation.
func (d *Directory) ActiveConversation() (session.Conversation, bool) {
	d.mu.RLock()
	id := d.activeID
	d.mu.RUnlock()
	if id == "" {
		return session.Conversation{}, false
	}
	return d.Get(id)
}

// Loading reports whether the initial hydration is still in flight.
func (d *Directory) Loading() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loading
}
