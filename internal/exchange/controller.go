// ABOUTME: Message exchange controller: optimistic append, remote round-trip, reconciliation.
// ABOUTME: Failures collapse into transcript content; no error ever reaches the caller.

package exchange

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/teyvat-labs/lorechat/internal/directory"
	"github.com/teyvat-labs/lorechat/internal/identity"
	"github.com/teyvat-labs/lorechat/internal/repo"
	"github.com/teyvat-labs/lorechat/internal/session"
)

// FallbackReply is appended as the assistant's turn when the exchange
// fails. The transcript never shows a raw network error.
const FallbackReply = "My apologies, Traveler — I couldn't reach the lore archive just now. " +
	"Please try asking again in a moment."

// Controller orchestrates a single send operation: optimistic local append,
// the backend round-trip, and reconciliation of the result.
type Controller struct {
	repository repo.Repository
	dir        *directory.Directory
	ids        *identity.Provider
	busy       atomic.Bool
	logger     *slog.Logger
}

// sendResult is the tagged outcome of the backend round-trip. It is
// resolved into message content here at the boundary; callers see text,
// never an error.
type sendResult struct {
	Reply string
	Err   error
}

// New creates a controller over the given repository, directory, and
// identity provider.
func New(repository repo.Repository, dir *directory.Directory, ids *identity.Provider) *Controller {
	return &Controller{
		repository: repository,
		dir:        dir,
		ids:        ids,
		logger:     slog.Default().With("component", "exchange"),
	}
}

// Busy reports whether a send is currently in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Send performs one full message exchange and returns the assistant-visible
// reply. The second return is false when the send was a no-op: empty input,
// a send already in flight, or no identity available yet.
//
// The user's message is appended before the network call and never
// retracted. On failure the fallback reply is appended in the assistant's
// place, so from the caller's viewpoint every accepted send resolves.
func (c *Controller) Send(ctx context.Context, content string) (string, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", false
	}
	if !c.busy.CompareAndSwap(false, true) {
		return "", false
	}
	defer c.busy.Store(false)

	deviceID, err := c.ids.GetOrCreate()
	if err != nil {
		c.logger.Warn("identity unavailable, send aborted", "error", err)
		return "", false
	}
	if deviceID == "" {
		// No storage context; defer until one exists.
		return "", false
	}

	target, ok := c.dir.ActiveConversation()
	if !ok {
		target = c.dir.Create(deviceID)
	}

	userMsg := session.NewMessage(session.RoleUser, content)
	transcript := make([]session.Message, 0, len(target.Messages)+2)
	transcript = append(transcript, target.Messages...)
	transcript = append(transcript, userMsg)

	fields := directory.UpdateFields{Messages: transcript}
	if len(target.Messages) == 0 {
		title := session.DeriveTitle(content)
		fields.Title = &title
	}
	c.dir.Update(target.ID, fields)

	result := c.exchange(ctx, deviceID, target.ID, content)
	reply := result.Reply
	if result.Err != nil {
		c.logger.Warn("message exchange failed",
			"conversation_id", target.ID,
			"error", result.Err,
		)
		reply = FallbackReply
	}

	assistantMsg := session.NewMessage(session.RoleAssistant, reply)
	c.dir.Update(target.ID, directory.UpdateFields{
		Messages: append(transcript, assistantMsg),
	})

	return reply, true
}

func (c *Controller) exchange(ctx context.Context, deviceID, sessionID, content string) sendResult {
	res, err := c.repository.SendChatMessage(ctx, deviceID, sessionID, content)
	if err != nil {
		return sendResult{Err: err}
	}
	return sendResult{Reply: res.Response}
}
