// ABOUTME: Tests for the message exchange controller.
// ABOUTME: Covers no-op guards, auto-created conversations, optimistic appends, and failure fallback.

package exchange

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teyvat-labs/lorechat/internal/directory"
	"github.com/teyvat-labs/lorechat/internal/identity"
	"github.com/teyvat-labs/lorechat/internal/repo"
	"github.com/teyvat-labs/lorechat/internal/session"
)

// fakeRepo scripts SendChatMessage outcomes for controller tests.
type fakeRepo struct {
	mu        sync.Mutex
	reply     string
	sendErr   error
	sendCalls int
	// block, when set, is closed by the test to release an in-flight send.
	block chan struct{}
	// entered, when set, receives one value as a send reaches the repository.
	entered chan struct{}
}

func (f *fakeRepo) ListSessions(context.Context, string) ([]session.Conversation, error) {
	return nil, nil
}

func (f *fakeRepo) GetSession(context.Context, string, string) (*session.Conversation, error) {
	return nil, repo.ErrNotFound
}

func (f *fakeRepo) CreateSession(string) session.Conversation {
	return session.NewPlaceholder()
}

func (f *fakeRepo) SendChatMessage(context.Context, string, string, string) (*repo.ChatResult, error) {
	f.mu.Lock()
	f.sendCalls++
	block := f.block
	entered := f.entered
	reply := f.reply
	err := f.sendErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return &repo.ChatResult{Response: reply}, nil
}

func (f *fakeRepo) AppendMessage(context.Context, string, string, session.Message) error {
	return repo.ErrUnsupported
}

func (f *fakeRepo) RenameSession(context.Context, string, string, string) error {
	return repo.ErrUnsupported
}

func (f *fakeRepo) DeleteSession(context.Context, string, string) error {
	return repo.ErrUnsupported
}

func newTestController(t *testing.T, f *fakeRepo) (*Controller, *directory.Directory) {
	t.Helper()
	dir := directory.New(f)
	dir.Load(context.Background(), "dev-1")
	ids := identity.NewProvider(filepath.Join(t.TempDir(), "device_id"))
	return New(f, dir, ids), dir
}

func TestSend_EmptyInputIsNoop(t *testing.T) {
	f := &fakeRepo{reply: "hello"}
	c, dir := newTestController(t, f)

	_, sent := c.Send(context.Background(), "")
	assert.False(t, sent)
	_, sent = c.Send(context.Background(), "   \t  ")
	assert.False(t, sent)

	assert.Empty(t, dir.Conversations())
	assert.Zero(t, f.sendCalls)
}

func TestSend_NoIdentityAbortsWithoutMutation(t *testing.T) {
	f := &fakeRepo{reply: "hello"}
	dir := directory.New(f)
	dir.Load(context.Background(), "")
	c := New(f, dir, identity.NewProvider(""))

	_, sent := c.Send(context.Background(), "who is Venti?")

	assert.False(t, sent)
	assert.Empty(t, dir.Conversations())
	assert.Zero(t, f.sendCalls)
}

func TestSend_CreatesConversationWhenNoneActive(t *testing.T) {
	f := &fakeRepo{reply: "The Anemo Archon."}
	c, dir := newTestController(t, f)
	require.Empty(t, dir.Active())

	reply, sent := c.Send(context.Background(), "who is Venti?")

	require.True(t, sent)
	assert.Equal(t, "The Anemo Archon.", reply)

	conversations := dir.Conversations()
	require.Len(t, conversations, 1)
	got := conversations[0]
	assert.Equal(t, got.ID, dir.Active())
	require.Len(t, got.Messages, 2)
	assert.Equal(t, session.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "who is Venti?", got.Messages[0].Content)
	assert.Equal(t, session.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "The Anemo Archon.", got.Messages[1].Content)
}

func TestSend_DerivesTitleFromFirstMessageOnly(t *testing.T) {
	f := &fakeRepo{reply: "ok"}
	c, dir := newTestController(t, f)

	_, sent := c.Send(context.Background(), "Tell me about Mondstadt and the Knights of Favonius please")
	require.True(t, sent)

	got, ok := dir.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, "Tell me about Mondstad...", got.Title)

	// A second message must not re-derive the title.
	_, sent = c.Send(context.Background(), "and what about Liyue?")
	require.True(t, sent)
	got, ok = dir.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, "Tell me about Mondstad...", got.Title)
	assert.Len(t, got.Messages, 4)
}

func TestSend_FailureKeepsOptimisticAppendAndAddsFallback(t *testing.T) {
	f := &fakeRepo{sendErr: &repo.ChatError{Status: 503, Body: "overloaded"}}
	c, dir := newTestController(t, f)

	reply, sent := c.Send(context.Background(), "who is Venti?")

	// The send resolves normally; the failure lives in the transcript.
	require.True(t, sent)
	assert.Equal(t, FallbackReply, reply)

	got, ok := dir.ActiveConversation()
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "who is Venti?", got.Messages[0].Content)
	assert.Equal(t, session.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, FallbackReply, got.Messages[1].Content)

	assert.False(t, c.Busy(), "controller must return to idle after a failure")
}

func TestSend_OverlappingSendBlocked(t *testing.T) {
	f := &fakeRepo{reply: "ok", block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c, _ := newTestController(t, f)

	done := make(chan struct{})
	go func() {
		c.Send(context.Background(), "first")
		close(done)
	}()

	// Wait for the first send to reach the repository.
	<-f.entered
	require.True(t, c.Busy())

	_, sent := c.Send(context.Background(), "second")
	assert.False(t, sent, "a second send while one is outstanding is rejected")

	close(f.block)
	<-done
	assert.False(t, c.Busy())
	assert.Equal(t, 1, f.sendCalls)
}

func TestSend_ReusesActiveConversation(t *testing.T) {
	f := &fakeRepo{reply: "ok"}
	c, dir := newTestController(t, f)

	_, sent := c.Send(context.Background(), "first")
	require.True(t, sent)
	_, sent = c.Send(context.Background(), "second")
	require.True(t, sent)

	conversations := dir.Conversations()
	require.Len(t, conversations, 1)
	require.Len(t, conversations[0].Messages, 4)

	// Causal order: user turn always precedes its assistant turn.
	assert.Equal(t, session.RoleUser, conversations[0].Messages[0].Role)
	assert.Equal(t, session.RoleAssistant, conversations[0].Messages[1].Role)
	assert.Equal(t, session.RoleUser, conversations[0].Messages[2].Role)
	assert.Equal(t, session.RoleAssistant, conversations[0].Messages[3].Role)
}

func TestSend_IdentityStableAcrossSends(t *testing.T) {
	f := &fakeRepo{reply: "ok"}
	ids := identity.NewProvider(filepath.Join(t.TempDir(), "device_id"))
	dir := directory.New(f)
	dir.Load(context.Background(), "dev-1")
	c := New(f, dir, ids)

	_, sent := c.Send(context.Background(), "first")
	require.True(t, sent)
	first, err := ids.GetOrCreate()
	require.NoError(t, err)

	_, sent = c.Send(context.Background(), "second")
	require.True(t, sent)
	second, err := ids.GetOrCreate()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
