// ABOUTME: Conversation and Message types shared by the sync core.
// ABOUTME: Includes placeholder construction, recency sorting, and title derivation.

package session

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem exists in the server's schema; the client never writes one.
	RoleSystem Role = "system"
)

// DefaultTitle is the title a conversation carries before its first message.
const DefaultTitle = "New Conversation"

const (
	titleMaxLen   = 25
	titleEllipsis = "..."
)

// Message is a single turn in a conversation. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a titled, ordered transcript tied to one device identity.
// Messages are in creation order, oldest first.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPlaceholder constructs a conversation that exists only locally.
// The server learns about it when the first message exchange succeeds.
func NewPlaceholder() Conversation {
	now := time.Now().UTC()
	return Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewMessage constructs a message with a fresh id and current timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy so callers can hand out snapshots without
// aliasing the transcript slice.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// SortByRecency orders conversations most recently updated first.
// The sort is stable, so equal timestamps keep their relative order.
func SortByRecency(conversations []Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
}

// DeriveTitle produces a display title from the first user message.
// Long inputs are truncated and marked with an ellipsis; the result never
// exceeds 25 characters.
func DeriveTitle(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= titleMaxLen {
		return trimmed
	}
	return string(runes[:titleMaxLen-len(titleEllipsis)]) + titleEllipsis
}
