// ABOUTME: Tests for the conversation model helpers.
// ABOUTME: Covers placeholder construction, recency sorting, and title derivation.

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlaceholder(t *testing.T) {
	c := NewPlaceholder()

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, DefaultTitle, c.Title)
	assert.Empty(t, c.Messages)
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)

	// Fresh ids every time
	c2 := NewPlaceholder()
	assert.NotEqual(t, c.ID, c2.ID)
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(RoleUser, "hello")

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, "hello", m.Content)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestClone_DoesNotAliasTranscript(t *testing.T) {
	c := NewPlaceholder()
	c.Messages = append(c.Messages, NewMessage(RoleUser, "one"))

	clone := c.Clone()
	clone.Messages[0].Content = "mutated"
	clone.Messages = append(clone.Messages, NewMessage(RoleAssistant, "two"))

	require.Len(t, c.Messages, 1)
	assert.Equal(t, "one", c.Messages[0].Content)
}

func TestSortByRecency(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conversations := []Conversation{
		{ID: "a", UpdatedAt: base.Add(1 * time.Minute)},
		{ID: "b", UpdatedAt: base.Add(5 * time.Minute)},
		{ID: "c", UpdatedAt: base.Add(3 * time.Minute)},
	}

	SortByRecency(conversations)

	assert.Equal(t, "b", conversations[0].ID)
	assert.Equal(t, "c", conversations[1].ID)
	assert.Equal(t, "a", conversations[2].ID)
}

func TestSortByRecency_StableOnTies(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conversations := []Conversation{
		{ID: "first", UpdatedAt: ts},
		{ID: "second", UpdatedAt: ts},
		{ID: "third", UpdatedAt: ts},
	}

	SortByRecency(conversations)

	assert.Equal(t, "first", conversations[0].ID)
	assert.Equal(t, "second", conversations[1].ID)
	assert.Equal(t, "third", conversations[2].ID)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "short input unchanged",
			input: "hi",
			want:  "hi",
		},
		{
			name:  "long input truncated with ellipsis",
			input: "Tell me about Mondstadt and the Knights of Favonius please",
			want:  "Tell me about Mondstad...",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  what is Irminsul?  ",
			want:  "what is Irminsul?",
		},
		{
			name:  "exactly at the limit unchanged",
			input: "1234567890123456789012345",
			want:  "1234567890123456789012345",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTitle(tt.input)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), 25)
		})
	}
}
