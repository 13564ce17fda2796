// ABOUTME: Tests for transcript HTML export.
// ABOUTME: Covers markdown conversion and role tagging in the rendered page.

package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teyvat-labs/lorechat/internal/session"
)

func TestWriteHTML(t *testing.T) {
	c := session.Conversation{
		ID:    "s1",
		Title: "Mondstadt lore",
		Messages: []session.Message{
			{
				ID:        "m1",
				Role:      session.RoleUser,
				Content:   "who is **Venti**?",
				CreatedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
			},
			{
				ID:        "m2",
				Role:      session.RoleAssistant,
				Content:   "The *Anemo Archon* of Mondstadt.",
				CreatedAt: time.Date(2026, 2, 1, 10, 0, 5, 0, time.UTC),
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, c))
	html := buf.String()

	assert.Contains(t, html, "<title>Mondstadt lore</title>")
	// Markdown converted, not escaped
	assert.Contains(t, html, "<strong>Venti</strong>")
	assert.Contains(t, html, "<em>Anemo Archon</em>")
	assert.Contains(t, html, `class="message user"`)
	assert.Contains(t, html, `class="message assistant"`)
}

func TestWriteHTML_EmptyTranscript(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, session.Conversation{Title: "New Conversation"}))
	assert.Contains(t, buf.String(), "0 messages")
}
