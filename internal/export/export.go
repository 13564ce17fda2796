// ABOUTME: Renders a conversation transcript to a standalone HTML page.
// ABOUTME: Message content is treated as markdown and converted with goldmark.

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"

	"github.com/teyvat-labs/lorechat/internal/session"
)

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.message { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 8px; }
.user { background: #eef4ff; }
.assistant { background: #f4f4f4; }
.role { font-size: 0.8rem; color: #666; margin-bottom: 0.25rem; text-transform: uppercase; }
.timestamp { font-size: 0.75rem; color: #999; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="timestamp">Exported {{.ExportedAt}} &middot; {{.Count}} messages</p>
{{range .Messages}}
<div class="message {{.Role}}">
<div class="role">{{.Role}}</div>
{{.Content}}
<div class="timestamp">{{.Timestamp}}</div>
</div>
{{end}}
</body>
</html>
`))

type pageData struct {
	Title      string
	ExportedAt string
	Count      int
	Messages   []renderedMessage
}

type renderedMessage struct {
	Role      string
	Content   template.HTML
	Timestamp string
}

// WriteHTML renders the conversation as a self-contained HTML document.
func WriteHTML(w io.Writer, c session.Conversation) error {
	data := pageData{
		Title:      c.Title,
		ExportedAt: time.Now().UTC().Format(time.RFC1123),
		Count:      len(c.Messages),
	}

	for _, m := range c.Messages {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(m.Content), &buf); err != nil {
			return fmt.Errorf("converting markdown: %w", err)
		}
		data.Messages = append(data.Messages, renderedMessage{
			Role:      string(m.Role),
			Content:   template.HTML(buf.String()),
			Timestamp: m.CreatedAt.UTC().Format(time.RFC1123),
		})
	}

	if err := pageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}
	return nil
}
