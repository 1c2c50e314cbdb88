package transcript

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// ExportHTML renders a chat's history as a standalone HTML document.
// Message bodies are treated as Markdown; anything goldmark rejects
// falls back to escaped preformatted text.
func ExportHTML(chat Chat, messages []Message) (string, error) {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(chat.Title))
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }\n")
	b.WriteString(".msg { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 0.5rem; }\n")
	b.WriteString(".msg.user { background: #eef2ff; }\n")
	b.WriteString(".msg.assistant { background: #f4f4f5; }\n")
	b.WriteString(".msg .role { font-size: 0.75rem; text-transform: uppercase; color: #666; margin-bottom: 0.25rem; }\n")
	b.WriteString("pre { overflow-x: auto; background: #1e1e1e; color: #ddd; padding: 0.75rem; border-radius: 0.25rem; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(chat.Title))

	for _, m := range messages {
		role := m.Role
		if role != "user" && role != "assistant" {
			continue
		}
		fmt.Fprintf(&b, "<div class=\"msg %s\">\n<div class=\"role\">%s</div>\n", role, role)

		var body bytes.Buffer
		if err := markdown.Convert([]byte(m.Content), &body); err != nil {
			fmt.Fprintf(&b, "<pre>%s</pre>\n", html.EscapeString(m.Content))
		} else {
			b.Write(body.Bytes())
		}
		b.WriteString("</div>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
