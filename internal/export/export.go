// Package export renders conversations to portable formats.
package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kalambet/docchat/internal/storage"
)

// Format names a supported export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat maps user-facing format names to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "markdown", "md", "":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Extension returns the file extension for a format.
func (f Format) Extension() string {
	if f == FormatHTML {
		return ".html"
	}
	return ".md"
}

// Render produces the export document for a conversation and its messages.
func Render(f Format, conv storage.Conversation, messages []storage.Message) string {
	if f == FormatHTML {
		return renderHTML(conv, messages)
	}
	return renderMarkdown(conv, messages)
}

func renderMarkdown(conv storage.Conversation, messages []storage.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", conv.Name)
	fmt.Fprintf(&sb, "*Mode: %s · Exported: %s*\n\n", conv.Mode, time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	for _, m := range messages {
		fmt.Fprintf(&sb, "**%s**\n\n%s\n\n", roleLabel(m.Role), m.Content)
		sb.WriteString("---\n\n")
	}
	return strings.TrimSuffix(sb.String(), "---\n\n")
}

func renderHTML(conv storage.Conversation, messages []storage.Message) string {
	var sb strings.Builder
	title := html.EscapeString(conv.Name)
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem}" +
		".message{margin:1rem 0;padding:0.75rem 1rem;border-radius:0.5rem}" +
		".user{background:#eef}.assistant{background:#f5f5f5}" +
		".role{font-weight:bold;margin-bottom:0.25rem}</style>\n")
	sb.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", title)
	fmt.Fprintf(&sb, "<p><em>Mode: %s · Exported: %s</em></p>\n",
		html.EscapeString(conv.Mode), time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	for _, m := range messages {
		class := "user"
		if m.Role == storage.RoleAssistant {
			class = "assistant"
		}
		fmt.Fprintf(&sb, "<div class=\"message %s\">\n<div class=\"role\">%s</div>\n<div>%s</div>\n</div>\n",
			class, roleLabel(m.Role), messageHTML(m.Content))
	}

	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// messageHTML escapes message text and preserves paragraph breaks.
func messageHTML(content string) string {
	escaped := html.EscapeString(content)
	paragraphs := strings.Split(escaped, "\n\n")
	for i, p := range paragraphs {
		paragraphs[i] = "<p>" + strings.ReplaceAll(p, "\n", "<br>") + "</p>"
	}
	return strings.Join(paragraphs, "\n")
}

func roleLabel(role string) string {
	if role == storage.RoleAssistant {
		return "Assistant"
	}
	return "User"
}
