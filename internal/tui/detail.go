package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/hylla/casetrack/internal/board"
)

// markdownRenderer caches a glamour renderer per wrap width.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// render converts markdown into ANSI text wrapped at width. It falls back to
// the raw markdown when glamour cannot render.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	wrapWidth := max(24, width)
	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}
	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// caseMarkdown builds the detail document for one card.
func caseMarkdown(card board.Card, stageName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", card.Title)
	fmt.Fprintf(&b, "`%s` in **%s**\n\n", card.ID, stageName)
	rows := []struct{ label, key string }{
		{"Value", metaValue},
		{"Due", metaDue},
		{"Contact", metaContact},
	}
	wroteRow := false
	for _, row := range rows {
		if v := card.Meta[row.key]; v != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", row.label, v)
			wroteRow = true
		}
	}
	if wroteRow {
		b.WriteString("\n")
	}
	if desc := card.Meta[metaDescription]; desc != "" {
		b.WriteString(desc)
		b.WriteString("\n")
	} else {
		b.WriteString("_No description._\n")
	}
	return b.String()
}
