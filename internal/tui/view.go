package tui

import (
	"fmt"
	"image/color"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/casetrack/internal/board"
	"github.com/hylla/casetrack/internal/drag"
)

// palette holds the colours shared by one frame.
type palette struct {
	accent color.Color
	hot    color.Color
	muted  color.Color
	dim    color.Color
	warn   color.Color
}

func defaultPalette() palette {
	return palette{
		accent: lipgloss.Color("62"),
		hot:    lipgloss.Color("212"),
		muted:  lipgloss.Color("241"),
		dim:    lipgloss.Color("239"),
		warn:   lipgloss.Color("203"),
	}
}

// View renders the board.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}
	p := defaultPalette()
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(p.dim)

	var sections []string
	if len(m.processes) == 0 {
		sections = []string{
			titleStyle.Render("casetrack"),
			"",
			"No processes yet.",
			"Run `casetrack seed` or `casetrack import <file.yaml>` to create one.",
			"Press q to quit.",
		}
	} else {
		process := m.processes[clamp(m.selectedProcess, 0, len(m.processes)-1)]
		header := titleStyle.Render("casetrack") + "  " + process.Name
		session, dragging := m.drag.Session()
		if dragging {
			header += statusStyle.Render("  [moving " + truncate(session.Card.Title, 32) + "]")
		}
		sections = append(sections, header)
		if tabs := m.renderProcessTabs(p); tabs != "" {
			sections = append(sections, tabs)
		}
		sections = append(sections, "", m.renderBoard(p, session, dragging))
	}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, statusStyle.Render(truncate(m.status, max(1, m.width))))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.ShowAll = false
	helpBubble.SetWidth(max(0, m.width-2))
	helpText := helpBubble.View(m.keys)
	if session, ok := m.drag.Session(); ok && session.Mode == drag.ModeKeyboard {
		helpText = helpBubble.ShortHelpView(m.keys.dragHelp())
	}
	helpLine := lipgloss.NewStyle().
		Foreground(p.muted).
		BorderTop(true).
		BorderForeground(p.dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpText)
	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	full := content + "\n" + helpLine

	width, height := max(1, m.width), max(1, lipgloss.Height(full))
	if m.height > 0 {
		height = m.height
	}
	if layer := m.floatingCardLayer(p, width, height); layer != nil {
		full = composeLayers(full, width, height, layer)
	}
	if overlay := m.renderOverlay(p); overlay != "" {
		full = overlayOnContent(full, overlay, width, height)
	}
	return full
}

// renderProcessTabs lists processes when there is more than one.
func (m Model) renderProcessTabs(p palette) string {
	if len(m.processes) < 2 {
		return ""
	}
	active := lipgloss.NewStyle().Bold(true).Underline(true).Foreground(p.accent)
	inactive := lipgloss.NewStyle().Foreground(p.dim)
	tabs := make([]string, 0, len(m.processes))
	for i, process := range m.processes {
		if i == m.selectedProcess {
			tabs = append(tabs, active.Render(process.Name))
			continue
		}
		tabs = append(tabs, inactive.Render(process.Name))
	}
	return strings.Join(tabs, "  ")
}

func (m Model) renderBoard(p palette, session drag.Session, dragging bool) string {
	cols := m.board.Columns()
	if len(cols) == 0 {
		return lipgloss.NewStyle().Foreground(p.muted).Render("This process has no stages.")
	}
	lay := m.layout()
	highlight, _ := m.drag.HighlightColumn()
	views := make([]string, 0, lay.visible)
	for i, col := range cols {
		if !lay.columnVisible(i) {
			continue
		}
		views = append(views, m.renderColumn(p, i, col, lay, session, dragging, highlight == col.ID))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

// renderColumn draws one stage box. The drop target gets a thick hot border
// and a marker on the gap the card would land in.
func (m Model) renderColumn(p palette, i int, col board.Column, lay boardLayout, session drag.Session, dragging, highlight bool) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(p.accent)
	mutedStyle := lipgloss.NewStyle().Foreground(p.muted)
	selectedStyle := lipgloss.NewStyle().Foreground(p.hot).Bold(true)
	ghostStyle := lipgloss.NewStyle().Foreground(p.dim).Faint(true)
	markerStyle := lipgloss.NewStyle().Foreground(p.hot).Bold(true)

	n := len(col.Cards)
	header, over := m.columnHeader(col)
	if over {
		headerStyle = headerStyle.Foreground(p.warn)
	}
	blank := strings.Repeat(" ", lay.inner)
	lines := []string{headerStyle.Render(padRight(header, lay.inner))}

	showMarker := dragging && session.HasTarget && session.Target.ColumnID == col.ID && !session.AtOrigin()
	scroll := m.scrollFor(col, lay)
	for slot := 0; slot < lay.slots; slot++ {
		idx := scroll + slot
		if showMarker && session.Target.Index == idx {
			lines = append(lines, markerStyle.Render(padRight("── drop here ──", lay.inner)))
		} else {
			lines = append(lines, blank)
		}
		switch {
		case idx < n:
			card := col.Cards[idx]
			selected := i == m.selectedColumn && idx == m.selectedCard && !dragging
			prefix := "  "
			if selected {
				prefix = "│ "
			}
			title := padRight(prefix+card.Title, lay.inner)
			meta := padRight(prefix+cardSummary(card, m.cardFields), lay.inner)
			switch {
			case dragging && card.ID == session.Card.ID:
				lines = append(lines, ghostStyle.Render(title), ghostStyle.Render(meta))
			case selected:
				lines = append(lines, selectedStyle.Render(title), mutedStyle.Render(meta))
			default:
				lines = append(lines, title, mutedStyle.Render(meta))
			}
		case idx == n && col.Cursor.More:
			label := "↓ more"
			if m.loader.InFlight(col.ID) {
				label = "loading more…"
			}
			lines = append(lines, mutedStyle.Render(padRight("  "+label, lay.inner)), blank)
		case idx == 0 && n == 0:
			lines = append(lines, mutedStyle.Render(padRight("  (empty)", lay.inner)), blank)
		default:
			lines = append(lines, blank, blank)
		}
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.dim).
		Padding(0, 1).
		MarginRight(1)
	switch {
	case highlight:
		box = box.Border(lipgloss.ThickBorder()).BorderForeground(p.hot)
	case i == m.selectedColumn:
		box = box.BorderForeground(p.accent)
	}
	return box.Render(fitLines(strings.Join(lines, "\n"), lay.boxHeight-2))
}

// columnHeader renders "Name (n/limit)" and reports a WIP overrun. A trailing
// "+" on the count means more cases are still unloaded.
func (m Model) columnHeader(col board.Column) (string, bool) {
	n := len(col.Cards)
	count := fmt.Sprintf("%d", n)
	if col.Cursor.More {
		count += "+"
	}
	stage, ok := m.stage(col.ID)
	if !ok || stage.WIPLimit <= 0 {
		return fmt.Sprintf("%s (%s)", col.Title, count), false
	}
	header := fmt.Sprintf("%s (%s/%d)", col.Title, count, stage.WIPLimit)
	if m.showWIPWarnings && stage.OverLimit(n) {
		return header + " WIP!", true
	}
	return header, false
}

// floatingCardLayer draws the carried card under the pointer.
func (m Model) floatingCardLayer(p palette, width, height int) *lipgloss.Layer {
	session, ok := m.drag.Session()
	if !ok || session.Mode != drag.ModePointer {
		return nil
	}
	rect := session.ActiveRect()
	w := max(1, int(rect.W))
	style := lipgloss.NewStyle().Foreground(p.hot).Background(lipgloss.Color("237"))
	card := style.Bold(true).Render(padRight(session.Card.Title, w)) + "\n" +
		style.Render(padRight(cardSummary(session.Card, m.cardFields), w))
	x := clamp(int(rect.X), 0, max(0, width-w))
	y := clamp(int(rect.Y), 0, max(0, height-2))
	return lipgloss.NewLayer(card).X(x).Y(y).Z(5)
}

// renderOverlay renders the active modal, if any.
func (m Model) renderOverlay(p palette) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.accent).
		Padding(0, 1)
	hintStyle := lipgloss.NewStyle().Foreground(p.muted)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(p.accent)
	width := max(24, m.width-12)

	switch {
	case m.help.ShowAll:
		helpBubble := m.help
		helpBubble.SetWidth(width)
		return boxStyle.Render(titleStyle.Render("keys") + "\n\n" + helpBubble.View(m.keys) + "\n\n" + hintStyle.Render("? or esc to close"))
	case m.mode == modeDetail:
		card, ok := m.board.Card(m.detailCardID)
		if !ok {
			return ""
		}
		body := m.markdown.render(caseMarkdown(card, m.stageName(card.ColumnID)), width-4)
		if m.height > 0 {
			body = fitLines(body, max(3, m.height-8))
		}
		return boxStyle.Render(body + "\n" + hintStyle.Render("esc close • "+m.keys.copyID.Help().Key+" copy id"))
	case m.mode == modeConfirmDelete:
		title := m.cardTitle(m.confirmCardID)
		return boxStyle.BorderForeground(p.warn).Render(
			titleStyle.Foreground(p.warn).Render("Delete case?") + "\n\n" +
				truncate(title, width-4) + "\n\n" +
				hintStyle.Render("y delete • n cancel"))
	}
	return ""
}
