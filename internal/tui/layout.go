package tui

import (
	"strings"
	"unicode/utf8"

	"charm.land/lipgloss/v2"
	"github.com/hylla/casetrack/internal/board"
	"github.com/hylla/casetrack/internal/drag"
)

// Each card slot is a gap line followed by a title line and a meta line.
const (
	cardStride     = 3
	minColumnInner = 20
	maxColumnInner = 40
	footerHeight   = 3
	minBoxHeight   = 8
)

// boardLayout is the on-screen geometry of the board for one frame. Mouse
// coordinates are zero-based cells, the same space the drag controller uses.
type boardLayout struct {
	top       int
	inner     int
	boxHeight int
	slots     int
	first     int
	visible   int
}

// layout computes the current geometry.
func (m Model) layout() boardLayout {
	lay := boardLayout{top: m.boardTop()}
	lay.inner = columnInnerWidth(m.width, m.board.Len())
	lay.boxHeight = max(minBoxHeight, m.height-lay.top-footerHeight)
	lay.slots = max(1, (lay.boxHeight-3)/cardStride)
	lay.visible = max(1, (m.width+1)/(lay.outerWidth()+1))
	if focus := m.focusColumn(); focus >= lay.visible {
		lay.first = focus - lay.visible + 1
	}
	return lay
}

// boardTop returns the first screen row of the column boxes.
func (m Model) boardTop() int {
	if len(m.processes) > 1 {
		return 3
	}
	return 2
}

// columnInnerWidth splits width across n bordered columns separated by one space.
func columnInnerWidth(width, n int) int {
	if n <= 0 {
		return maxColumnInner
	}
	return clamp((width+1)/n-5, minColumnInner, maxColumnInner)
}

func (l boardLayout) outerWidth() int {
	return l.inner + 4
}

func (l boardLayout) columnVisible(i int) bool {
	return i >= l.first && i < l.first+l.visible
}

func (l boardLayout) columnX(i int) int {
	return (i - l.first) * (l.outerWidth() + 1)
}

func (l boardLayout) columnRect(i int) drag.Rect {
	return drag.Rect{
		X: float64(l.columnX(i)),
		Y: float64(l.top),
		W: float64(l.outerWidth()),
		H: float64(l.boxHeight),
	}
}

// cardRect is the title and meta lines of the card shown in slot.
func (l boardLayout) cardRect(i, slot int) drag.Rect {
	return drag.Rect{
		X: float64(l.columnX(i) + 2),
		Y: float64(l.top + 3 + slot*cardStride),
		W: float64(l.inner),
		H: 2,
	}
}

// columnAt returns the visible column under a cell.
func (l boardLayout) columnAt(x, y, n int) (int, bool) {
	if y < l.top || y >= l.top+l.boxHeight || x < 0 {
		return 0, false
	}
	i := l.first + x/(l.outerWidth()+1)
	if x%(l.outerWidth()+1) >= l.outerWidth() {
		return 0, false
	}
	if i >= n || !l.columnVisible(i) {
		return 0, false
	}
	return i, true
}

// slotAt returns the card slot under row y, ignoring gap lines.
func (l boardLayout) slotAt(y int) (int, bool) {
	rel := y - (l.top + 2)
	if rel < 0 {
		return 0, false
	}
	slot, line := rel/cardStride, rel%cardStride
	if line == 0 || slot >= l.slots {
		return 0, false
	}
	return slot, true
}

// maxScroll keeps the sentinel slot reachable while a column has more pages.
func maxScroll(n int, more bool, slots int) int {
	total := n
	if more {
		total++
	}
	return max(0, total-slots)
}

// scrollFor returns the clamped scroll offset of col.
func (m Model) scrollFor(col board.Column, lay boardLayout) int {
	return clamp(m.scroll[col.ID], 0, maxScroll(len(col.Cards), col.Cursor.More, lay.slots))
}

// sentinelVisible reports whether the "more" slot of column i is on screen.
func (m Model) sentinelVisible(i int, col board.Column, lay boardLayout) bool {
	if !col.Cursor.More || !lay.columnVisible(i) {
		return false
	}
	return len(col.Cards)-m.scrollFor(col, lay) < lay.slots
}

// dropCandidates lists every visible column zone and card for collision.
func (m Model) dropCandidates() []drag.Candidate {
	lay := m.layout()
	cols := m.board.Columns()
	out := make([]drag.Candidate, 0, len(cols)*(lay.slots+1))
	for i, col := range cols {
		if !lay.columnVisible(i) {
			continue
		}
		out = append(out, drag.Candidate{
			Kind:     drag.KindColumn,
			ColumnID: col.ID,
			Len:      len(col.Cards),
			Rect:     lay.columnRect(i),
		})
		scroll := m.scrollFor(col, lay)
		for slot := 0; slot < lay.slots && scroll+slot < len(col.Cards); slot++ {
			card := col.Cards[scroll+slot]
			out = append(out, drag.Candidate{
				Kind:     drag.KindCard,
				ColumnID: col.ID,
				CardID:   card.ID,
				Index:    scroll + slot,
				Rect:     lay.cardRect(i, slot),
			})
		}
	}
	return out
}

// clamp clamps v into [minV, maxV].
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines pads or cuts content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max == 1 {
		return string(rs[:1])
	}
	return string(rs[:max-1]) + "…"
}

// padRight truncates plain text to width and pads it with spaces.
func padRight(s string, width int) string {
	s = truncate(s, width)
	if n := utf8.RuneCountInString(s); n < width {
		s += strings.Repeat(" ", width-n)
	}
	return s
}

// overlayOnContent centres overlay over base on a width x height canvas.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}
	centered := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	return composeLayers(base, width, height, lipgloss.NewLayer(centered).X(0).Y(0).Z(10))
}

// composeLayers draws layers above base.
func composeLayers(base string, width, height int, layers ...*lipgloss.Layer) string {
	canvas := lipgloss.NewCanvas(width, height)
	canvas.Compose(lipgloss.NewLayer(fitLines(base, height)).X(0).Y(0).Z(0))
	for _, layer := range layers {
		canvas.Compose(layer)
	}
	return canvas.Render()
}
