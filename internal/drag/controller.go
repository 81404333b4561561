// Package drag turns a pointer or keyboard gesture into at most one board move.
package drag

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/hylla/casetrack/internal/board"
)

// State is the controller state.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Mode records how a session was started.
type Mode int

const (
	ModePointer Mode = iota
	ModeKeyboard
)

// Session is the ephemeral state of one drag. It never touches the board
// until Drop commits it. SourceIndex and Target follow the live board while
// other cards are appended or removed mid-drag.
type Session struct {
	Card           board.Card
	SourceColumnID string
	SourceIndex    int
	Epoch          uint64
	Mode           Mode

	Pointer Point
	Grab    Point
	Size    Point

	Target    Target
	HasTarget bool

	// anchor is the index Target.CardID had when the target was last set.
	anchor int
}

// ActiveRect is the floating card's rectangle at the current pointer.
func (s Session) ActiveRect() Rect {
	return Rect{X: s.Pointer.X - s.Grab.X, Y: s.Pointer.Y - s.Grab.Y, W: s.Size.X, H: s.Size.Y}
}

// AtOrigin reports whether the current target would leave the card where it is.
func (s Session) AtOrigin() bool {
	if !s.HasTarget || s.Target.ColumnID != s.SourceColumnID {
		return false
	}
	return s.Target.Index == s.SourceIndex || s.Target.Index == s.SourceIndex+1
}

// DropOutcome classifies Drop.
type DropOutcome int

const (
	DropCommitted DropOutcome = iota
	DropNoop
	DropCancelled
)

func (o DropOutcome) String() string {
	switch o {
	case DropCommitted:
		return "committed"
	case DropNoop:
		return "noop"
	default:
		return "cancelled"
	}
}

// DropResult reports what Drop did.
type DropResult struct {
	Outcome DropOutcome
	Move    board.MoveResult
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller owns at most one drag session against a board.
type Controller struct {
	board   *board.Board
	logger  *log.Logger
	session *Session
}

// NewController constructs an idle controller for b.
func NewController(b *board.Board, opts ...Option) *Controller {
	c := &Controller{board: b, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns Idle or Dragging. A session from a previous board epoch is
// discarded first.
func (c *Controller) State() State {
	c.syncSession()
	if c.session == nil {
		return Idle
	}
	return Dragging
}

// Session returns a copy of the active session.
func (c *Controller) Session() (Session, bool) {
	c.syncSession()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Start begins a pointer drag of cardID. origin is the card's on-screen
// rectangle; the grab offset keeps the overlay under the pointer where the
// card was pressed. Starting while dragging cancels the previous session.
func (c *Controller) Start(cardID string, pointer Point, origin Rect) bool {
	s, ok := c.begin(cardID, ModePointer)
	if !ok {
		return false
	}
	s.Pointer = pointer
	s.Grab = Point{X: pointer.X - origin.X, Y: pointer.Y - origin.Y}
	s.Size = Point{X: origin.W, Y: origin.H}
	c.session = s
	return true
}

// StartKeyboard begins a keyboard drag of cardID.
func (c *Controller) StartKeyboard(cardID string) bool {
	s, ok := c.begin(cardID, ModeKeyboard)
	if !ok {
		return false
	}
	c.session = s
	return true
}

func (c *Controller) begin(cardID string, mode Mode) (*Session, bool) {
	if c.session != nil {
		c.logger.Debug("drag restarted; previous session cancelled", "card_id", c.session.Card.ID)
		c.session = nil
	}
	card, ok := c.board.Card(cardID)
	if !ok {
		c.logger.Debug("drag start ignored: unknown card", "card_id", cardID)
		return nil, false
	}
	_, idx, _ := c.board.Locate(cardID)
	return &Session{
		Card:           card,
		SourceColumnID: card.ColumnID,
		SourceIndex:    idx,
		Epoch:          c.board.Epoch(),
		Mode:           mode,
		Target:         Target{ColumnID: card.ColumnID, Index: idx, CardID: cardID},
		anchor:         idx,
		HasTarget:      true,
	}, true
}

// Hover moves the pointer and recomputes the candidate target.
func (c *Controller) Hover(pointer Point, candidates []Candidate) (Target, bool) {
	c.syncSession()
	if c.session == nil {
		return Target{}, false
	}
	c.session.Pointer = pointer
	t, ok := ResolveDropTarget(pointer, c.session.ActiveRect(), candidates)
	c.setTarget(t, ok)
	return t, ok
}

// Nudge moves the candidate target by dx columns and dy gaps. Inside the
// source column the two gaps around the card count as one position.
func (c *Controller) Nudge(dx, dy int) (Target, bool) {
	c.syncSession()
	if c.session == nil {
		return Target{}, false
	}
	s := c.session
	cols := c.board.Columns()
	if len(cols) == 0 {
		return Target{}, false
	}
	t := s.Target
	if !s.HasTarget {
		t = Target{ColumnID: s.SourceColumnID, Index: s.SourceIndex}
	}
	ci, ok := c.board.ColumnIndex(t.ColumnID)
	if !ok {
		ci = 0
	}

	if dx != 0 {
		ci = clampInt(ci+dx, 0, len(cols)-1)
		t.ColumnID = cols[ci].ID
		if t.ColumnID == s.SourceColumnID && t.Index == s.SourceIndex+1 {
			t.Index = s.SourceIndex
		}
	}
	size := len(cols[ci].Cards)
	t.Index = clampInt(t.Index, 0, size)
	if dy != 0 {
		next := clampInt(t.Index+dy, 0, size)
		if t.ColumnID == s.SourceColumnID && s.isOrigin(next) && s.isOrigin(t.Index) {
			next = clampInt(next+dy, 0, size)
		}
		t.Index = next
	}
	t.CardID = ""
	if t.Index < size {
		t.CardID = cols[ci].Cards[t.Index].ID
	}
	c.setTarget(t, true)
	return t, true
}

func (s *Session) isOrigin(gap int) bool {
	return gap == s.SourceIndex || gap == s.SourceIndex+1
}

// HighlightColumn returns the column the card would land in.
func (c *Controller) HighlightColumn() (string, bool) {
	s, ok := c.Session()
	if !ok || !s.HasTarget {
		return "", false
	}
	return s.Target.ColumnID, true
}

// Drop ends the session and commits at most one move.
func (c *Controller) Drop() DropResult {
	c.syncSession()
	s := c.session
	c.session = nil
	if s == nil || !s.HasTarget {
		return DropResult{Outcome: DropCancelled}
	}
	if s.AtOrigin() {
		return DropResult{Outcome: DropNoop}
	}
	res := c.board.MoveCard(s.Card.ID, s.SourceColumnID, s.Target.ColumnID, s.Target.Index)
	if !res.Committed() {
		c.logger.Debug("drop resolved to no-op", "card_id", s.Card.ID, "outcome", res.Outcome.String())
		return DropResult{Outcome: DropNoop, Move: res}
	}
	return DropResult{Outcome: DropCommitted, Move: res}
}

// Cancel discards the session without touching the board.
func (c *Controller) Cancel() bool {
	if c.session == nil {
		return false
	}
	c.session = nil
	return true
}

// syncSession drops a session from an older epoch. Otherwise it re-reads the
// card's index in its source column and shifts the target with its anchor
// card. A card that left its source column is left stale for Drop to report.
func (c *Controller) syncSession() {
	s := c.session
	if s == nil {
		return
	}
	if s.Epoch != c.board.Epoch() {
		c.logger.Debug("drag session expired by board reset", "card_id", s.Card.ID)
		c.session = nil
		return
	}
	if columnID, idx, ok := c.board.Locate(s.Card.ID); ok && columnID == s.SourceColumnID {
		s.SourceIndex = idx
	}
	if !s.HasTarget {
		return
	}
	if s.Target.CardID != "" {
		if col, at, ok := c.board.Locate(s.Target.CardID); ok && col == s.Target.ColumnID {
			s.Target.Index += at - s.anchor
			s.anchor = at
		}
	}
	s.Target.Index = clampInt(s.Target.Index, 0, c.board.CardCount(s.Target.ColumnID))
}

func (c *Controller) setTarget(t Target, ok bool) {
	s := c.session
	s.Target, s.HasTarget = t, ok
	s.anchor = t.Index
	if t.CardID == "" {
		return
	}
	if col, at, found := c.board.Locate(t.CardID); found && col == t.ColumnID {
		s.anchor = at
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
