// Package board holds the authoritative in-memory state of a workflow board:
// ordered columns, the cards inside them, and every mutation applied to them.
package board

import (
	"fmt"
	"io"
	"maps"

	"github.com/charmbracelet/log"
)

// Cursor is the per-column pagination state.
type Cursor struct {
	Token string
	More  bool
}

// NextCursor builds the cursor reported by a page fetch. An empty token ends pagination.
func NextCursor(token string) Cursor {
	return Cursor{Token: token, More: token != ""}
}

// Card is one work item as the board sees it. Meta is opaque display payload.
type Card struct {
	ID       string
	Title    string
	ColumnID string
	Meta     map[string]string
}

// ColumnSpec describes a column passed to Initialize.
type ColumnSpec struct {
	ID     string
	Title  string
	Cursor Cursor
}

// Column is a read-only copy of one board column.
type Column struct {
	ID     string
	Title  string
	Cards  []Card
	Cursor Cursor
}

// Option configures a Board.
type Option func(*Board)

// WithLogger sets the logger used for rejected or ignored mutations.
func WithLogger(logger *log.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMoveListener registers fn to be called after every committed move.
func WithMoveListener(fn func(Move)) Option {
	return func(b *Board) {
		if fn != nil {
			b.listeners = append(b.listeners, fn)
		}
	}
}

type column struct {
	id     string
	title  string
	cards  []Card
	cursor Cursor
}

// Board owns columns and cards. It is not safe for concurrent use; callers
// mutate it from a single event loop.
type Board struct {
	logger    *log.Logger
	listeners []func(Move)

	columns  []*column
	columnAt map[string]int
	owner    map[string]string

	revision uint64
	epoch    uint64
}

// New constructs an empty board.
func New(opts ...Option) *Board {
	b := &Board{
		logger:   log.New(io.Discard),
		columnAt: map[string]int{},
		owner:    map[string]string{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnMove registers an additional move listener.
func (b *Board) OnMove(fn func(Move)) {
	if fn != nil {
		b.listeners = append(b.listeners, fn)
	}
}

// Initialize replaces the whole board. Any drag session started against the
// previous epoch becomes invalid.
func (b *Board) Initialize(specs []ColumnSpec) {
	b.columns = make([]*column, 0, len(specs))
	b.columnAt = make(map[string]int, len(specs))
	b.owner = map[string]string{}
	for _, spec := range specs {
		if spec.ID == "" {
			continue
		}
		if _, dup := b.columnAt[spec.ID]; dup {
			b.logger.Warn("duplicate column ignored", "column_id", spec.ID)
			continue
		}
		b.columnAt[spec.ID] = len(b.columns)
		b.columns = append(b.columns, &column{id: spec.ID, title: spec.Title, cursor: spec.Cursor})
	}
	b.epoch++
	b.revision++
}

// AppendResult reports what AppendCards did.
type AppendResult struct {
	Applied bool
	Added   int
	Skipped int
}

// AppendCards appends cards to the end of columnID and stores next as its
// cursor. Cards whose id is already on the board are skipped. An unknown
// column is a no-op.
func (b *Board) AppendCards(columnID string, cards []Card, next Cursor) AppendResult {
	col := b.column(columnID)
	if col == nil {
		b.logger.Debug("append to unknown column ignored", "column_id", columnID, "cards", len(cards))
		return AppendResult{}
	}
	res := AppendResult{Applied: true}
	for _, card := range cards {
		if card.ID == "" {
			res.Skipped++
			continue
		}
		if _, exists := b.owner[card.ID]; exists {
			res.Skipped++
			continue
		}
		card.ColumnID = col.id
		card.Meta = maps.Clone(card.Meta)
		col.cards = append(col.cards, card)
		b.owner[card.ID] = col.id
		res.Added++
	}
	if res.Skipped > 0 {
		b.logger.Debug("duplicate cards skipped", "column_id", columnID, "skipped", res.Skipped)
	}
	if res.Added > 0 || col.cursor != next {
		b.revision++
	}
	col.cursor = next
	return res
}

// MoveOutcome classifies the result of MoveCard.
type MoveOutcome int

const (
	MoveApplied MoveOutcome = iota
	MoveNoop
	MoveStaleSource
	MoveUnknownTarget
)

func (o MoveOutcome) String() string {
	switch o {
	case MoveApplied:
		return "applied"
	case MoveNoop:
		return "noop"
	case MoveStaleSource:
		return "stale_source"
	case MoveUnknownTarget:
		return "unknown_target"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Move describes one committed card move. ToIndex is the final index of the
// card inside ToColumnID.
type Move struct {
	CardID       string
	FromColumnID string
	ToColumnID   string
	FromIndex    int
	ToIndex      int
}

// MoveResult reports what MoveCard did.
type MoveResult struct {
	Outcome MoveOutcome
	Move    Move
}

// Committed reports whether the board changed.
func (r MoveResult) Committed() bool {
	return r.Outcome == MoveApplied
}

// MoveCard moves cardID from fromColumnID into toColumnID. targetIndex is a
// gap in the target column as it looks before the move (0 is before the first
// card, len is after the last) and is clamped into range. Dropping a card into
// one of the two gaps around itself changes nothing.
func (b *Board) MoveCard(cardID, fromColumnID, toColumnID string, targetIndex int) MoveResult {
	from := b.column(fromColumnID)
	if from == nil {
		b.logger.Warn("move rejected: unknown source column", "card_id", cardID, "from", fromColumnID)
		return MoveResult{Outcome: MoveStaleSource}
	}
	fromIndex := indexOf(from.cards, cardID)
	if fromIndex < 0 {
		b.logger.Warn("move rejected: card not in source column", "card_id", cardID, "from", fromColumnID)
		return MoveResult{Outcome: MoveStaleSource}
	}
	to := b.column(toColumnID)
	if to == nil {
		b.logger.Warn("move rejected: unknown target column", "card_id", cardID, "to", toColumnID)
		return MoveResult{Outcome: MoveUnknownTarget}
	}

	move := Move{CardID: cardID, FromColumnID: from.id, ToColumnID: to.id, FromIndex: fromIndex}
	gap := clamp(targetIndex, 0, len(to.cards))

	if from == to {
		if gap == fromIndex || gap == fromIndex+1 {
			move.ToIndex = fromIndex
			return MoveResult{Outcome: MoveNoop, Move: move}
		}
		final := gap
		if gap > fromIndex {
			final--
		}
		card := from.cards[fromIndex]
		from.cards = insertAt(removeAt(from.cards, fromIndex), final, card)
		move.ToIndex = final
	} else {
		card := from.cards[fromIndex]
		from.cards = removeAt(from.cards, fromIndex)
		card.ColumnID = to.id
		to.cards = insertAt(to.cards, gap, card)
		b.owner[cardID] = to.id
		move.ToIndex = gap
	}

	b.revision++
	for _, fn := range b.listeners {
		fn(move)
	}
	return MoveResult{Outcome: MoveApplied, Move: move}
}

// RemoveCard deletes cardID from whichever column holds it.
func (b *Board) RemoveCard(cardID string) bool {
	columnID, ok := b.owner[cardID]
	if !ok {
		return false
	}
	col := b.column(columnID)
	idx := indexOf(col.cards, cardID)
	if idx < 0 {
		return false
	}
	col.cards = removeAt(col.cards, idx)
	delete(b.owner, cardID)
	b.revision++
	return true
}

// Revision changes whenever board content changes and only then.
func (b *Board) Revision() uint64 {
	return b.revision
}

// Epoch changes on every Initialize.
func (b *Board) Epoch() uint64 {
	return b.epoch
}

// Len returns the number of columns.
func (b *Board) Len() int {
	return len(b.columns)
}

// Columns returns copies of all columns in board order.
func (b *Board) Columns() []Column {
	out := make([]Column, 0, len(b.columns))
	for _, col := range b.columns {
		out = append(out, col.snapshot())
	}
	return out
}

// Column returns a copy of the column with id.
func (b *Board) Column(id string) (Column, bool) {
	col := b.column(id)
	if col == nil {
		return Column{}, false
	}
	return col.snapshot(), true
}

// ColumnIndex returns the position of column id in board order.
func (b *Board) ColumnIndex(id string) (int, bool) {
	idx, ok := b.columnAt[id]
	return idx, ok
}

// CardCount returns the number of cards loaded into column id.
func (b *Board) CardCount(id string) int {
	col := b.column(id)
	if col == nil {
		return 0
	}
	return len(col.cards)
}

// Locate finds the column and index currently holding cardID.
func (b *Board) Locate(cardID string) (string, int, bool) {
	columnID, ok := b.owner[cardID]
	if !ok {
		return "", -1, false
	}
	idx := indexOf(b.column(columnID).cards, cardID)
	if idx < 0 {
		return "", -1, false
	}
	return columnID, idx, true
}

// Card returns a copy of cardID.
func (b *Board) Card(cardID string) (Card, bool) {
	columnID, idx, ok := b.Locate(cardID)
	if !ok {
		return Card{}, false
	}
	card := b.column(columnID).cards[idx]
	card.Meta = maps.Clone(card.Meta)
	return card, true
}

// Validate checks that every card is owned by exactly one column and that
// each card's ColumnID matches the column holding it.
func (b *Board) Validate() error {
	seen := map[string]string{}
	for _, col := range b.columns {
		for _, card := range col.cards {
			if prev, dup := seen[card.ID]; dup {
				return fmt.Errorf("card %q present in %q and %q", card.ID, prev, col.id)
			}
			seen[card.ID] = col.id
			if card.ColumnID != col.id {
				return fmt.Errorf("card %q held by %q reports column %q", card.ID, col.id, card.ColumnID)
			}
			if b.owner[card.ID] != col.id {
				return fmt.Errorf("card %q owner index says %q, held by %q", card.ID, b.owner[card.ID], col.id)
			}
		}
	}
	if len(seen) != len(b.owner) {
		return fmt.Errorf("owner index has %d cards, columns hold %d", len(b.owner), len(seen))
	}
	return nil
}

func (b *Board) column(id string) *column {
	idx, ok := b.columnAt[id]
	if !ok {
		return nil
	}
	return b.columns[idx]
}

func (c *column) snapshot() Column {
	cards := make([]Card, len(c.cards))
	for i, card := range c.cards {
		card.Meta = maps.Clone(card.Meta)
		cards[i] = card
	}
	return Column{ID: c.id, Title: c.title, Cards: cards, Cursor: c.cursor}
}

func indexOf(cards []Card, id string) int {
	for i, card := range cards {
		if card.ID == id {
			return i
		}
	}
	return -1
}

func removeAt(cards []Card, idx int) []Card {
	return append(cards[:idx:idx], cards[idx+1:]...)
}

func insertAt(cards []Card, idx int, card Card) []Card {
	out := make([]Card, 0, len(cards)+1)
	out = append(out, cards[:idx]...)
	out = append(out, card)
	return append(out, cards[idx:]...)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
