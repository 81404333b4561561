package drag

// Kind distinguishes column drop zones from card candidates.
type Kind int

const (
	KindColumn Kind = iota
	KindCard
)

// Candidate is one potential drop target laid out on screen.
// For KindCard, Index is the card's position in its column. For KindColumn,
// Len is the number of cards currently loaded into the column.
type Candidate struct {
	Kind     Kind
	ColumnID string
	CardID   string
	Index    int
	Len      int
	Rect     Rect
}

// Target is a resolved drop location: a gap index inside a column.
// CardID names the hovered card, empty when hovering the column zone.
type Target struct {
	ColumnID string
	Index    int
	CardID   string
}

type score struct {
	corners int
	area    float64
	dist    float64
	order   int
}

func (s score) beats(o score) bool {
	if s.corners != o.corners {
		return s.corners > o.corners
	}
	if s.area != o.area {
		return s.area > o.area
	}
	if s.dist != o.dist {
		return s.dist < o.dist
	}
	return s.order < o.order
}

func scoreCandidate(pointer Point, active Rect, c Candidate, order int) (score, bool) {
	s := score{order: order, dist: distance(c.Rect.Center(), pointer)}
	if active.Empty() {
		if !c.Rect.Contains(pointer) {
			return s, false
		}
		s.corners = 4
		return s, true
	}
	for _, corner := range active.Corners() {
		if c.Rect.touches(corner) {
			s.corners++
		}
	}
	s.area = active.IntersectionArea(c.Rect)
	if s.area == 0 && !c.Rect.Contains(pointer) {
		return s, false
	}
	return s, true
}

// ResolveDropTarget picks where a dragged card would land. active is the
// floating card's rectangle; an empty active rect falls back to the pointer.
//
// The winning column is the one containing most corners of active, then the
// largest overlap, then the centre closest to the pointer. Inside that column
// the same ranking picks a card; the gap lands before the card when the
// pointer is above its midpoint and after it otherwise. With no overlapping
// card the target is the end of the column.
func ResolveDropTarget(pointer Point, active Rect, candidates []Candidate) (Target, bool) {
	var (
		column     Candidate
		colScore   score
		haveColumn bool
	)
	for i, c := range candidates {
		if c.Kind != KindColumn {
			continue
		}
		s, ok := scoreCandidate(pointer, active, c, i)
		if !ok {
			continue
		}
		if !haveColumn || s.beats(colScore) {
			column, colScore, haveColumn = c, s, true
		}
	}
	if !haveColumn {
		return Target{}, false
	}

	var (
		card      Candidate
		cardScore score
		haveCard  bool
	)
	for i, c := range candidates {
		if c.Kind != KindCard || c.ColumnID != column.ColumnID {
			continue
		}
		s, ok := scoreCandidate(pointer, active, c, i)
		if !ok {
			continue
		}
		if !haveCard || s.beats(cardScore) {
			card, cardScore, haveCard = c, s, true
		}
	}
	if !haveCard {
		return Target{ColumnID: column.ColumnID, Index: column.Len}, true
	}
	gap := card.Index
	if pointer.Y >= card.Rect.Center().Y {
		gap++
	}
	return Target{ColumnID: column.ColumnID, Index: gap, CardID: card.CardID}, true
}
