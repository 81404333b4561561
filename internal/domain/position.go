package domain

// PositionGap is the spacing between consecutive case positions. Leaving room
// between neighbours lets a move write only the moved case.
const PositionGap = 1024

// PositionBetween returns a position strictly between prev and next. A nil
// bound means the list edge. ok is false when no integer fits and the stage
// must be renumbered.
func PositionBetween(prev, next *int) (int, bool) {
	switch {
	case prev == nil && next == nil:
		return PositionGap, true
	case prev == nil:
		if *next < 2 {
			return 0, false
		}
		return *next / 2, true
	case next == nil:
		return *prev + PositionGap, true
	default:
		if *next-*prev < 2 {
			return 0, false
		}
		return *prev + (*next-*prev)/2, true
	}
}
