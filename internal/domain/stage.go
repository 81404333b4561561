package domain

import (
	"strings"
	"time"
)

// Stage is an ordered step of a process, rendered as one board column.
type Stage struct {
	ID        string
	ProcessID string
	Name      string
	Position  int
	WIPLimit  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStage constructs a validated stage.
func NewStage(id, processID, name string, position, wipLimit int, now time.Time) (Stage, error) {
	id = strings.TrimSpace(id)
	processID = strings.TrimSpace(processID)
	name = strings.TrimSpace(name)
	if id == "" || processID == "" {
		return Stage{}, ErrInvalidID
	}
	if name == "" {
		return Stage{}, ErrInvalidName
	}
	if position < 0 || wipLimit < 0 {
		return Stage{}, ErrInvalidPosition
	}
	return Stage{
		ID:        id,
		ProcessID: processID,
		Name:      name,
		Position:  position,
		WIPLimit:  wipLimit,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// OverLimit reports whether count exceeds the stage WIP limit. Zero means unlimited.
func (s Stage) OverLimit(count int) bool {
	return s.WIPLimit > 0 && count > s.WIPLimit
}
