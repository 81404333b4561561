// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/casetrack/internal/app"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// Process is the transport view of one process.
type Process struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stage is the transport view of one stage.
type Stage struct {
	ID        string `json:"id"`
	ProcessID string `json:"process_id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
	WIPLimit  int    `json:"wip_limit"`
}

// Case is the transport view of one case.
type Case struct {
	ID          string     `json:"id"`
	ProcessID   string     `json:"process_id"`
	StageID     string     `json:"stage_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Contact     string     `json:"contact,omitempty"`
	ValueCents  int64      `json:"value_cents,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListCasesRequest selects one page of a stage.
type ListCasesRequest struct {
	StageID string
	Cursor  string
	Limit   int
}

// CasePage is one page of cases. NextCursor is empty on the last page.
type CasePage struct {
	StageID    string `json:"stage_id"`
	Cases      []Case `json:"cases"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// MoveCaseRequest moves a case to Position among the other cases of ToStageID.
type MoveCaseRequest struct {
	CaseID    string `json:"case_id"`
	ToStageID string `json:"to_stage_id"`
	Position  int    `json:"position"`
}

// BoardService is the read and move surface shared by the HTTP and MCP adapters.
type BoardService interface {
	ListProcesses(context.Context) ([]Process, error)
	ListStages(context.Context, string) ([]Stage, error)
	ListCases(context.Context, ListCasesRequest) (CasePage, error)
	MoveCase(context.Context, MoveCaseRequest) (Case, error)
	BoardSnapshot(context.Context, string, int) (app.BoardSnapshot, error)
}
