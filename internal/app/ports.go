package app

import (
	"context"
	"time"

	"github.com/hylla/casetrack/internal/domain"
)

// CaseKey is the keyset position of a case inside its stage.
type CaseKey struct {
	Position int
	ID       string
}

// CasePageQuery selects cases of one stage ordered by (position, id),
// starting strictly after After when it is set.
type CasePageQuery struct {
	StageID string
	After   *CaseKey
	Limit   int
}

// Repository represents the persistence port used by Service.
type Repository interface {
	CreateProcess(context.Context, domain.Process) error
	GetProcess(context.Context, string) (domain.Process, error)
	ListProcesses(context.Context) ([]domain.Process, error)

	CreateStage(context.Context, domain.Stage) error
	GetStage(context.Context, string) (domain.Stage, error)
	ListStages(context.Context, string) ([]domain.Stage, error)

	CreateCase(context.Context, domain.Case) error
	GetCase(context.Context, string) (domain.Case, error)
	ListCasesPage(context.Context, CasePageQuery) ([]domain.Case, error)
	CountCases(context.Context, string) (int, error)
	MaxCasePosition(context.Context, string) (int, bool, error)
	MoveCase(ctx context.Context, caseID, toStageID string, index int, at time.Time) (domain.Case, error)
	DeleteCase(context.Context, string) error

	ListChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}
