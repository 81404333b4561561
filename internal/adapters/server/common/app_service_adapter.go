package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/casetrack/internal/app"
	"github.com/hylla/casetrack/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// ListProcesses lists every process.
func (a *AppServiceAdapter) ListProcesses(ctx context.Context) ([]Process, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	processes, err := a.service.ListProcesses(ctx)
	if err != nil {
		return nil, mapAppError("list processes", err)
	}
	out := make([]Process, 0, len(processes))
	for _, p := range processes {
		out = append(out, Process{ID: p.ID, Name: p.Name, Description: p.Description, CreatedAt: p.CreatedAt})
	}
	return out, nil
}

// ListStages lists the stages of processID in board order.
func (a *AppServiceAdapter) ListStages(ctx context.Context, processID string) ([]Stage, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	processID = strings.TrimSpace(processID)
	if processID == "" {
		return nil, fmt.Errorf("process_id is required: %w", ErrInvalidRequest)
	}
	if _, err := a.service.GetProcess(ctx, processID); err != nil {
		return nil, mapAppError("list stages", err)
	}
	stages, err := a.service.ListStages(ctx, processID)
	if err != nil {
		return nil, mapAppError("list stages", err)
	}
	out := make([]Stage, 0, len(stages))
	for _, st := range stages {
		out = append(out, mapDomainStage(st))
	}
	return out, nil
}

// ListCases returns one page of a stage.
func (a *AppServiceAdapter) ListCases(ctx context.Context, in ListCasesRequest) (CasePage, error) {
	if err := a.ready(); err != nil {
		return CasePage{}, err
	}
	in.StageID = strings.TrimSpace(in.StageID)
	if in.StageID == "" {
		return CasePage{}, fmt.Errorf("stage_id is required: %w", ErrInvalidRequest)
	}
	page, err := a.service.FetchCasePage(ctx, in.StageID, strings.TrimSpace(in.Cursor), in.Limit)
	if err != nil {
		return CasePage{}, mapAppError("list cases", err)
	}
	out := CasePage{StageID: page.StageID, Cases: make([]Case, 0, len(page.Cases)), NextCursor: page.NextCursor}
	for _, c := range page.Cases {
		out.Cases = append(out.Cases, mapDomainCase(c))
	}
	return out, nil
}

// MoveCase persists one case move.
func (a *AppServiceAdapter) MoveCase(ctx context.Context, in MoveCaseRequest) (Case, error) {
	if err := a.ready(); err != nil {
		return Case{}, err
	}
	in.CaseID = strings.TrimSpace(in.CaseID)
	in.ToStageID = strings.TrimSpace(in.ToStageID)
	if in.CaseID == "" || in.ToStageID == "" {
		return Case{}, fmt.Errorf("case_id and to_stage_id are required: %w", ErrInvalidRequest)
	}
	moved, err := a.service.MoveCase(ctx, in.CaseID, in.ToStageID, in.Position)
	if err != nil {
		return Case{}, mapAppError("move case", err)
	}
	return mapDomainCase(moved), nil
}

// BoardSnapshot returns the first page of every stage of processID.
func (a *AppServiceAdapter) BoardSnapshot(ctx context.Context, processID string, limit int) (app.BoardSnapshot, error) {
	if err := a.ready(); err != nil {
		return app.BoardSnapshot{}, err
	}
	if strings.TrimSpace(processID) == "" {
		return app.BoardSnapshot{}, fmt.Errorf("process_id is required: %w", ErrInvalidRequest)
	}
	snap, err := a.service.BoardSnapshot(ctx, processID, limit)
	if err != nil {
		return app.BoardSnapshot{}, mapAppError("board snapshot", err)
	}
	return snap, nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured")
	}
	return nil
}

func mapDomainStage(st domain.Stage) Stage {
	return Stage{ID: st.ID, ProcessID: st.ProcessID, Name: st.Name, Position: st.Position, WIPLimit: st.WIPLimit}
}

func mapDomainCase(c domain.Case) Case {
	return Case{
		ID:          c.ID,
		ProcessID:   c.ProcessID,
		StageID:     c.StageID,
		Title:       c.Title,
		Description: c.Description,
		Contact:     c.Contact,
		ValueCents:  c.ValueCents,
		Currency:    c.Currency,
		DueAt:       c.DueAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// mapAppError maps app/domain errors into transport-layer error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrInvalidCursor),
		errors.Is(err, app.ErrInvalidPageSize),
		errors.Is(err, app.ErrStageMismatch),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidStageID),
		errors.Is(err, domain.ErrInvalidPosition):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
