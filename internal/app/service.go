package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/casetrack/internal/domain"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	StageTemplates  []StageTemplate
	DefaultPageSize int
	MaxPageSize     int
}

// StageTemplate describes a stage created for new processes.
type StageTemplate struct {
	ID       string
	Name     string
	WIPLimit int
	Position int
}

// Page size bounds applied when ServiceConfig leaves them unset.
const (
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service coordinates processes, stages and cases over a Repository.
type Service struct {
	repo           Repository
	idGen          IDGenerator
	clock          Clock
	stageTemplates []StageTemplate
	pageSize       int
	maxPageSize    int
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	templates := sanitizeStageTemplates(cfg.StageTemplates)
	if len(templates) == 0 {
		templates = defaultStageTemplates()
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = MaxPageSize
	}
	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = min(DefaultPageSize, cfg.MaxPageSize)
	}
	return &Service{
		repo:           repo,
		idGen:          idGen,
		clock:          clock,
		stageTemplates: templates,
		pageSize:       cfg.DefaultPageSize,
		maxPageSize:    cfg.MaxPageSize,
	}
}

// PageSize returns the default page size.
func (s *Service) PageSize() int {
	return s.pageSize
}

// EnsureDefaultProcess returns the first process, creating one from the
// stage templates when none exists.
func (s *Service) EnsureDefaultProcess(ctx context.Context) (domain.Process, error) {
	processes, err := s.repo.ListProcesses(ctx)
	if err != nil {
		return domain.Process{}, err
	}
	if len(processes) > 0 {
		return processes[0], nil
	}
	return s.CreateProcess(ctx, CreateProcessInput{Name: "Cases", Description: "Default process"})
}

// CreateProcessInput holds input values for create process operations.
// Stages defaults to the configured stage templates.
type CreateProcessInput struct {
	Name        string
	Description string
	Stages      []StageTemplate
}

// CreateProcess creates a process and its stages.
func (s *Service) CreateProcess(ctx context.Context, in CreateProcessInput) (domain.Process, error) {
	now := s.clock()
	templates := sanitizeStageTemplates(in.Stages)
	if len(templates) == 0 {
		templates = s.stageTemplates
	}
	process, err := s.createProcessOnly(ctx, in.Name, in.Description, now)
	if err != nil {
		return domain.Process{}, err
	}
	if _, err := s.createStages(ctx, process.ID, templates, now); err != nil {
		return domain.Process{}, err
	}
	return process, nil
}

func (s *Service) createProcessOnly(ctx context.Context, name, description string, now time.Time) (domain.Process, error) {
	process, err := domain.NewProcess(s.idGen(), name, description, now)
	if err != nil {
		return domain.Process{}, err
	}
	if err := s.repo.CreateProcess(ctx, process); err != nil {
		return domain.Process{}, err
	}
	return process, nil
}

// GetProcess returns one process.
func (s *Service) GetProcess(ctx context.Context, processID string) (domain.Process, error) {
	return s.repo.GetProcess(ctx, strings.TrimSpace(processID))
}

// ListProcesses lists all processes ordered by creation.
func (s *Service) ListProcesses(ctx context.Context) ([]domain.Process, error) {
	processes, err := s.repo.ListProcesses(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(processes, func(a, b domain.Process) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return processes, nil
}

// ListStages lists the stages of a process in board order.
func (s *Service) ListStages(ctx context.Context, processID string) ([]domain.Stage, error) {
	stages, err := s.repo.ListStages(ctx, strings.TrimSpace(processID))
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(stages, func(a, b domain.Stage) int {
		return a.Position - b.Position
	})
	return stages, nil
}

// CreateCaseInput holds input values for create case operations.
type CreateCaseInput struct {
	ProcessID   string
	StageID     string
	Title       string
	Description string
	Contact     string
	ValueCents  int64
	Currency    string
	DueAt       *time.Time
}

// CreateCase appends a new case to the end of its stage.
func (s *Service) CreateCase(ctx context.Context, in CreateCaseInput) (domain.Case, error) {
	stage, err := s.repo.GetStage(ctx, strings.TrimSpace(in.StageID))
	if err != nil {
		return domain.Case{}, err
	}
	if in.ProcessID == "" {
		in.ProcessID = stage.ProcessID
	}
	if stage.ProcessID != strings.TrimSpace(in.ProcessID) {
		return domain.Case{}, ErrStageMismatch
	}
	last, ok, err := s.repo.MaxCasePosition(ctx, stage.ID)
	if err != nil {
		return domain.Case{}, err
	}
	var prev *int
	if ok {
		prev = &last
	}
	position, _ := domain.PositionBetween(prev, nil)

	c, err := domain.NewCase(domain.CaseInput{
		ID:          s.idGen(),
		ProcessID:   stage.ProcessID,
		StageID:     stage.ID,
		Position:    position,
		Title:       in.Title,
		Description: in.Description,
		Contact:     in.Contact,
		ValueCents:  in.ValueCents,
		Currency:    in.Currency,
		DueAt:       in.DueAt,
	}, s.clock())
	if err != nil {
		return domain.Case{}, err
	}
	if err := s.repo.CreateCase(ctx, c); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

// GetCase returns one case.
func (s *Service) GetCase(ctx context.Context, caseID string) (domain.Case, error) {
	return s.repo.GetCase(ctx, strings.TrimSpace(caseID))
}

// MoveCase persists a committed board move: caseID ends up at index inside
// toStageID, counted among the other cases of that stage.
func (s *Service) MoveCase(ctx context.Context, caseID, toStageID string, index int) (domain.Case, error) {
	if index < 0 {
		return domain.Case{}, domain.ErrInvalidPosition
	}
	c, err := s.repo.GetCase(ctx, strings.TrimSpace(caseID))
	if err != nil {
		return domain.Case{}, err
	}
	stage, err := s.repo.GetStage(ctx, strings.TrimSpace(toStageID))
	if err != nil {
		return domain.Case{}, err
	}
	if stage.ProcessID != c.ProcessID {
		return domain.Case{}, ErrStageMismatch
	}
	moved, err := s.repo.MoveCase(ctx, c.ID, stage.ID, index, s.clock())
	if err != nil {
		return domain.Case{}, fmt.Errorf("move case %s: %w", c.ID, err)
	}
	return moved, nil
}

// DeleteCase removes a case.
func (s *Service) DeleteCase(ctx context.Context, caseID string) error {
	return s.repo.DeleteCase(ctx, strings.TrimSpace(caseID))
}

// ListChangeEvents returns the newest ledger entries for a process.
func (s *Service) ListChangeEvents(ctx context.Context, processID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListChangeEvents(ctx, strings.TrimSpace(processID), limit)
}

// CasePage is one page of a stage plus the token for the following page.
// An empty NextCursor means the stage has no more cases.
type CasePage struct {
	StageID    string
	Cases      []domain.Case
	NextCursor string
}

// FetchCasePage returns the page of stageID that starts at cursor. The same
// cursor always yields the same page for unchanged data.
func (s *Service) FetchCasePage(ctx context.Context, stageID, cursor string, limit int) (CasePage, error) {
	stageID = strings.TrimSpace(stageID)
	if stageID == "" {
		return CasePage{}, domain.ErrInvalidStageID
	}
	if limit < 0 || limit > s.maxPageSize {
		return CasePage{}, fmt.Errorf("%w: %d (max %d)", ErrInvalidPageSize, limit, s.maxPageSize)
	}
	if limit == 0 {
		limit = s.pageSize
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return CasePage{}, err
	}
	if after != nil {
		if err := s.reanchorCursor(ctx, stageID, after); err != nil {
			return CasePage{}, err
		}
	}
	cases, err := s.repo.ListCasesPage(ctx, CasePageQuery{StageID: stageID, After: after, Limit: limit + 1})
	if err != nil {
		return CasePage{}, err
	}
	page := CasePage{StageID: stageID, Cases: cases}
	if len(cases) > limit {
		page.Cases = cases[:limit]
		last := page.Cases[limit-1]
		page.NextCursor = EncodeCursor(CaseKey{Position: last.Position, ID: last.ID})
	}
	return page, nil
}

// reanchorCursor swaps the encoded position for the anchor case's current one
// while that case is still in the stage, so a stage renumbered between pages
// neither skips nor repeats cases.
func (s *Service) reanchorCursor(ctx context.Context, stageID string, after *CaseKey) error {
	c, err := s.repo.GetCase(ctx, after.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("resolve cursor case %q: %w", after.ID, err)
	case c.StageID == stageID:
		after.Position = c.Position
	}
	return nil
}

// defaultStageTemplates returns default stage templates.
func defaultStageTemplates() []StageTemplate {
	return []StageTemplate{
		{ID: "intake", Name: "Intake", Position: 0},
		{ID: "triage", Name: "Triage", Position: 1},
		{ID: "active", Name: "In Progress", WIPLimit: 5, Position: 2},
		{ID: "review", Name: "Review", Position: 3},
		{ID: "closed", Name: "Closed", Position: 4},
	}
}

// sanitizeStageTemplates trims, dedupes and orders templates.
func sanitizeStageTemplates(in []StageTemplate) []StageTemplate {
	if len(in) == 0 {
		return nil
	}
	out := make([]StageTemplate, 0, len(in))
	seen := map[string]struct{}{}
	for idx, stage := range in {
		stage.Name = strings.TrimSpace(stage.Name)
		stage.ID = strings.TrimSpace(strings.ToLower(stage.ID))
		if stage.Name == "" {
			continue
		}
		if stage.ID == "" {
			stage.ID = normalizeStageKey(stage.Name)
		}
		if _, ok := seen[stage.ID]; ok {
			continue
		}
		seen[stage.ID] = struct{}{}
		if stage.Position < 0 {
			stage.Position = idx
		}
		if stage.WIPLimit < 0 {
			stage.WIPLimit = 0
		}
		out = append(out, stage)
	}
	slices.SortStableFunc(out, func(a, b StageTemplate) int {
		return a.Position - b.Position
	})
	return out
}

// normalizeStageKey turns a stage name into a lowercase dash-separated key.
func normalizeStageKey(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// createStages persists templates as stages of processID, keyed by template id.
func (s *Service) createStages(ctx context.Context, processID string, templates []StageTemplate, now time.Time) (map[string]domain.Stage, error) {
	out := make(map[string]domain.Stage, len(templates))
	for idx, tmpl := range templates {
		stage, err := domain.NewStage(s.idGen(), processID, tmpl.Name, idx, tmpl.WIPLimit, now)
		if err != nil {
			return nil, fmt.Errorf("create stage %q: %w", tmpl.Name, err)
		}
		if err := s.repo.CreateStage(ctx, stage); err != nil {
			return nil, fmt.Errorf("persist stage %q: %w", tmpl.Name, err)
		}
		out[tmpl.ID] = stage
	}
	return out, nil
}
