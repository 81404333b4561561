package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hylla/casetrack/internal/domain"
)

type fakeRepo struct {
	mu        sync.Mutex
	processes map[string]domain.Process
	stages    map[string]domain.Stage
	cases     map[string]domain.Case
	events    []domain.ChangeEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		processes: map[string]domain.Process{},
		stages:    map[string]domain.Stage{},
		cases:     map[string]domain.Case{},
	}
}

func (f *fakeRepo) CreateProcess(_ context.Context, p domain.Process) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processes[p.ID] = p
	return nil
}

func (f *fakeRepo) GetProcess(_ context.Context, id string) (domain.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.processes[id]
	if !ok {
		return domain.Process{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) ListProcesses(_ context.Context) ([]domain.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Process, 0, len(f.processes))
	for _, p := range f.processes {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) CreateStage(_ context.Context, s domain.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages[s.ID] = s
	return nil
}

func (f *fakeRepo) GetStage(_ context.Context, id string) (domain.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stages[id]
	if !ok {
		return domain.Stage{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) ListStages(_ context.Context, processID string) ([]domain.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Stage{}
	for _, s := range f.stages {
		if s.ProcessID == processID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateCase(_ context.Context, c domain.Case) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cases[c.ID] = c
	f.events = append(f.events, domain.ChangeEvent{ProcessID: c.ProcessID, CaseID: c.ID, Operation: domain.ChangeOperationCreate})
	return nil
}

func (f *fakeRepo) GetCase(_ context.Context, id string) (domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok {
		return domain.Case{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ordered(stageID, exclude string) []domain.Case {
	out := []domain.Case{}
	for _, c := range f.cases {
		if c.StageID == stageID && c.ID != exclude {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Case) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	return out
}

func (f *fakeRepo) ListCasesPage(_ context.Context, q CasePageQuery) ([]domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Case{}
	for _, c := range f.ordered(q.StageID, "") {
		if q.After != nil && (c.Position < q.After.Position || (c.Position == q.After.Position && c.ID <= q.After.ID)) {
			continue
		}
		out = append(out, c)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) CountCases(_ context.Context, stageID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ordered(stageID, "")), nil
}

func (f *fakeRepo) MaxCasePosition(_ context.Context, stageID string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cases := f.ordered(stageID, "")
	if len(cases) == 0 {
		return 0, false, nil
	}
	return cases[len(cases)-1].Position, true, nil
}

func (f *fakeRepo) MoveCase(_ context.Context, caseID, toStageID string, index int, at time.Time) (domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[caseID]
	if !ok {
		return domain.Case{}, ErrNotFound
	}
	others := f.ordered(toStageID, caseID)
	index = min(index, len(others))
	order := slices.Insert(others, index, c)
	for i, oc := range order {
		oc.StageID = toStageID
		oc.Position = (i + 1) * domain.PositionGap
		if oc.ID == caseID {
			oc.UpdatedAt = at
			c = oc
		}
		f.cases[oc.ID] = oc
	}
	f.events = append(f.events, domain.ChangeEvent{ProcessID: c.ProcessID, CaseID: c.ID, Operation: domain.ChangeOperationMove})
	return c, nil
}

func (f *fakeRepo) DeleteCase(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cases[id]; !ok {
		return ErrNotFound
	}
	delete(f.cases, id)
	return nil
}

func (f *fakeRepo) ListChangeEvents(_ context.Context, processID string, limit int) ([]domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ChangeEvent{}
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.events[i].ProcessID == processID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func newTestService(t *testing.T, cfg ServiceConfig) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	n := 0
	idGen := func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return NewService(repo, idGen, clock, cfg), repo
}

func TestEnsureDefaultProcessCreatesStagesOnce(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{})
	ctx := context.Background()
	p, err := svc.EnsureDefaultProcess(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultProcess() error = %v", err)
	}
	stages, err := svc.ListStages(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListStages() error = %v", err)
	}
	if len(stages) != len(defaultStageTemplates()) {
		t.Fatalf("expected %d stages, got %d", len(defaultStageTemplates()), len(stages))
	}
	for i, st := range stages {
		if st.Position != i {
			t.Fatalf("stage %q at position %d, want %d", st.Name, st.Position, i)
		}
	}
	again, err := svc.EnsureDefaultProcess(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultProcess() second error = %v", err)
	}
	if again.ID != p.ID {
		t.Fatalf("expected same process, got %q and %q", p.ID, again.ID)
	}
}

func TestCreateProcessUsesConfiguredTemplates(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{StageTemplates: []StageTemplate{
		{Name: "Later", Position: 2},
		{Name: "First", Position: 0},
		{Name: "first", Position: 1},
		{Name: "  "},
	}})
	p, err := svc.CreateProcess(context.Background(), CreateProcessInput{Name: "Claims"})
	if err != nil {
		t.Fatalf("CreateProcess() error = %v", err)
	}
	stages, _ := svc.ListStages(context.Background(), p.ID)
	if len(stages) != 2 || stages[0].Name != "First" || stages[1].Name != "Later" {
		t.Fatalf("unexpected stages %#v", stages)
	}
}

func seedStage(t *testing.T, svc *Service, n int) (domain.Process, []domain.Stage) {
	t.Helper()
	ctx := context.Background()
	p, err := svc.EnsureDefaultProcess(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultProcess() error = %v", err)
	}
	stages, _ := svc.ListStages(ctx, p.ID)
	for i := range n {
		if _, err := svc.CreateCase(ctx, CreateCaseInput{StageID: stages[0].ID, Title: fmt.Sprintf("case %d", i+1)}); err != nil {
			t.Fatalf("CreateCase() error = %v", err)
		}
	}
	return p, stages
}

func TestCreateCaseAppendsWithGaps(t *testing.T) {
	svc, repo := newTestService(t, ServiceConfig{})
	_, stages := seedStage(t, svc, 3)
	cases := repo.ordered(stages[0].ID, "")
	for i, c := range cases {
		if c.Position != (i+1)*domain.PositionGap {
			t.Fatalf("case %d position = %d", i, c.Position)
		}
	}

	_, err := svc.CreateCase(context.Background(), CreateCaseInput{ProcessID: "other", StageID: stages[0].ID, Title: "x"})
	if !errors.Is(err, ErrStageMismatch) {
		t.Fatalf("expected ErrStageMismatch, got %v", err)
	}
	_, err = svc.CreateCase(context.Background(), CreateCaseInput{StageID: "missing", Title: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchCasePageWalksStage(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{})
	_, stages := seedStage(t, svc, 5)
	ctx := context.Background()

	var (
		titles []string
		cursor string
		pages  int
	)
	for {
		page, err := svc.FetchCasePage(ctx, stages[0].ID, cursor, 2)
		if err != nil {
			t.Fatalf("FetchCasePage() error = %v", err)
		}
		pages++
		for _, c := range page.Cases {
			titles = append(titles, c.Title)
		}
		if page.NextCursor == "" {
			break
		}
		again, _ := svc.FetchCasePage(ctx, stages[0].ID, cursor, 2)
		if len(again.Cases) != len(page.Cases) || again.NextCursor != page.NextCursor {
			t.Fatal("expected the same cursor to yield the same page")
		}
		cursor = page.NextCursor
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages, got %d", pages)
	}
	want := []string{"case 1", "case 2", "case 3", "case 4", "case 5"}
	if !slices.Equal(titles, want) {
		t.Fatalf("titles = %v, want %v", titles, want)
	}
}

func TestFetchCasePageCursorAnchors(t *testing.T) {
	svc, repo := newTestService(t, ServiceConfig{})
	_, stages := seedStage(t, svc, 5)
	ctx := context.Background()
	first, err := svc.FetchCasePage(ctx, stages[0].ID, "", 2)
	if err != nil {
		t.Fatalf("FetchCasePage() error = %v", err)
	}
	anchor := first.Cases[1]

	repo.mu.Lock()
	for id, c := range repo.cases {
		c.Position /= domain.PositionGap
		repo.cases[id] = c
	}
	repo.mu.Unlock()
	page, err := svc.FetchCasePage(ctx, stages[0].ID, first.NextCursor, 2)
	if err != nil {
		t.Fatalf("FetchCasePage(renumbered) error = %v", err)
	}
	if got := caseTitles(page.Cases); !slices.Equal(got, []string{"case 3", "case 4"}) {
		t.Fatalf("expected paging to resume after %q, got %v", anchor.Title, got)
	}

	if err := svc.DeleteCase(ctx, anchor.ID); err != nil {
		t.Fatalf("DeleteCase() error = %v", err)
	}
	repo.mu.Lock()
	for id, c := range repo.cases {
		c.Position *= domain.PositionGap
		repo.cases[id] = c
	}
	repo.mu.Unlock()
	page, err = svc.FetchCasePage(ctx, stages[0].ID, first.NextCursor, 2)
	if err != nil {
		t.Fatalf("FetchCasePage(deleted anchor) error = %v", err)
	}
	if got := caseTitles(page.Cases); !slices.Equal(got, []string{"case 3", "case 4"}) {
		t.Fatalf("expected encoded position to be used for a deleted anchor, got %v", got)
	}
}

func caseTitles(cases []domain.Case) []string {
	out := make([]string, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.Title)
	}
	return out
}

func TestFetchCasePageValidation(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{MaxPageSize: 10})
	ctx := context.Background()
	if _, err := svc.FetchCasePage(ctx, "s", "", 11); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
	if _, err := svc.FetchCasePage(ctx, "s", "%%%", 1); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
	if _, err := svc.FetchCasePage(ctx, " ", "", 1); !errors.Is(err, domain.ErrInvalidStageID) {
		t.Fatalf("expected ErrInvalidStageID, got %v", err)
	}
	if svc.PageSize() != 10 {
		t.Fatalf("expected default page size clamped to 10, got %d", svc.PageSize())
	}
}

func TestCursorRoundTripAndRejects(t *testing.T) {
	key := CaseKey{Position: 2048, ID: "abc:def"}
	got, err := DecodeCursor(EncodeCursor(key))
	if err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
	if *got != key {
		t.Fatalf("DecodeCursor() = %#v, want %#v", *got, key)
	}
	if got, err := DecodeCursor(""); err != nil || got != nil {
		t.Fatalf("expected empty cursor to be first page, got %v %v", got, err)
	}
	for _, bad := range []string{"!!", EncodeCursor(CaseKey{Position: 1}), "LTE6eA"} {
		if _, err := DecodeCursor(bad); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("DecodeCursor(%q) expected ErrInvalidCursor, got %v", bad, err)
		}
	}
}

func TestMoveCasePersistsAndValidates(t *testing.T) {
	svc, repo := newTestService(t, ServiceConfig{})
	p, stages := seedStage(t, svc, 3)
	ctx := context.Background()
	first := repo.ordered(stages[0].ID, "")[0]

	moved, err := svc.MoveCase(ctx, first.ID, stages[1].ID, 0)
	if err != nil {
		t.Fatalf("MoveCase() error = %v", err)
	}
	if moved.StageID != stages[1].ID {
		t.Fatalf("expected case in %q, got %q", stages[1].ID, moved.StageID)
	}
	if n, _ := repo.CountCases(ctx, stages[0].ID); n != 2 {
		t.Fatalf("expected 2 cases left, got %d", n)
	}

	if _, err := svc.MoveCase(ctx, first.ID, stages[1].ID, -1); !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	other, _ := svc.CreateProcess(ctx, CreateProcessInput{Name: "Other"})
	otherStages, _ := svc.ListStages(ctx, other.ID)
	if _, err := svc.MoveCase(ctx, first.ID, otherStages[0].ID, 0); !errors.Is(err, ErrStageMismatch) {
		t.Fatalf("expected ErrStageMismatch, got %v", err)
	}
	if _, err := svc.MoveCase(ctx, "ghost", stages[0].ID, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	events, err := svc.ListChangeEvents(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("ListChangeEvents() error = %v", err)
	}
	if len(events) != 4 || events[0].Operation != domain.ChangeOperationMove {
		t.Fatalf("unexpected events %#v", events)
	}
}

func TestDeleteCase(t *testing.T) {
	svc, repo := newTestService(t, ServiceConfig{})
	_, stages := seedStage(t, svc, 1)
	c := repo.ordered(stages[0].ID, "")[0]
	if err := svc.DeleteCase(context.Background(), c.ID); err != nil {
		t.Fatalf("DeleteCase() error = %v", err)
	}
	if err := svc.DeleteCase(context.Background(), c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImportProcess(t *testing.T) {
	svc, repo := newTestService(t, ServiceConfig{})
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	summary, err := svc.ImportProcess(context.Background(), ProcessDefinition{
		Name: "Onboarding",
		Stages: []StageDefinition{
			{ID: "new", Name: "New"},
			{Name: "Paperwork Sent", WIPLimit: 3},
		},
		Cases: []CaseDefinition{
			{Title: "Acme", Stage: "new", ValueCents: 5000},
			{Title: "Globex", Stage: "Paperwork Sent", Due: &due},
			{Title: "Initech", Stage: "paperwork-sent"},
		},
	})
	if err != nil {
		t.Fatalf("ImportProcess() error = %v", err)
	}
	if summary.Stages != 2 || summary.Cases != 3 {
		t.Fatalf("unexpected summary %#v", summary)
	}
	stages, _ := svc.ListStages(context.Background(), summary.ProcessID)
	if got := len(repo.ordered(stages[1].ID, "")); got != 2 {
		t.Fatalf("expected 2 cases in second stage, got %d", got)
	}
	if stages[1].WIPLimit != 3 {
		t.Fatalf("expected wip limit 3, got %d", stages[1].WIPLimit)
	}
}

func TestProcessDefinitionValidate(t *testing.T) {
	cases := []ProcessDefinition{
		{},
		{Name: "x"},
		{Name: "x", Stages: []StageDefinition{{Name: "A"}, {ID: "a", Name: "Other"}}},
		{Name: "x", Stages: []StageDefinition{{Name: "A"}}, Cases: []CaseDefinition{{Title: "t", Stage: "b"}}},
		{Name: "x", Stages: []StageDefinition{{Name: "A"}}, Cases: []CaseDefinition{{Stage: "a"}}},
	}
	for i, def := range cases {
		if err := def.Validate(); !errors.Is(err, ErrInvalidDefinition) {
			t.Fatalf("case %d: expected ErrInvalidDefinition, got %v", i, err)
		}
	}
}
