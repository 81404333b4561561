package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hylla/casetrack/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "casetrack.board.v1"

// BoardSnapshot is the first page of every stage of one process.
type BoardSnapshot struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Process    SnapshotProcess `json:"process"`
	Stages     []SnapshotStage `json:"stages"`
}

// SnapshotProcess represents snapshot process data used by this package.
type SnapshotProcess struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SnapshotStage is one stage with its loaded cases and next page token.
type SnapshotStage struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Position   int            `json:"position"`
	WIPLimit   int            `json:"wip_limit"`
	Total      int            `json:"total"`
	Cases      []SnapshotCase `json:"cases"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// SnapshotCase represents snapshot case data used by this package.
type SnapshotCase struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Contact     string     `json:"contact,omitempty"`
	ValueCents  int64      `json:"value_cents,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Position    int        `json:"position"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BoardSnapshot loads the first page of every stage concurrently. limit 0
// uses the default page size.
func (s *Service) BoardSnapshot(ctx context.Context, processID string, limit int) (BoardSnapshot, error) {
	process, err := s.repo.GetProcess(ctx, strings.TrimSpace(processID))
	if err != nil {
		return BoardSnapshot{}, err
	}
	stages, err := s.ListStages(ctx, process.ID)
	if err != nil {
		return BoardSnapshot{}, err
	}

	out := BoardSnapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Process:    SnapshotProcess{ID: process.ID, Name: process.Name, Description: process.Description},
		Stages:     make([]SnapshotStage, len(stages)),
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for idx, stage := range stages {
		group.Go(func() error {
			page, err := s.FetchCasePage(gctx, stage.ID, "", limit)
			if err != nil {
				return fmt.Errorf("load stage %q: %w", stage.Name, err)
			}
			total, err := s.repo.CountCases(gctx, stage.ID)
			if err != nil {
				return fmt.Errorf("count stage %q: %w", stage.Name, err)
			}
			out.Stages[idx] = snapshotStageFromDomain(stage, page, total)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return BoardSnapshot{}, err
	}
	return out, nil
}

func snapshotStageFromDomain(stage domain.Stage, page CasePage, total int) SnapshotStage {
	cases := make([]SnapshotCase, 0, len(page.Cases))
	for _, c := range page.Cases {
		cases = append(cases, SnapshotCase{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Contact:     c.Contact,
			ValueCents:  c.ValueCents,
			Currency:    c.Currency,
			DueAt:       copyTimePtr(c.DueAt),
			Position:    c.Position,
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return SnapshotStage{
		ID:         stage.ID,
		Name:       stage.Name,
		Position:   stage.Position,
		WIPLimit:   stage.WIPLimit,
		Total:      total,
		Cases:      cases,
		NextCursor: page.NextCursor,
	}
}

func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	ts := *in
	return &ts
}
