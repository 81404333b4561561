package tui

import (
	"context"
	"strings"

	"github.com/hylla/casetrack/internal/board"
	"github.com/hylla/casetrack/internal/domain"
	"github.com/hylla/casetrack/internal/pagination"
)

// Card meta keys carried on board cards.
const (
	metaDescription = "description"
	metaContact     = "contact"
	metaValue       = "value"
	metaDue         = "due"
)

const dueLayout = "2006-01-02"

// cardFromCase projects a persisted case into the board's display payload.
func cardFromCase(c domain.Case) board.Card {
	meta := map[string]string{}
	if v := strings.TrimSpace(c.Description); v != "" {
		meta[metaDescription] = v
	}
	if v := strings.TrimSpace(c.Contact); v != "" {
		meta[metaContact] = v
	}
	if v := c.FormatValue(); v != "" {
		meta[metaValue] = v
	}
	if c.DueAt != nil {
		meta[metaDue] = c.DueAt.UTC().Format(dueLayout)
	}
	return board.Card{
		ID:       c.ID,
		Title:    c.Title,
		ColumnID: c.StageID,
		Meta:     meta,
	}
}

// caseFetcher adapts the service's stage pages to the pagination loader.
func caseFetcher(svc Service, pageSize int) pagination.Fetcher {
	return pagination.FetcherFunc(func(ctx context.Context, stageID, cursor string) (pagination.Page, error) {
		page, err := svc.FetchCasePage(ctx, stageID, cursor, pageSize)
		if err != nil {
			return pagination.Page{}, err
		}
		cards := make([]board.Card, 0, len(page.Cases))
		for _, c := range page.Cases {
			cards = append(cards, cardFromCase(c))
		}
		return pagination.Page{Cards: cards, Next: page.NextCursor}, nil
	})
}

// cardSummary renders the enabled secondary fields of a card on one line.
func cardSummary(card board.Card, fields CardFieldConfig) string {
	parts := make([]string, 0, 3)
	if fields.ShowValue {
		if v := card.Meta[metaValue]; v != "" {
			parts = append(parts, v)
		}
	}
	if fields.ShowDueDate {
		if v := card.Meta[metaDue]; v != "" {
			parts = append(parts, "due "+v)
		}
	}
	if fields.ShowContact {
		if v := card.Meta[metaContact]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " · ")
}

// moveQueue serializes move persistence so the store sees moves in commit order.
type moveQueue struct {
	pending  []board.Move
	inFlight bool
}

func (q *moveQueue) push(mv board.Move) {
	q.pending = append(q.pending, mv)
}

// next pops the oldest move unless one is still being saved.
func (q *moveQueue) next() (board.Move, bool) {
	if q.inFlight || len(q.pending) == 0 {
		return board.Move{}, false
	}
	mv := q.pending[0]
	q.pending = q.pending[1:]
	q.inFlight = true
	return mv, true
}

func (q *moveQueue) done() {
	q.inFlight = false
}

func (q *moveQueue) len() int {
	n := len(q.pending)
	if q.inFlight {
		n++
	}
	return n
}
