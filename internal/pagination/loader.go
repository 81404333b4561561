// Package pagination streams further cards into board columns when a
// column's end-of-list sentinel scrolls into view.
package pagination

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/hylla/casetrack/internal/board"
)

// Page is one fetched page of cards. An empty Next means the column is complete.
type Page struct {
	Cards []board.Card
	Next  string
}

// Fetcher loads the page of columnID that starts at cursor. An empty cursor
// requests the first page.
type Fetcher interface {
	FetchPage(ctx context.Context, columnID, cursor string) (Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, columnID, cursor string) (Page, error)

// FetchPage calls f.
func (f FetcherFunc) FetchPage(ctx context.Context, columnID, cursor string) (Page, error) {
	return f(ctx, columnID, cursor)
}

// Request identifies one page fetch.
type Request struct {
	ColumnID string
	Cursor   string
	Epoch    uint64
}

// Result carries a finished fetch back to the event loop.
type Result struct {
	Request Request
	Page    Page
	Err     error
}

// ApplyOutcome reports what Apply did with a Result.
type ApplyOutcome struct {
	Applied bool
	Stale   bool
	Append  board.AppendResult
	Err     error
}

type watch struct {
	visible  bool
	inFlight bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader tracks one sentinel watch per column that still has pages to load.
// Every method except Fetch must be called from the goroutine that owns the board.
type Loader struct {
	board   *board.Board
	fetcher Fetcher
	logger  *log.Logger
	watches map[string]*watch
	epoch   uint64
}

// New constructs a loader over b.
func New(b *board.Board, f Fetcher, opts ...Option) *Loader {
	l := &Loader{
		board:   b,
		fetcher: f,
		logger:  log.New(io.Discard),
		watches: map[string]*watch{},
		epoch:   b.Epoch(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Observe attaches a sentinel watch to columnID when the column reports
// another page. It returns whether the column is being watched.
func (l *Loader) Observe(columnID string) bool {
	col, ok := l.board.Column(columnID)
	if !ok || !col.Cursor.More {
		l.Detach(columnID)
		return false
	}
	if _, ok := l.watches[columnID]; !ok {
		l.watches[columnID] = &watch{}
	}
	return true
}

// Detach drops the watch for columnID.
func (l *Loader) Detach(columnID string) {
	delete(l.watches, columnID)
}

// Sync reconciles watches with the board. A board reset drops every watch
// and in-flight marker.
func (l *Loader) Sync() {
	if epoch := l.board.Epoch(); epoch != l.epoch {
		l.watches = map[string]*watch{}
		l.epoch = epoch
	}
	for id := range l.watches {
		if _, ok := l.board.Column(id); !ok {
			l.Detach(id)
		}
	}
	for _, col := range l.board.Columns() {
		l.Observe(col.ID)
	}
}

// Observed reports whether columnID has a watch.
func (l *Loader) Observed(columnID string) bool {
	_, ok := l.watches[columnID]
	return ok
}

// InFlight reports whether a fetch for columnID has not resolved yet.
func (l *Loader) InFlight(columnID string) bool {
	w, ok := l.watches[columnID]
	return ok && w.inFlight
}

// OnSentinelVisible is SetVisible(columnID, true).
func (l *Loader) OnSentinelVisible(columnID string) (Request, bool) {
	return l.SetVisible(columnID, true)
}

// SetVisible records the sentinel visibility of columnID and returns a
// request when the sentinel has just become visible and no fetch is running.
func (l *Loader) SetVisible(columnID string, visible bool) (Request, bool) {
	if l.board.Epoch() != l.epoch {
		l.Sync()
	}
	w, ok := l.watches[columnID]
	if !ok {
		return Request{}, false
	}
	if !visible {
		w.visible = false
		return Request{}, false
	}
	if w.visible {
		return Request{}, false
	}
	w.visible = true
	if w.inFlight {
		return Request{}, false
	}
	col, ok := l.board.Column(columnID)
	if !ok {
		l.Detach(columnID)
		return Request{}, false
	}
	w.inFlight = true
	req := Request{ColumnID: columnID, Cursor: col.Cursor.Token, Epoch: l.epoch}
	l.logger.Debug("page fetch triggered", "column_id", columnID, "cursor", req.Cursor)
	return req, true
}

// Fetch runs the fetcher for req. It touches no loader or board state and may
// run on any goroutine.
func (l *Loader) Fetch(ctx context.Context, req Request) Result {
	page, err := l.fetcher.FetchPage(ctx, req.ColumnID, req.Cursor)
	if err != nil {
		return Result{Request: req, Err: fmt.Errorf("fetch page for column %s: %w", req.ColumnID, err)}
	}
	return Result{Request: req, Page: page}
}

// Apply merges a finished fetch into the board. A failed fetch leaves cards
// and cursor untouched; the column retries on its next hidden-to-visible
// transition. A successful fetch re-arms the watch so a sentinel that is
// still on screen triggers the next page.
func (l *Loader) Apply(res Result) ApplyOutcome {
	req := res.Request
	if req.Epoch != l.board.Epoch() {
		l.logger.Debug("page result from previous board ignored", "column_id", req.ColumnID)
		return ApplyOutcome{Stale: true, Err: res.Err}
	}
	w := l.watches[req.ColumnID]
	if w != nil {
		w.inFlight = false
	}
	if res.Err != nil {
		l.logger.Warn("page fetch failed", "column_id", req.ColumnID, "cursor", req.Cursor, "err", res.Err)
		return ApplyOutcome{Err: res.Err}
	}
	col, ok := l.board.Column(req.ColumnID)
	if !ok || col.Cursor.Token != req.Cursor || !col.Cursor.More {
		l.logger.Debug("page result no longer matches column", "column_id", req.ColumnID, "cursor", req.Cursor)
		return ApplyOutcome{Stale: true}
	}
	appended := l.board.AppendCards(req.ColumnID, res.Page.Cards, board.NextCursor(res.Page.Next))
	if w != nil {
		w.visible = false
	}
	l.Observe(req.ColumnID)
	l.logger.Debug("page applied", "column_id", req.ColumnID, "added", appended.Added, "skipped", appended.Skipped, "next", res.Page.Next)
	return ApplyOutcome{Applied: true, Append: appended}
}
