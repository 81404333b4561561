package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/log"
	"github.com/hylla/casetrack/internal/app"
	"github.com/hylla/casetrack/internal/board"
	"github.com/hylla/casetrack/internal/domain"
	"github.com/hylla/casetrack/internal/drag"
	"github.com/hylla/casetrack/internal/pagination"
)

// Service is the application surface the board needs.
type Service interface {
	ListProcesses(context.Context) ([]domain.Process, error)
	ListStages(context.Context, string) ([]domain.Stage, error)
	FetchCasePage(ctx context.Context, stageID, cursor string, limit int) (app.CasePage, error)
	MoveCase(ctx context.Context, caseID, toStageID string, index int) (domain.Case, error)
	DeleteCase(context.Context, string) error
}

// inputMode represents a modal overlay.
type inputMode int

const (
	modeNone inputMode = iota
	modeDetail
	modeConfirmDelete
)

const serviceTimeout = 10 * time.Second

// Model is the bubbletea board.
type Model struct {
	svc    Service
	logger *log.Logger

	ready  bool
	width  int
	height int
	err    error
	status string

	help            help.Model
	keys            keyMap
	cardFields      CardFieldConfig
	showWIPWarnings bool
	pageSize        int
	copyText        func(string) error

	processes       []domain.Process
	selectedProcess int
	stages          []domain.Stage

	board  *board.Board
	drag   *drag.Controller
	loader *pagination.Loader
	moves  *moveQueue

	selectedColumn int
	selectedCard   int
	scroll         map[string]int

	mode          inputMode
	detailCardID  string
	confirmCardID string
	markdown      *markdownRenderer
}

type processesLoadedMsg struct {
	processes []domain.Process
	selected  int
	stages    []domain.Stage
	err       error
}

type pageLoadedMsg struct {
	result pagination.Result
}

type moveSavedMsg struct {
	move board.Move
	err  error
}

type caseDeletedMsg struct {
	cardID string
	err    error
}

type copiedMsg struct {
	id  string
	err error
}

// NewModel constructs a board model over svc.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:             svc,
		logger:          log.New(io.Discard),
		status:          "loading...",
		help:            h,
		keys:            newKeyMap(),
		cardFields:      DefaultCardFieldConfig(),
		showWIPWarnings: true,
		copyText:        systemClipboard,
		moves:           &moveQueue{},
		scroll:          map[string]int{},
		markdown:        &markdownRenderer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	queue := m.moves
	m.board = board.New(
		board.WithLogger(m.logger),
		board.WithMoveListener(queue.push),
	)
	m.drag = drag.NewController(m.board, drag.WithLogger(m.logger))
	m.loader = pagination.New(m.board, caseFetcher(svc, m.pageSize), pagination.WithLogger(m.logger))
	return m
}

// Init loads processes and stages.
func (m Model) Init() tea.Cmd {
	return m.loadProcessesCmd("")
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		m.help.SetWidth(max(0, msg.Width-2))
		return m, m.syncSentinels()

	case processesLoadedMsg:
		return m.applyProcesses(msg)

	case pageLoadedMsg:
		out := m.loader.Apply(msg.result)
		if out.Stale {
			return m, nil
		}
		if out.Err != nil {
			m.status = fmt.Sprintf("could not load %s: %v • r reload", m.stageName(msg.result.Request.ColumnID), out.Err)
			return m, nil
		}
		m.clampSelection()
		return m, m.syncSentinels()

	case moveSavedMsg:
		m.moves.done()
		if msg.err != nil {
			m.logger.Error("move not saved", "case_id", msg.move.CardID, "to", msg.move.ToColumnID, "err", msg.err)
			m.status = "move failed: " + msg.err.Error() + " • r reload"
		} else if m.moves.len() == 0 {
			m.status = "moved " + m.cardTitle(msg.move.CardID) + " to " + m.stageName(msg.move.ToColumnID)
		}
		return m, m.flushMoves()

	case caseDeletedMsg:
		if msg.err != nil {
			m.status = "delete failed: " + msg.err.Error()
			return m, nil
		}
		title := m.cardTitle(msg.cardID)
		if m.board.RemoveCard(msg.cardID) {
			m.status = "deleted " + title
		}
		m.clampSelection()
		return m, m.syncSentinels()

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
			return m, nil
		}
		m.status = "copied " + msg.id
		return m, nil

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleModeKey(msg)
		}
		if session, ok := m.drag.Session(); ok {
			return m.handleDragKey(msg, session)
		}
		return m.handleNormalModeKey(msg)

	case tea.MouseClickMsg:
		return m.handleMouseClick(msg)

	case tea.MouseMotionMsg:
		return m.handleMouseMotion(msg)

	case tea.MouseReleaseMsg:
		return m.handleMouseRelease(msg)

	case tea.MouseWheelMsg:
		return m.handleMouseWheel(msg)

	default:
		return m, nil
	}
}

// applyProcesses rebuilds the board from freshly loaded stages.
func (m Model) applyProcesses(msg processesLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}
	m.err = nil
	m.processes = msg.processes
	m.selectedProcess = clamp(msg.selected, 0, len(m.processes)-1)
	m.stages = msg.stages
	specs := make([]board.ColumnSpec, 0, len(m.stages))
	for _, stage := range m.stages {
		specs = append(specs, board.ColumnSpec{
			ID:     stage.ID,
			Title:  stage.Name,
			Cursor: board.Cursor{More: true},
		})
	}
	m.board.Initialize(specs)
	m.loader.Sync()
	clear(m.scroll)
	m.mode = modeNone
	m.clampSelection()
	if m.status == "" || m.status == "loading..." {
		m.status = "ready"
	}
	return m, m.syncSentinels()
}

// handleNormalModeKey handles keys while no card is carried.
func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case msg.String() == "esc":
		m.help.ShowAll = false
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadProcessesCmd(m.currentProcessID())
	case key.Matches(msg, m.keys.processes):
		if len(m.processes) < 2 {
			m.status = "only one process"
			return m, nil
		}
		next := m.processes[(m.selectedProcess+1)%len(m.processes)]
		m.status = "loading " + next.Name
		return m, m.loadProcessesCmd(next.ID)
	case key.Matches(msg, m.keys.moveLeft):
		m.selectColumn(m.selectedColumn - 1)
		return m, m.syncSentinels()
	case key.Matches(msg, m.keys.moveRight):
		m.selectColumn(m.selectedColumn + 1)
		return m, m.syncSentinels()
	case key.Matches(msg, m.keys.moveUp):
		m.selectCard(m.selectedCard - 1)
		return m, m.syncSentinels()
	case key.Matches(msg, m.keys.moveDown):
		m.selectCard(m.selectedCard + 1)
		return m, m.syncSentinels()
	}

	card, ok := m.currentCard()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.pickUp):
		if m.drag.StartKeyboard(card.ID) {
			m.status = "carrying " + card.Title
		}
		return m, nil
	case key.Matches(msg, m.keys.detail):
		m.mode = modeDetail
		m.detailCardID = card.ID
		return m, nil
	case key.Matches(msg, m.keys.copyID):
		return m, m.copyCmd(card.ID)
	case key.Matches(msg, m.keys.deleteCase):
		m.mode = modeConfirmDelete
		m.confirmCardID = card.ID
		return m, nil
	}
	return m, nil
}

// handleDragKey handles keys while a card is carried.
func (m Model) handleDragKey(msg tea.KeyPressMsg, session drag.Session) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		m.drag.Cancel()
		m.status = "move cancelled"
		return m, nil
	}
	if session.Mode != drag.ModeKeyboard {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.drop):
		return m.finishDrop()
	case key.Matches(msg, m.keys.moveLeft):
		m.drag.Nudge(-1, 0)
	case key.Matches(msg, m.keys.moveRight):
		m.drag.Nudge(1, 0)
	case key.Matches(msg, m.keys.moveUp):
		m.drag.Nudge(0, -1)
	case key.Matches(msg, m.keys.moveDown):
		m.drag.Nudge(0, 1)
	default:
		return m, nil
	}
	m.revealDragTarget()
	return m, m.syncSentinels()
}

// handleModeKey handles keys inside the detail and confirm overlays.
func (m Model) handleModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeConfirmDelete:
		switch msg.String() {
		case "y", "enter":
			id := m.confirmCardID
			m.mode = modeNone
			m.confirmCardID = ""
			m.status = "deleting..."
			return m, m.deleteCmd(id)
		case "n", "esc", "q":
			m.mode = modeNone
			m.confirmCardID = ""
			m.status = "delete cancelled"
		}
		return m, nil
	case modeDetail:
		switch {
		case msg.String() == "ctrl+c":
			return m, tea.Quit
		case msg.String() == "esc", msg.String() == "q", key.Matches(msg, m.keys.detail):
			m.mode = modeNone
			m.detailCardID = ""
		case key.Matches(msg, m.keys.copyID):
			return m, m.copyCmd(m.detailCardID)
		}
		return m, nil
	}
	return m, nil
}

// finishDrop commits the carried card and selects it where it landed.
func (m Model) finishDrop() (tea.Model, tea.Cmd) {
	res := m.drag.Drop()
	switch res.Outcome {
	case drag.DropCommitted:
		mv := res.Move.Move
		if ci, ok := m.board.ColumnIndex(mv.ToColumnID); ok {
			m.selectedColumn = ci
			m.selectedCard = mv.ToIndex
			m.revealSelected()
		}
		m.status = "saving move..."
		return m, tea.Batch(m.flushMoves(), m.syncSentinels())
	case drag.DropNoop:
		m.status = "ready"
	default:
		m.status = "move cancelled"
	}
	return m, nil
}

// handleMouseClick selects what was clicked and starts a pointer drag on cards.
func (m Model) handleMouseClick(msg tea.MouseClickMsg) (tea.Model, tea.Cmd) {
	if m.help.ShowAll || m.mode != modeNone || msg.Button != tea.MouseLeft {
		return m, nil
	}
	lay := m.layout()
	ci, ok := lay.columnAt(msg.X, msg.Y, m.board.Len())
	if !ok {
		return m, nil
	}
	m.selectedColumn = ci
	col := m.board.Columns()[ci]
	slot, ok := lay.slotAt(msg.Y)
	idx := m.scrollFor(col, lay) + slot
	if !ok || idx >= len(col.Cards) {
		m.clampSelection()
		return m, m.syncSentinels()
	}
	m.selectedCard = idx
	pointer := drag.Point{X: float64(msg.X), Y: float64(msg.Y)}
	m.drag.Start(col.Cards[idx].ID, pointer, lay.cardRect(ci, slot))
	return m, nil
}

// handleMouseMotion moves the floating card of a pointer drag.
func (m Model) handleMouseMotion(msg tea.MouseMotionMsg) (tea.Model, tea.Cmd) {
	session, ok := m.drag.Session()
	if !ok || session.Mode != drag.ModePointer {
		return m, nil
	}
	m.drag.Hover(drag.Point{X: float64(msg.X), Y: float64(msg.Y)}, m.dropCandidates())
	return m, nil
}

// handleMouseRelease drops a pointer drag at the release position.
func (m Model) handleMouseRelease(msg tea.MouseReleaseMsg) (tea.Model, tea.Cmd) {
	session, ok := m.drag.Session()
	if !ok || session.Mode != drag.ModePointer {
		return m, nil
	}
	m.drag.Hover(drag.Point{X: float64(msg.X), Y: float64(msg.Y)}, m.dropCandidates())
	return m.finishDrop()
}

// handleMouseWheel scrolls the column under the pointer.
func (m Model) handleMouseWheel(msg tea.MouseWheelMsg) (tea.Model, tea.Cmd) {
	if m.help.ShowAll || m.mode != modeNone {
		return m, nil
	}
	lay := m.layout()
	ci, ok := lay.columnAt(msg.X, msg.Y, m.board.Len())
	if !ok {
		return m, nil
	}
	col := m.board.Columns()[ci]
	scroll := m.scrollFor(col, lay)
	switch msg.Button {
	case tea.MouseWheelUp:
		scroll--
	case tea.MouseWheelDown:
		scroll++
	default:
		return m, nil
	}
	m.scroll[col.ID] = clamp(scroll, 0, maxScroll(len(col.Cards), col.Cursor.More, lay.slots))
	if session, ok := m.drag.Session(); ok && session.Mode == drag.ModePointer {
		m.drag.Hover(session.Pointer, m.dropCandidates())
	}
	return m, m.syncSentinels()
}

// syncSentinels reports sentinel visibility for every column and starts the
// fetches the loader asks for.
func (m Model) syncSentinels() tea.Cmd {
	if !m.ready || m.board.Len() == 0 {
		return nil
	}
	lay := m.layout()
	var cmds []tea.Cmd
	for i, col := range m.board.Columns() {
		if !col.Cursor.More {
			continue
		}
		if req, ok := m.loader.SetVisible(col.ID, m.sentinelVisible(i, col, lay)); ok {
			cmds = append(cmds, m.fetchCmd(req))
		}
	}
	return tea.Batch(cmds...)
}

// flushMoves starts saving the oldest unsaved move.
func (m Model) flushMoves() tea.Cmd {
	mv, ok := m.moves.next()
	if !ok {
		return nil
	}
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
		defer cancel()
		_, err := svc.MoveCase(ctx, mv.CardID, mv.ToColumnID, mv.ToIndex)
		return moveSavedMsg{move: mv, err: err}
	}
}

// fetchCmd runs one page fetch off the update loop.
func (m Model) fetchCmd(req pagination.Request) tea.Cmd {
	loader := m.loader
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
		defer cancel()
		return pageLoadedMsg{result: loader.Fetch(ctx, req)}
	}
}

// loadProcessesCmd lists processes and the stages of processID, or of the
// first process when processID is empty or gone.
func (m Model) loadProcessesCmd(processID string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
		defer cancel()
		processes, err := svc.ListProcesses(ctx)
		if err != nil {
			return processesLoadedMsg{err: fmt.Errorf("list processes: %w", err)}
		}
		if len(processes) == 0 {
			return processesLoadedMsg{}
		}
		selected := 0
		for i, p := range processes {
			if p.ID == processID {
				selected = i
				break
			}
		}
		stages, err := svc.ListStages(ctx, processes[selected].ID)
		if err != nil {
			return processesLoadedMsg{err: fmt.Errorf("list stages: %w", err)}
		}
		return processesLoadedMsg{processes: processes, selected: selected, stages: stages}
	}
}

func (m Model) deleteCmd(cardID string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
		defer cancel()
		err := svc.DeleteCase(ctx, cardID)
		if errors.Is(err, app.ErrNotFound) {
			err = nil
		}
		return caseDeletedMsg{cardID: cardID, err: err}
	}
}

func (m Model) copyCmd(id string) tea.Cmd {
	write := m.copyText
	return func() tea.Msg {
		return copiedMsg{id: id, err: write(id)}
	}
}

// selectColumn moves the column selection and keeps the card row.
func (m *Model) selectColumn(ci int) {
	m.selectedColumn = clamp(ci, 0, m.board.Len()-1)
	m.clampSelection()
	m.revealSelected()
}

// selectCard moves the card selection. Moving past the last loaded card
// scrolls the loader slot into view.
func (m *Model) selectCard(idx int) {
	col, ok := m.currentColumn()
	if !ok {
		return
	}
	if idx >= len(col.Cards) && col.Cursor.More {
		lay := m.layout()
		m.scroll[col.ID] = maxScroll(len(col.Cards), true, lay.slots)
	}
	m.selectedCard = clamp(idx, 0, len(col.Cards)-1)
	if idx < len(col.Cards) {
		m.revealSelected()
	}
}

// revealSelected scrolls the selected column so the selected card is on screen.
func (m *Model) revealSelected() {
	col, ok := m.currentColumn()
	if !ok || len(col.Cards) == 0 {
		return
	}
	m.reveal(col, m.selectedCard)
}

// revealDragTarget scrolls the keyboard target gap into view.
func (m *Model) revealDragTarget() {
	session, ok := m.drag.Session()
	if !ok || !session.HasTarget {
		return
	}
	col, ok := m.board.Column(session.Target.ColumnID)
	if !ok {
		return
	}
	m.reveal(col, min(session.Target.Index, max(0, len(col.Cards)-1)))
}

func (m *Model) reveal(col board.Column, idx int) {
	lay := m.layout()
	scroll := m.scrollFor(col, lay)
	switch {
	case idx < scroll:
		scroll = idx
	case idx >= scroll+lay.slots:
		scroll = idx - lay.slots + 1
	}
	m.scroll[col.ID] = clamp(scroll, 0, maxScroll(len(col.Cards), col.Cursor.More, lay.slots))
}

// clampSelection keeps selection indexes inside the board.
func (m *Model) clampSelection() {
	m.selectedColumn = clamp(m.selectedColumn, 0, m.board.Len()-1)
	col, ok := m.currentColumn()
	if !ok {
		m.selectedCard = 0
		return
	}
	m.selectedCard = clamp(m.selectedCard, 0, len(col.Cards)-1)
}

// focusColumn is the column kept on screen: the keyboard drag target while
// carrying, the selection otherwise.
func (m Model) focusColumn() int {
	if session, ok := m.drag.Session(); ok && session.Mode == drag.ModeKeyboard && session.HasTarget {
		if ci, ok := m.board.ColumnIndex(session.Target.ColumnID); ok {
			return ci
		}
	}
	return m.selectedColumn
}

func (m Model) currentColumn() (board.Column, bool) {
	cols := m.board.Columns()
	if m.selectedColumn < 0 || m.selectedColumn >= len(cols) {
		return board.Column{}, false
	}
	return cols[m.selectedColumn], true
}

func (m Model) currentCard() (board.Card, bool) {
	col, ok := m.currentColumn()
	if !ok || m.selectedCard < 0 || m.selectedCard >= len(col.Cards) {
		return board.Card{}, false
	}
	return col.Cards[m.selectedCard], true
}

func (m Model) currentProcessID() string {
	if m.selectedProcess < 0 || m.selectedProcess >= len(m.processes) {
		return ""
	}
	return m.processes[m.selectedProcess].ID
}

func (m Model) stage(id string) (domain.Stage, bool) {
	for _, stage := range m.stages {
		if stage.ID == id {
			return stage, true
		}
	}
	return domain.Stage{}, false
}

func (m Model) stageName(id string) string {
	if stage, ok := m.stage(id); ok {
		return stage.Name
	}
	return id
}

func (m Model) cardTitle(id string) string {
	if card, ok := m.board.Card(id); ok {
		return card.Title
	}
	return id
}
