package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hylla/casetrack/internal/app"
	"github.com/hylla/casetrack/internal/domain"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// connPragmas apply to every pooled connection.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Repository is the SQLite implementation of app.Repository.
type Repository struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path+"?"+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	dsn := fmt.Sprintf("file:casetrack-%s?mode=memory&cache=shared&%s", uuid.NewString(), connPragmas)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks that the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stages (
			id TEXT PRIMARY KEY,
			process_id TEXT NOT NULL REFERENCES processes(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			position INTEGER NOT NULL,
			wip_limit INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			process_id TEXT NOT NULL REFERENCES processes(id) ON DELETE CASCADE,
			stage_id TEXT NOT NULL REFERENCES stages(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			contact TEXT NOT NULL DEFAULT '',
			value_cents INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT '',
			due_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			process_id TEXT NOT NULL,
			case_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_stages_process_position ON stages(process_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_cases_stage_position ON cases(stage_id, position, id);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_process_created_at ON change_events(process_id, created_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateProcess creates process.
func (r *Repository) CreateProcess(ctx context.Context, p domain.Process) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processes(id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, ts(p.CreatedAt), ts(p.UpdatedAt))
	return err
}

// GetProcess returns process.
func (r *Repository) GetProcess(ctx context.Context, id string) (domain.Process, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM processes
		WHERE id = ?
	`, id)
	return scanProcess(row)
}

// ListProcesses lists processes.
func (r *Repository) ListProcesses(ctx context.Context) ([]domain.Process, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM processes
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Process, 0)
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateStage creates stage.
func (r *Repository) CreateStage(ctx context.Context, s domain.Stage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stages(id, process_id, name, position, wip_limit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ProcessID, s.Name, s.Position, s.WIPLimit, ts(s.CreatedAt), ts(s.UpdatedAt))
	return err
}

// GetStage returns stage.
func (r *Repository) GetStage(ctx context.Context, id string) (domain.Stage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, process_id, name, position, wip_limit, created_at, updated_at
		FROM stages
		WHERE id = ?
	`, id)
	return scanStage(row)
}

// ListStages lists the stages of a process in board order.
func (r *Repository) ListStages(ctx context.Context, processID string) ([]domain.Stage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, process_id, name, position, wip_limit, created_at, updated_at
		FROM stages
		WHERE process_id = ?
		ORDER BY position ASC, id ASC
	`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Stage, 0)
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateCase creates case.
func (r *Repository) CreateCase(ctx context.Context, c domain.Case) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cases(
			id, process_id, stage_id, position, title, description, contact, value_cents, currency, due_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.ProcessID,
		c.StageID,
		c.Position,
		c.Title,
		c.Description,
		c.Contact,
		c.ValueCents,
		c.Currency,
		nullableTS(c.DueAt),
		ts(c.CreatedAt),
		ts(c.UpdatedAt),
	)
	if err != nil {
		return err
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		ProcessID: c.ProcessID,
		CaseID:    c.ID,
		Operation: domain.ChangeOperationCreate,
		Metadata: map[string]string{
			"stage_id": c.StageID,
			"title":    c.Title,
		},
		OccurredAt: c.CreatedAt,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetCase returns case.
func (r *Repository) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return getCaseByID(ctx, r.db, id)
}

const caseColumns = `id, process_id, stage_id, position, title, description, contact, value_cents, currency, due_at, created_at, updated_at`

// ListCasesPage returns one keyset page of a stage.
func (r *Repository) ListCasesPage(ctx context.Context, q app.CasePageQuery) ([]domain.Case, error) {
	if q.Limit <= 0 {
		q.Limit = app.DefaultPageSize
	}
	var (
		rows *sql.Rows
		err  error
	)
	if q.After == nil {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+caseColumns+`
			FROM cases
			WHERE stage_id = ?
			ORDER BY position ASC, id ASC
			LIMIT ?
		`, q.StageID, q.Limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+caseColumns+`
			FROM cases
			WHERE stage_id = ? AND (position > ? OR (position = ? AND id > ?))
			ORDER BY position ASC, id ASC
			LIMIT ?
		`, q.StageID, q.After.Position, q.After.Position, q.After.ID, q.Limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Case, 0, q.Limit)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCases counts the cases of a stage.
func (r *Repository) CountCases(ctx context.Context, stageID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases WHERE stage_id = ?`, stageID).Scan(&n)
	return n, err
}

// MaxCasePosition returns the last position in a stage; ok is false for an empty stage.
func (r *Repository) MaxCasePosition(ctx context.Context, stageID string) (int, bool, error) {
	var pos sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(position) FROM cases WHERE stage_id = ?`, stageID).Scan(&pos); err != nil {
		return 0, false, err
	}
	if !pos.Valid {
		return 0, false, nil
	}
	return int(pos.Int64), true, nil
}

// MoveCase places caseID at index among the other cases of toStageID. Only
// the moved row is written unless the neighbours leave no room, in which case
// the whole stage is renumbered.
func (r *Repository) MoveCase(ctx context.Context, caseID, toStageID string, index int, at time.Time) (moved domain.Case, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	c, err := getCaseByID(ctx, tx, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	fromStage, fromPos := c.StageID, c.Position

	others, err := stagePositions(ctx, tx, toStageID, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	index = max(0, min(index, len(others)))

	var prev, next *int
	if index > 0 {
		prev = &others[index-1].position
	}
	if index < len(others) {
		next = &others[index].position
	}
	position, ok := domain.PositionBetween(prev, next)
	if !ok {
		if err = renumberStage(ctx, tx, others, index); err != nil {
			return domain.Case{}, err
		}
		position = (index + 1) * domain.PositionGap
	}
	if err = c.Move(toStageID, position, at); err != nil {
		return domain.Case{}, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE cases SET stage_id = ?, position = ?, updated_at = ? WHERE id = ?
	`, c.StageID, c.Position, ts(c.UpdatedAt), c.ID)
	if err != nil {
		return domain.Case{}, err
	}
	if err = translateNoRows(res); err != nil {
		return domain.Case{}, err
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		ProcessID: c.ProcessID,
		CaseID:    c.ID,
		Operation: domain.ChangeOperationMove,
		Metadata: map[string]string{
			"from_stage_id": fromStage,
			"to_stage_id":   c.StageID,
			"from_position": strconv.Itoa(fromPos),
			"to_position":   strconv.Itoa(c.Position),
			"index":         strconv.Itoa(index),
		},
		OccurredAt: at,
	})
	if err != nil {
		return domain.Case{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

// DeleteCase deletes case.
func (r *Repository) DeleteCase(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	c, err := getCaseByID(ctx, tx, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cases WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		ProcessID: c.ProcessID,
		CaseID:    c.ID,
		Operation: domain.ChangeOperationDelete,
		Metadata: map[string]string{
			"stage_id": c.StageID,
			"title":    c.Title,
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListChangeEvents lists the newest change events of a process.
func (r *Repository) ListChangeEvents(ctx context.Context, processID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, process_id, case_id, operation, metadata_json, created_at
		FROM change_events
		WHERE process_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, processID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.ProcessID, &event.CaseID, &opRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = domain.ChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// queryRower represents a query-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// querier represents a multi-row query contract used by DB and Tx implementations.
type querier interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func getCaseByID(ctx context.Context, q queryRower, id string) (domain.Case, error) {
	row := q.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	return scanCase(row)
}

type slot struct {
	id       string
	position int
}

// stagePositions lists the ordered (id, position) pairs of a stage without exclude.
func stagePositions(ctx context.Context, q querier, stageID, exclude string) ([]slot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, position FROM cases
		WHERE stage_id = ? AND id <> ?
		ORDER BY position ASC, id ASC
	`, stageID, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]slot, 0)
	for rows.Next() {
		var s slot
		if err := rows.Scan(&s.id, &s.position); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// renumberStage respaces slots, leaving the gap at index free for the moved case.
func renumberStage(ctx context.Context, execer execerContext, slots []slot, index int) error {
	for i, s := range slots {
		rank := i + 1
		if i >= index {
			rank++
		}
		if _, err := execer.ExecContext(ctx, `UPDATE cases SET position = ? WHERE id = ?`, rank*domain.PositionGap, s.id); err != nil {
			return fmt.Errorf("renumber stage: %w", err)
		}
	}
	return nil
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(process_id, case_id, operation, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.ProcessID,
		event.CaseID,
		string(event.Operation),
		string(metadataJSON),
		ts(occurred),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanProcess(s scanner) (domain.Process, error) {
	var (
		p          domain.Process
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Process{}, app.ErrNotFound
		}
		return domain.Process{}, err
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	return p, nil
}

func scanStage(s scanner) (domain.Stage, error) {
	var (
		st         domain.Stage
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&st.ID, &st.ProcessID, &st.Name, &st.Position, &st.WIPLimit, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Stage{}, app.ErrNotFound
		}
		return domain.Stage{}, err
	}
	st.CreatedAt = parseTS(createdRaw)
	st.UpdatedAt = parseTS(updatedRaw)
	return st, nil
}

func scanCase(s scanner) (domain.Case, error) {
	var (
		c          domain.Case
		dueRaw     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(
		&c.ID,
		&c.ProcessID,
		&c.StageID,
		&c.Position,
		&c.Title,
		&c.Description,
		&c.Contact,
		&c.ValueCents,
		&c.Currency,
		&dueRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Case{}, app.ErrNotFound
		}
		return domain.Case{}, err
	}
	c.DueAt = parseNullTS(dueRaw)
	c.CreatedAt = parseTS(createdRaw)
	c.UpdatedAt = parseTS(updatedRaw)
	return c, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
