package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/casetrack/internal/adapters/server/common"
	"github.com/hylla/casetrack/internal/app"
)

// stubBoardService provides deterministic board responses for handler tests.
type stubBoardService struct {
	processes     []common.Process
	stages        []common.Stage
	page          common.CasePage
	moved         common.Case
	snapshot      app.BoardSnapshot
	err           error
	lastProcessID string
	lastCases     common.ListCasesRequest
	lastMove      common.MoveCaseRequest
	lastLimit     int
}

func (s *stubBoardService) ListProcesses(context.Context) ([]common.Process, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]common.Process(nil), s.processes...), nil
}

func (s *stubBoardService) ListStages(_ context.Context, processID string) ([]common.Stage, error) {
	s.lastProcessID = processID
	if s.err != nil {
		return nil, s.err
	}
	return append([]common.Stage(nil), s.stages...), nil
}

func (s *stubBoardService) ListCases(_ context.Context, req common.ListCasesRequest) (common.CasePage, error) {
	s.lastCases = req
	if s.err != nil {
		return common.CasePage{}, s.err
	}
	return s.page, nil
}

func (s *stubBoardService) MoveCase(_ context.Context, req common.MoveCaseRequest) (common.Case, error) {
	s.lastMove = req
	if s.err != nil {
		return common.Case{}, s.err
	}
	return s.moved, nil
}

func (s *stubBoardService) BoardSnapshot(_ context.Context, processID string, limit int) (app.BoardSnapshot, error) {
	s.lastProcessID = processID
	s.lastLimit = limit
	if s.err != nil {
		return app.BoardSnapshot{}, s.err
	}
	return s.snapshot, nil
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes one JSON response body into the requested type.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

func TestHandlerListProcesses(t *testing.T) {
	board := &stubBoardService{processes: []common.Process{{ID: "p1", Name: "Claims"}}}
	rec := serve(NewHandler(board), http.MethodGet, "/processes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := decodeBody[struct {
		Processes []common.Process `json:"processes"`
	}](t, rec)
	if len(got.Processes) != 1 || got.Processes[0].Name != "Claims" {
		t.Fatalf("unexpected processes %#v", got.Processes)
	}
}

func TestHandlerListStagesUsesPathID(t *testing.T) {
	board := &stubBoardService{stages: []common.Stage{{ID: "s1", Name: "Intake"}}}
	rec := serve(NewHandler(board), http.MethodGet, "/processes/p9/stages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if board.lastProcessID != "p9" {
		t.Fatalf("process id = %q, want p9", board.lastProcessID)
	}
}

func TestHandlerListCasesPassesCursorAndLimit(t *testing.T) {
	board := &stubBoardService{page: common.CasePage{StageID: "s1", NextCursor: "next"}}
	rec := serve(NewHandler(board), http.MethodGet, "/stages/s1/cases?cursor=abc&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if board.lastCases != (common.ListCasesRequest{StageID: "s1", Cursor: "abc", Limit: 10}) {
		t.Fatalf("unexpected request %#v", board.lastCases)
	}
	got := decodeBody[common.CasePage](t, rec)
	if got.NextCursor != "next" {
		t.Fatalf("next_cursor = %q, want next", got.NextCursor)
	}

	rec = serve(NewHandler(board), http.MethodGet, "/stages/s1/cases?limit=-2", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandlerBoardSnapshot(t *testing.T) {
	board := &stubBoardService{snapshot: app.BoardSnapshot{
		Version:    app.SnapshotVersion,
		ExportedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Process:    app.SnapshotProcess{ID: "p1", Name: "Claims"},
	}}
	rec := serve(NewHandler(board), http.MethodGet, "/processes/p1/board?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if board.lastLimit != 5 {
		t.Fatalf("limit = %d, want 5", board.lastLimit)
	}
	got := decodeBody[app.BoardSnapshot](t, rec)
	if got.Version != app.SnapshotVersion || got.Process.ID != "p1" {
		t.Fatalf("unexpected snapshot %#v", got)
	}
}

func TestHandlerMoveCase(t *testing.T) {
	board := &stubBoardService{moved: common.Case{ID: "c1", StageID: "s2"}}
	rec := serve(NewHandler(board), http.MethodPost, "/cases/c1/move", `{"to_stage_id":"s2","position":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if board.lastMove != (common.MoveCaseRequest{CaseID: "c1", ToStageID: "s2", Position: 1}) {
		t.Fatalf("unexpected move %#v", board.lastMove)
	}

	for _, body := range []string{`{"to_stage_id":"s2","bogus":1}`, `{"to_stage_id":"s2"}{}`, `not json`} {
		rec = serve(NewHandler(board), http.MethodPost, "/cases/c1/move", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: errors.Join(common.ErrNotFound, errors.New("gone")), wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "invalid", err: errors.Join(common.ErrInvalidRequest, errors.New("bad")), wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "internal", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(NewHandler(&stubBoardService{err: tc.err}), http.MethodGet, "/processes", "")
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			got := decodeBody[ErrorEnvelope](t, rec)
			if got.Error.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", got.Error.Code, tc.wantCode)
			}
		})
	}
}

func TestHandlerRoutingErrors(t *testing.T) {
	h := NewHandler(&stubBoardService{})
	rec := serve(h, http.MethodPost, "/processes", "")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("status = %d allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
	rec = serve(h, http.MethodGet, "/cases/c1/move", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	for _, path := range []string{"/", "/unknown", "/processes//stages", "/stages/s1/cases/extra"} {
		rec = serve(h, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("path %q: status = %d, want %d", path, rec.Code, http.StatusNotFound)
		}
	}
	rec = serve(NewHandler(nil), http.MethodGet, "/processes", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
