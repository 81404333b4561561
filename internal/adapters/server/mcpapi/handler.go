// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/casetrack/internal/adapters/server/common"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the board tools.
func NewHandler(cfg Config, board common.BoardService) (*Handler, error) {
	if board == nil {
		return nil, fmt.Errorf("board service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerProcessTools(mcpSrv, board)
	registerCaseTools(mcpSrv, board)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "casetrack"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerProcessTools registers process, stage and snapshot reads.
func registerProcessTools(srv *mcpserver.MCPServer, board common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"casetrack.list_processes",
			mcp.WithDescription("List every process with its id and name."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			processes, err := board.ListProcesses(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_processes", map[string]any{"processes": processes})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"casetrack.list_stages",
			mcp.WithDescription("List the stages of one process in board order."),
			mcp.WithString("process_id", mcp.Required(), mcp.Description("Process identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			processID, err := req.RequireString("process_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stages, err := board.ListStages(ctx, processID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_stages", map[string]any{"stages": stages})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"casetrack.board_snapshot",
			mcp.WithDescription("Return the first page of every stage of one process."),
			mcp.WithString("process_id", mcp.Required(), mcp.Description("Process identifier")),
			mcp.WithNumber("limit", mcp.Description("Cases per stage; 0 uses the server default")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			processID, err := req.RequireString("process_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			snap, err := board.BoardSnapshot(ctx, processID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("board_snapshot", snap)
		},
	)
}

// registerCaseTools registers case paging and moves.
func registerCaseTools(srv *mcpserver.MCPServer, board common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"casetrack.list_cases",
			mcp.WithDescription("List one page of cases in a stage. Pass next_cursor back as cursor for the following page."),
			mcp.WithString("stage_id", mcp.Required(), mcp.Description("Stage identifier")),
			mcp.WithString("cursor", mcp.Description("Opaque cursor from a previous page")),
			mcp.WithNumber("limit", mcp.Description("Page size; 0 uses the server default")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			stageID, err := req.RequireString("stage_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			page, err := board.ListCases(ctx, common.ListCasesRequest{
				StageID: stageID,
				Cursor:  req.GetString("cursor", ""),
				Limit:   req.GetInt("limit", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_cases", page)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"casetrack.move_case",
			mcp.WithDescription("Move one case into a stage at a position among that stage's other cases."),
			mcp.WithString("case_id", mcp.Required(), mcp.Description("Case identifier")),
			mcp.WithString("to_stage_id", mcp.Required(), mcp.Description("Destination stage identifier")),
			mcp.WithNumber("position", mcp.Description("Zero-based position in the destination stage")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			caseID, err := req.RequireString("case_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			toStageID, err := req.RequireString("to_stage_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			moved, err := board.MoveCase(ctx, common.MoveCaseRequest{
				CaseID:    caseID,
				ToStageID: toStageID,
				Position:  req.GetInt("position", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("move_case", moved)
		},
	)
}

func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
