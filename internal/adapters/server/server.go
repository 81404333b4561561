// Package server mounts the HTTP JSON API and the MCP endpoint on one listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/hylla/casetrack/internal/adapters/server/common"
	"github.com/hylla/casetrack/internal/adapters/server/httpapi"
	"github.com/hylla/casetrack/internal/adapters/server/mcpapi"
)

const (
	defaultBindAddress     = "127.0.0.1:5437"
	defaultAPIEndpoint     = "/api/v1"
	defaultMCPEndpoint     = "/mcp"
	defaultShutdownTimeout = 5 * time.Second
	readinessTimeout       = 2 * time.Second
)

// Config holds the listener address and endpoint mounts.
type Config struct {
	HTTPBind      string
	APIEndpoint   string
	MCPEndpoint   string
	ServerName    string
	ServerVersion string
}

// Dependencies are the collaborators shared by both transports.
type Dependencies struct {
	Board  common.BoardService
	Logger *log.Logger
}

// NewHandler builds the root handler and returns the normalized config it used.
func NewHandler(cfg Config, deps Dependencies) (http.Handler, Config, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, Config{}, err
	}
	if deps.Board == nil {
		return nil, Config{}, fmt.Errorf("board dependency is required")
	}

	mcpHandler, err := mcpapi.NewHandler(mcpapi.Config{
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		EndpointPath:  cfg.MCPEndpoint,
	}, deps.Board)
	if err != nil {
		return nil, Config{}, fmt.Errorf("configure mcp handler: %w", err)
	}
	api := http.StripPrefix(cfg.APIEndpoint, httpapi.NewHandler(deps.Board))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", readiness(deps.Board))
	mux.Handle(cfg.MCPEndpoint, mcpHandler)
	mux.Handle(cfg.APIEndpoint, api)
	mux.Handle(cfg.APIEndpoint+"/", api)
	return logRequests(loggerOrDiscard(deps.Logger), mux), cfg, nil
}

// Run serves until ctx is cancelled, then shuts down within defaultShutdownTimeout.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	handler, cfg, err := NewHandler(cfg, deps)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	logger := loggerOrDiscard(deps.Logger)
	srv := &http.Server{
		Addr:              cfg.HTTPBind,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("serving", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", defaultShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// readiness reports 503 until the board service can list processes.
func readiness(board common.BoardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		processes, err := board.ListProcesses(ctx)
		if err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok", "processes": len(processes)})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streamable MCP responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}

func writeStatus(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func loggerOrDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard)
	}
	return logger
}

// normalizeConfig fills defaults and rejects overlapping mounts.
func normalizeConfig(cfg Config) (Config, error) {
	cfg.HTTPBind = strings.TrimSpace(cfg.HTTPBind)
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = defaultBindAddress
	}
	if _, _, err := net.SplitHostPort(cfg.HTTPBind); err != nil {
		return Config{}, fmt.Errorf("invalid http bind %q: %w", cfg.HTTPBind, err)
	}

	cfg.APIEndpoint = normalizeEndpoint(cfg.APIEndpoint, defaultAPIEndpoint)
	cfg.MCPEndpoint = normalizeEndpoint(cfg.MCPEndpoint, defaultMCPEndpoint)
	if cfg.APIEndpoint == cfg.MCPEndpoint ||
		strings.HasPrefix(cfg.MCPEndpoint, cfg.APIEndpoint+"/") ||
		strings.HasPrefix(cfg.APIEndpoint, cfg.MCPEndpoint+"/") {
		return Config{}, fmt.Errorf("api endpoint %q and mcp endpoint %q overlap", cfg.APIEndpoint, cfg.MCPEndpoint)
	}
	for _, reserved := range []string{"/healthz", "/readyz"} {
		if cfg.APIEndpoint == reserved || cfg.MCPEndpoint == reserved {
			return Config{}, fmt.Errorf("endpoint %q is reserved", reserved)
		}
	}

	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "casetrack"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	return cfg, nil
}

// normalizeEndpoint yields "/a/b" from " a/b/ "; "" and "/" fall back.
func normalizeEndpoint(path, fallback string) string {
	path = "/" + strings.Trim(strings.TrimSpace(path), "/")
	if path == "/" {
		return fallback
	}
	return path
}
