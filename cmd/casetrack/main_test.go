package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/hylla/casetrack/internal/adapters/definition/yamlfile"
	serveradapter "github.com/hylla/casetrack/internal/adapters/server"
	"github.com/hylla/casetrack/internal/app"
	"github.com/hylla/casetrack/internal/config"
	"github.com/hylla/casetrack/internal/tui"
)

// TestMain pins dev mode off so path resolution is deterministic.
func TestMain(m *testing.M) {
	_ = os.Setenv("CASETRACK_DEV_MODE", "false")
	os.Exit(m.Run())
}

type fakeProgram struct {
	runErr error
}

func (f fakeProgram) Run() (tea.Model, error) {
	return nil, f.runErr
}

const claimsYAML = `name: Claims
stages:
  - id: new
    name: New
  - name: Review
    wip_limit: 2
  - name: Done
cases:
  - title: Water damage
    stage: new
    contact: ada@example.com
    value_cents: 125000
    currency: USD
  - title: Broken window
    stage: new
  - title: Hail damage
    stage: Review
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%q) error = %v", path, err)
	}
}

func TestRunVersion(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(--version) error = %v", err)
	}
	if !strings.Contains(out.String(), "casetrack") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

// TestRunStartsProgram runs the board flow against a stub program.
func TestRunStartsProgram(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })

	var started tea.Model
	programFactory = func(m tea.Model) program {
		started = m
		return fakeProgram{}
	}

	tmp := t.TempDir()
	err := run(context.Background(), []string{"--db", filepath.Join(tmp, "casetrack.db"), "--config", filepath.Join(tmp, "missing.toml")}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, ok := started.(tui.Model); !ok {
		t.Fatalf("expected tui.Model to be started, got %T", started)
	}
}

func TestRunProgramErrorIsWrapped(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	programFactory = func(tea.Model) program { return fakeProgram{runErr: errors.New("boom")} }

	tmp := t.TempDir()
	err := run(context.Background(), []string{"--db", filepath.Join(tmp, "casetrack.db"), "--config", filepath.Join(tmp, "missing.toml")}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "run tui program: boom") {
		t.Fatalf("expected wrapped program error, got %v", err)
	}
}

func TestRunInvalidFlagAndCommand(t *testing.T) {
	if err := run(context.Background(), []string{"--wat"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if err := run(context.Background(), []string{"frobnicate"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunPathsCommand(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--app", "casetrackx", "--dev", "paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	output := out.String()
	for _, want := range []string{"app: casetrackx", "dev_mode: true", "config: ", "db: ", "log_dir: "} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in paths output, got %q", want, output)
		}
	}
}

// TestRunImportThenExport round-trips a YAML definition through sqlite.
func TestRunImportThenExport(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "casetrack.db")
	cfgPath := filepath.Join(tmp, "missing.toml")
	defPath := filepath.Join(tmp, "claims.yaml")
	writeFile(t, defPath, claimsYAML)

	var out strings.Builder
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "import", defPath}, &out, io.Discard); err != nil {
		t.Fatalf("run(import) error = %v", err)
	}
	if !strings.Contains(out.String(), `imported "Claims": 3 stages, 3 cases`) {
		t.Fatalf("unexpected import summary %q", out.String())
	}

	var exported bytes.Buffer
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "export", "--limit", "1"}, &exported, io.Discard); err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	var snap app.BoardSnapshot
	if err := json.Unmarshal(exported.Bytes(), &snap); err != nil {
		t.Fatalf("json.Unmarshal() error = %v\n%s", err, exported.String())
	}
	if snap.Process.Name != "Claims" || len(snap.Stages) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	first := snap.Stages[0]
	if first.Total != 2 || len(first.Cases) != 1 || first.NextCursor == "" {
		t.Fatalf("expected first stage to be paged at limit 1, got %+v", first)
	}
	if first.Cases[0].Title != "Water damage" {
		t.Fatalf("expected first case Water damage, got %q", first.Cases[0].Title)
	}

	yamlPath := filepath.Join(tmp, "out", "claims.yaml")
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "export", "--format", "yaml", "--out", yamlPath}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(export yaml) error = %v", err)
	}
	def, err := yamlfile.Load(yamlPath)
	if err != nil {
		t.Fatalf("yamlfile.Load() error = %v", err)
	}
	if def.Name != "Claims" || len(def.Stages) != 3 || len(def.Cases) != 3 {
		t.Fatalf("unexpected exported definition %+v", def)
	}
}

func TestRunExportRejectsUnknownFormat(t *testing.T) {
	tmp := t.TempDir()
	err := run(context.Background(), []string{"--db", filepath.Join(tmp, "c.db"), "export", "--format", "csv"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unsupported export format") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestRunImportErrors(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "c.db")
	if err := run(context.Background(), []string{"--db", dbPath, "import"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected error when import path is missing")
	}
	if err := run(context.Background(), []string{"--db", dbPath, "import", filepath.Join(tmp, "nope.yaml")}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected error for missing definition file")
	}
	bad := filepath.Join(tmp, "bad.yaml")
	writeFile(t, bad, "name: X\nstages:\n  - name: A\ncases:\n  - title: c\n    stage: B\n")
	if err := run(context.Background(), []string{"--db", dbPath, "import", bad}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected error for case in unknown stage")
	}
}

func TestRunSeedCommand(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "casetrack.db")
	var out strings.Builder
	if err := run(context.Background(), []string{"--db", dbPath, "seed", "--cases", "30"}, &out, io.Discard); err != nil {
		t.Fatalf("run(seed) error = %v", err)
	}
	if !strings.Contains(out.String(), "with 30 cases") {
		t.Fatalf("unexpected seed output %q", out.String())
	}
	if err := run(context.Background(), []string{"--db", dbPath, "seed", "--cases", "-1"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected error for negative --cases")
	}
}

func TestSeedDefinitionFrontLoadsFirstStage(t *testing.T) {
	states := config.Default("").ResolvedStates()
	def := seedDefinition("", states, 20, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if def.Name != "Demo claims" || len(def.Stages) != len(states) || len(def.Cases) != 20 {
		t.Fatalf("unexpected seed definition %+v", def)
	}
	counts := map[string]int{}
	for _, c := range def.Cases {
		counts[c.Stage]++
	}
	first := states[0].ID
	for stage, n := range counts {
		if stage != first && n >= counts[first] {
			t.Fatalf("expected %q to hold the most cases, got %v", first, counts)
		}
	}
	if def.Cases[0].Due == nil || def.Cases[1].Due != nil {
		t.Fatalf("expected every third case to carry a due date")
	}
}

// TestRunServeCommandUsesFlagsOverConfig verifies serve wiring without binding a port.
func TestRunServeCommandUsesFlagsOverConfig(t *testing.T) {
	origRunner := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = origRunner })

	var (
		gotCfg  serveradapter.Config
		gotDeps serveradapter.Dependencies
	)
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		gotCfg = cfg
		gotDeps = deps
		return nil
	}

	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "casetrack.toml")
	writeFile(t, cfgPath, "[server]\nhttp_bind = \"127.0.0.1:9999\"\napi_endpoint = \"/api/v2\"\n")
	args := []string{"--db", filepath.Join(tmp, "c.db"), "--config", cfgPath, "serve", "--http", "127.0.0.1:7000"}
	if err := run(context.Background(), args, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:7000" {
		t.Fatalf("expected --http to win, got %q", gotCfg.HTTPBind)
	}
	if gotCfg.APIEndpoint != "/api/v2" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("expected config endpoints, got %+v", gotCfg)
	}
	if gotCfg.ServerName != "casetrack" || gotCfg.ServerVersion != version {
		t.Fatalf("unexpected server identity %+v", gotCfg)
	}
	if gotDeps.Board == nil {
		t.Fatal("expected board service dependency")
	}
}

func TestRunPathsCommandWithHome(t *testing.T) {
	home := t.TempDir()
	var out strings.Builder
	if err := run(context.Background(), []string{"--home", home, "paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths --home) error = %v", err)
	}
	if want := "db: " + filepath.Join(home, "casetrack.db"); !strings.Contains(out.String(), want) {
		t.Fatalf("expected %q in paths output, got %q", want, out.String())
	}
}

func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "env.db")
	cfgPath := filepath.Join(tmp, "env.toml")
	writeFile(t, cfgPath, "[database]\npath = \"/tmp/ignore-me.db\"\n")

	t.Setenv("CASETRACK_CONFIG", cfgPath)
	t.Setenv("CASETRACK_DB_PATH", dbPath)

	if err := run(context.Background(), []string{"export", "--out", filepath.Join(tmp, "out.json")}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(export with env paths) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at env path, stat error %v", err)
	}
}

func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "casetrack.toml")
	writeFile(t, cfgPath, "[logging]\nlevel = \"chatty\"\n")
	err := run(context.Background(), []string{"--db", filepath.Join(tmp, "c.db"), "--config", cfgPath, "paths"}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("paths should not load config, got %v", err)
	}
	err = run(context.Background(), []string{"--db", filepath.Join(tmp, "c.db"), "--config", cfgPath, "export"}, io.Discard, io.Discard)
	if err == nil {
		t.Fatal("expected invalid logging level to fail")
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("CASETRACK_BOOL_TEST", "true")
	if v, ok := parseBoolEnv("CASETRACK_BOOL_TEST"); !ok || !v {
		t.Fatalf("expected true, got %t %t", v, ok)
	}
	t.Setenv("CASETRACK_BOOL_TEST", "maybe")
	if _, ok := parseBoolEnv("CASETRACK_BOOL_TEST"); ok {
		t.Fatal("expected invalid value to be ignored")
	}
	t.Setenv("CASETRACK_BOOL_TEST", "")
	if _, ok := parseBoolEnv("CASETRACK_BOOL_TEST"); ok {
		t.Fatal("expected empty value to be ignored")
	}
}

// TestRunTUIModeWritesRuntimeLogsToFileOnly keeps stderr clean while the TUI owns the terminal.
func TestRunTUIModeWritesRuntimeLogsToFileOnly(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	programFactory = func(tea.Model) program { return fakeProgram{} }

	workspace := t.TempDir()
	t.Chdir(workspace)
	writeFile(t, filepath.Join(workspace, "go.mod"), "module example.com/test\n")

	cfgPath := filepath.Join(workspace, "casetrack.toml")
	writeFile(t, cfgPath, "[logging]\nlevel = \"debug\"\n\n[logging.dev_file]\nenabled = true\n")
	var stderr bytes.Buffer
	args := []string{"--dev", "--db", filepath.Join(workspace, "casetrack.db"), "--config", cfgPath}
	if err := run(context.Background(), args, io.Discard, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	logDir := filepath.Join(workspace, ".casetrack", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var logPath string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".log") {
			logPath = filepath.Join(logDir, entry.Name())
			break
		}
	}
	if logPath == "" {
		t.Fatalf("expected a .log file in %s", logDir)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "starting tui program loop") {
		t.Fatalf("expected TUI lifecycle entries in log file, got %q", string(content))
	}
	if strings.Contains(stderr.String(), "starting tui program loop") {
		t.Fatalf("expected TUI lifecycle logs to stay off stderr, got %q", stderr.String())
	}
}
