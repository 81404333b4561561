package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hylla/casetrack/internal/adapters/definition/yamlfile"
	serveradapter "github.com/hylla/casetrack/internal/adapters/server"
	servercommon "github.com/hylla/casetrack/internal/adapters/server/common"
	"github.com/hylla/casetrack/internal/adapters/storage/sqlite"
	"github.com/hylla/casetrack/internal/app"
	"github.com/hylla/casetrack/internal/config"
	"github.com/hylla/casetrack/internal/platform"
	"github.com/hylla/casetrack/internal/tui"
)

var version = "dev"

// program is the part of *tea.Program the root command uses.
type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx := context.Background()
	if err := fang.Execute(ctx, newRootCommand(os.Stdout, os.Stderr), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes the CLI without fang's styled output wrapper.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SilenceErrors = true
	return root.ExecuteContext(ctx)
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	home       string
}

// newRootCommand builds the command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	opts := &rootOptions{appName: platform.DefaultAppName, devMode: version == "dev"}
	if envApp := strings.TrimSpace(os.Getenv("CASETRACK_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}
	if envDev, ok := parseBoolEnv("CASETRACK_DEV_MODE"); ok {
		opts.devMode = envDev
	}
	opts.home = strings.TrimSpace(os.Getenv("CASETRACK_HOME"))

	root := &cobra.Command{
		Use:          "casetrack",
		Short:        "A terminal board for moving cases through process stages",
		Long:         "casetrack shows each stage of a process as a column of cases. Drag cases between stages with the mouse or the keyboard; columns load more cases as you scroll.",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBoard(cmd.Context(), opts, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML (env CASETRACK_CONFIG)")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database (env CASETRACK_DB_PATH)")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")
	flags.StringVar(&opts.home, "home", opts.home, "keep config, data and logs in one directory (env CASETRACK_HOME)")

	root.AddCommand(
		newPathsCommand(opts, stdout),
		newServeCommand(opts, stderr),
		newImportCommand(opts, stdout, stderr),
		newExportCommand(opts, stdout, stderr),
		newSeedCommand(opts, stdout, stderr),
	)
	return root
}

func newPathsCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data and log paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := resolvePaths(opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", resolveConfigPath(opts, paths))
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(stdout, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over HTTP JSON and MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "serve", func(ctx context.Context, rt *runtimeEnv) error {
				cfg := serveradapter.Config{
					HTTPBind:      firstNonEmpty(httpBind, rt.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, rt.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, rt.cfg.Server.MCPEndpoint),
					ServerName:    opts.appName,
					ServerVersion: version,
				}
				if _, err := rt.svc.EnsureDefaultProcess(ctx); err != nil {
					return fmt.Errorf("ensure default process: %w", err)
				}
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Board:  servercommon.NewAppServiceAdapter(rt.svc),
					Logger: rt.logger.componentLogger(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint")
	return cmd
}

func newImportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create a process from a YAML definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := yamlfile.Load(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), opts, stderr, "import", func(ctx context.Context, rt *runtimeEnv) error {
				summary, err := rt.svc.ImportProcess(ctx, def)
				if err != nil {
					return fmt.Errorf("import process: %w", err)
				}
				_, _ = fmt.Fprintf(stdout, "imported %q: %d stages, %d cases (process %s)\n", def.Name, summary.Stages, summary.Cases, summary.ProcessID)
				return nil
			})
		},
	}
}

func newExportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		outPath   string
		format    string
		processID string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the first page of every stage as JSON or a YAML definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported export format %q (want json or yaml)", format)
			}
			return withRuntime(cmd.Context(), opts, stderr, "export", func(ctx context.Context, rt *runtimeEnv) error {
				id := strings.TrimSpace(processID)
				if id == "" {
					process, err := rt.svc.EnsureDefaultProcess(ctx)
					if err != nil {
						return fmt.Errorf("resolve process: %w", err)
					}
					id = process.ID
				}
				snap, err := rt.svc.BoardSnapshot(ctx, id, limit)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				return writeExport(snap, format, outPath, stdout)
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "json snapshot or yaml definition")
	cmd.Flags().StringVar(&processID, "process", "", "process id (default: first process)")
	cmd.Flags().IntVar(&limit, "limit", 0, "cases per stage (0 = configured page size)")
	return cmd
}

func newSeedCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		name  string
		cases int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo process with enough cases to page through",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cases < 0 {
				return fmt.Errorf("--cases must be >= 0, got %d", cases)
			}
			return withRuntime(cmd.Context(), opts, stderr, "seed", func(ctx context.Context, rt *runtimeEnv) error {
				def := seedDefinition(name, rt.cfg.ResolvedStates(), cases, time.Now().UTC())
				summary, err := rt.svc.ImportProcess(ctx, def)
				if err != nil {
					return fmt.Errorf("seed process: %w", err)
				}
				_, _ = fmt.Fprintf(stdout, "seeded %q with %d cases across %d stages\n", def.Name, summary.Cases, summary.Stages)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "Demo claims", "process name")
	cmd.Flags().IntVar(&cases, "cases", 120, "number of demo cases")
	return cmd
}

// runtimeEnv is everything a command needs once config and storage are open.
type runtimeEnv struct {
	paths  platform.Paths
	cfg    config.Config
	logger *runtimeLogger
	repo   *sqlite.Repository
	svc    *app.Service
}

// withRuntime opens the runtime for one command flow and logs its start and end.
func withRuntime(ctx context.Context, opts *rootOptions, stderr io.Writer, command string, fn func(context.Context, *runtimeEnv) error) error {
	rt, err := openRuntime(opts, stderr)
	if err != nil {
		return err
	}
	defer rt.close()
	rt.logger.Info("command flow start", "command", command)
	if err := fn(ctx, rt); err != nil {
		rt.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	rt.logger.Info("command flow complete", "command", command)
	return nil
}

// openRuntime resolves paths, loads config, builds the logger and opens storage.
func openRuntime(opts *rootOptions, stderr io.Writer) (*runtimeEnv, error) {
	paths, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}
	configPath := resolveConfigPath(opts, paths)
	dbPath, dbOverridden := resolveDBPath(opts, paths)

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if !dbOverridden && cfg.Database.Path == paths.DBPath {
		if err := paths.Ensure(); err != nil {
			return nil, fmt.Errorf("prepare app dirs: %w", err)
		}
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, paths.LogDir, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path)

	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		StageTemplates:  stageTemplates(cfg.ResolvedStates()),
		DefaultPageSize: cfg.Board.PageSize,
	})
	return &runtimeEnv{paths: paths, cfg: cfg, logger: logger, repo: repo, svc: svc}, nil
}

func (rt *runtimeEnv) close() {
	if err := rt.repo.Close(); err != nil {
		rt.logger.Warn("sqlite close failed", "db_path", rt.cfg.Database.Path, "err", err)
	}
	_ = rt.logger.Close()
}

// runBoard runs the TUI against the first process, creating one on first start.
func runBoard(ctx context.Context, opts *rootOptions, stderr io.Writer) error {
	return withRuntime(ctx, opts, stderr, "tui", func(ctx context.Context, rt *runtimeEnv) error {
		rt.logger.SetConsoleEnabled(false)
		if _, err := rt.svc.EnsureDefaultProcess(ctx); err != nil {
			return fmt.Errorf("ensure default process: %w", err)
		}
		m := tui.NewModel(rt.svc,
			tui.WithLogger(rt.logger.componentLogger()),
			tui.WithPageSize(rt.cfg.Board.PageSize),
			tui.WithShowWIPWarnings(rt.cfg.Board.ShowWIPWarnings),
			tui.WithCardFieldConfig(tui.CardFieldConfig{
				ShowValue:   rt.cfg.CardFields.ShowValue,
				ShowDueDate: rt.cfg.CardFields.ShowDueDate,
				ShowContact: rt.cfg.CardFields.ShowContact,
			}),
			tui.WithKeyConfig(tui.KeyConfig{
				PickUp: rt.cfg.Keys.PickUp,
				Detail: rt.cfg.Keys.Detail,
				CopyID: rt.cfg.Keys.CopyID,
				Delete: rt.cfg.Keys.Delete,
			}),
		)
		rt.logger.Info("starting tui program loop")
		if _, err := programFactory(m).Run(); err != nil {
			return fmt.Errorf("run tui program: %w", err)
		}
		return nil
	})
}

func resolvePaths(opts *rootOptions) (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{AppName: opts.appName, DevMode: opts.devMode, Home: opts.home})
}

// resolveConfigPath prefers --config, then CASETRACK_CONFIG, then the platform path.
func resolveConfigPath(opts *rootOptions, paths platform.Paths) string {
	if p := strings.TrimSpace(opts.configPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("CASETRACK_CONFIG")); p != "" {
		return p
	}
	return paths.ConfigPath
}

// resolveDBPath prefers --db, then CASETRACK_DB_PATH. The bool reports an override.
func resolveDBPath(opts *rootOptions, paths platform.Paths) (string, bool) {
	if p := strings.TrimSpace(opts.dbPath); p != "" {
		return p, true
	}
	if p := strings.TrimSpace(os.Getenv("CASETRACK_DB_PATH")); p != "" {
		return p, true
	}
	return paths.DBPath, false
}

func stageTemplates(states []config.StateConfig) []app.StageTemplate {
	out := make([]app.StageTemplate, 0, len(states))
	for _, s := range states {
		out = append(out, app.StageTemplate{ID: s.ID, Name: s.Name, WIPLimit: s.WIPLimit, Position: s.Position})
	}
	return out
}

// writeExport encodes snap as JSON or as a YAML definition to outPath or stdout.
func writeExport(snap app.BoardSnapshot, format, outPath string, stdout io.Writer) error {
	var (
		encoded []byte
		err     error
	)
	switch format {
	case "yaml":
		var b strings.Builder
		if err := yamlfile.Encode(&b, app.DefinitionFromSnapshot(snap)); err != nil {
			return fmt.Errorf("encode definition yaml: %w", err)
		}
		encoded = []byte(b.String())
	default:
		encoded, err = json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot json: %w", err)
		}
		encoded = append(encoded, '\n')
	}

	if outPath == "" || outPath == "-" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write export to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}

var seedTitles = []string{
	"Water damage claim", "Windshield replacement", "Roof inspection", "Theft report",
	"Storm damage", "Medical reimbursement", "Travel cancellation", "Liability dispute",
}

var seedContacts = []string{"ana@example.com", "ben@example.com", "chen@example.com", "dara@example.com"}

// seedDefinition spreads n demo cases over states, front-loading the first
// stage so its column needs several pages.
func seedDefinition(name string, states []config.StateConfig, n int, now time.Time) app.ProcessDefinition {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Demo claims"
	}
	def := app.ProcessDefinition{Name: name, Description: "Generated demo data"}
	for _, s := range states {
		def.Stages = append(def.Stages, app.StageDefinition{ID: s.ID, Name: s.Name, WIPLimit: s.WIPLimit})
	}
	if len(def.Stages) == 0 {
		return def
	}
	for i := range n {
		stage := def.Stages[0]
		if i%2 == 1 {
			stage = def.Stages[(i/2)%len(def.Stages)]
		}
		c := app.CaseDefinition{
			Title:      seedTitles[i%len(seedTitles)] + " #" + strconv.Itoa(i+1),
			Stage:      stage.ID,
			Contact:    seedContacts[i%len(seedContacts)],
			ValueCents: int64((i%17 + 1) * 12500),
			Currency:   "USD",
		}
		if i%3 == 0 {
			due := now.AddDate(0, 0, i%30+1).Truncate(24 * time.Hour)
			c.Due = &due
		}
		if i%4 == 0 {
			c.Description = "Reported by **" + c.Contact + "**.\n\n- verify policy\n- request photos"
		}
		def.Cases = append(def.Cases, c)
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

