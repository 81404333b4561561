package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"
)

// Page size bounds for board.page_size.
const (
	MinPageSize = 1
	MaxPageSize = 500
)

type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Board      BoardConfig      `toml:"board"`
	CardFields CardFieldsConfig `toml:"card_fields"`
	Logging    LoggingConfig    `toml:"logging"`
	Server     ServerConfig     `toml:"server"`
	Keys       KeyConfig        `toml:"keys"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type BoardConfig struct {
	PageSize        int           `toml:"page_size"`
	States          []StateConfig `toml:"states"`
	ShowWIPWarnings bool          `toml:"show_wip_warnings"`
}

type StateConfig struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	WIPLimit int    `toml:"wip_limit"`
	Position int    `toml:"position"`
}

type CardFieldsConfig struct {
	ShowValue   bool `toml:"show_value"`
	ShowDueDate bool `toml:"show_due_date"`
	ShowContact bool `toml:"show_contact"`
}

type LoggingConfig struct {
	Level   string           `toml:"level"`
	DevFile DevFileLogConfig `toml:"dev_file"`
}

type DevFileLogConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type KeyConfig struct {
	PickUp string `toml:"pick_up"`
	Detail string `toml:"detail"`
	CopyID string `toml:"copy_id"`
	Delete string `toml:"delete"`
}

func defaultStates() []StateConfig {
	return []StateConfig{
		{ID: "intake", Name: "Intake", Position: 0},
		{ID: "triage", Name: "Triage", Position: 1},
		{ID: "active", Name: "In Progress", WIPLimit: 5, Position: 2},
		{ID: "review", Name: "Review", Position: 3},
		{ID: "closed", Name: "Closed", Position: 4},
	}
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Board: BoardConfig{
			PageSize:        25,
			States:          defaultStates(),
			ShowWIPWarnings: true,
		},
		CardFields: CardFieldsConfig{
			ShowValue:   true,
			ShowDueDate: true,
			ShowContact: false,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileLogConfig{
				Enabled: false,
				Dir:     ".casetrack/log",
			},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:5437",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Keys: KeyConfig{
			PickUp: " ",
			Detail: "i",
			CopyID: "y",
			Delete: "x",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Board.PageSize < MinPageSize || c.Board.PageSize > MaxPageSize {
		return fmt.Errorf("board.page_size must be between %d and %d, got %d", MinPageSize, MaxPageSize, c.Board.PageSize)
	}
	if len(c.Board.States) == 0 {
		return errors.New("board.states must include at least one state")
	}
	seenStateID := map[string]struct{}{}
	for idx := range c.Board.States {
		state := c.Board.States[idx]
		state.ID = strings.TrimSpace(strings.ToLower(state.ID))
		state.Name = strings.TrimSpace(state.Name)
		if state.ID == "" {
			return fmt.Errorf("board.states[%d].id is required", idx)
		}
		if state.Name == "" {
			return fmt.Errorf("board.states[%d].name is required", idx)
		}
		if state.WIPLimit < 0 {
			return fmt.Errorf("board.states[%d].wip_limit must be >= 0", idx)
		}
		if state.Position < 0 {
			return fmt.Errorf("board.states[%d].position must be >= 0", idx)
		}
		if _, ok := seenStateID[state.ID]; ok {
			return fmt.Errorf("board.states[%d].id is duplicated: %s", idx, state.ID)
		}
		seenStateID[state.ID] = struct{}{}
		c.Board.States[idx] = state
	}

	if level := strings.TrimSpace(c.Logging.Level); level != "" {
		if _, err := log.ParseLevel(level); err != nil {
			return fmt.Errorf("invalid logging.level %q: %w", c.Logging.Level, err)
		}
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when dev file logging is enabled")
	}

	if bind := strings.TrimSpace(c.Server.HTTPBind); bind != "" {
		if _, _, err := net.SplitHostPort(bind); err != nil {
			return fmt.Errorf("invalid server.http_bind %q: %w", bind, err)
		}
	}
	for name, endpoint := range map[string]string{"server.api_endpoint": c.Server.APIEndpoint, "server.mcp_endpoint": c.Server.MCPEndpoint} {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}

	seenKey := map[string]string{}
	for name, binding := range map[string]string{"pick_up": c.Keys.PickUp, "detail": c.Keys.Detail, "copy_id": c.Keys.CopyID, "delete": c.Keys.Delete} {
		if binding == "" {
			return fmt.Errorf("keys.%s is required", name)
		}
		if other, dup := seenKey[binding]; dup {
			return fmt.Errorf("keys.%s and keys.%s share binding %q", name, other, binding)
		}
		seenKey[binding] = name
	}

	return nil
}

// ResolvedStates returns board states with trimmed, lowercased ids.
func (c Config) ResolvedStates() []StateConfig {
	out := make([]StateConfig, 0, len(c.Board.States))
	for _, state := range c.Board.States {
		state.ID = strings.TrimSpace(strings.ToLower(state.ID))
		state.Name = strings.TrimSpace(state.Name)
		out = append(out, state)
	}
	return out
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
