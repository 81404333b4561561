package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the config and data directories when no app name is given.
const DefaultAppName = "casetrack"

// Paths holds the per-user locations of the config file, database and logs.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
}

// Options selects the app name and dev mode used to build paths. A non-empty
// Home puts config, data and logs together under that one directory.
type Options struct {
	AppName string
	DevMode bool
	Home    string
}

// baseEnv lists, per OS, the env vars that override the config and data bases.
var baseEnv = map[string][2]string{
	"linux":   {"XDG_CONFIG_HOME", "XDG_DATA_HOME"},
	"windows": {"APPDATA", "LOCALAPPDATA"},
}

// DefaultPaths returns the paths for DefaultAppName.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: DefaultAppName})
}

// DefaultPathsWithOptions resolves paths for the current user. DevMode appends "-dev" to the app name.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName, err := resolveAppName(opts.AppName, opts.DevMode)
	if err != nil {
		return Paths{}, err
	}
	if home := strings.TrimSpace(opts.Home); home != "" {
		return portablePaths(home, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir := configDir
	switch runtime.GOOS {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("user home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	case "windows":
		if v := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); v != "" {
			dataDir = v
		}
	}

	env := map[string]string{}
	for _, keys := range baseEnv {
		for _, key := range keys {
			env[key] = os.Getenv(key)
		}
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// PathsFor resolves paths for goos from explicit base directories and
// environment. Only linux and windows consult env; other systems use the bases.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, fmt.Errorf("empty app name")
	}

	configBase, dataBase := userConfigDir, userDataDir
	if keys, ok := baseEnv[goos]; ok {
		if v := strings.TrimSpace(env[keys[0]]); v != "" {
			configBase = v
		}
		if v := strings.TrimSpace(env[keys[1]]); v != "" {
			dataBase = v
		}
	}

	dataDir := filepath.Join(dataBase, appName)
	return Paths{
		ConfigPath: filepath.Join(configBase, appName, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogDir:     filepath.Join(dataDir, "log"),
	}, nil
}

func portablePaths(home, appName string) Paths {
	home = filepath.Clean(home)
	return Paths{
		ConfigPath: filepath.Join(home, "config.toml"),
		DataDir:    home,
		DBPath:     filepath.Join(home, appName+".db"),
		LogDir:     filepath.Join(home, "log"),
	}
}

func resolveAppName(name string, devMode bool) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultAppName
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid app name %q", name)
	}
	if devMode {
		name += "-dev"
	}
	return name, nil
}

// Ensure creates the config, data and log directories.
func (p Paths) Ensure() error {
	for _, dir := range []string{filepath.Dir(p.ConfigPath), p.DataDir, p.LogDir} {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
