// Package app wires configuration, modules and the analysis pipeline into a
// runnable process. It is shared by every surveil command.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/surveil/internal/config"
)

// RunParams configures the long-running service.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level
}

// LoadConfig resolves, loads and validates the configuration file.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Run loads configuration, starts the gateway and the analysis pipeline, and
// blocks until SIGINT or SIGTERM.
func Run(params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := Build(ctx, cfg, Options{Version: params.Version, LogLevel: params.LogLevel, Serve: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Logger.Info("surveil starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"modules", rt.ModuleIDs(),
	)
	if err := rt.Preflight(); err != nil {
		rt.Logger.Warn("evidence sources incomplete, affected analyses will fail", "error", err)
	}
	return rt.Serve(ctx)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/surveil/surveil.yaml → ~/.config/surveil/surveil.yaml → ./surveil.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "surveil", "surveil.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "surveil", "surveil.yaml"))
	}

	candidates = append(candidates, "surveil.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where `surveil init` writes when no path is given.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "surveil", "surveil.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "surveil", "surveil.yaml")
	}
	return "surveil.yaml"
}
