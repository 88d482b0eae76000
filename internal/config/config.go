// Package config loads the warden configuration: embedded defaults, an
// optional YAML file overlay, and environment overrides, plus a filesystem
// watcher for hot reload in the daemon.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sghr/warden/internal/model"
	"github.com/sghr/warden/templates"
)

// DefaultPath is the config filename looked up in the working directory when
// no explicit path is given.
const DefaultPath = "config.yaml"

// Default returns the embedded default configuration.
func Default() model.Config {
	var cfg model.Config
	if data, err := templates.FS.ReadFile("config.yaml"); err == nil {
		// The embedded template is authored alongside this code; a parse
		// failure here is a build defect, not a runtime condition.
		_ = yaml.Unmarshal(data, &cfg)
	}
	normalize(&cfg)
	return cfg
}

// Load reads the configuration from path, falling back to the embedded
// defaults when the file does not exist. Environment overrides are applied
// last.
func Load(path string) (model.Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file is fine; defaults plus env are the configuration.
	case err != nil:
		return model.Config{}, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return model.Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *model.Config) {
	if v := os.Getenv("WARDEN_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("WARDEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MODEL_PROVIDER"); v != "" {
		cfg.Provider = v
	}
}

// normalize fills zero values with the operational defaults.
func normalize(cfg *model.Config) {
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.Run.MaxSteps <= 0 {
		cfg.Run.MaxSteps = 20
	}
	if cfg.Run.MaxRetries < 0 {
		cfg.Run.MaxRetries = 0
	}
	if cfg.Run.ApprovalMode == "" {
		cfg.Run.ApprovalMode = "normal"
	}
	if len(cfg.Shell.AllowedCommands) == 0 {
		cfg.Shell.AllowedCommands = []string{"dir", "ls", "python", "pytest"}
	}
	if cfg.Shell.TimeoutSec <= 0 {
		cfg.Shell.TimeoutSec = 30
	}
	if cfg.Web.MaxResults <= 0 {
		cfg.Web.MaxResults = 5
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8787"
	}
	if cfg.Server.ApprovalTimeoutSec <= 0 {
		cfg.Server.ApprovalTimeoutSec = 3600
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = ".warden/logs"
	}
}
