// Package setup initializes a warden state directory and seed config.
package setup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sghr/warden/templates"
)

// Run creates the .warden state layout under dir and writes a config.yaml
// seeded from the embedded template next to it. It refuses to touch an
// existing config file.
func Run(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve dir: %w", err)
	}

	configPath := filepath.Join(absDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	stateDir := filepath.Join(absDir, ".warden")
	for _, d := range []string{"runs", "logs"} {
		if err := os.MkdirAll(filepath.Join(stateDir, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	data, err := templates.FS.ReadFile("config.yaml")
	if err != nil {
		return fmt.Errorf("read config template: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	return nil
}
