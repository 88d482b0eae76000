package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sghr/warden/internal/config"
)

func TestRunCreatesLayout(t *testing.T) {
	dir := t.TempDir()

	if err := Run(dir); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, d := range []string{".warden/runs", ".warden/logs"} {
		info, err := os.Stat(filepath.Join(dir, d))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s, got err=%v", d, err)
		}
	}

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("seeded config does not load: %v", err)
	}
	if cfg.Provider == "" || cfg.Run.MaxSteps <= 0 {
		t.Errorf("seeded config missing defaults: %+v", cfg)
	}
}

func TestRunRefusesExistingConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("provider: openai\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Run(dir); err == nil {
		t.Fatal("expected error for existing config.yaml")
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "provider: openai\n" {
		t.Errorf("existing config was modified: %q", data)
	}
}
