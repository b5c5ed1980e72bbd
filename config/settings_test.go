package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeSettings(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSettingsStoreLayering(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global", "settings.yaml")
	workspace := filepath.Join(dir, "ws")

	writeSettings(t, globalPath, "runs: 50\njobs: 8\n")
	writeSettings(t, filepath.Join(workspace, ".codeforge", "settings.yaml"), "jobs: 2\nignoreCrashes: true\n")

	store := NewSettingsStore(zap.NewNop())
	store.GlobalPath = globalPath

	raw, err := store.Load(workspace)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Runs == nil || *raw.Runs != 50 {
		t.Errorf("runs should come from the global layer, got %v", raw.Runs)
	}
	if raw.Jobs == nil || *raw.Jobs != 2 {
		t.Errorf("workspace jobs should win, got %v", raw.Jobs)
	}
	if raw.IgnoreCrashes == nil || !*raw.IgnoreCrashes {
		t.Errorf("workspace-only field missing, got %v", raw.IgnoreCrashes)
	}
	if raw.MaxTotalTime != nil {
		t.Errorf("unset field must stay nil, got %v", *raw.MaxTotalTime)
	}
}

func TestSettingsStoreMissingFiles(t *testing.T) {
	store := NewSettingsStore(zap.NewNop())
	store.GlobalPath = filepath.Join(t.TempDir(), "nope", "settings.yaml")

	raw, err := store.Load(t.TempDir())
	if err != nil {
		t.Fatalf("missing files must not error, got %v", err)
	}
	if raw.Runs != nil || raw.OutputDir != nil {
		t.Errorf("expected empty settings, got %+v", raw)
	}
}

func TestSettingsStoreMalformedYAML(t *testing.T) {
	workspace := t.TempDir()
	writeSettings(t, filepath.Join(workspace, ".codeforge", "settings.yaml"), "runs: [not an int\n")

	store := NewSettingsStore(zap.NewNop())
	store.GlobalPath = filepath.Join(t.TempDir(), "settings.yaml")

	if _, err := store.Load(workspace); err == nil {
		t.Fatal("malformed yaml must surface an error")
	}
}
