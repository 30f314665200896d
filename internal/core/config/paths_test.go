package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/m\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pkg := filepath.Join(root, "internal", "clock")
	if err := os.MkdirAll(pkg, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Target.File = filepath.Join(pkg, "clock.go")
	cfg.Output.TestsRoot = "tests"

	resolved, err := ResolvePaths(cfg, pkg)
	if err != nil {
		t.Fatalf("ResolvePaths failed: %v", err)
	}
	if resolved.ProjectRoot != filepath.Clean(root) {
		t.Errorf("expected project root %s, got %s", root, resolved.ProjectRoot)
	}
	if resolved.DBPath != filepath.Join(root, ".sorcerer", "history.db") {
		t.Errorf("unexpected db path %s", resolved.DBPath)
	}
	if resolved.StateDir != filepath.Join(root, ".sorcerer", "state") {
		t.Errorf("unexpected state dir %s", resolved.StateDir)
	}
	if resolved.TestsRoot != filepath.Join(root, "tests") {
		t.Errorf("unexpected tests root %s", resolved.TestsRoot)
	}
}

func TestResolvePathsRequiresCwd(t *testing.T) {
	if _, err := ResolvePaths(Default(), " "); err == nil {
		t.Fatal("expected error for empty cwd")
	}
}

func TestFindConfigFile(t *testing.T) {
	root := t.TempDir()
	want := filepath.Join(root, DefaultFileName)
	if err := os.WriteFile(want, []byte("version = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	got, ok := FindConfigFile(nested)
	if !ok || got != want {
		t.Fatalf("expected %s, got %s (found=%v)", want, got, ok)
	}
}
