package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kbukum/watchtower-sentry/errors"
)

func TestRunDebugGlob(t *testing.T) {
	if got := run([]string{"--debug-glob", "aaa.(*).prober-?.zzz"}); got != exitOK {
		t.Fatalf("exit = %d, want %d", got, exitOK)
	}
	if got := run([]string{"--debug-glob", "aaa.((x)).*"}); got != exitUser {
		t.Fatalf("exit = %d for nested group, want %d", got, exitUser)
	}
}

func TestRunMissingConfig(t *testing.T) {
	if got := run(nil); got != exitUser {
		t.Fatalf("exit = %d, want %d", got, exitUser)
	}
	if got := run([]string{"-c", "/does/not/exist.yaml"}); got != exitUser {
		t.Fatalf("exit = %d, want %d", got, exitUser)
	}
}

func TestRunInvalidPipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentry.yaml")
	cfg := `
pipeline:
  - module: NoSuchModule
  - module: JsonOut
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := run([]string{"-c", path}); got != exitUser {
		t.Fatalf("exit = %d, want %d", got, exitUser)
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(errors.ConfigSchema("f.yaml", "bad")); got != exitUser {
		t.Errorf("config schema error: exit %d, want %d", got, exitUser)
	}
	if got := exitCode(os.ErrPermission); got != exitInternal {
		t.Errorf("plain error: exit %d, want %d", got, exitInternal)
	}
}
