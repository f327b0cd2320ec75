package sinks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func TestJsonOutWritesTuples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("a.b", 1.5, 42),
		sample.NewNull("c.d", 43),
	})

	stage, err := buildJsonOut(map[string]interface{}{"file": path}, pipeline.NewContext(), logger.NewDefault("test"), in)
	if err != nil {
		t.Fatalf("buildJsonOut: %v", err)
	}
	if err := stage.Runnable.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want 2", lines)
	}
	if lines[0] != `["a.b",1.5,42]` {
		t.Errorf("lines[0] = %s", lines[0])
	}
	if lines[1] != `["c.d",null,43]` {
		t.Errorf("lines[1] = %s", lines[1])
	}
}
