package filters

import (
	"context"
	"testing"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func TestKeyfilterKeepsMatchingKeys(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("servers.web1.cpu", 1, 10),
		sample.New("servers.web1.mem", 2, 10),
		sample.New("servers.web2.cpu", 3, 20),
	})

	stage, err := buildKeyfilter(
		map[string]interface{}{"expression": "servers.*.cpu"},
		pipeline.NewContext(),
		logger.NewDefault("test"),
		in,
	)
	if err != nil {
		t.Fatalf("buildKeyfilter: %v", err)
	}

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].Key != "servers.web1.cpu" || got[1].Key != "servers.web2.cpu" {
		t.Errorf("got keys %q, %q", got[0].Key, got[1].Key)
	}
}

func TestKeyfilterRejectsBadExpression(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{})
	_, err := buildKeyfilter(
		map[string]interface{}{"expression": "((nested))"},
		pipeline.NewContext(),
		logger.NewDefault("test"),
		in,
	)
	if err == nil {
		t.Fatal("expected error for nested parens")
	}
}
