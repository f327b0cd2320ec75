package filters

import (
	"context"
	"testing"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func TestKeyEntityRewritesKey(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("bgp.geo.netacuity.NA.(ignored)", 0, 0), // no match
		sample.New("bgp.geo.netacuity.US.visible", 7, 100),
	})
	stage, err := buildKeyEntity(
		map[string]interface{}{
			"expressions": []interface{}{
				map[string]interface{}{
					"pattern":  "bgp.geo.netacuity.(*).visible",
					"metatype": "country",
				},
			},
		},
		pipeline.NewContext(), logger.NewDefault("test"), in,
	)
	if err != nil {
		t.Fatalf("buildKeyEntity: %v", err)
	}
	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Key != "country/US" {
		t.Errorf("key = %q, want %q", got[0].Key, "country/US")
	}
	if v, _ := got[0].Value.Number(); v != 7 || got[0].Time != 100 {
		t.Errorf("value/time not preserved: %+v", got[0])
	}
}

func TestKeyEntityFirstPatternWins(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("net.region.EU.count", 1, 0),
	})
	stage, err := buildKeyEntity(
		map[string]interface{}{
			"expressions": []interface{}{
				map[string]interface{}{"pattern": "net.region.(*).count", "metatype": "region"},
				map[string]interface{}{"pattern": "net.*.(*).count", "metatype": "other"},
			},
		},
		pipeline.NewContext(), logger.NewDefault("test"), in,
	)
	if err != nil {
		t.Fatalf("buildKeyEntity: %v", err)
	}
	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 1 || got[0].Key != "region/EU" {
		t.Fatalf("got %+v, want key region/EU", got)
	}
}
