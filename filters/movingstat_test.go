package filters

import (
	"context"
	"testing"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func buildTestMovingStat(t *testing.T, params map[string]interface{}, in *pipeline.Pipeline[sample.Sample]) *pipeline.Stage {
	t.Helper()
	stage, err := buildMovingStat(params, pipeline.NewContext(), logger.NewDefault("test"), in)
	if err != nil {
		t.Fatalf("buildMovingStat: %v", err)
	}
	return stage
}

func TestMovingStatMeanWarmupAndRatio(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 10, 0),
		sample.New("k", 20, 10),
		sample.New("k", 15, 20),
	})
	stage := buildTestMovingStat(t, map[string]interface{}{
		"type": []interface{}{"mean"}, "warmup": 5, "history": 100,
	}, in)

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2 (first sample is warmup-only)", len(got))
	}
	if got[0].Time != 10 {
		t.Errorf("got[0].Time = %d, want 10", got[0].Time)
	}
	if v, _ := got[0].Value.Number(); v != 2 {
		t.Errorf("got[0] ratio = %v, want 2 (20/10)", v)
	}
	if v, _ := got[1].Value.Number(); v != 1 {
		t.Errorf("got[1] ratio = %v, want 1 (15/mean(10,20)=15)", v)
	}
}

func TestMovingStatMedianRank(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 1, 0),
		sample.New("k", 3, 10),
		sample.New("k", 2, 20),
	})
	stage := buildTestMovingStat(t, map[string]interface{}{
		"type": []interface{}{"median"}, "warmup": 5, "history": 100,
	}, in)

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if v, _ := got[0].Value.Number(); v != 3 {
		t.Errorf("got[0] ratio = %v, want 3 (3/median([1])=1)", v)
	}
	if v, _ := got[1].Value.Number(); v != 2 {
		t.Errorf("got[1] ratio = %v, want 2 (2/median([1,3])=1)", v)
	}
}

func TestMovingStatInpaintingSubstitutesExtremes(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 10, 0),
		sample.New("k", 10, 1),
		sample.New("k", 100, 2),
		sample.New("k", 110, 3),
		sample.New("k", 10, 4),
	})
	stage := buildTestMovingStat(t, map[string]interface{}{
		"type": []interface{}{"mean"}, "warmup": 1, "history": 1000,
		"inpainting": map[string]interface{}{"min": 0.5, "max": 2, "maxduration": 20},
	}, in)

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4", len(got))
	}
	want := []float64{1, 10, 11, 1}
	for i, w := range want {
		v, _ := got[i].Value.Number()
		if v != w {
			t.Errorf("got[%d] = %v, want %v", i, v, w)
		}
	}
}

func TestMovingStatNewNormalAfterMaxduration(t *testing.T) {
	// shift to 4x baseline; after maxduration the raw values become the
	// new window and the prediction follows the raised level
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 10, 0),
		sample.New("k", 10, 1),
		sample.New("k", 40, 2),
		sample.New("k", 40, 3),
		sample.New("k", 40, 4),
		sample.New("k", 40, 5),
	})
	stage := buildTestMovingStat(t, map[string]interface{}{
		"type": []interface{}{"mean"}, "warmup": 1, "history": 1000,
		"inpainting": map[string]interface{}{"min": 0.5, "max": 2, "maxduration": 2},
	}, in)

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []float64{1, 4, 4, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if v, _ := got[i].Value.Number(); v != w {
			t.Errorf("got[%d] ratio = %v, want %v", i, v, w)
		}
	}
}

func TestMovingStatNullSamplesIgnored(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 10, 0),
		sample.NewNull("k", 10),
		sample.New("other", 5, 10),
		sample.New("k", 10, 20),
	})
	stage := buildTestMovingStat(t, map[string]interface{}{
		"type": []interface{}{"mean"}, "warmup": 5, "history": 100,
	}, in)

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	// the null produces nothing for k and does not disturb other keys
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Key != "k" || got[0].Time != 20 {
		t.Errorf("got %+v", got[0])
	}
}

func TestMovingStatNormalizeFalseEmitsPrediction(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 10, 0),
		sample.New("k", 20, 10),
		sample.New("k", 30, 20),
	})
	stage := buildTestMovingStat(t, map[string]interface{}{
		"type": []interface{}{"median"}, "warmup": 5, "history": 100,
		"normalize": false,
	}, in)

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if v, _ := got[0].Value.Number(); v != 10 {
		t.Errorf("got[0] predicted = %v, want 10", v)
	}
	if v, _ := got[1].Value.Number(); v != 10 {
		t.Errorf("got[1] predicted = %v, want median(10,20) rank = 10", v)
	}
}

func TestMovingStatMinpredictionSkips(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 1, 0),
		sample.New("k", 2, 10),
		sample.New("k", 3, 20),
	})
	stage := buildTestMovingStat(t, map[string]interface{}{
		"type": []interface{}{"mean"}, "warmup": 5, "history": 100,
		"minprediction": 100,
	}, in)

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len(got) = %d, want 0 (prediction below minprediction)", len(got))
	}
}

func TestMovingStatIncludeAbsoluteEmitsTriple(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 10, 0),
		sample.New("k", 20, 10),
	})
	stage := buildTestMovingStat(t, map[string]interface{}{
		"type": []interface{}{"mean"}, "warmup": 5, "history": 100,
		"includeabsolute": true,
	}, in)

	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	tr, ok := got[0].Value.Triple()
	if !ok {
		t.Fatalf("value is not a triple: %v", got[0].Value)
	}
	if tr.Ratio == nil || *tr.Ratio != 2 || tr.Actual != 20 || tr.Predicted == nil || *tr.Predicted != 10 {
		t.Errorf("triple = %+v", tr)
	}
}

func TestMovingStatRejectsHistoryNotGreaterThanWarmup(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{})
	_, err := buildMovingStat(
		map[string]interface{}{"type": []interface{}{"mean"}, "warmup": 100, "history": 100},
		pipeline.NewContext(), logger.NewDefault("test"), in,
	)
	if err == nil {
		t.Fatal("expected error when history does not exceed warmup")
	}
}
