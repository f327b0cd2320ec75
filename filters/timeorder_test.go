package filters

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func TestTimeOrderReordersShuffledStream(t *testing.T) {
	var in []sample.Sample
	for i := 0; i < 20; i++ {
		in = append(in, sample.New("order.key", float64(i), int64(1000+10*i)))
	}
	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(in), func(i, j int) { in[i], in[j] = in[j], in[i] })

	stage, err := buildTimeOrder(
		map[string]interface{}{"interval": 10, "timeout": 20},
		pipeline.NewContext(), logger.NewDefault("test"), pipeline.FromSlice(in),
	)
	if err != nil {
		t.Fatalf("buildTimeOrder: %v", err)
	}
	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	// samples older than the first emitted time are dropped; everything else
	// must come out strictly increasing by interval
	first := got[0].Time
	want := 0
	for _, s := range in {
		if s.Time >= first {
			want++
		}
	}
	if len(got) != want {
		t.Fatalf("len(got) = %d, want %d", len(got), want)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Time <= got[i-1].Time {
			t.Fatalf("output not strictly increasing at %d: %d then %d", i, got[i-1].Time, got[i].Time)
		}
	}
}

func TestTimeOrderDropsDataOlderThanWatermark(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 1, 100),
		sample.New("k", 2, 110),
		sample.New("k", 3, 100), // behind the watermark
		sample.New("k", 4, 120),
	})
	stage, err := buildTimeOrder(
		map[string]interface{}{"interval": 10, "timeout": 20},
		pipeline.NewContext(), logger.NewDefault("test"), in,
	)
	if err != nil {
		t.Fatalf("buildTimeOrder: %v", err)
	}
	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	for i, wantT := range []int64{100, 110, 120} {
		if got[i].Time != wantT {
			t.Errorf("got[%d].Time = %d, want %d", i, got[i].Time, wantT)
		}
	}
}

func TestTimeOrderFlushesBufferAtExhaustion(t *testing.T) {
	// 120 never arrives, so 130 and 140 stay buffered until end-of-stream
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 1, 100),
		sample.New("k", 2, 110),
		sample.New("k", 4, 140),
		sample.New("k", 3, 130),
	})
	stage, err := buildTimeOrder(
		map[string]interface{}{"interval": 10, "timeout": 3600},
		pipeline.NewContext(), logger.NewDefault("test"), in,
	)
	if err != nil {
		t.Fatalf("buildTimeOrder: %v", err)
	}
	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var times []int64
	for _, s := range got {
		times = append(times, s.Time)
	}
	want := []int64{100, 110, 130, 140}
	if len(times) != len(want) {
		t.Fatalf("times = %v, want %v", times, want)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Fatalf("times = %v, want %v", times, want)
		}
	}
}

func TestTimeOrderForceDrainsAfterTimeout(t *testing.T) {
	clock := time.Unix(5000, 0)
	o := &timeOrder{
		interval: 10,
		timeout:  20 * time.Second,
		log:      logger.NewDefault("test"),
		now:      func() time.Time { return clock },
		state:    make(map[string]*timeOrderKey),
	}

	collect := func(s sample.Sample) []sample.Sample {
		it, err := o.step(context.Background(), s)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		var out []sample.Sample
		for {
			v, ok, err := it.Next(context.Background())
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !ok {
				return out
			}
			out = append(out, v)
		}
	}

	if got := collect(sample.New("k", 1, 100)); len(got) != 1 {
		t.Fatalf("first sample not emitted: %v", got)
	}
	// 110 missing; 130 buffered
	if got := collect(sample.New("k", 3, 130)); len(got) != 0 {
		t.Fatalf("future sample should be buffered, got %v", got)
	}
	// past the timeout the buffer is drained despite the gap
	clock = clock.Add(25 * time.Second)
	got := collect(sample.New("k", 4, 140))
	if len(got) != 2 || got[0].Time != 130 || got[1].Time != 140 {
		t.Fatalf("force drain: got %v, want times [130 140]", got)
	}
}

func TestTimeOrderCheckerFatal(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("k", 1, 100),
		sample.New("k", 2, 90),
	})
	stage, err := buildTimeOrderChecker(
		map[string]interface{}{"fatal": true},
		pipeline.NewContext(), logger.NewDefault("test"), in,
	)
	if err != nil {
		t.Fatalf("buildTimeOrderChecker: %v", err)
	}
	_, err = pipeline.Collect(context.Background(), stage.Samples)
	if err == nil {
		t.Fatal("expected error for out-of-order data with fatal: true")
	}
}

func TestTimeOrderCheckerPassthrough(t *testing.T) {
	in := pipeline.FromSlice([]sample.Sample{
		sample.New("a", 1, 100),
		sample.New("b", 2, 50),
		sample.New("a", 3, 110),
	})
	stage, err := buildTimeOrderChecker(
		map[string]interface{}{},
		pipeline.NewContext(), logger.NewDefault("test"), in,
	)
	if err != nil {
		t.Fatalf("buildTimeOrderChecker: %v", err)
	}
	got, err := pipeline.Collect(context.Background(), stage.Samples)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3 (checker must forward everything)", len(got))
	}
}
