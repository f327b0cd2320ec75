package filters

import (
	"context"
	"fmt"
	"sort"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func init() {
	pipeline.Register("AggTimeMedian", pipeline.ModuleDef{
		Role:   pipeline.RoleFilter,
		Params: &AggTimeMedianParams{},
		Build:  buildAggTimeMedian,
	})
}

// AggTimeMedianParams configures AggTimeMedian.
type AggTimeMedianParams struct {
	Timebin   int64 `yaml:"timebin"`
	Dropfirst *bool `yaml:"dropfirst"`
}

type aggTimeMedianKeyState struct {
	bin    int64
	values []float64
}

// aggTimeMedian buckets every key's values into fixed-width time bins and,
// once a sample's time crosses into a new bin, emits the median of every
// key's buffer for the bin just closed.
type aggTimeMedian struct {
	timebin   int64
	dropfirst bool
	log       *logger.Logger

	firstBin   int64
	haveFirst  bool
	currentBin int64
	active     map[string]*aggTimeMedianKeyState
}

func buildAggTimeMedian(params map[string]interface{}, _ *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := decodeParams[AggTimeMedianParams](params)
	if err != nil {
		return nil, fmt.Errorf("AggTimeMedian: %w", err)
	}
	timebin := p.Timebin
	if timebin == 0 {
		timebin = 300
	}
	if timebin <= 60 {
		return nil, fmt.Errorf("AggTimeMedian: timebin must exceed 60 seconds, got %d", timebin)
	}
	dropfirst := true
	if p.Dropfirst != nil {
		dropfirst = *p.Dropfirst
	}

	a := &aggTimeMedian{
		timebin:   timebin,
		dropfirst: dropfirst,
		log:       log,
		active:    make(map[string]*aggTimeMedianKeyState),
	}

	out := pipeline.FlatMap(upstream, a.step)
	return &pipeline.Stage{Role: pipeline.RoleFilter, Samples: out}, nil
}

func (a *aggTimeMedian) binOf(t int64) int64 {
	return (t / a.timebin) * a.timebin
}

func (a *aggTimeMedian) step(ctx context.Context, s sample.Sample) (pipeline.Iterator[sample.Sample], error) {
	tbin := a.binOf(s.Time)

	if !a.haveFirst {
		a.haveFirst = true
		a.firstBin = tbin
		a.currentBin = tbin
	}

	st, ok := a.active[s.Key]
	if !ok {
		st = &aggTimeMedianKeyState{bin: tbin}
		a.active[s.Key] = st
	}

	if tbin < a.currentBin {
		a.log.Error("dropping sample for closed time bin", map[string]interface{}{"key": s.Key, "time": s.Time, "bin": tbin, "current_bin": a.currentBin})
		return pipeline.FromSlice[sample.Sample](nil).Iter(ctx), nil
	}

	if tbin == a.currentBin {
		if v, ok := s.Value.Number(); ok {
			st.values = append(st.values, v)
		}
		return pipeline.FromSlice[sample.Sample](nil).Iter(ctx), nil
	}

	// A new bin has started: emit the median for every active key's
	// buffer for the bin that just closed, then roll every key forward.
	var out []sample.Sample
	emitBin := a.currentBin
	for key, keySt := range a.active {
		if (!a.dropfirst || emitBin != a.firstBin) && keySt.bin == emitBin && len(keySt.values) > 0 {
			out = append(out, sample.New(key, median(keySt.values), emitBin))
		}
		keySt.values = nil
		keySt.bin = tbin
	}
	if v, ok := s.Value.Number(); ok {
		st.values = append(st.values, v)
	}
	a.currentBin = tbin

	return pipeline.FromSlice(out).Iter(ctx), nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
