package filters

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
	"github.com/kbukum/watchtower-sentry/telemetry"
)

func init() {
	pipeline.Register("TimeOrder", pipeline.ModuleDef{
		Role:   pipeline.RoleFilter,
		Params: &TimeOrderParams{},
		Build:  buildTimeOrder,
	})
}

// TimeOrderParams configures TimeOrder. Interval is the expected spacing
// between consecutive points for a key; Timeout is how long (wall-clock
// seconds) to wait for the expected next point before force-draining the
// buffer past the gap.
type TimeOrderParams struct {
	Interval int64 `yaml:"interval" validate:"required"`
	Timeout  int64 `yaml:"timeout" validate:"required"`
}

// timeOrderKey is the reorder state for one key: the watermark of the last
// emitted time, buffered future points, and the wall-clock time of the last
// successful emit.
type timeOrderKey struct {
	lastTime int64
	hasLast  bool
	future   map[int64]sample.Value
	lastEmit time.Time
	hasEmit  bool
}

// timeOrder restores strict per-key time monotonicity over near-in-order
// streams: expected-next points pass through, future points are buffered
// and drained when their predecessor arrives or the timeout forces a gap.
type timeOrder struct {
	interval int64
	timeout  time.Duration
	log      *logger.Logger
	now      func() time.Time
	state    map[string]*timeOrderKey
}

func buildTimeOrder(params map[string]interface{}, _ *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := decodeParams[TimeOrderParams](params)
	if err != nil {
		return nil, fmt.Errorf("TimeOrder: %w", err)
	}
	if p.Interval <= 0 || p.Timeout <= 0 {
		return nil, fmt.Errorf("TimeOrder: interval and timeout must be positive")
	}

	to := &timeOrder{
		interval: p.Interval,
		timeout:  time.Duration(p.Timeout) * time.Second,
		log:      log,
		now:      time.Now,
		state:    make(map[string]*timeOrderKey),
	}

	out := pipeline.FlatMapWithFlush(upstream, to.step, to.flush)
	return &pipeline.Stage{Role: pipeline.RoleFilter, Samples: out}, nil
}

func (o *timeOrder) step(ctx context.Context, s sample.Sample) (pipeline.Iterator[sample.Sample], error) {
	st, ok := o.state[s.Key]
	if !ok {
		st = &timeOrderKey{future: make(map[int64]sample.Value)}
		o.state[s.Key] = st
	}

	now := o.now()

	// force-drain when the buffer has been waiting past the timeout
	force := st.hasEmit && !now.Before(st.lastEmit.Add(o.timeout))
	checkBuffer := force

	var out []sample.Sample

	switch {
	case !st.hasLast || s.Time == st.lastTime+o.interval:
		out = append(out, s)
		st.lastTime = s.Time
		st.hasLast = true
		st.lastEmit = now
		st.hasEmit = true
		force = false
		checkBuffer = true
	case s.Time > st.lastTime+o.interval:
		st.future[s.Time] = s.Value
	default:
		o.log.Debug("dropping sample older than watermark", map[string]interface{}{
			"key": s.Key, "time": s.Time, "watermark": st.lastTime,
		})
		telemetry.Pipeline().RecordDrop(ctx, "TimeOrder")
	}

	if checkBuffer {
		times := make([]int64, 0, len(st.future))
		for t := range st.future {
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		for _, bt := range times {
			if !force && bt != st.lastTime+o.interval {
				break
			}
			out = append(out, sample.Sample{Key: s.Key, Value: st.future[bt], Time: bt})
			delete(st.future, bt)
			st.lastTime = bt
			st.lastEmit = now
			force = false
		}
	}

	return pipeline.FromSlice(out).Iter(ctx), nil
}

// flush drains every remaining buffered entry in ascending time order per
// key once the upstream source is exhausted.
func (o *timeOrder) flush(ctx context.Context) (pipeline.Iterator[sample.Sample], error) {
	keys := make([]string, 0, len(o.state))
	for k := range o.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []sample.Sample
	for _, k := range keys {
		st := o.state[k]
		times := make([]int64, 0, len(st.future))
		for t := range st.future {
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		for _, bt := range times {
			out = append(out, sample.Sample{Key: k, Value: st.future[bt], Time: bt})
		}
	}
	return pipeline.FromSlice(out).Iter(ctx), nil
}
