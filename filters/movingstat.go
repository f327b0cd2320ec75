package filters

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
	"github.com/kbukum/watchtower-sentry/telemetry"
	"github.com/kbukum/watchtower-sentry/validation"
)

func init() {
	pipeline.Register("MovingStat", pipeline.ModuleDef{
		Role:   pipeline.RoleFilter,
		Params: &MovingStatParams{},
		Build:  buildMovingStat,
	})
}

// InpaintingParams configures the optional extreme-value substitution
// protocol.
type InpaintingParams struct {
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	Maxduration int64    `yaml:"maxduration" validate:"required"`
}

// MovingStatParams configures MovingStat. Type is ["mean"], ["min"],
// ["max"], ["median"], or ["quantile", k, q].
type MovingStatParams struct {
	Type            []interface{}     `yaml:"type" validate:"required"`
	Warmup          int64             `yaml:"warmup" validate:"required"`
	History         int64             `yaml:"history" validate:"required"`
	Normalize       *bool             `yaml:"normalize"`
	Includeabsolute bool              `yaml:"includeabsolute"`
	Minprediction   *float64          `yaml:"minprediction"`
	Inpainting      *InpaintingParams `yaml:"inpainting"`
}

type statKind int

const (
	statMean statKind = iota
	statQuantile
)

// vt is one (value, time) window entry.
type vt struct {
	v float64
	t int64
}

// keyState is the per-key sliding window plus its auxiliary statistic: a
// sorted value slice for quantiles or a running sum for the mean, and a raw
// shadow window held during an inpainting episode.
type keyState struct {
	window []vt
	raw    []vt

	inpainting  bool
	initialized bool

	sum          float64
	sortedValues []float64

	lastTime    int64
	hasLastTime bool
}

func (st *keyState) quantInsert(val float64) {
	idx := bisectRight(st.sortedValues, val)
	st.sortedValues = append(st.sortedValues, 0)
	copy(st.sortedValues[idx+1:], st.sortedValues[idx:])
	st.sortedValues[idx] = val
}

func (st *keyState) quantRemove(val float64) {
	idx := bisectLeft(st.sortedValues, val)
	if idx >= len(st.sortedValues) {
		return
	}
	st.sortedValues = append(st.sortedValues[:idx], st.sortedValues[idx+1:]...)
}

// quantAddRemove replaces one occurrence of rmitem with additem in place,
// keeping sortedValues sorted via a single region shift between the removal
// and insertion positions.
func (st *keyState) quantAddRemove(additem, rmitem float64) {
	s := st.sortedValues
	switch {
	case rmitem < additem:
		left := bisectRight(s, rmitem)
		right := bisectLeftFrom(s, additem, left)
		copy(s[left-1:right-1], s[left:right])
		s[right-1] = additem
	case additem < rmitem:
		left := bisectRight(s, additem)
		right := bisectLeftFrom(s, rmitem, left)
		copy(s[left+1:right+1], s[left:right])
		s[left] = additem
	}
}

func bisectLeft(s []float64, x float64) int {
	return sort.Search(len(s), func(i int) bool { return s[i] >= x })
}

func bisectRight(s []float64, x float64) int {
	return sort.Search(len(s), func(i int) bool { return s[i] > x })
}

func bisectLeftFrom(s []float64, x float64, lo int) int {
	return lo + sort.Search(len(s)-lo, func(i int) bool { return s[lo+i] >= x })
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func truthy(v *float64) bool {
	return v != nil && *v != 0
}

// movingStat implements the per-key sliding-window statistic and the
// inpainting protocol that substitutes predictions for extreme inputs.
type movingStat struct {
	kind statKind
	k, q int64

	warmup          int64
	history         int64
	normalize       bool
	includeAbsolute bool
	minPrediction   *float64

	inpaintMin         *float64
	inpaintMax         *float64
	inpaintMaxDuration int64

	log  *logger.Logger
	data map[string]*keyState
}

func buildMovingStat(params map[string]interface{}, pctx *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := decodeParams[MovingStatParams](params)
	if err != nil {
		return nil, fmt.Errorf("MovingStat: %w", err)
	}
	if len(p.Type) == 0 {
		return nil, fmt.Errorf("MovingStat: type is required")
	}
	if p.Warmup <= 0 || p.History <= 0 {
		return nil, fmt.Errorf("MovingStat: warmup and history are required")
	}

	v := validation.New().Custom(p.History > p.Warmup, "history", "must be greater than warmup")
	if appErr := v.Validate(); appErr != nil {
		return nil, fmt.Errorf("MovingStat: %w", appErr)
	}

	ms := &movingStat{
		warmup:    p.Warmup,
		history:   p.History,
		normalize: true,
		log:       log,
		data:      make(map[string]*keyState),
	}
	if p.Normalize != nil {
		ms.normalize = *p.Normalize
	}
	ms.includeAbsolute = p.Includeabsolute
	if ms.includeAbsolute && !ms.normalize {
		return nil, fmt.Errorf("MovingStat: normalize must not be false when includeabsolute is set")
	}
	ms.minPrediction = p.Minprediction

	name, _ := p.Type[0].(string)
	switch name {
	case "mean":
		ms.kind = statMean
	case "min":
		ms.kind, ms.k, ms.q = statQuantile, 0, 1
	case "max":
		ms.kind, ms.k, ms.q = statQuantile, 1, 1
	case "median":
		ms.kind, ms.k, ms.q = statQuantile, 1, 2
	case "quantile":
		if len(p.Type) != 3 {
			return nil, fmt.Errorf("MovingStat: quantile type expects [\"quantile\", k, q]")
		}
		k, kok := toInt64(p.Type[1])
		q, qok := toInt64(p.Type[2])
		if !kok || !qok || q <= 0 || k < 0 || k > q {
			return nil, fmt.Errorf("MovingStat: quantile k, q must satisfy 0 <= k <= q, q > 0")
		}
		ms.kind, ms.k, ms.q = statQuantile, k, q
	default:
		return nil, fmt.Errorf("MovingStat: unknown type %q", name)
	}

	if p.Inpainting != nil {
		ms.inpaintMin = p.Inpainting.Min
		ms.inpaintMax = p.Inpainting.Max
		ms.inpaintMaxDuration = p.Inpainting.Maxduration
		if ms.inpaintMaxDuration < ms.warmup {
			log.Warn("inpainting.maxduration is less than warmup, new-normal transitions may re-enter warmup", map[string]interface{}{
				"maxduration": ms.inpaintMaxDuration, "warmup": ms.warmup,
			})
		}
	}

	parts := make([]string, len(p.Type))
	for i, x := range p.Type {
		parts[i] = fmt.Sprintf("%v", x)
	}
	pipeline.Write(pctx, pipeline.MethodPort, strings.Join(parts, ", "))

	out := pipeline.FlatMap(upstream, ms.step)
	return &pipeline.Stage{Role: pipeline.RoleFilter, Samples: out}, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func (m *movingStat) initAux(st *keyState) {
	switch m.kind {
	case statMean:
		var sum float64
		for _, e := range st.window {
			sum += e.v
		}
		st.sum = sum
	case statQuantile:
		vals := make([]float64, len(st.window))
		for i, e := range st.window {
			vals[i] = e.v
		}
		sort.Float64s(vals)
		st.sortedValues = vals
	}
	st.initialized = true
}

func (m *movingStat) resetAux(st *keyState) {
	st.initialized = false
	st.sum = 0
	st.sortedValues = nil
}

func (m *movingStat) removeAux(st *keyState, val float64) {
	switch m.kind {
	case statMean:
		st.sum -= val
	case statQuantile:
		st.quantRemove(val)
	}
}

func (m *movingStat) insertAux(st *keyState, val float64) {
	switch m.kind {
	case statMean:
		st.sum += val
	case statQuantile:
		st.quantInsert(val)
	}
}

func (m *movingStat) insertRemoveAux(st *keyState, ins, rm float64) {
	switch m.kind {
	case statMean:
		st.sum += ins - rm
	case statQuantile:
		st.quantAddRemove(ins, rm)
	}
}

func (m *movingStat) predict(st *keyState) *float64 {
	switch m.kind {
	case statMean:
		n := len(st.window)
		if n == 0 {
			return nil
		}
		val := st.sum / float64(n)
		return &val
	case statQuantile:
		n := len(st.sortedValues)
		if n == 0 {
			return nil
		}
		var rank int64
		if m.k != 0 {
			rank = ceilDiv(int64(n)*m.k, m.q) - 1
		}
		if rank < 0 {
			rank = 0
		}
		if rank >= int64(n) {
			rank = int64(n) - 1
		}
		val := st.sortedValues[rank]
		return &val
	}
	return nil
}

func (m *movingStat) isExtreme(ratio *float64) bool {
	if ratio == nil {
		return false
	}
	if m.inpaintMin != nil && *ratio < *m.inpaintMin {
		return true
	}
	if m.inpaintMax != nil && *ratio > *m.inpaintMax {
		return true
	}
	return false
}

func (m *movingStat) step(ctx context.Context, s sample.Sample) (pipeline.Iterator[sample.Sample], error) {
	empty := func() (pipeline.Iterator[sample.Sample], error) {
		return pipeline.FromSlice[sample.Sample](nil).Iter(ctx), nil
	}

	if s.Value.IsNull() {
		return empty()
	}
	v, ok := s.Value.Number()
	if !ok {
		return empty()
	}
	t := s.Time

	st, exists := m.data[s.Key]
	if !exists {
		st = &keyState{}
		m.data[s.Key] = st
	}

	if st.hasLastTime && t <= st.lastTime {
		m.log.Warn("non-monotonic sample time", map[string]interface{}{"key": s.Key, "time": t, "last_time": st.lastTime})
	}
	st.lastTime = t
	st.hasLastTime = true

	if len(st.window) == 0 || st.window[0].t > t-m.warmup {
		st.window = append(st.window, vt{v, t})
		return empty()
	}

	if !st.initialized {
		m.initAux(st)
	}

	windowStart := t - m.history
	for len(st.window) > 0 && st.window[0].t < windowStart {
		oldest := st.window[0]
		st.window = st.window[1:]
		m.removeAux(st, oldest.v)
	}

	predicted := m.predict(st)
	if predicted != nil && m.minPrediction != nil && *predicted < *m.minPrediction {
		return empty()
	}

	var ratio *float64
	if truthy(predicted) {
		r := v / *predicted
		ratio = &r
	}

	newval := v
	extreme := m.isExtreme(ratio)

	switch {
	case !st.inpainting && extreme:
		st.inpainting = true
		st.raw = []vt{{v, t}}
		newval = *predicted
		telemetry.Pipeline().InpaintingEpisodes.Add(ctx, 1)

	case st.inpainting && extreme:
		rawStart := st.raw[0].t
		if rawStart > t-m.inpaintMaxDuration {
			st.raw = append(st.raw, vt{v, t})
			newval = *predicted
		} else {
			st.window = st.raw
			st.raw = nil
			st.inpainting = false
			if st.window[0].t > t-m.warmup {
				m.resetAux(st)
				st.window = append(st.window, vt{v, t})
				return empty()
			}
			m.initAux(st)
			predicted = m.predict(st)
			if truthy(predicted) {
				r := newval / *predicted
				ratio = &r
			} else {
				ratio = nil
			}
		}

	case st.inpainting && !extreme:
		st.raw = nil
		st.inpainting = false
	}

	st.window = append(st.window, vt{newval, t})
	if st.window[0].t > windowStart {
		m.insertAux(st, newval)
	} else {
		oldest := st.window[0]
		st.window = st.window[1:]
		m.insertRemoveAux(st, newval, oldest.v)
	}

	var out sample.Sample
	switch {
	case !m.normalize:
		if predicted == nil {
			out = sample.NewNull(s.Key, t)
		} else {
			out = sample.New(s.Key, *predicted, t)
		}
	case !m.includeAbsolute:
		if ratio == nil {
			out = sample.NewNull(s.Key, t)
		} else {
			out = sample.New(s.Key, *ratio, t)
		}
	default:
		out = sample.Sample{Key: s.Key, Time: t, Value: sample.NewTriple(ratio, v, predicted)}
	}

	return pipeline.FromSlice([]sample.Sample{out}).Iter(ctx), nil
}
