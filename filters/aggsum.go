package filters

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kbukum/watchtower-sentry/glob"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
	"github.com/kbukum/watchtower-sentry/telemetry"
)

func init() {
	pipeline.Register("AggSum", pipeline.ModuleDef{
		Role:   pipeline.RoleFilter,
		Params: &AggSumParams{},
		Build:  buildAggSum,
	})
}

// AggSumParams configures AggSum.
type AggSumParams struct {
	Expressions []string `yaml:"expressions" validate:"required"`
	Groupsize   int      `yaml:"groupsize"`
	Timeout     int64    `yaml:"timeout" validate:"required"`
	Droppartial bool     `yaml:"droppartial"`
}

// aggSumBucket is one (expression, group, bucket time) aggregation slot.
type aggSumBucket struct {
	exprIdx   int
	groupKey  string
	groups    []string
	time      int64
	firstSeen time.Time
	count     int
	sum       float64
	elem      *list.Element
}

// aggSum implements multi-expression grouped summation with size- and
// age-based emission. State is held in three indices: a nested map for
// (expression, group, time) lookup, an insertion-ordered list for timeout
// scanning by first-seen time, and a per-(expression, group) watermark.
type aggSum struct {
	matchers    []*glob.Matcher
	groupsize   int
	timeout     int64
	droppartial bool
	log         *logger.Logger

	byGroup   map[int]map[string]map[int64]*aggSumBucket
	bySeen    *list.List
	watermark map[int]map[string]int64
}

func buildAggSum(params map[string]interface{}, _ *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := decodeParams[AggSumParams](params)
	if err != nil {
		return nil, fmt.Errorf("AggSum: %w", err)
	}
	if len(p.Expressions) == 0 {
		return nil, fmt.Errorf("AggSum: expressions is required")
	}
	if p.Timeout <= 0 {
		return nil, fmt.Errorf("AggSum: timeout must be positive, got %d", p.Timeout)
	}

	matchers := make([]*glob.Matcher, len(p.Expressions))
	for i, exp := range p.Expressions {
		m, err := glob.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("AggSum: %w", err)
		}
		matchers[i] = m
	}

	a := &aggSum{
		matchers:    matchers,
		groupsize:   p.Groupsize,
		timeout:     p.Timeout,
		droppartial: p.Droppartial,
		log:         log,
		byGroup:     make(map[int]map[string]map[int64]*aggSumBucket),
		bySeen:      list.New(),
		watermark:   make(map[int]map[string]int64),
	}

	out := pipeline.FlatMap(upstream, a.step)
	return &pipeline.Stage{Role: pipeline.RoleFilter, Samples: out}, nil
}

func (a *aggSum) groupMapFor(exprIdx int, groupKey string) map[int64]*aggSumBucket {
	byGroup, ok := a.byGroup[exprIdx]
	if !ok {
		byGroup = make(map[string]map[int64]*aggSumBucket)
		a.byGroup[exprIdx] = byGroup
	}
	gm, ok := byGroup[groupKey]
	if !ok {
		gm = make(map[int64]*aggSumBucket)
		byGroup[groupKey] = gm
	}
	return gm
}

func (a *aggSum) isLate(exprIdx int, groupKey string, t int64) bool {
	gm, ok := a.watermark[exprIdx]
	if !ok {
		return false
	}
	mark, ok := gm[groupKey]
	return ok && t < mark
}

func (a *aggSum) bumpWatermark(exprIdx int, groupKey string, t int64) {
	gm, ok := a.watermark[exprIdx]
	if !ok {
		gm = make(map[string]int64)
		a.watermark[exprIdx] = gm
	}
	if cur, ok := gm[groupKey]; !ok || t > cur {
		gm[groupKey] = t
	}
}

// expireOlder emits (or drops, if droppartial) every bucket for (exprIdx,
// groupKey) strictly older than maxT, ascending by time, because the arrival
// of a newer complete bucket implies no further data for those older times.
func (a *aggSum) expireOlder(exprIdx int, groupKey, groupEmitKey string, maxT int64) []sample.Sample {
	gm := a.groupMapFor(exprIdx, groupKey)
	var times []int64
	for t := range gm {
		if t < maxT {
			times = append(times, t)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	var out []sample.Sample
	for _, t := range times {
		b := gm[t]
		a.bySeen.Remove(b.elem)
		delete(gm, t)
		if !a.droppartial {
			out = append(out, sample.New(groupEmitKey, b.sum, t))
		}
	}
	return out
}

func (a *aggSum) step(ctx context.Context, s sample.Sample) (pipeline.Iterator[sample.Sample], error) {
	empty := func() (pipeline.Iterator[sample.Sample], error) {
		return pipeline.FromSlice[sample.Sample](nil).Iter(ctx), nil
	}

	exprIdx := -1
	var groups []string
	for i, m := range a.matchers {
		if g, ok := m.Match(s.Key); ok {
			exprIdx = i
			groups = g
			break
		}
	}
	if exprIdx < 0 {
		return empty()
	}

	groupKey := groupKeyOf(groups)

	if a.isLate(exprIdx, groupKey, s.Time) {
		a.log.Error("dropping late sample for expired group", map[string]interface{}{
			"key": s.Key, "time": s.Time, "group": groupKey,
		})
		telemetry.Pipeline().RecordDrop(ctx, "AggSum")
		return empty()
	}

	now := time.Now()
	gm := a.groupMapFor(exprIdx, groupKey)
	bucket, ok := gm[s.Time]
	if !ok {
		bucket = &aggSumBucket{exprIdx: exprIdx, groupKey: groupKey, groups: groups, time: s.Time, firstSeen: now}
		gm[s.Time] = bucket
		bucket.elem = a.bySeen.PushBack(bucket)
	}

	bucket.count++
	bucket.sum += s.Value.AsFloat()

	var out []sample.Sample

	if a.groupsize > 0 && bucket.count == a.groupsize {
		pattern := a.matchers[exprIdx].Pattern
		groupEmitKey := glob.Substitute(pattern, groups)
		delete(gm, s.Time)
		a.bySeen.Remove(bucket.elem)
		out = append(out, a.expireOlder(exprIdx, groupKey, groupEmitKey, s.Time)...)
		out = append(out, sample.New(groupEmitKey, bucket.sum, s.Time))
		a.bumpWatermark(exprIdx, groupKey, s.Time)
	}

	expiry := now.Add(-time.Duration(a.timeout) * time.Second)
	for a.bySeen.Len() > 0 {
		front := a.bySeen.Front()
		b := front.Value.(*aggSumBucket)
		if b.firstSeen.After(expiry) {
			break
		}
		a.bySeen.Remove(front)
		bgm := a.groupMapFor(b.exprIdx, b.groupKey)
		delete(bgm, b.time)
		pattern := a.matchers[b.exprIdx].Pattern
		groupEmitKey := glob.Substitute(pattern, b.groups)
		out = append(out, a.expireOlder(b.exprIdx, b.groupKey, groupEmitKey, b.time)...)
		if !a.droppartial {
			out = append(out, sample.New(groupEmitKey, b.sum, b.time))
		}
		a.bumpWatermark(b.exprIdx, b.groupKey, b.time)
	}

	if len(out) > 0 {
		telemetry.Pipeline().BucketsEmitted.Add(ctx, int64(len(out)))
	}
	return pipeline.FromSlice(out).Iter(ctx), nil
}

// groupKeyOf joins captured groups into a map key; 0x1f ("unit separator")
// cannot appear in a key segment matched by the glob language.
func groupKeyOf(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	out := groups[0]
	for _, g := range groups[1:] {
		out += "\x1f" + g
	}
	return out
}
