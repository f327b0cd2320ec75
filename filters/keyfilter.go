// Package filters implements the stateful and stateless pipeline filter
// operators: Keyfilter, ToSigned, AggTimeMedian, KeyEntity,
// TimeOrderChecker, AggSum, MovingStat, and TimeOrder.
package filters

import (
	"context"
	"fmt"

	"github.com/kbukum/watchtower-sentry/glob"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
	"github.com/kbukum/watchtower-sentry/telemetry"
)

func init() {
	pipeline.Register("Keyfilter", pipeline.ModuleDef{
		Role:   pipeline.RoleFilter,
		Params: &KeyfilterParams{},
		Build:  buildKeyfilter,
	})
}

// KeyfilterParams configures Keyfilter.
type KeyfilterParams struct {
	Expression string `yaml:"expression" validate:"required"`
}

func buildKeyfilter(params map[string]interface{}, _ *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := decodeParams[KeyfilterParams](params)
	if err != nil {
		return nil, fmt.Errorf("Keyfilter: %w", err)
	}

	match, err := glob.MatchFunc(p.Expression)
	if err != nil {
		return nil, fmt.Errorf("Keyfilter: %w", err)
	}

	out := pipeline.FlatMap(upstream, func(ctx context.Context, s sample.Sample) (pipeline.Iterator[sample.Sample], error) {
		if !match(s.Key) {
			log.Debug("dropping non-matching key", map[string]interface{}{"key": s.Key})
			telemetry.Pipeline().RecordDrop(ctx, "Keyfilter")
			return pipeline.FromSlice[sample.Sample](nil).Iter(ctx), nil
		}
		return pipeline.FromSlice([]sample.Sample{s}).Iter(ctx), nil
	})

	return &pipeline.Stage{Role: pipeline.RoleFilter, Samples: out}, nil
}
