package filters

import (
	"context"
	"fmt"

	"github.com/kbukum/watchtower-sentry/glob"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func init() {
	pipeline.Register("KeyEntity", pipeline.ModuleDef{
		Role:   pipeline.RoleFilter,
		Params: &KeyEntityParams{},
		Build:  buildKeyEntity,
	})
}

// KeyEntityExpression is one pattern→metatype rewrite rule.
type KeyEntityExpression struct {
	Pattern  string `yaml:"pattern" validate:"required"`
	Metatype string `yaml:"metatype" validate:"required"`
}

// KeyEntityParams configures KeyEntity.
type KeyEntityParams struct {
	Expressions []KeyEntityExpression `yaml:"expressions" validate:"required"`
}

// buildKeyEntity rewrites matching keys to "<metatype>/<first captured
// group>"; samples matching no pattern are dropped.
func buildKeyEntity(params map[string]interface{}, _ *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := decodeParams[KeyEntityParams](params)
	if err != nil {
		return nil, fmt.Errorf("KeyEntity: %w", err)
	}
	if len(p.Expressions) == 0 {
		return nil, fmt.Errorf("KeyEntity: expressions is required")
	}

	matchers := make([]*glob.Matcher, len(p.Expressions))
	for i, exp := range p.Expressions {
		m, err := glob.Compile(exp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("KeyEntity: %w", err)
		}
		matchers[i] = m
	}

	out := pipeline.FlatMap(upstream, func(ctx context.Context, s sample.Sample) (pipeline.Iterator[sample.Sample], error) {
		for i, m := range matchers {
			groups, ok := m.Match(s.Key)
			if !ok {
				continue
			}
			if len(groups) == 0 {
				log.Error("cannot construct entity: pattern has no capturing group", map[string]interface{}{
					"key": s.Key, "pattern": p.Expressions[i].Pattern,
				})
				break
			}
			entity := p.Expressions[i].Metatype + "/" + groups[0]
			return pipeline.FromSlice([]sample.Sample{{Key: entity, Value: s.Value, Time: s.Time}}).Iter(ctx), nil
		}
		return pipeline.FromSlice[sample.Sample](nil).Iter(ctx), nil
	})

	return &pipeline.Stage{Role: pipeline.RoleFilter, Samples: out}, nil
}
