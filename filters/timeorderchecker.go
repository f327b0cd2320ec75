package filters

import (
	"context"
	"fmt"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func init() {
	pipeline.Register("TimeOrderChecker", pipeline.ModuleDef{
		Role:   pipeline.RoleFilter,
		Params: &TimeOrderCheckerParams{},
		Build:  buildTimeOrderChecker,
	})
}

// TimeOrderCheckerParams configures TimeOrderChecker. Name tags the
// log/error message so multiple checkers in one pipeline stay apart;
// Fatal turns an out-of-order observation into a pipeline error.
type TimeOrderCheckerParams struct {
	Name  string `yaml:"name"`
	Fatal bool   `yaml:"fatal"`
}

func buildTimeOrderChecker(params map[string]interface{}, _ *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := decodeParams[TimeOrderCheckerParams](params)
	if err != nil {
		return nil, fmt.Errorf("TimeOrderChecker: %w", err)
	}
	name := p.Name
	if name == "" {
		name = "TimeOrderChecker"
	}

	lastTime := make(map[string]int64)

	out := pipeline.Map(upstream, func(_ context.Context, s sample.Sample) (sample.Sample, error) {
		if last, seen := lastTime[s.Key]; seen && last >= s.Time {
			msg := fmt.Sprintf("[%s] out-of-order data for %q: last time %d, this time %d", name, s.Key, last, s.Time)
			if p.Fatal {
				return sample.Sample{}, fmt.Errorf("TimeOrderChecker: %s", msg)
			}
			log.Error(msg)
		}
		lastTime[s.Key] = s.Time
		return s, nil
	})

	return &pipeline.Stage{Role: pipeline.RoleFilter, Samples: out}, nil
}
