package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kbukum/watchtower-sentry/config"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func init() {
	pipeline.Register("JsonOut", pipeline.ModuleDef{
		Role:   pipeline.RoleSink,
		Params: &JsonOutParams{},
		Build:  buildJsonOut,
	})
}

// JsonOutParams configures JsonOut. File is the output path; "-" or empty
// means stdout.
type JsonOutParams struct {
	File string `yaml:"file"`
}

// buildJsonOut creates a sink that writes one JSON [key, value, time]
// array per sample, one per line.
func buildJsonOut(params map[string]interface{}, _ *pipeline.Context, _ *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := config.Decode[JsonOutParams](params)
	if err != nil {
		return nil, fmt.Errorf("JsonOut: %w", err)
	}

	run := pipeline.NewRunnable(func(ctx context.Context) error {
		out := os.Stdout
		if p.File != "" && p.File != "-" {
			f, err := os.Create(p.File)
			if err != nil {
				return fmt.Errorf("JsonOut: %w", err)
			}
			defer f.Close()
			out = f
		}
		w := bufio.NewWriter(out)
		defer w.Flush()

		return pipeline.ForEach(ctx, upstream, func(_ context.Context, s sample.Sample) error {
			line, err := json.Marshal([]interface{}{s.Key, valueJSON(s.Value), s.Time})
			if err != nil {
				return fmt.Errorf("JsonOut: %w", err)
			}
			if _, err := w.Write(line); err != nil {
				return fmt.Errorf("JsonOut: %w", err)
			}
			return w.WriteByte('\n')
		})
	})

	return &pipeline.Stage{Role: pipeline.RoleSink, Runnable: run}, nil
}

// valueJSON maps a sample value onto its wire shape: null, a number, or a
// [ratio, actual, predicted] array.
func valueJSON(v sample.Value) interface{} {
	switch v.Kind() {
	case sample.KindNumber:
		n, _ := v.Number()
		return n
	case sample.KindTriple:
		tr, _ := v.Triple()
		return []interface{}{tr.Ratio, tr.Actual, tr.Predicted}
	default:
		return nil
	}
}
