package config

import (
	"context"
	"fmt"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
	"github.com/kbukum/watchtower-sentry/telemetry"
)

// Build validates doc against registry and constructs the pipeline it
// describes, wiring each stage's output into the next stage's input in
// document order. The returned Runnable drives the whole chain when Run is
// called; it is the sink's Run closure, pulling samples through every
// upstream stage lazily.
func Build(doc *Document, registry *pipeline.Registry, base *logger.Logger) (*pipeline.Runnable, error) {
	if err := Validate(doc, registry); err != nil {
		return nil, err
	}

	ctx := pipeline.NewContext()
	var upstream *pipeline.Pipeline[sample.Sample]
	var sink *pipeline.Runnable

	for i, stage := range doc.Pipeline {
		def, _ := registry.Get(stage.Module)

		stageLog := base.WithComponent(stage.Module)
		if stage.LogLevel != "" {
			stageLog = stageLog.WithLevel(stage.LogLevel)
		}

		built, err := def.Build(stage.Params, ctx, stageLog, upstream)
		if err != nil {
			return nil, fmt.Errorf("config: building pipeline[%d] (%s): %w", i, stage.Module, err)
		}

		switch def.Role {
		case pipeline.RoleSource, pipeline.RoleFilter:
			module := stage.Module
			upstream = pipeline.Tap(built.Samples, func(tctx context.Context, _ sample.Sample) error {
				telemetry.Pipeline().RecordSample(tctx, module)
				return nil
			})
		case pipeline.RoleSink:
			sink = built.Runnable
		}
	}

	return sink, nil
}
