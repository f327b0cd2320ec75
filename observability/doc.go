// Package observability provides OpenTelemetry tracing and metrics integration
// for the pipeline runtime.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("sentry"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun)
//	defer span.End()
//
// Metrics:
//
//	mcfg := observability.DefaultMeterConfig("sentry")
//	mp, err := observability.InitMeter(ctx, &mcfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("sentry"))
//	metrics.RecordOperation(ctx, "sentry", "pipeline.run", "ok", duration)
//
// Both providers default to no-ops: recordings against the global meter and
// tracer do nothing until InitMeter/InitTracer install real exporters.
package observability
