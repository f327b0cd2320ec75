// Package pipeline provides the composable, pull-based stage chain that the
// Watchtower-Sentry runtime is built from: Source → Filter₁ → … → Sink.
//
// Pipelines are lazy — no work happens until values are pulled via Collect,
// Drain, or ForEach. Each stage pulls from the previous stage on demand.
//
// # Operators
//
//   - Map: transform each value
//   - FlatMap: transform each value into zero or more values (used by the
//     filter stages, e.g. AggSum, MovingStat and Keyfilter)
//   - Filter: keep values matching a predicate
//   - Tap: side-effect without altering the value (logging, instrumentation)
//
// Concurrency beyond a single background reader goroutine per source has no
// place in this architecture: the pipeline is single-threaded and cooperative
// along its iterator chain, so this package does not provide worker-pool or
// fan-in/fan-out combinators; see sources/reader.go for the one documented
// concurrent boundary (the bounded single-slot batch handoff).
//
// # Usage
//
//	src := pipeline.FromSlice(samples)
//	match, err := glob.MatchFunc(expr)
//	kept := pipeline.Filter(src, func(s sample.Sample) bool { return match(s.Key) })
//	pipeline.Drain(kept, sink.Send).Run(ctx)
package pipeline
