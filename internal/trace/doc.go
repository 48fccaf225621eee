// Package trace records what the analysis pipeline is doing: driver and pass
// boundaries, per-unit work and the failures of individual checks.
//
// Enable tracing via command-line flags:
//
//	bugcheck check --trace=- --trace-level=detail ./...
//
// Tracers:
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr), text or NDJSON
//   - RingTracer: circular buffer dumped when the run panics
//   - MultiTracer: combines the two
//
// Levels: off, error (only KindError events), phase (driver and passes),
// detail (plus units), debug (plus nodes).
//
// Tracers travel through the pipeline in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "scan", trace.Parent(ctx))
//	ctx = trace.WithParent(ctx, span)
//	defer span.End("")
//
// With --trace-heartbeat a heartbeat event is emitted periodically; beats
// marked "stalled" mean no span was opened since the previous one.
package trace
