// Package observability provides OpenTelemetry tracing and metrics setup and
// the metric bundle recorded by ordered parallel streams.
//
// Tracing:
//
//	cfg := observability.DefaultTracerConfig("parstream")
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "my.operation")
//	defer span.End()
//
// Metrics:
//
//	cfg := observability.DefaultMeterConfig("parstream")
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewStreamMetrics(observability.Meter("parstream"))
//	s, err := stream.New[Chunk](ctx, out, 8, 64, stream.WithMetrics(metrics))
package observability
