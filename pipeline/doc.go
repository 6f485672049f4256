// Package pipeline provides composable, pull-based data pipeline operators
// on top of ordered parallel streams.
//
// Pipelines are lazy. No work happens until values are pulled via Collect,
// Drain, or ForEach, and each stage pulls from the previous stage on demand.
//
// # Operators
//
//   - Map: transform each value
//   - Filter: keep values matching a predicate
//   - Tap: side-effect without altering the value
//   - OrderedMap: concurrent Map whose output keeps input order
//
// FromChannel adapts the output channel of a stream.Stream so its items can
// be consumed like any other pipeline source.
//
// # Usage
//
//	src := pipeline.FromSlice(urls)
//	pages := pipeline.OrderedMap(src, 8, fetch)
//	err := pipeline.ForEach(ctx, pages, store)
package pipeline
