// Package otel observes authcore engine metrics through an OpenTelemetry
// meter supplied by the caller.
//
// Every engine counter becomes an Int64ObservableCounter. The authorize
// latency histogram is flattened into one cumulative gauge per bucket bound
// because the engine keeps bucket counts without a sum. A single callback
// reads one snapshot per collection.
package otel
