// Package prometheus exports authcore engine metrics through a
// client_golang Collector.
//
// Counters are named authcore_*_total. The single histogram is
// authcore_authorize_latency_seconds and only appears when latency
// histograms are enabled on the engine.
//
// Register the Collector on your own registry, or mount Handler, which uses
// a private one.
package prometheus
