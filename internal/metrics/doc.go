// Package metrics holds the engine's lock-free counters.
//
// Counters sit in cache-line padded slots and are bumped with sync/atomic, so
// recording never allocates or blocks. The exporters under metrics/export read
// Snapshot values; nothing here performs I/O.
package metrics
