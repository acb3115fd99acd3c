// Package metrics keeps the engine's counters and its latency histogram.
//
// Every counter lives in its own cache-line-padded slot and is bumped with a
// single atomic add, so the hot path never locks or allocates. Latency is
// recorded into eight fixed buckets from 5ms up to +Inf.
//
// Exporters under metrics/export read a [Snapshot]; this package performs no
// I/O and keeps no global registry.
package metrics
