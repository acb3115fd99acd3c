// Package audit implements async event dispatching for token lifecycle and
// request-gate decisions.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap logger, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, subject, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; that belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import tokenauth or any sibling internal package.
//   - Carry token values in events.
package audit
