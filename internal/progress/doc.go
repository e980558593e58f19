// Package progress carries run and fetch lifecycle events from the
// orchestrator to pluggable sinks. Events are batched on a background
// goroutine so emitting never blocks the URL loop.
package progress
