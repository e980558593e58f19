// Package sinks implements progress consumers: structured per-fetch logging
// and per-site Prometheus counters.
package sinks
