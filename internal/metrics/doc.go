// Package metrics exposes device lifecycle counters to Prometheus. The
// collector is an events.Sink, so everything it reports is derived from the
// same notifications the journal records.
package metrics
