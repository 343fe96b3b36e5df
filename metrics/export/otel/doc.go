// Package otel exposes engine metrics through OpenTelemetry. Counters are
// one goidentity.events instrument keyed by an "event" attribute; latency
// buckets are gauges keyed by "le". Callers own the MeterProvider.
package otel
