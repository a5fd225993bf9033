// Package metrics defines the sinks that record schedule mutations for
// observability. Sinks like PromSink and InfluxSink live in infra/metrics and
// register themselves with the factory registry; NewMetricsSink combines
// several configured sinks into a MultiSink.
package metrics
