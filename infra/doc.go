// Package infra contains technical adapters such as persistence backends,
// MQTT publishers and metrics exporters. These packages depend only on the
// interfaces defined in the core packages; core never imports infra.
package infra
