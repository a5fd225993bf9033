package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/groundsched/core/factory"
	coremetrics "github.com/kilianp07/groundsched/core/metrics"
)

// init registers the built-in metrics sinks next to the core "nop" one.
func init() {
	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		// The listen address lives in metrics.prometheus_addr; see StartPromServer.
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL     string `json:"url"`
			Token   string `json:"token"`
			Org     string `json:"org"`
			Bucket  string `json:"bucket"`
			Station string `json:"station"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		sink := NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket)
		if is, ok := sink.(*InfluxSink); ok && c.Station != "" {
			is.WithStation(c.Station)
		}
		return sink, nil
	})
}
