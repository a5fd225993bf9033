package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/groundsched/core/metrics"
)

// PromSink records schedule mutations in Prometheus metrics.
type PromSink struct {
	mutations       *prometheus.CounterVec
	classifications *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	persistFailures prometheus.Counter
	mergeDuration   prometheus.Histogram
	fragments       prometheus.Gauge
	reservations    prometheus.Gauge
	utilization     prometheus.Gauge
}

// NewPromSink registers schedule metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groundsched_mutations_total",
			Help: "Schedule mutations applied, by operation",
		}, []string{"operation"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groundsched_classifications_total",
			Help: "Change analysis outcomes, by kind",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groundsched_rejections_total",
			Help: "Batches refused before any mutation",
		}, []string{"operation", "reason"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "groundsched_persistence_failures_total",
			Help: "Mutations applied in memory but not persisted",
		}),
		mergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "groundsched_merge_duration_seconds",
			Help:    "Time spent recomputing the schedule",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		fragments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groundsched_schedule_fragments",
			Help: "Fragments in the current schedule",
		}),
		reservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groundsched_origin_reservations",
			Help: "Active reservations before merging",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groundsched_schedule_utilization_ratio",
			Help: "Reserved time over the schedule span",
		}),
	}
	var err error
	if s.mutations, err = register(reg, s.mutations); err != nil {
		return nil, err
	}
	if s.classifications, err = register(reg, s.classifications); err != nil {
		return nil, err
	}
	if s.rejections, err = register(reg, s.rejections); err != nil {
		return nil, err
	}
	if s.persistFailures, err = register(reg, s.persistFailures); err != nil {
		return nil, err
	}
	if s.mergeDuration, err = register(reg, s.mergeDuration); err != nil {
		return nil, err
	}
	if s.fragments, err = register(reg, s.fragments); err != nil {
		return nil, err
	}
	if s.reservations, err = register(reg, s.reservations); err != nil {
		return nil, err
	}
	if s.utilization, err = register(reg, s.utilization); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordMutation updates counters and gauges from the event.
func (s *PromSink) RecordMutation(ev coremetrics.MutationEvent) error {
	s.mutations.WithLabelValues(ev.Operation).Inc()
	for kind, n := range ev.Kinds {
		s.classifications.WithLabelValues(kind).Add(float64(n))
	}
	if ev.PersistenceFailed {
		s.persistFailures.Inc()
	}
	s.mergeDuration.Observe(ev.MergeDuration.Seconds())
	s.fragments.Set(float64(ev.ScheduleSize))
	s.reservations.Set(float64(ev.OriginSize))
	s.utilization.Set(ev.Stats.Utilization)
	return nil
}

// RecordRejection counts a refused batch.
func (s *PromSink) RecordRejection(ev coremetrics.RejectionEvent) error {
	s.rejections.WithLabelValues(ev.Operation, ev.Reason).Inc()
	return nil
}
