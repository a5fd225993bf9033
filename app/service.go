// Package app wires the schedule store to its storage, observability and
// downstream transports.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/groundsched/api/reservations"
	"github.com/kilianp07/groundsched/config"
	coremetrics "github.com/kilianp07/groundsched/core/metrics"
	coremon "github.com/kilianp07/groundsched/core/monitoring"
	"github.com/kilianp07/groundsched/core/schedule"
	"github.com/kilianp07/groundsched/infra/diaglog"
	"github.com/kilianp07/groundsched/infra/logger"
	"github.com/kilianp07/groundsched/infra/metrics"
	"github.com/kilianp07/groundsched/infra/monitoring"
	"github.com/kilianp07/groundsched/infra/mqtt"
	"github.com/kilianp07/groundsched/infra/persistence"
	"github.com/kilianp07/groundsched/internal/eventbus"
)

// Option tweaks how New assembles the service.
type Option func(*options)

type options struct {
	offline  bool
	readOnly bool
}

// Offline skips the MQTT publisher and metrics sinks. CLI commands that
// mutate the store once and exit use it.
func Offline() Option { return func(o *options) { o.offline = true } }

// ReadOnly opens storage without the writer lock, so it can be inspected
// while a serving process owns it. Mutations fail to persist. It implies
// Offline.
func ReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
		o.offline = true
	}
}

// Service owns the schedule store and its collaborators.
type Service struct {
	Store *schedule.Store

	cfg       *config.Config
	bus       *eventbus.Bus[schedule.Mutation]
	diag      *diaglog.RotatingLog
	publisher *mqtt.SchedulePublisher
	monitor   coremon.Monitor
	log       logger.Logger
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	open := persistence.New
	if o.readOnly {
		open = persistence.NewReadOnly
	}
	backend, err := open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	store := schedule.NewStore(ctx, backend, logger.New("schedule"))
	store.SetMonitor(mon)

	svc := &Service{Store: store, cfg: cfg, monitor: mon, log: logg}
	if cfg.Diagnostics.Enabled {
		diag, err := diaglog.NewRotatingLog(cfg.Diagnostics.Config)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("diagnostics: %w", err)
		}
		svc.diag = diag
		store.SetDiagnostics(diag)
	}
	if o.offline {
		return svc, nil
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store.SetMetrics(sink)

	svc.bus = eventbus.New[schedule.Mutation]()
	store.SetNotifier(svc.bus)
	if cfg.MQTT.Enabled() {
		pub, err := mqtt.NewSchedulePublisher(cfg.MQTT)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		pub.SetMonitor(mon)
		svc.publisher = pub
	}
	return svc, nil
}

// Subscribe returns a channel receiving every published mutation. It
// returns nil for an offline service.
func (s *Service) Subscribe() <-chan schedule.Mutation {
	if s.bus == nil {
		return nil
	}
	return s.bus.Subscribe()
}

// Run starts the background workers and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.bus == nil {
		return errors.New("service built offline cannot run")
	}
	if s.publisher != nil {
		sub := s.bus.Subscribe()
		go s.publisher.Run(ctx, sub)
		// Retained snapshot for subscribers connecting before the first mutation.
		if err := s.publisher.PublishSnapshot(s.Store.Version(), s.Store.Schedule(), time.Now()); err != nil {
			s.log.Warnf("initial schedule publish: %v", err)
		}
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if addr := s.cfg.API.Addr; addr != "" {
		go func() {
			if err := s.serveAPI(ctx, addr); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	if !s.cfg.Expiry.Disabled {
		go s.janitor(ctx, s.cfg.Expiry.Interval)
	}
	s.log.Infof("station %s serving %d reservations", s.cfg.Station.Name, len(s.Store.Origin()))
	<-ctx.Done()
	return nil
}

// Handler returns the reservation HTTP API bound to the store.
func (s *Service) Handler() http.Handler {
	var diag reservations.DiagnosticQuerier
	if s.diag != nil {
		diag = s.diag
	}
	return reservations.NewHandler(s.Store, diag, s.cfg.API.Token)
}

func (s *Service) serveAPI(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infof("reservation api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Service) janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick expires ended reservations and retries a failed persistence.
func (s *Service) tick(ctx context.Context, now time.Time) {
	m, err := s.Store.Expire(ctx, now)
	switch {
	case err != nil:
		s.log.Errorf("expire: %v", err)
	case m.Version != 0:
		s.log.Infof("expired %d reservations", len(m.Removed))
	}
	if s.Store.Dirty() {
		if err := s.Store.Sync(ctx); err != nil {
			s.log.Warnf("sync: %v", err)
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	var errs []error
	if s.diag != nil {
		errs = append(errs, s.diag.Close())
	}
	errs = append(errs, s.Store.Close())
	s.monitor.Flush(2 * time.Second)
	return errors.Join(errs...)
}

// Diagnostics returns the diagnostic log, nil when disabled.
func (s *Service) Diagnostics() *diaglog.RotatingLog { return s.diag }
