package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics of a sweep. It implements
// sweep.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	// Grid point metrics
	GridPointsTotal *prometheus.CounterVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Engine handle metrics
	HandlesOpen          prometheus.Gauge
	HandlesAcquiredTotal prometheus.Counter

	// Worker metrics
	WorkersRetiredTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		GridPointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_gridpoints_total",
				Help: "Total number of grid points finished, by status",
			},
			[]string{"status"},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_runs_total",
				Help: "Total number of simulation runs, by status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sweep_run_duration_seconds",
				Help:    "Duration of simulation runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
		),

		HandlesOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sweep_engine_handles_open",
				Help: "Number of engine handles currently held by workers",
			},
		),
		HandlesAcquiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sweep_engine_handles_acquired_total",
				Help: "Total number of engine handles acquired",
			},
		),

		WorkersRetiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_workers_retired_total",
				Help: "Total number of workers retired early, by reason",
			},
			[]string{"reason"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.GridPointsTotal)
	m.registry.MustRegister(m.RunsTotal)
	m.registry.MustRegister(m.RunDuration)
	m.registry.MustRegister(m.HandlesOpen)
	m.registry.MustRegister(m.HandlesAcquiredTotal)
	m.registry.MustRegister(m.WorkersRetiredTotal)

	// Process metrics
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// HandleOpened records an acquired engine handle
func (m *Metrics) HandleOpened() {
	m.HandlesOpen.Inc()
	m.HandlesAcquiredTotal.Inc()
}

// HandleClosed records a released engine handle
func (m *Metrics) HandleClosed() {
	m.HandlesOpen.Dec()
}

// WorkerRetired records a worker leaving the pool early
func (m *Metrics) WorkerRetired(reason string) {
	m.WorkersRetiredTotal.WithLabelValues(reason).Inc()
}

// RunFinished records one simulation run
func (m *Metrics) RunFinished(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// PointFinished records one grid point
func (m *Metrics) PointFinished(status string) {
	m.GridPointsTotal.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound; the bound address is returned for addr ":0".
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
	return ln.Addr().String(), nil
}
