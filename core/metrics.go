package core

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics exposes engine health as Prometheus collectors: log length,
// snapshot counts, per-kind append counters, and crank/subscriber failure
// counters.
type Metrics struct {
	registry *prometheus.Registry

	logLength        prometheus.Gauge
	snapshotCount    prometheus.Gauge
	eventsByKind     *prometheus.CounterVec
	crankErrors      prometheus.Counter
	subscriberPanics prometheus.Counter

	log *logrus.Logger
}

// NewMetrics constructs and registers every collector against a fresh
// registry.
func NewMetrics(log *logrus.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg, log: log}

	m.logLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "channelforge_event_log_length",
		Help: "Current number of events held in the event store.",
	})
	m.snapshotCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "channelforge_snapshot_count",
		Help: "Current number of snapshots held across all entities.",
	})
	m.eventsByKind = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channelforge_events_appended_total",
		Help: "Total events appended to the store, by kind.",
	}, []string{"kind"})
	m.crankErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channelforge_crank_errors_total",
		Help: "Total errors returned by Objective.Crank calls.",
	})
	m.subscriberPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channelforge_subscriber_panics_total",
		Help: "Total subscriber callback panics recovered by the event store.",
	})

	reg.MustRegister(m.logLength, m.snapshotCount, m.eventsByKind, m.crankErrors, m.subscriberPanics)
	return m
}

// ObserveAppend records one appended event of the given kind and the store's
// resulting length. Wire this into an EventStore.Subscribe callback.
func (m *Metrics) ObserveAppend(kind EventKind, length EventOffset) {
	m.eventsByKind.WithLabelValues(string(kind)).Inc()
	m.logLength.Set(float64(length))
}

// ObserveSnapshotCount records the total number of snapshots currently held
// across every per-entity SnapshotManager a caller tracks.
func (m *Metrics) ObserveSnapshotCount(total int) {
	m.snapshotCount.Set(float64(total))
}

// ObserveCrankError increments the crank error counter.
func (m *Metrics) ObserveCrankError() { m.crankErrors.Inc() }

// ObserveSubscriberPanic increments the subscriber panic counter.
func (m *Metrics) ObserveSubscriberPanic() { m.subscriberPanics.Inc() }

// StartServer exposes /metrics on addr and returns the underlying server so
// callers manage its lifecycle.
func (m *Metrics) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if m.log != nil {
				m.log.WithError(err).Error("metrics server stopped")
			}
		}
	}()
	return srv
}

// ShutdownServer gracefully stops the metrics HTTP server.
func (m *Metrics) ShutdownServer(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
