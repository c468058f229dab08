package promclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xonx4l/orderbook/domain"
)

const shutdownTimeout = 5 * time.Second

// OrderBookMetrics exports the maintainer's progress. It implements
// domain.MaintainerObserver.
type OrderBookMetrics struct {
	registry *prometheus.Registry

	syncState          prometheus.Gauge
	synchronized       prometheus.Gauge
	lastUpdateID       prometheus.Gauge
	bufferedUpdates    prometheus.Gauge
	updatesApplied     prometheus.Counter
	updatesReplayed    prometheus.Counter
	updatesDropped     *prometheus.CounterVec
	resyncs            *prometheus.CounterVec
	bootstraps         prometheus.Counter
	snapshotFetch      prometheus.Histogram
	snapshotFetchError prometheus.Counter
}

func NewOrderBookMetrics(symbol *domain.MarketSymbol) *OrderBookMetrics {
	labels := prometheus.Labels{"symbol": symbol.Exchange()}

	m := &OrderBookMetrics{
		registry: prometheus.NewRegistry(),

		syncState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orderbook_sync_state",
			Help:        "Maintainer state: 0 buffering, 1 fetching, 2 splicing, 3 live",
			ConstLabels: labels,
		}),
		synchronized: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orderbook_synchronized",
			Help:        "1 while the local book is live",
			ConstLabels: labels,
		}),
		lastUpdateID: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orderbook_last_update_id",
			Help:        "Last update id applied to the local book",
			ConstLabels: labels,
		}),
		bufferedUpdates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orderbook_buffered_updates",
			Help:        "Depth updates waiting for a snapshot",
			ConstLabels: labels,
		}),
		updatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "orderbook_updates_applied_total",
			Help:        "Depth updates applied in live state",
			ConstLabels: labels,
		}),
		updatesReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "orderbook_updates_replayed_total",
			Help:        "Buffered depth updates applied on top of a snapshot",
			ConstLabels: labels,
		}),
		updatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orderbook_updates_dropped_total",
			Help:        "Depth updates dropped in live state by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orderbook_resyncs_total",
			Help:        "Resynchronizations by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		bootstraps: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "orderbook_bootstraps_total",
			Help:        "Successful snapshot bootstraps",
			ConstLabels: labels,
		}),
		snapshotFetch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "orderbook_snapshot_fetch_seconds",
			Help:        "Snapshot request latency",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		snapshotFetchError: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "orderbook_snapshot_fetch_failures_total",
			Help:        "Failed snapshot requests",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.syncState, m.synchronized, m.lastUpdateID, m.bufferedUpdates,
		m.updatesApplied, m.updatesReplayed, m.updatesDropped, m.resyncs,
		m.bootstraps, m.snapshotFetch, m.snapshotFetchError,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *OrderBookMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *OrderBookMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *OrderBookMetrics) OnStateChange(state domain.SyncState) {
	m.syncState.Set(float64(state))
	if state.IsLive() {
		m.synchronized.Set(1)
	} else {
		m.synchronized.Set(0)
	}
}

func (m *OrderBookMetrics) OnSynchronized(_ uint64, lastUpdateID uint64, replayed int) {
	m.bootstraps.Inc()
	m.updatesReplayed.Add(float64(replayed))
	m.lastUpdateID.Set(float64(lastUpdateID))
}

func (m *OrderBookMetrics) OnUpdateApplied(lastUpdateID uint64) {
	m.updatesApplied.Inc()
	m.lastUpdateID.Set(float64(lastUpdateID))
}

func (m *OrderBookMetrics) OnUpdateDropped(reason string) {
	m.updatesDropped.WithLabelValues(reason).Inc()
}

func (m *OrderBookMetrics) OnBufferSize(size int) {
	m.bufferedUpdates.Set(float64(size))
}

func (m *OrderBookMetrics) OnResync(reason string) {
	m.resyncs.WithLabelValues(reason).Inc()
}

func (m *OrderBookMetrics) OnSnapshotFetch(took time.Duration, err error) {
	m.snapshotFetch.Observe(took.Seconds())
	if err != nil {
		m.snapshotFetchError.Inc()
	}
}

// StartPromClientServer serves /metrics on addr until ctx is done.
func StartPromClientServer(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("prometheus server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("prometheus server stopped")
	return nil
}
