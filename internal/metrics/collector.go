// Package metrics exposes Prometheus counters and histograms for
// cache hit/miss rates, reconciler pass outcomes, and FUSE upcall
// latency.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectmount/objectmount/pkg/ferrors"
)

// kindLabel extracts the ferrors.Kind of err as a label value, falling
// back to "Unknown" for errors that don't carry one.
func kindLabel(err error) string {
	return ferrors.KindOf(err).String()
}

// Config controls whether the collector is active and where it serves
// its Prometheus endpoint.
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// DefaultConfig returns a Config with the collector enabled on the
// conventional /metrics path.
func DefaultConfig() *Config {
	return &Config{Enabled: true, Port: 9090, Path: "/metrics", Namespace: "objectmount"}
}

// Collector owns the registry and every metric objectmount records.
// A disabled Collector (Config.Enabled == false) accepts every Record*
// call as a no-op, and so does a nil *Collector, so callers that treat
// metrics as an optional dependency (fuseadapter.FileSystem,
// cache.MemoryCache, cache.FilesystemCache) never need to nil-check it
// themselves.
type Collector struct {
	config *Config

	registry *prometheus.Registry
	server   *http.Server

	upcallTotal     *prometheus.CounterVec
	upcallDuration  *prometheus.HistogramVec
	upcallErrors    *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	reconcileTotal  *prometheus.CounterVec
	reconcileBacklog prometheus.Gauge
	pendingChanges  prometheus.Gauge
}

// NewCollector builds a Collector; a nil config falls back to
// DefaultConfig.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	c := &Collector{config: config}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()

	c.upcallTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "fuse_upcalls_total",
		Help:      "Total number of FUSE upcalls, by operation and outcome.",
	}, []string{"op", "status"})

	c.upcallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Name:      "fuse_upcall_duration_seconds",
		Help:      "FUSE upcall latency in seconds, by operation.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us .. ~3.3s
	}, []string{"op"})

	c.upcallErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "fuse_upcall_errors_total",
		Help:      "FUSE upcall failures, by operation and ferrors.Kind.",
	}, []string{"op", "kind"})

	c.cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "cache_requests_total",
		Help:      "Cache layer requests, by cache variant and outcome (hit/miss).",
	}, []string{"variant", "outcome"})

	c.reconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "reconcile_passes_total",
		Help:      "Reconciler passes, by outcome (applied/failed/skipped).",
	}, []string{"outcome"})

	c.reconcileBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Name:      "reconcile_backlog",
		Help:      "Pending changes observed at the start of the most recent reconcile pass.",
	})

	c.pendingChanges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Name:      "pending_changes",
		Help:      "Current number of unsynced pending changes across all cached paths.",
	})

	for _, m := range []prometheus.Collector{
		c.upcallTotal, c.upcallDuration, c.upcallErrors,
		c.cacheRequests, c.reconcileTotal, c.reconcileBacklog, c.pendingChanges,
	} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// Start serves the Prometheus endpoint in the background until ctx is
// done. A disabled collector returns immediately.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Default().Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = c.server.Shutdown(context.Background())
	}()
	return nil
}

// Stop shuts the metrics HTTP server down immediately.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// RecordUpcall records one FUSE upcall's latency and outcome.
func (c *Collector) RecordUpcall(op string, duration time.Duration, err error) {
	if c == nil || !c.config.Enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.upcallTotal.WithLabelValues(op, status).Inc()
	c.upcallDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		c.upcallErrors.WithLabelValues(op, kindLabel(err)).Inc()
	}
}

// RecordCacheHit and RecordCacheMiss record a cache layer lookup
// outcome for the given cache variant ("memory" or "filesystem").
func (c *Collector) RecordCacheHit(variant string) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.cacheRequests.WithLabelValues(variant, "hit").Inc()
}

func (c *Collector) RecordCacheMiss(variant string) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.cacheRequests.WithLabelValues(variant, "miss").Inc()
}

// RecordReconcilePass records one reconciler pass's outcome and the
// backlog size it observed at the start of the pass.
func (c *Collector) RecordReconcilePass(outcome string, backlog int) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.reconcileTotal.WithLabelValues(outcome).Inc()
	c.reconcileBacklog.Set(float64(backlog))
}

// SetPendingChanges updates the current pending-change gauge.
func (c *Collector) SetPendingChanges(n int) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.pendingChanges.Set(float64(n))
}

