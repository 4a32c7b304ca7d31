// Package metrics provides Prometheus metrics export for masterbase.
// Exposes stream scanning counters and score distributions.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MegaAntiCheat/masterbase/internal/logging"
)

// Collector holds the scanning metrics. Create one per process with New and
// share it; all methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	streamsScanned prometheus.Counter
	bytesScanned   prometheus.Counter
	anomalies      prometheus.Counter
	activeStreams  prometheus.Gauge
	likelihoods    prometheus.Histogram
	zeroRuns       prometheus.Histogram
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		streamsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "masterbase_streams_scanned_total",
			Help: "Streams scanned to completion",
		}),
		bytesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "masterbase_bytes_scanned_total",
			Help: "Bytes folded into detection states",
		}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "masterbase_anomalies_detected_total",
			Help: "Streams flagged as anomalous",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "masterbase_active_streams",
			Help: "Streams currently being scanned",
		}),
		likelihoods: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "masterbase_stream_likelihood",
			Help: "Final NZ-Markov likelihood per scanned stream",
			// Likelihoods of interest cluster near zero.
			Buckets: []float64{1e-6, 1e-5, 3e-5, 1e-4, 1e-3, 1e-2, 0.1, 0.5, 1},
		}),
		zeroRuns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "masterbase_stream_longest_zero_run",
			Help:    "Longest zero-byte run per scanned stream",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		}),
	}

	c.registry.MustRegister(
		c.streamsScanned,
		c.bytesScanned,
		c.anomalies,
		c.activeStreams,
		c.likelihoods,
		c.zeroRuns,
	)
	return c
}

// StreamStarted records a stream entering the scanner.
func (c *Collector) StreamStarted() {
	c.activeStreams.Inc()
}

// ChunkScanned records bytes folded into a detection state.
func (c *Collector) ChunkScanned(n int) {
	c.bytesScanned.Add(float64(n))
}

// StreamFinished records a completed scan and its final state.
func (c *Collector) StreamFinished(likelihood float64, zeroRun int, anomalous bool) {
	c.activeStreams.Dec()
	c.streamsScanned.Inc()
	c.likelihoods.Observe(likelihood)
	c.zeroRuns.Observe(float64(zeroRun))
	if anomalous {
		c.anomalies.Inc()
	}
}

// Handler returns the HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs an HTTP server exposing /metrics on addr until ctx is
// cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logging.MetricsLogger().Info("metrics endpoint listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
