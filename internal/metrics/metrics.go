// Package metrics exposes daemon run statistics in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
	"github.com/oshokin/ota-client/internal/service/updater"
)

const (
	namespace = "ota_client"

	serverReadTimeout  = 5 * time.Second
	serverWriteTimeout = 5 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// Collector records update run outcomes.
type Collector struct {
	gatherer prometheus.Gatherer

	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	lastRun       prometheus.Gauge
	lastDuration  prometheus.Gauge
	stagedBytes   prometheus.Gauge
	lastSucceeded prometheus.Gauge
}

// New creates a collector registered with its own registry.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		gatherer: registry,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "The number of update runs by terminal state",
			},
			[]string{"outcome"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "The number of failed update runs by stage and kind",
			},
			[]string{"stage", "kind"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last update run finished",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "How long the last update run took",
		}),
		stagedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staged_bytes",
			Help:      "Size of the image staged by the last run that downloaded one",
		}),
		lastSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run ended up to date or installed, 0 otherwise",
		}),
	}

	registry.MustRegister(c.runs, c.failures, c.lastRun, c.lastDuration, c.stagedBytes, c.lastSucceeded)

	return c
}

// Observe records a finished run.
func (c *Collector) Observe(report *updater.Report) {
	if report == nil {
		return
	}

	c.runs.WithLabelValues(report.State.String()).Inc()

	if report.Err != nil {
		c.failures.WithLabelValues(string(firmware.StageOf(report.Err)), report.FailureKind).Inc()
	}

	c.lastRun.Set(float64(report.FinishedAt.Unix()))
	c.lastDuration.Set(report.Duration().Seconds())

	if report.Artifact != nil {
		c.stagedBytes.Set(float64(report.Artifact.ByteLength))
	}

	if report.Succeeded() {
		c.lastSucceeded.Set(1)
	} else {
		c.lastSucceeded.Set(0)
	}
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is done.
func (c *Collector) Serve(ctx context.Context, address string) error {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return c.serve(ctx, listener)
}

func (c *Collector) serve(ctx context.Context, listener net.Listener) error {
	serveMux := http.NewServeMux()
	serveMux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Handler:      serveMux,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	logger.InfoKV(ctx, "Serving metrics", "address", listener.Addr().String())

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	return nil
}
