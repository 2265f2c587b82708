package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/mmk-auth/config"
	"github.com/target/mmk-auth/internal/observability/metrics"
	"github.com/target/mmk-auth/internal/observability/statsd"
)

// Metrics bundles the configured sinks. Sink is nil when every sink is disabled.
type Metrics struct {
	Sink       statsd.Sink
	Prometheus *metrics.PrometheusSink
	statsd     *statsd.Client
}

// Close releases the StatsD connection.
func (m *Metrics) Close() error {
	if m == nil || m.statsd == nil {
		return nil
	}
	return m.statsd.Close()
}

// BuildMetrics configures StatsD and Prometheus sinks. A StatsD dial failure
// is logged and that sink skipped; metrics never block authentication.
func BuildMetrics(ctx context.Context, cfg config.ObservabilityConfig, logger *slog.Logger) *Metrics {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	m := &Metrics{}
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(ctx, statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.ErrorContext(ctx, "failed to initialise statsd client", "error", err)
		} else {
			m.statsd = client
		}
	}
	if cfg.Prometheus.Enabled {
		m.Prometheus = metrics.NewPrometheusSink(metrics.PrometheusOptions{
			Namespace: cfg.Prometheus.Namespace,
			Logger:    obsLogger,
		})
	}

	var sinks []statsd.Sink
	if m.statsd != nil {
		sinks = append(sinks, m.statsd)
	}
	if m.Prometheus != nil {
		sinks = append(sinks, m.Prometheus)
	}
	m.Sink = metrics.NewFanout(sinks...)
	return m
}

// StartMetricsServer serves the Prometheus registry on addr.
// Returns the server instance for graceful shutdown, or nil when sink is nil.
func StartMetricsServer(logger *slog.Logger, sink *metrics.PrometheusSink, addr string) *http.Server {
	if sink == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return server
}

// ShutdownMetricsServer gracefully shuts down the metrics server.
func ShutdownMetricsServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("metrics server stopped")
	}
	return nil
}
