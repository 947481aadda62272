// Package observability exposes pipeline metrics to Prometheus
package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//nolint:gochecknoglobals // Singleton pattern for metrics server
var (
	metricsServer *http.Server
	mu            sync.Mutex
)

// StartMetricsServer starts the Prometheus metrics server once. An empty
// address leaves metrics unexposed.
func StartMetricsServer(log logrus.FieldLogger, addr string) {
	if addr == "" {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	if metricsServer != nil {
		return
	}

	sm := http.NewServeMux()
	sm.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 15 * time.Second,
		Handler:           sm,
	}
	metricsServer = server

	go func() {
		log.WithField("addr", addr).Info("Starting metrics server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
}

// StopMetricsServer shuts the metrics server down if it was started
func StopMetricsServer(ctx context.Context) error {
	mu.Lock()
	server := metricsServer
	metricsServer = nil
	mu.Unlock()

	if server == nil {
		return nil
	}

	return server.Shutdown(ctx)
}
