package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DirectoryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buddyim",
		Subsystem: "directory",
		Name:      "requests_total",
		Help:      "Directory requests handled, by transport, verb and result",
	}, []string{"transport", "verb", "result"})

	DatagramsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buddyim",
		Subsystem: "directory",
		Name:      "datagrams_dropped_total",
		Help:      "Presence datagrams dropped without a reply",
	}, []string{"reason"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "buddyim",
		Subsystem: "directory",
		Name:      "active_connections",
		Help:      "Reliable-transport connections currently being handled",
	})

	PresenceRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "buddyim",
		Subsystem: "directory",
		Name:      "presence_records",
		Help:      "Identities with a last-known presence record",
	})
)

// Serve exposes /metrics on port until ctx is cancelled.
func Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Metrics listening on :%d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
