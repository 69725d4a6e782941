package statistics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pg-sharding/reshard/pkg/spqrlog"
)

// NewMux serves Prometheus metrics, a health check and the current-op
// report returned by currentOp.
func NewMux(currentOp func() any) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/currentop", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(currentOp()); err != nil {
			spqrlog.Zero.Error().Err(err).Msg("failed to encode current-op report")
		}
	})
	return mux
}

// StartMetricsServer serves mux on addr until ctx is done.
func StartMetricsServer(ctx context.Context, addr string, mux http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			spqrlog.Zero.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}()

	spqrlog.Zero.Info().
		Str("addr", addr).
		Msg("starting metrics server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
