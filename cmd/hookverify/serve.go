package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/hookverify"
	"github.com/xraph/hookverify/httpverify"
	"github.com/xraph/hookverify/internal/config"
	"github.com/xraph/hookverify/observability"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run an HTTP receiver that verifies webhooks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := observability.NewMetrics(reg)

			v, cleanup, err := buildVerifier(ctx, a.cfg, a.logger, metrics)
			if err != nil {
				return err
			}
			defer cleanup()

			return serve(ctx, a.cfg, a.logger, v, reg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, v *hookverify.Verifier, reg *prometheus.Registry) error {
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	servers := []*http.Server{{
		Addr:              cfg.ListenAddr,
		Handler:           newMux(cfg, logger, v, metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		mm := http.NewServeMux()
		mm.Handle("GET /metrics", metricsHandler)
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mm,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		logger.Info("listening", "addr", srv.Addr)
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("listener failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server forced to shutdown", "addr", srv.Addr, "error", err)
		}
	}
	logger.Info("server stopped")
	return serveErr
}

// newMux routes:
//
//	POST /webhook         verified receiver, 204 on success
//	GET  /healthz         liveness
//	GET  /keys            cached key ids
//	POST /keys/refresh    force a key refresh
//	GET  /metrics         when no separate metrics address is set
func newMux(cfg config.Config, logger *slog.Logger, v *hookverify.Verifier, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mw := httpverify.New(v,
		httpverify.WithHeader(cfg.HeaderName),
		httpverify.WithLogger(logger),
	)
	mux.Handle("POST /webhook", mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, _ := httpverify.FromContext(r.Context())
		logger.Info("webhook accepted",
			"verification_id", out.ID.String(),
			"key_id", out.KeyID,
			"timestamp", out.Timestamp,
			"bytes", r.ContentLength,
		)
		w.WriteHeader(http.StatusNoContent)
	})))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /keys", func(w http.ResponseWriter, _ *http.Request) {
		ids := []string{}
		if c := v.Cache(); c != nil {
			ids = append(ids, c.Keys()...)
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": ids})
	})

	mux.HandleFunc("POST /keys/refresh", func(w http.ResponseWriter, r *http.Request) {
		if err := v.Refresh(r.Context()); err != nil {
			logger.Warn("manual key refresh failed", "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		n := 0
		if c := v.Cache(); c != nil {
			n = c.Len()
		}
		writeJSON(w, http.StatusOK, map[string]int{"keys": n})
	})

	if cfg.MetricsAddr == "" {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}
