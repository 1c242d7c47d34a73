package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/deusflow/marketbrief/internal/config"
	"github.com/deusflow/marketbrief/internal/logger"
	"github.com/deusflow/marketbrief/internal/metrics"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as a daemon: generate the brief daily at the configured time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, cleanup, err := buildPipeline(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer cleanup()

			loc, err := time.LoadLocation(cfg.Timezone)
			if err != nil {
				return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
			}

			c := cron.New(cron.WithLocation(loc))
			spec, err := cronSpec(cfg.DigestTime)
			if err != nil {
				return err
			}
			_, err = c.AddFunc(spec, func() {
				logger.Info("scheduled run starting", "time", cfg.DigestTime, "tz", cfg.Timezone)
				if _, err := p.Run(ctx); err != nil {
					logger.Error("scheduled run failed", "err", err)
				}
			})
			if err != nil {
				return fmt.Errorf("schedule digest: %w", err)
			}

			srv := &http.Server{
				Addr:    ":" + cfg.MonitoringPort,
				Handler: monitoringRouter(),
			}
			go func() {
				logger.Info("monitoring server listening", "port", cfg.MonitoringPort)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("monitoring server error", "err", err)
				}
			}()

			c.Start()
			logger.Info("daemon started", "digest_time", cfg.DigestTime, "tz", cfg.Timezone)

			<-ctx.Done()
			logger.Info("shutting down")
			stopCtx := c.Stop()
			<-stopCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// cronSpec turns "HH:MM" into a daily cron expression.
func cronSpec(digest string) (string, error) {
	t, err := time.Parse("15:04", digest)
	if err != nil {
		return "", fmt.Errorf("digest_time must be HH:MM, got %q", digest)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

func monitoringRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		stats := metrics.Global.GetStats()
		status := "ok"
		w.Header().Set("Content-Type", "application/json")
		if !metrics.Global.Healthy() {
			status = "error"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     status,
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
		}); err != nil {
			logger.Error("encode monitoring response", "err", err)
		}
	})

	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, metrics.Global.GetStats())
	})

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode monitoring response", "err", err)
	}
}
