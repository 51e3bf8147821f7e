package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"meanrevert/internal/config"
)

// newLiveCmd mirrors the teacher's runLive boot path: connect the broker,
// reconcile against the last persisted snapshot, then drive the Engine off
// the broker's own bar stream until interrupted, flattening gracefully on
// shutdown.
func newLiveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Run the engine against a live (or paper) broker feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			br := buildBroker(cfg)
			eng, st, err := buildEngine(cfg, log, br)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := br.Connect(ctx); err != nil {
				return fmt.Errorf("live: broker connect: %w", err)
			}
			defer br.Disconnect(context.Background())

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok\n"))
			})
			mux.Handle("/metrics", promhttp.Handler())
			metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Execution.MetricsPort), Handler: mux}
			go func() {
				log.Info().Int("port", cfg.Execution.MetricsPort).Msg("live: serving /metrics and /healthz")
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("live: metrics server failed")
				}
			}()
			defer metricsSrv.Close()

			if err := eng.Reconcile(ctx); err != nil {
				log.Error().Err(err).Msg("live: reconcile failed, continuing from a cold state")
			}

			bars, err := br.SubscribeBars(ctx, cfg.Execution.Symbol)
			if err != nil {
				return fmt.Errorf("live: subscribe bars: %w", err)
			}

			log.Info().Str("symbol", cfg.Execution.Symbol).Msg("live: engine started")
			for {
				select {
				case <-ctx.Done():
					log.Info().Msg("live: shutdown signal received, flattening")
					return eng.Shutdown(context.Background())
				case bar, ok := <-bars:
					if !ok {
						log.Warn().Msg("live: bar stream closed")
						return eng.Shutdown(context.Background())
					}
					if err := eng.ProcessBar(ctx, bar); err != nil {
						log.Error().Err(err).Msg("live: process bar failed")
					}
				}
			}
		},
	}
}
