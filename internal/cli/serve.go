package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/usedby/internal/config"
	"github.com/matzehuels/usedby/internal/server"
	"github.com/matzehuels/usedby/pkg/queue"
	"github.com/matzehuels/usedby/pkg/scheduled"
)

// newServeCmd creates the serve command running the HTTP API.
func newServeCmd(configPath *string) *cobra.Command {
	var noSweep bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve the dependent-lookup API over HTTP.

The server answers from cache where possible, refreshes stale entries in the
background, and runs a periodic sweep to keep the cache warm. With a memory
queue configured, a worker loop runs in-process; with a Redis queue, run
separate "usedby worker" processes instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			registerEcosystems()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			q, err := openQueue(ctx, cfg)
			if err != nil {
				return err
			}
			svc := buildService(cfg, store, q, logger)

			// A memory queue has no external consumers; drain it here.
			if mq, ok := q.(*queue.MemoryQueue); ok {
				worker := &queue.Worker{
					Queue:  mq,
					Store:  store,
					GitHub: svc.GitHub,
					Limits: svc.Limits,
					Logger: logger,
				}
				go func() {
					if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("worker stopped", "err", err)
					}
				}()
			}

			if !noSweep && cfg.SweepInterval() > 0 {
				sweeper := &scheduled.Sweeper{
					Store:  store,
					GitHub: svc.GitHub,
					Limits: svc.Limits,
					Logger: logger,
				}
				go runSweepLoop(ctx, sweeper, cfg.SweepInterval())
			}

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           (&server.Server{Service: svc, Store: store, Logger: logger}).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("listening", "addr", cfg.Server.Addr, "store", cfg.Store.Backend, "queue", cfg.Queue.Enabled)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "disable the periodic cache sweep")
	return cmd
}

// runSweepLoop runs a sweep every interval until the context ends.
func runSweepLoop(ctx context.Context, sweeper *scheduled.Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Run(ctx); err != nil {
				sweeper.Logger.Error("sweep failed", "err", err)
			}
		}
	}
}
