package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/matzehuels/usedby/internal/config"
	"github.com/matzehuels/usedby/pkg/github"
	"github.com/matzehuels/usedby/pkg/pipeline"
	"github.com/matzehuels/usedby/pkg/queue"
)

// newWorkerCmd creates the worker command draining the refresh queue.
func newWorkerCmd(configPath *string) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Drain the refresh queue",
		Long: `Consume refresh messages from the queue, run the pipeline for each, and
write the results back to the cache. Requires a shared (Redis) queue; the
memory queue is only reachable from within the serve process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if !cfg.Queue.Enabled || cfg.Queue.Backend != "redis" {
				return fmt.Errorf("worker requires queue.enabled = true with the redis backend")
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
			defer q.Close()

			worker := &queue.Worker{
				Queue:  q,
				Store:  store,
				GitHub: github.NewClient(cfg.GitHub.Token, logger),
				Limits: pipeline.LimitsFor(cfg.GitHub.Tier),
				Logger: logger,
			}

			logger.Info("worker started", "concurrency", concurrency)
			var wg sync.WaitGroup
			for range concurrency {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("worker stopped", "err", err)
					}
				}()
			}
			wg.Wait()
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 1, "number of concurrent consumers")
	return cmd
}
