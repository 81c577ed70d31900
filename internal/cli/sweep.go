package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/usedby/internal/config"
	"github.com/matzehuels/usedby/pkg/github"
	"github.com/matzehuels/usedby/pkg/pipeline"
	"github.com/matzehuels/usedby/pkg/scheduled"
)

// newSweepCmd creates the sweep command running one cache maintenance pass.
func newSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one cache maintenance sweep",
		Long: `Walk the whole cache, find stale entries, and refresh the stalest few.
Prints a JSON summary of the run. Intended for cron or a scheduler when the
serve process runs with --no-sweep.`,
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

			sweeper := &scheduled.Sweeper{
				Store:  store,
				GitHub: github.NewClient(cfg.GitHub.Token, logger),
				Limits: pipeline.LimitsFor(cfg.GitHub.Tier),
				Logger: logger,
			}
			summary, err := sweeper.Run(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}
