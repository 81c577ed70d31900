package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matzehuels/usedby/pkg/cache"
	"github.com/matzehuels/usedby/pkg/dependents"
	"github.com/matzehuels/usedby/pkg/github"
	"github.com/matzehuels/usedby/pkg/pipeline"
)

// newLookupCmd creates the lookup command for one-off terminal lookups.
func newLookupCmd() *cobra.Command {
	var (
		asJSON bool
		top    int
		tier   string
		token  string
	)

	cmd := &cobra.Command{
		Use:   "lookup <platform> <package>",
		Short: "Resolve a package's dependents from the terminal",
		Long: `Run the full discovery pipeline for one package and print the ranked
dependents. Results are not cached between invocations.

Examples:
  usedby lookup npm express
  usedby lookup pypi requests --top 20
  usedby lookup go github.com/spf13/cobra --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			registerEcosystems()

			if token == "" {
				token = os.Getenv("USEDBY_GITHUB_TOKEN")
			}

			svc := &dependents.Service{
				Store:  cache.NewMemoryStore(),
				GitHub: github.NewClient(token, logger),
				Limits: pipeline.LimitsFor(tier),
				Logger: logger,
			}

			prog := newProgress(logger)
			result, err := svc.GetDependents(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Found %d dependents", len(result.Repos)))

			repos := result.Repos
			if top > 0 && len(repos) > top {
				repos = repos[:top]
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(repos)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tREPOSITORY\tSTARS\tSCORE\tVERSION\tTYPE")
			for i, repo := range repos {
				fmt.Fprintf(w, "%d\t%s\t%d\t%.1f\t%s\t%s\n",
					i+1, repo.FullName, repo.Stars, repo.Score, repo.Version, repo.DepType)
			}
			if result.DependentCount != nil {
				fmt.Fprintf(w, "\ntotal dependents: %d\n", *result.DependentCount)
			}
			if result.Partial {
				fmt.Fprintln(w, "note: results truncated by upstream rate limits")
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().IntVar(&top, "top", pipeline.FreeLimits.DefaultCount, "number of results to show (0 for all)")
	cmd.Flags().StringVar(&tier, "tier", "free", "pipeline limits preset: dev, free, or paid")
	cmd.Flags().StringVar(&token, "token", "", "GitHub token (defaults to USEDBY_GITHUB_TOKEN)")
	return cmd
}
