package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matzehuels/usedby/pkg/ecosystems"
)

// newPlatformsCmd creates the platforms command listing supported ecosystems.
func newPlatformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List supported package ecosystems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registerEcosystems()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLATFORM\tMANIFEST")
			for _, slug := range ecosystems.Slugs() {
				strat, _ := ecosystems.Lookup(slug)
				fmt.Fprintf(w, "%s\t%s\n", slug, strat.ManifestFile())
			}
			return w.Flush()
		},
	}
}
