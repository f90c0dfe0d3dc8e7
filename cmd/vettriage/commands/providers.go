package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/biodoia/vettriage/pkg/config"
)

// ProvidersCmd rappresenta il comando providers
var ProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured model providers",
	Long: `List the configured vision and text-generation providers in priority
order, showing which ones have credentials available.`,
	RunE: runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	setupLogger(false, true)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAPABILITY\tPRIORITY\tID\tKIND\tMODEL\tCREDENTIALS")

	printEntries := func(capability string, entries []config.ProviderEntry) {
		for _, e := range entries {
			credentials := "missing"
			if e.ResolveAPIKey() != "" {
				credentials = "ok"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				capability, e.Priority, e.ID, e.Kind, e.Model, credentials)
		}
	}

	printEntries("vision", cfg.Providers.Vision)
	printEntries("text-generation", cfg.Providers.TextGeneration)

	return w.Flush()
}
