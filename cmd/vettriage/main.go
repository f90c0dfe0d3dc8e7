package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/biodoia/vettriage/cmd/vettriage/commands"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vettriage",
		Short: "VetTriage - Veterinary case triage pipeline",
		Long: `VetTriage - Multi-agent veterinary case triage

A triage pipeline that analyzes clinical images, retrieves relevant
veterinary literature, and produces a ranked differential diagnosis.

Features:
  • Vision analysis of clinical images with provider fallback
  • Local knowledge base with vector search
  • Web search enrichment of retrieved passages
  • Ranked differential diagnosis with supporting sources
  • Report caching and Prometheus metrics`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DiagnoseCmd)
	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.ProvidersCmd)
	rootCmd.AddCommand(commands.DoctorCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
