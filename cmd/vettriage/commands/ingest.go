package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/biodoia/vettriage/internal/knowledge"
)

var (
	ingestDocs    string
	ingestVerbose bool
)

// IngestCmd rappresenta il comando ingest
var IngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest veterinary documents into the knowledge base",
	Long: `Chunk, embed and index veterinary documents (.txt, .md) into the
local knowledge base. Unchanged documents are skipped.`,
	Example: `  # Ingest the configured docs directory
  vettriage ingest

  # Ingest a specific directory
  vettriage ingest --docs ./my-documents`,
	RunE: runIngest,
}

func init() {
	IngestCmd.Flags().StringVar(&ingestDocs, "docs", "", "Documents directory (defaults to config)")
	IngestCmd.Flags().BoolVarP(&ingestVerbose, "verbose", "v", false, "Verbose logging")
}

func runIngest(cmd *cobra.Command, args []string) error {
	setupLogger(ingestVerbose, true)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	docsPath := ingestDocs
	if docsPath == "" {
		docsPath = cfg.Knowledge.DocsPath
	}

	store, err := knowledge.NewStore(cfg.Knowledge.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer store.Close()

	ingester := knowledge.NewIngester(store, buildEmbedder(cfg), cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)

	ingested, err := ingester.IngestDir(context.Background(), docsPath)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	total, err := store.CountDocuments()
	if err != nil {
		return err
	}

	log.Info().
		Int("ingested", ingested).
		Int64("total", total).
		Msg("Knowledge base updated")

	fmt.Printf("Ingested %d document(s), %d total in knowledge base\n", ingested, total)
	return nil
}
