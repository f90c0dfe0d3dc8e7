package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/biodoia/vettriage/internal/knowledge"
	"github.com/biodoia/vettriage/pkg/cache"
	"github.com/biodoia/vettriage/pkg/config"
)

// DoctorCmd rappresenta il comando doctor
var DoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health diagnostics",
	Long: `Run health checks on the VetTriage setup: configuration, knowledge
base, report cache and provider credentials.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	setupLogger(false, true)

	fmt.Println("VetTriage Health Check")
	fmt.Println("======================")
	fmt.Println()

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Printf("✗ Configuration: %v\n", err)
		return err
	}
	fmt.Println("✓ Configuration loaded")

	failed := 0
	failed += checkKnowledge(cfg)
	failed += checkCache(cfg)
	failed += checkProviderCredentials(cfg)

	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Println("All checks passed")
	return nil
}

func checkKnowledge(cfg *config.Config) int {
	store, err := knowledge.NewStore(cfg.Knowledge.DatabasePath)
	if err != nil {
		fmt.Printf("✗ Knowledge base: %v\n", err)
		return 1
	}
	defer store.Close()

	count, err := store.CountDocuments()
	if err != nil {
		fmt.Printf("✗ Knowledge base: %v\n", err)
		return 1
	}
	if count == 0 {
		fmt.Println("! Knowledge base is empty (run 'vettriage ingest')")
		return 0
	}
	fmt.Printf("✓ Knowledge base: %d document(s)\n", count)
	return 0
}

func checkCache(cfg *config.Config) int {
	if !cfg.Redis.Enabled {
		fmt.Println("✓ Report cache: in-memory (Redis disabled)")
		return 0
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		fmt.Printf("✗ Report cache: %v\n", err)
		return 1
	}
	redisCache.Close()
	fmt.Printf("✓ Report cache: Redis at %s\n", cfg.Redis.Host)
	return 0
}

func checkProviderCredentials(cfg *config.Config) int {
	failed := 0
	check := func(capability string, entries []config.ProviderEntry) {
		available := 0
		for _, e := range entries {
			if e.ResolveAPIKey() != "" {
				available++
			} else if e.APIKeyEnv != "" {
				fmt.Printf("! Provider %s: env %s not set\n", e.ID, e.APIKeyEnv)
			}
		}
		if len(entries) > 0 && available == 0 {
			fmt.Printf("✗ No %s provider has credentials\n", capability)
			failed++
		} else {
			fmt.Printf("✓ %s providers: %d/%d with credentials\n", capability, available, len(entries))
		}
	}

	check("vision", cfg.Providers.Vision)
	check("text-generation", cfg.Providers.TextGeneration)

	if key := os.Getenv(cfg.Knowledge.Embedding.APIKeyEnv); key == "" && cfg.Knowledge.Embedding.APIKeyEnv != "" {
		fmt.Printf("! Embedding: env %s not set\n", cfg.Knowledge.Embedding.APIKeyEnv)
	}

	return failed
}
