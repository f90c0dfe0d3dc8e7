package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/biodoia/vettriage/internal/knowledge"
	"github.com/biodoia/vettriage/internal/pipeline"
	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/internal/providers/factory"
	"github.com/biodoia/vettriage/internal/retrieval"
	"github.com/biodoia/vettriage/internal/websearch"
	"github.com/biodoia/vettriage/pkg/cache"
	"github.com/biodoia/vettriage/pkg/config"
	"github.com/biodoia/vettriage/pkg/embeddings"
	"github.com/biodoia/vettriage/pkg/metrics"
)

// setupLogger configura il logger globale
func setupLogger(verbose, dev bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if dev {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}
}

// loadConfig carica la configurazione dal flag --config
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildEmbedder costruisce l'embedder HuggingFace con cache
func buildEmbedder(cfg *config.Config) embeddings.Embedder {
	return embeddings.NewCachedEmbedder(embeddings.NewHFEmbedder(embeddings.HFConfig{
		Model:    cfg.Knowledge.Embedding.Model,
		APIKey:   os.Getenv(cfg.Knowledge.Embedding.APIKeyEnv),
		Endpoint: cfg.Knowledge.Embedding.Endpoint,
	}))
}

// runtime raggruppa i componenti condivisi tra i comandi
type runtime struct {
	cfg          *config.Config
	registry     *providers.Registry
	orchestrator *pipeline.Orchestrator
	knowledge    *knowledge.Store
}

// buildRuntime istanzia la pipeline completa a partire dalla configurazione
func buildRuntime(cfg *config.Config, withMetrics bool) (*runtime, error) {
	registry, err := factory.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	knowledgeStore, err := knowledge.NewStore(cfg.Knowledge.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}

	vectorStore := embeddings.NewInMemoryStore()
	loaded, err := knowledge.LoadIntoVectorStore(context.Background(), knowledgeStore, vectorStore)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector store: %w", err)
	}
	if loaded == 0 {
		log.Warn().Msg("Knowledge base is empty, run 'vettriage ingest' to populate it")
	}

	searcher := websearch.NewClient(websearch.Config{
		Timeout: config.ParseDurationOr(cfg.Retrieval.WebSearchTimeout, 20*time.Second),
	})

	retriever := retrieval.NewRetriever(vectorStore, buildEmbedder(cfg), searcher, retrieval.Config{
		MaxResults:       cfg.Retrieval.MaxResults,
		WebBaselineScore: cfg.Retrieval.WebBaselineScore,
		WebSearchTimeout: config.ParseDurationOr(cfg.Retrieval.WebSearchTimeout, 20*time.Second),
	})

	reportCache, err := buildCache(cfg)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if withMetrics {
		m = metrics.New("vettriage")
	}

	unavailableFor := config.ParseDurationOr(cfg.Providers.UnavailableFor, 5*time.Minute)

	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewVisionStep(registry, unavailableFor),
		pipeline.NewKnowledgeStep(retriever),
		pipeline.NewDiagnosisStep(registry, unavailableFor, cfg.Pipeline.PromptBudget),
		reportCache,
		m,
		pipeline.OrchestratorConfig{
			AllowVisionless: cfg.Pipeline.AllowVisionless,
			RunTimeout:      config.ParseDurationOr(cfg.Pipeline.RunTimeout, 3*time.Minute),
			CacheTTL:        config.ParseDurationOr(cfg.Redis.TTL, 30*time.Minute),
		},
	)

	return &runtime{
		cfg:          cfg,
		registry:     registry,
		orchestrator: orchestrator,
		knowledge:    knowledgeStore,
	}, nil
}

// buildCache sceglie Redis o memoria locale per la cache dei referti
func buildCache(cfg *config.Config) (cache.Cache, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory cache")
		return cache.NewMemoryCache(), nil
	}
	return redisCache, nil
}

func (r *runtime) Close() {
	if r.knowledge != nil {
		r.knowledge.Close()
	}
}
