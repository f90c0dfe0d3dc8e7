package factory

import (
	"fmt"

	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/internal/providers/gemini"
	"github.com/biodoia/vettriage/internal/providers/openaichat"
	"github.com/biodoia/vettriage/pkg/config"
	"github.com/biodoia/vettriage/pkg/resilience"
	"github.com/rs/zerolog/log"
)

// NewRegistryFromConfig costruisce il Registry a partire dalla configurazione.
// Le credenziali vengono risolte dalle variabili d'ambiente indicate; i
// provider senza credenziale vengono saltati con un warning, non è un errore.
func NewRegistryFromConfig(cfg *config.Config) (*providers.Registry, error) {
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.OpenFor = config.ParseDurationOr(cfg.Providers.UnavailableFor, breakerCfg.OpenFor)

	registry := providers.NewRegistryWithBreaker(breakerCfg)

	for _, entry := range cfg.Providers.Vision {
		if err := register(registry, entry, providers.CapabilityVision); err != nil {
			return nil, err
		}
	}
	for _, entry := range cfg.Providers.TextGeneration {
		if err := register(registry, entry, providers.CapabilityTextGeneration); err != nil {
			return nil, err
		}
	}

	if registry.Count(providers.CapabilityTextGeneration) == 0 {
		return nil, fmt.Errorf("no text-generation providers configured")
	}

	return registry, nil
}

func register(registry *providers.Registry, entry config.ProviderEntry, capability providers.Capability) error {
	apiKey := entry.ResolveAPIKey()
	if apiKey == "" && entry.APIKeyEnv != "" {
		log.Warn().
			Str("provider", entry.ID).
			Str("env", entry.APIKeyEnv).
			Msg("Provider skipped: API key env var not set")
		return nil
	}

	cfg := providers.ProviderConfig{
		ID:       entry.ID,
		Kind:     entry.Kind,
		Model:    entry.Model,
		Priority: entry.Priority,
		APIKey:   apiKey,
		BaseURL:  entry.BaseURL,
		Timeout:  entry.ResolveTimeout(),
	}

	var vision providers.VisionProvider
	var text providers.TextProvider

	switch entry.Kind {
	case "openrouter":
		client := openaichat.NewOpenRouterClient(cfg)
		vision, text = client, client
	case "mistral":
		client := openaichat.NewMistralClient(cfg)
		vision, text = client, client
	case "gemini":
		client := gemini.NewClient(cfg)
		vision, text = client, client
	default:
		return fmt.Errorf("unknown provider kind: %s", entry.Kind)
	}

	if capability == providers.CapabilityVision {
		return registry.Register(cfg, capability, vision, nil)
	}
	return registry.Register(cfg, capability, nil, text)
}
