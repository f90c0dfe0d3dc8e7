package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Embedder genera embeddings per testi
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// HFConfig configurazione per l'embedder HuggingFace
type HFConfig struct {
	Model    string
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// DefaultHFConfig restituisce una configurazione di default
func DefaultHFConfig() HFConfig {
	return HFConfig{
		Model:    "sentence-transformers/all-MiniLM-L6-v2",
		Endpoint: "https://api-inference.huggingface.co",
		Timeout:  30 * time.Second,
	}
}

// HFEmbedder genera embeddings tramite la Inference API di HuggingFace
type HFEmbedder struct {
	config     HFConfig
	httpClient *resty.Client
}

// NewHFEmbedder crea un nuovo embedder HuggingFace
func NewHFEmbedder(config HFConfig) *HFEmbedder {
	if config.Model == "" {
		config.Model = DefaultHFConfig().Model
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultHFConfig().Endpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHFConfig().Timeout
	}

	client := resty.New().
		SetBaseURL(config.Endpoint).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json")

	if config.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+config.APIKey)
	}

	return &HFEmbedder{config: config, httpClient: client}
}

// ModelName restituisce il nome del modello di embedding
func (e *HFEmbedder) ModelName() string {
	return e.config.Model
}

// Embed genera l'embedding di un testo
func (e *HFEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32

	resp, err := e.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"inputs": text,
			"options": map[string]bool{
				"wait_for_model": true,
			},
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/pipeline/feature-extraction/%s", e.config.Model))

	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("embedding request failed: HTTP %d", resp.StatusCode())
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}

	return Normalize(result), nil
}

// CachedEmbedder aggiunge una cache in-memory a un Embedder.
// Evita di rigenerare embeddings per gli stessi chunk durante l'ingestione.
type CachedEmbedder struct {
	embedder Embedder
	mu       sync.RWMutex
	cache    map[string][]float32
	hits     int64
	misses   int64
}

// NewCachedEmbedder crea un embedder con cache
func NewCachedEmbedder(embedder Embedder) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    make(map[string][]float32),
	}
}

// ModelName restituisce il nome del modello sottostante
func (c *CachedEmbedder) ModelName() string {
	return c.embedder.ModelName()
}

// Embed genera un embedding passando dalla cache
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	cached, ok := c.cache[text]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return cached, nil
	}

	embedding, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.misses++
	c.cache[text] = embedding
	c.mu.Unlock()

	log.Debug().Int("cache_size", len(c.cache)).Msg("Embedding generated and cached")
	return embedding, nil
}
