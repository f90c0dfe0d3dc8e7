package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config rappresenta la configurazione completa dell'applicazione
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Knowledge KnowledgeConfig `yaml:"knowledge" mapstructure:"knowledge"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
}

// ServerConfig configurazione del server HTTP
type ServerConfig struct {
	Port int    `yaml:"port" mapstructure:"port"`
	Host string `yaml:"host" mapstructure:"host"`
}

// KnowledgeConfig configurazione della base di conoscenza locale
type KnowledgeConfig struct {
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`
	DocsPath     string `yaml:"docs_path" mapstructure:"docs_path"`
	ChunkSize    int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	Embedding    struct {
		Model     string `yaml:"model" mapstructure:"model"`
		APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
		Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	} `yaml:"embedding" mapstructure:"embedding"`
}

// RedisConfig configurazione Redis per la cache dei referti
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Host     string `yaml:"host" mapstructure:"host"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	TTL      string `yaml:"ttl" mapstructure:"ttl"`
}

// ProviderEntry configurazione di un singolo provider di modelli
type ProviderEntry struct {
	ID        string `yaml:"id" mapstructure:"id"`
	Kind      string `yaml:"kind" mapstructure:"kind"` // "openrouter", "gemini", "mistral"
	Model     string `yaml:"model" mapstructure:"model"`
	Priority  int    `yaml:"priority" mapstructure:"priority"`
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Timeout   string `yaml:"timeout" mapstructure:"timeout"`
}

// ProvidersConfig liste ordinate di provider per capability
type ProvidersConfig struct {
	Vision         []ProviderEntry `yaml:"vision" mapstructure:"vision"`
	TextGeneration []ProviderEntry `yaml:"text_generation" mapstructure:"text_generation"`
	// UnavailableFor durata di esclusione dopo un rate limit
	UnavailableFor string `yaml:"unavailable_for" mapstructure:"unavailable_for"`
}

// RetrievalConfig configurazione del sottosistema di retrieval
type RetrievalConfig struct {
	MaxResults       int     `yaml:"max_results" mapstructure:"max_results"`
	WebBaselineScore float64 `yaml:"web_baseline_score" mapstructure:"web_baseline_score"`
	WebSearchTimeout string  `yaml:"web_search_timeout" mapstructure:"web_search_timeout"`
}

// PipelineConfig configurazione dell'orchestratore
type PipelineConfig struct {
	AllowVisionless bool   `yaml:"allow_visionless" mapstructure:"allow_visionless"`
	RunTimeout      string `yaml:"run_timeout" mapstructure:"run_timeout"`
	// PromptBudget dimensione massima in byte del contesto di conoscenza nel prompt
	PromptBudget int `yaml:"prompt_budget" mapstructure:"prompt_budget"`
}

// Load carica la configurazione da file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults imposta i valori di default
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")

	// Knowledge defaults
	v.SetDefault("knowledge.database_path", "./data/knowledge.db")
	v.SetDefault("knowledge.docs_path", "./knowledge_base/documents")
	v.SetDefault("knowledge.chunk_size", 1000)
	v.SetDefault("knowledge.chunk_overlap", 200)
	v.SetDefault("knowledge.embedding.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("knowledge.embedding.api_key_env", "HUGGINGFACE_API_KEY")
	v.SetDefault("knowledge.embedding.endpoint", "https://api-inference.huggingface.co")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "30m")

	// Providers defaults
	v.SetDefault("providers.unavailable_for", "5m")

	// Retrieval defaults
	v.SetDefault("retrieval.max_results", 5)
	v.SetDefault("retrieval.web_baseline_score", 0.30)
	v.SetDefault("retrieval.web_search_timeout", "20s")

	// Pipeline defaults
	v.SetDefault("pipeline.allow_visionless", true)
	v.SetDefault("pipeline.run_timeout", "3m")
	v.SetDefault("pipeline.prompt_budget", 6000)
}

// ResolveAPIKey risolve la API key di un provider dalle variabili d'ambiente
func (p *ProviderEntry) ResolveAPIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// ResolveTimeout restituisce il timeout per chiamata del provider
func (p *ProviderEntry) ResolveTimeout() time.Duration {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ParseDurationOr restituisce la durata parsata o il fallback
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
