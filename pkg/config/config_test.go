package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Retrieval.MaxResults)
	assert.Equal(t, 0.30, cfg.Retrieval.WebBaselineScore)
	assert.True(t, cfg.Pipeline.AllowVisionless)
	assert.Equal(t, 1000, cfg.Knowledge.ChunkSize)
	assert.Equal(t, 200, cfg.Knowledge.ChunkOverlap)
}

func TestLoad_FromFile(t *testing.T) {
	content := []byte(`
server:
  port: 9090
providers:
  vision:
    - id: gemini-flash
      kind: gemini
      model: gemini-2.5-flash
      priority: 1
      api_key_env: GOOGLE_API_KEY
      timeout: 15s
    - id: qwen-vl
      kind: openrouter
      model: qwen/qwen2.5-vl-72b-instruct:free
      priority: 2
      api_key_env: OPENROUTER_API_KEY
pipeline:
  allow_visionless: false
`)
	path := t.TempDir() + "/config.yaml"
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	require.Len(t, cfg.Providers.Vision, 2)
	assert.Equal(t, "gemini-flash", cfg.Providers.Vision[0].ID)
	assert.Equal(t, 1, cfg.Providers.Vision[0].Priority)
	assert.False(t, cfg.Pipeline.AllowVisionless)
}

func TestProviderEntry_ResolveTimeout(t *testing.T) {
	p := ProviderEntry{Timeout: "15s"}
	assert.Equal(t, 15*time.Second, p.ResolveTimeout())

	p = ProviderEntry{Timeout: "garbage"}
	assert.Equal(t, 30*time.Second, p.ResolveTimeout())
}

func TestProviderEntry_ResolveAPIKey(t *testing.T) {
	t.Setenv("VETTRIAGE_TEST_KEY", "secret")

	p := ProviderEntry{APIKeyEnv: "VETTRIAGE_TEST_KEY"}
	assert.Equal(t, "secret", p.ResolveAPIKey())

	p = ProviderEntry{}
	assert.Empty(t, p.ResolveAPIKey())
}
