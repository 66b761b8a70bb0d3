package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2048, cfg.NormalizerConfig.MaxSide)
	assert.Equal(t, 3<<20, cfg.NormalizerConfig.MaxBytes)
	assert.Equal(t, 3.0, cfg.NormalizerConfig.SplitAspectRatio)
	assert.Equal(t, 2048, cfg.NormalizerConfig.ChunkHeight)
	assert.Equal(t, 4096, cfg.OpenAIConfig.MaxTokens)
	assert.Equal(t, 5, cfg.WorkerPoolSize)
	assert.Equal(t, 10*time.Minute, cfg.ReportConfig.CacheTTL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("IMAGE_MAX_SIDE", "1024")
	t.Setenv("IMAGE_SPLIT_ASPECT_RATIO", "2.5")
	t.Setenv("OPENAI_MODEL", "gpt-4.1-mini")
	t.Setenv("AUTH_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.NormalizerConfig.MaxSide)
	assert.Equal(t, 2.5, cfg.NormalizerConfig.SplitAspectRatio)
	assert.Equal(t, "gpt-4.1-mini", cfg.OpenAIConfig.Model)
	assert.True(t, cfg.AuthEnabled)
}

func TestJWKSURL(t *testing.T) {
	cfg := &Config{KeycloakURL: "http://kc:8080", KeycloakRealm: "cars"}
	assert.Equal(t, "http://kc:8080/realms/cars/protocol/openid-connect/certs", cfg.JWKSURL())
}

func TestConversions(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REPORT_LANGUAGE", "English")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	opts := cfg.NormalizerConfig.Options()
	require.NoError(t, opts.Validate())
	assert.Equal(t, cfg.MaxSide, opts.MaxSide)
	assert.Equal(t, cfg.Concurrency, opts.Concurrency)

	llmCfg := cfg.LLM()
	assert.Equal(t, "sk-test", llmCfg.APIKey)
	assert.Equal(t, "English", llmCfg.Language)
	assert.Equal(t, uint64(3), llmCfg.MaxRetries)
}
