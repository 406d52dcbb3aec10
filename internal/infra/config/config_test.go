package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"docqa-orchestrator/internal/infra/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "9020", cfg.Port)
	assert.Equal(t, "qa-large", cfg.PrimaryModel)
	assert.Equal(t, "qa-small", cfg.FallbackModel)
	assert.Equal(t, 10, cfg.ExternalTimeout)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 1024, cfg.MaxAnswerTokens)
	assert.Equal(t, 0.4, cfg.CRAGMinRelevance)
	assert.Equal(t, 0.6, cfg.ReflectMinScore)
	assert.Equal(t, 80, cfg.ReflectMinLength)
	assert.Equal(t, 1, cfg.ReflectMaxRetries)
	assert.Equal(t, 256, cfg.CacheSize)
	assert.Equal(t, 60, cfg.CacheTTLMinutes)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LLM_PRIMARY_MODEL", "qa-xl")
	t.Setenv("CRAG_MIN_RELEVANCE", "0.55")
	t.Setenv("REFLECT_MAX_RETRIES", "2")
	t.Setenv("ANSWER_CACHE_SIZE", "0")

	cfg := config.Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "qa-xl", cfg.PrimaryModel)
	assert.Equal(t, 0.55, cfg.CRAGMinRelevance)
	assert.Equal(t, 2, cfg.ReflectMaxRetries)
	assert.Equal(t, 0, cfg.CacheSize)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("QA_HISTORY_LIMIT", "lots")
	t.Setenv("CRAG_MIN_RELEVANCE", "very high")

	cfg := config.Load()

	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 0.4, cfg.CRAGMinRelevance)
}

func TestLoad_SecretFromFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "db_password")
	require.NoError(t, os.WriteFile(secretPath, []byte("  s3cret\n"), 0o600))
	t.Setenv("DB_PASSWORD_FILE", secretPath)

	cfg := config.Load()

	assert.Equal(t, "s3cret", cfg.DBPassword)
}

func TestLoad_DirectSecretWinsOverFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "db_password")
	require.NoError(t, os.WriteFile(secretPath, []byte("file-secret"), 0o600))
	t.Setenv("DB_PASSWORD_FILE", secretPath)
	t.Setenv("DB_PASSWORD", "env-secret")

	cfg := config.Load()

	assert.Equal(t, "env-secret", cfg.DBPassword)
}

func TestLoad_EmbeddingURLFallsBackToGateway(t *testing.T) {
	t.Setenv("LLM_GATEWAY_URL", "http://gateway:8000")

	cfg := config.Load()

	assert.Equal(t, "http://gateway:8000", cfg.EmbeddingURL)
}
