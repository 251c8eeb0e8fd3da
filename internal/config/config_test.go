package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "qdrant", cfg.VectorIndex.Backend)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 5, cfg.RAG.DefaultTopK)
	assert.Equal(t, time.Hour, cfg.RAG.CacheTTL())
	assert.Equal(t, 3, cfg.Kafka.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.MinIO.PresignExpiry)
	assert.Empty(t, cfg.MinIO.Endpoint)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  cors_origins: ["https://a.example", "https://b.example"]
vector_index:
  backend: bolt
  collection: notes
  bolt:
    path: /tmp/notes.db
rag:
  default_top_k: 3
  cache_ttl_seconds: 60
tika:
  timeout: 5s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "bolt", cfg.VectorIndex.Backend)
	assert.Equal(t, "notes", cfg.VectorIndex.Collection)
	assert.Equal(t, "/tmp/notes.db", cfg.VectorIndex.Bolt.Path)
	assert.Equal(t, 3, cfg.RAG.DefaultTopK)
	assert.Equal(t, time.Minute, cfg.RAG.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.Tika.Timeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  redis:
    url: redis://file:6379/0
embedding:
  api_key: from-file
`)
	t.Setenv("REDIS_URL", "redis://env:6379/1")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("CLAUDE_API_KEY", "llm-env")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("EMBEDDING_DIMENSIONS", "768")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://env:6379/1", cfg.Database.Redis.URL)
	assert.Equal(t, "sk-env", cfg.Embedding.APIKey)
	assert.Equal(t, "llm-env", cfg.LLM.APIKey)
	assert.Equal(t, 15, cfg.JWT.AccessTokenExpireMinutes)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			VectorIndex: VectorIndexConfig{Backend: "qdrant", Collection: "documents"},
			Embedding:   EmbeddingConfig{Dimensions: 384},
			RAG:         RAGConfig{DefaultTopK: 5},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"zero dimensions":  func(c *Config) { c.Embedding.Dimensions = 0 },
		"unknown backend":  func(c *Config) { c.VectorIndex.Backend = "faiss" },
		"empty collection": func(c *Config) { c.VectorIndex.Collection = "" },
		"zero top k":       func(c *Config) { c.RAG.DefaultTopK = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
