package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/wessley-rag/engine/domain"
)

// inTempDir runs the test from an empty directory so no stray .env is read.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("OPENAI_API_KEY", "")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, s.Server.Port)
	assert.Equal(t, "*", s.Server.CORSOrigin)
	assert.Equal(t, domain.DefaultConfig(), s.RAG)
	assert.Empty(t, s.Qdrant.Addr)
	assert.Equal(t, 30*time.Second, s.Limits.BreakerTimeout)
	require.NoError(t, s.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "rag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
qdrant:
  addr: localhost:6334
rag:
  k: 5
  chunk_size: 300
`), 0o600))
	t.Setenv("RAG_RAG_K", "7")
	t.Setenv("RAG_LIMITS_BREAKER_TIMEOUT", "1m")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, s.Server.Port)
	assert.Equal(t, "localhost:6334", s.Qdrant.Addr)
	assert.Equal(t, 7, s.RAG.K)
	assert.Equal(t, 300, s.RAG.ChunkSize)
	assert.Equal(t, 50, s.RAG.Overlap)
	assert.Equal(t, time.Minute, s.Limits.BreakerTimeout)
}

func TestLoad_DotEnvAPIKey(t *testing.T) {
	dir := inTempDir(t)
	// godotenv never overrides variables that are already set.
	t.Setenv("OPENAI_API_KEY", "")
	require.NoError(t, os.Unsetenv("OPENAI_API_KEY"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0o600))

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", s.OpenAI.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	inTempDir(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	inTempDir(t)
	s, err := Load("")
	require.NoError(t, err)

	s.RAG.K = domain.MaxK + 1
	var ve *domain.ValidationError
	require.True(t, errors.As(s.Validate(), &ve))
	assert.Equal(t, "k", ve.Field)

	s.RAG.K = 3
	s.Server.Port = 0
	assert.ErrorIs(t, s.Validate(), domain.ErrInvalidConfiguration)
}

func TestEncode_RedactsKey(t *testing.T) {
	s := Settings{OpenAI: OpenAISettings{APIKey: "sk-1234567890abcd"}, RAG: domain.DefaultConfig()}
	out, err := Encode(s)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "1234567890")
	assert.True(t, strings.Contains(string(out), "sk-****abcd"))

	var back Settings
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, "text-embedding-3-small", back.RAG.EmbeddingModel)
	assert.Equal(t, "sk-1234567890abcd", s.OpenAI.APIKey, "caller's settings must not change")
}
