package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"CONFIG_PATH", "OPENROUTER_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"OPENAI_MODEL_NAME", "LLM_BACKEND", "DB_TYPE", "DB_DSN", "NANOCHAT_BASE_DIR",
		"DATA_DIR", "SYNTHGEN_WORKERS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.Generate.NumConversations)
	assert.Equal(t, 4, cfg.Generate.NumWorkers)
	assert.Equal(t, 1.0, cfg.LLM.Temperature)
	assert.Equal(t, 1, cfg.Generate.Retry.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  model: test-model
  temperature: 0.5
  timeout: 30s
generate:
  num_conversations: 10
  num_workers: 3
  retry:
    max_attempts: 3
    base_backoff: 10ms
data:
  dir: /tmp/out
  output_file: out.jsonl
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, 0.5, cfg.LLM.Temperature)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 10, cfg.Generate.NumConversations)
	assert.Equal(t, 3, cfg.Generate.NumWorkers)
	assert.Equal(t, 3, cfg.Generate.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Generate.Retry.BaseBackoff)
	assert.Equal(t, "/tmp/out/out.jsonl", cfg.OutputPath())
	// 未出现在文件中的字段保留默认值
	assert.Equal(t, 5, cfg.Generate.ExemplarCount)
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[llm]
backend = "openai"
model = "gpt-4o-mini"

[generate]
num_conversations = 7
num_workers = 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Generate.NumConversations)
	assert.Equal(t, 2, cfg.Generate.NumWorkers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("OPENAI_MODEL_NAME", "env-model")
	t.Setenv("NANOCHAT_BASE_DIR", "/data/nanochat")
	t.Setenv("SYNTHGEN_WORKERS", "8")
	t.Setenv("DB_DSN", "file:test.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "/data/nanochat/identity_conversations.jsonl", cfg.OutputPath())
	assert.Equal(t, 8, cfg.Generate.NumWorkers)
	assert.True(t, cfg.Database.Enabled)
}

func TestResolveAPIKey(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "direct"
	key, err := cfg.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "direct", key)

	path := filepath.Join(t.TempDir(), "token.txt")
	require.NoError(t, os.WriteFile(path, []byte("  file-key\n"), 0600))
	cfg = Default()
	cfg.LLM.APIKeyFile = path
	key, err = cfg.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)

	cfg.LLM.APIKeyFile = filepath.Join(t.TempDir(), "missing.txt")
	_, err = cfg.ResolveAPIKey()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Generate.NumWorkers = 0
	cfg.LLM.Temperature = 3
	cfg.LLM.Backend = "grpc"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_workers")
	assert.Contains(t, err.Error(), "temperature")
	assert.Contains(t, err.Error(), "grpc")
}

func TestValidateMinMessages(t *testing.T) {
	cfg := Default()
	cfg.Generate.MinMessages = 2
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_messages")

	for _, n := range []int{0, 6, 10} {
		cfg.Generate.MinMessages = n
		assert.NoError(t, cfg.Validate(), "min_messages=%d", n)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Generate.NumConversations = 42
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Generate.NumConversations)
}
