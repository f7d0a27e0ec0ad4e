package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInit_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
mysql:
  host: 127.0.0.1
  port: 3306
  user: test
  database: test
`)
	t.Setenv("CONFIG_PATH", path)

	require.NoError(t, Init())

	assert.Equal(t, 5, GlobalConfig.Worker.PollInterval)
	assert.Equal(t, 10, GlobalConfig.Worker.MaxConcurrent)
	assert.Equal(t, 300, GlobalConfig.Worker.LockTimeout)
	assert.Equal(t, "gpt-4o-mini", GlobalConfig.OpenAI.ChatModel)
	assert.Equal(t, "text-embedding-3-small", GlobalConfig.OpenAI.EmbeddingModel)
	assert.Equal(t, "https://api.hubapi.com", GlobalConfig.Hubspot.BaseURL)
	assert.Equal(t, 50, GlobalConfig.Limits.MaxEmailsPerUserPerHour)
	assert.Equal(t, 100000, GlobalConfig.Limits.MaxLLMTokensPerDay)
	assert.Equal(t, 1000000, GlobalConfig.Limits.MaxLLMTokensGlobalPerDay)
}

func TestInit_EnvOverridesSecrets(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
openai:
  api_key: from-yaml
mysql:
  password: from-yaml
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("MYSQL_PASSWORD", "secret")

	require.NoError(t, Init())

	assert.Equal(t, "from-env", GlobalConfig.OpenAI.APIKey)
	assert.Equal(t, "secret", GlobalConfig.MySQL.Password)
}

func TestInit_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, Init())
}

func TestMySQLConfig_DSN(t *testing.T) {
	cfg := MySQLConfig{
		Host:     "db.internal",
		Port:     3307,
		User:     "advisor",
		Password: "pw",
		Database: "advisorhub",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "advisor:pw@tcp(db.internal:3307)/advisorhub")
	assert.Contains(t, dsn, "parseTime=True")
}

func TestWorkerDefaults_RespectExplicitValues(t *testing.T) {
	path := writeConfig(t, `
worker:
  poll_interval: 1
  max_concurrent: 2
  lock_timeout: 60
`)
	t.Setenv("CONFIG_PATH", path)

	require.NoError(t, Init())

	assert.Equal(t, 1, GlobalConfig.Worker.PollInterval)
	assert.Equal(t, 2, GlobalConfig.Worker.MaxConcurrent)
	assert.Equal(t, 60, GlobalConfig.Worker.LockTimeout)
}
