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
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_AppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	path := writeConfig(t, `
server:
  port: 9090
extraction:
  worker:
    concurrency: 4
lark:
  recipients:
    John Smith: ou_123
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "openai", cfg.Extraction.Provider)
	assert.Equal(t, "sk-from-env", cfg.Extraction.OpenAI.APIKey)
	assert.Equal(t, 4, cfg.Extraction.Worker.Concurrency)
	assert.Equal(t, 64, cfg.Extraction.Worker.QueueSize)
	assert.True(t, cfg.Extraction.AutoRequest)
	assert.Equal(t, "manual", cfg.Workflow.ProcessingMode)
	assert.Equal(t, "ou_123", cfg.Lark.Recipients["john smith"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	path := writeConfig(t, `
extraction:
  provider: abbyy
workflow:
  processing_mode: on_extraction
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction.abbyy.endpoint")
}

func TestLoad_ABBYYProvider(t *testing.T) {
	t.Setenv("EXTRACTION_CALLBACK_SECRET", "s3cret")
	path := writeConfig(t, `
database:
  driver: memory
extraction:
  provider: abbyy
  abbyy:
    endpoint: https://gateway.example.com/extract
    callback_url: https://expenses.example.com/api/extraction/callback
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "memory", cc.Database.Driver)
	assert.Equal(t, "abbyy", cc.Extraction.Provider)
	assert.Equal(t, "s3cret", cc.Extraction.CallbackSecret)
	assert.Equal(t, uint32(5), cc.Extraction.ABBYY.ConsecutiveFailures)
	assert.Equal(t, 15*time.Second, cc.Extraction.ABBYY.RequestTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: 8080},
			Database:   DatabaseConfig{Driver: "memory"},
			Extraction: ExtractionConfig{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "k"}},
			Workflow:   WorkflowConfig{ProcessingMode: "manual"},
			Storage:    StorageConfig{AttachmentDir: "attachments"},
			Logger:     LoggerConfig{Format: "json"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown log format", func(c *Config) { c.Logger.Format = "xml" }},
		{"lark enabled without credentials", func(c *Config) { c.Lark.Enabled = true }},
		{"unknown processing mode", func(c *Config) { c.Workflow.ProcessingMode = "eager" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
