package container

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-flow/internal/application/service"
	"github.com/garyjia/expense-flow/internal/domain/entity"
)

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Database.Driver = DriverMemory
	cfg.Storage.AttachmentDir = t.TempDir()
	cfg.Extraction.Provider = ProviderABBYY
	cfg.Extraction.ABBYY.Endpoint = "http://127.0.0.1:1/extract"
	cfg.Extraction.AutoRequest = false
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Driver = DriverSQLite; c.Database.Path = "" }, "database.path"},
		{"openai without key", func(c *Config) { c.Extraction.Provider = ProviderOpenAI }, "extraction.openai.api_key"},
		{"abbyy without endpoint", func(c *Config) { c.Extraction.ABBYY.Endpoint = "" }, "extraction.abbyy.endpoint"},
		{"unknown provider", func(c *Config) { c.Extraction.Provider = "tesseract" }, "extraction.provider"},
		{"bad processing mode", func(c *Config) { c.Workflow.ProcessingMode = "auto" }, "workflow.processing_mode"},
		{"lark without secret", func(c *Config) { c.Lark.Enabled = true; c.Lark.AppID = "cli_x" }, "lark.app_secret"},
		{"no attachment dir", func(c *Config) { c.Storage.AttachmentDir = "" }, "storage.attachment_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	_, err = NewContainer(cfg, nil)
	assert.Error(t, err)

	cfg.Storage.AttachmentDir = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_StartAndClose(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start")

	require.NotNil(t, c.Services())
	assert.Nil(t, c.Services().Notification)
	assert.NotNil(t, c.HTTPServer())

	expense, err := c.Services().Lifecycle.Submit(context.Background(), entity.ExpenseDraft{
		Title:       "Parking",
		Amount:      decimal.RequireFromString("12.00"),
		Category:    "Transportation",
		Date:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		SubmittedBy: "alice",
	})
	require.NoError(t, err)

	stored, err := c.Store().Get(context.Background(), expense.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, stored.Status)

	health := c.Health(context.Background())
	assert.True(t, health.Overall)
	assert.Equal(t, "in-memory", health.Components["database"].Message)

	healthy, components := c.HealthCheck(context.Background())
	assert.True(t, healthy)
	assert.Contains(t, components["extraction"], "circuit closed")

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close")
	assert.Error(t, c.Start(context.Background()), "start after close")
}

func TestContainer_OpenAIProviderRunsWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.Provider = ProviderOpenAI
	cfg.Extraction.OpenAI.APIKey = "sk-test"

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, 1, c.Workers().GetWorkerCount())
	assert.True(t, c.Workers().IsRunning())
	assert.Contains(t, c.Workers().Stats(), "ExtractionWorker")
}

func TestContainer_SQLiteDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = DriverSQLite
	cfg.Database.Path = t.TempDir() + "/expenses.db"

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	expenses, err := c.Services().Query.List(context.Background(), service.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, expenses)
}
