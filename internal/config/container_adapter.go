package config

import (
	"github.com/garyjia/expense-flow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Extraction: container.ExtractionConfig{
			Provider:       c.Extraction.Provider,
			AutoRequest:    c.Extraction.AutoRequest,
			CallbackSecret: c.Extraction.CallbackSecret,
			OpenAI: container.OpenAIConfig{
				APIKey:      c.Extraction.OpenAI.APIKey,
				BaseURL:     c.Extraction.OpenAI.BaseURL,
				Model:       c.Extraction.OpenAI.Model,
				MaxPages:    c.Extraction.OpenAI.MaxPages,
				PromptsPath: c.Extraction.OpenAI.PromptsPath,
			},
			ABBYY: container.ABBYYConfig{
				Endpoint:            c.Extraction.ABBYY.Endpoint,
				APIKey:              c.Extraction.ABBYY.APIKey,
				CallbackURL:         c.Extraction.ABBYY.CallbackURL,
				FileBaseURL:         c.Extraction.ABBYY.FileBaseURL,
				RequestTimeout:      c.Extraction.ABBYY.RequestTimeout,
				ConsecutiveFailures: c.Extraction.ABBYY.ConsecutiveFailures,
				BreakerTimeout:      c.Extraction.ABBYY.BreakerTimeout,
			},
			Worker: container.WorkerConfig{
				Concurrency:    c.Extraction.Worker.Concurrency,
				QueueSize:      c.Extraction.Worker.QueueSize,
				ProcessTimeout: c.Extraction.Worker.ProcessTimeout,
			},
		},
		Workflow: container.WorkflowConfig{
			ProcessingMode: c.Workflow.ProcessingMode,
		},
		Lark: container.LarkConfig{
			Enabled:       c.Lark.Enabled,
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			ReceiveIDType: c.Lark.ReceiveIDType,
			Recipients:    c.Lark.Recipients,
		},
		Storage: container.StorageConfig{
			AttachmentDir: c.Storage.AttachmentDir,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			MaxUploadBytes: c.Server.MaxUploadBytes,
		},
	}
}
