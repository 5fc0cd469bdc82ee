// Package container provides dependency injection and lifecycle management
// for the expense workflow service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/expense-flow/internal/application/workflow"
)

// Extraction providers
const (
	ProviderOpenAI = "openai"
	ProviderABBYY  = "abbyy"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Extraction provider and worker configuration
	Extraction ExtractionConfig

	// Workflow configuration
	Workflow WorkflowConfig

	// Lark notification configuration
	Lark LarkConfig

	// Storage configuration
	Storage StorageConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "memory"
	Driver string

	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// ExtractionConfig selects and configures the receipt extraction provider.
type ExtractionConfig struct {
	// Provider is "openai" (in-process worker pool) or "abbyy" (external gateway)
	Provider string

	// AutoRequest sends extractable attachments for extraction on upload
	AutoRequest bool

	// CallbackSecret verifies gateway callbacks; empty disables verification
	CallbackSecret string

	OpenAI OpenAIConfig
	ABBYY  ABBYYConfig
	Worker WorkerConfig
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string

	// BaseURL overrides the API endpoint
	BaseURL string

	// Model is the vision model to use (e.g., "gpt-4o")
	Model string

	// MaxPages limits how many PDF pages are rasterized
	MaxPages int

	// PromptsPath points at a YAML prompt file; empty uses the built-in prompts
	PromptsPath string
}

// ABBYYConfig holds extraction gateway settings.
type ABBYYConfig struct {
	Endpoint            string
	APIKey              string
	CallbackURL         string
	FileBaseURL         string
	RequestTimeout      time.Duration
	ConsecutiveFailures uint32
	BreakerTimeout      time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency    int
	QueueSize      int
	ProcessTimeout time.Duration
}

// WorkflowConfig holds approval workflow settings.
type WorkflowConfig struct {
	// ProcessingMode is "manual" or "on_extraction"
	ProcessingMode string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on approval notifications
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// ReceiveIDType is how recipients are addressed
	ReceiveIDType string

	// Recipients maps submitter names to Lark ids
	Recipients map[string]string
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// AttachmentDir is the base directory for attachments
	AttachmentDir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// MaxUploadBytes caps attachment uploads
	MaxUploadBytes int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/expenses.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Extraction: ExtractionConfig{
			Provider:    ProviderOpenAI,
			AutoRequest: true,
			OpenAI: OpenAIConfig{
				Model:    "gpt-4o",
				MaxPages: 2,
			},
			ABBYY: ABBYYConfig{
				RequestTimeout:      15 * time.Second,
				ConsecutiveFailures: 5,
				BreakerTimeout:      30 * time.Second,
			},
			Worker: WorkerConfig{
				Concurrency:    2,
				QueueSize:      64,
				ProcessTimeout: 120 * time.Second,
			},
		},
		Workflow: WorkflowConfig{
			ProcessingMode: string(workflow.ProcessingManual),
		},
		Lark: LarkConfig{
			ReceiveIDType: "open_id",
		},
		Storage: StorageConfig{
			AttachmentDir: "attachments",
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 10 << 20,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Database.Driver)
	}

	switch c.Extraction.Provider {
	case ProviderOpenAI:
		if c.Extraction.OpenAI.APIKey == "" {
			return fmt.Errorf("extraction.openai.api_key is required")
		}
	case ProviderABBYY:
		if c.Extraction.ABBYY.Endpoint == "" {
			return fmt.Errorf("extraction.abbyy.endpoint is required")
		}
	default:
		return fmt.Errorf("extraction.provider must be %q or %q, got %q", ProviderOpenAI, ProviderABBYY, c.Extraction.Provider)
	}

	if !workflow.ProcessingMode(c.Workflow.ProcessingMode).IsValid() {
		return fmt.Errorf("workflow.processing_mode must be %q or %q, got %q",
			workflow.ProcessingManual, workflow.ProcessingOnExtraction, c.Workflow.ProcessingMode)
	}

	// Validate Lark configuration
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	// Validate storage configuration
	if c.Storage.AttachmentDir == "" {
		return fmt.Errorf("storage.attachment_dir is required")
	}

	return nil
}
