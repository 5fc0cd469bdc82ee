package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExtractionConfig holds receipt extraction configuration
type ExtractionConfig struct {
	Provider       string       `mapstructure:"provider"`
	AutoRequest    bool         `mapstructure:"auto_request"`
	CallbackSecret string       `mapstructure:"callback_secret"`
	OpenAI         OpenAIConfig `mapstructure:"openai"`
	ABBYY          ABBYYConfig  `mapstructure:"abbyy"`
	Worker         WorkerConfig `mapstructure:"worker"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	MaxPages    int    `mapstructure:"max_pages"`
	PromptsPath string `mapstructure:"prompts_path"`
}

// ABBYYConfig holds extraction gateway configuration
type ABBYYConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	APIKey              string        `mapstructure:"api_key"`
	CallbackURL         string        `mapstructure:"callback_url"`
	FileBaseURL         string        `mapstructure:"file_base_url"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
}

// WorkerConfig holds extraction worker pool configuration
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	QueueSize      int           `mapstructure:"queue_size"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// WorkflowConfig holds approval workflow configuration
type WorkflowConfig struct {
	ProcessingMode string `mapstructure:"processing_mode"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	AppID         string            `mapstructure:"app_id"`
	AppSecret     string            `mapstructure:"app_secret"`
	ReceiveIDType string            `mapstructure:"receive_id_type"`
	Recipients    map[string]string `mapstructure:"recipients"`
}

// StorageConfig holds attachment storage configuration
type StorageConfig struct {
	AttachmentDir string `mapstructure:"attachment_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// A .env file next to the process, when present, is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs without overriding variables already set
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/expenses.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Extraction defaults
	v.SetDefault("extraction.provider", "openai")
	v.SetDefault("extraction.auto_request", true)
	v.SetDefault("extraction.openai.model", "gpt-4o")
	v.SetDefault("extraction.openai.max_pages", 2)
	v.SetDefault("extraction.abbyy.request_timeout", 15*time.Second)
	v.SetDefault("extraction.abbyy.consecutive_failures", 5)
	v.SetDefault("extraction.abbyy.breaker_timeout", 30*time.Second)
	v.SetDefault("extraction.worker.concurrency", 2)
	v.SetDefault("extraction.worker.queue_size", 64)
	v.SetDefault("extraction.worker.process_timeout", 120*time.Second)

	// Workflow defaults
	v.SetDefault("workflow.processing_mode", "manual")

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.receive_id_type", "open_id")

	// Storage defaults
	v.SetDefault("storage.attachment_dir", "attachments")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	bindings := map[string]string{
		"extraction.openai.api_key":  "OPENAI_API_KEY",
		"extraction.abbyy.api_key":   "ABBYY_API_KEY",
		"extraction.abbyy.endpoint":  "ABBYY_ENDPOINT",
		"extraction.callback_secret": "EXTRACTION_CALLBACK_SECRET",
		"lark.app_id":                "LARK_APP_ID",
		"lark.app_secret":            "LARK_APP_SECRET",
		"database.path":              "DATABASE_PATH",
		"workflow.processing_mode":   "PROCESSING_MODE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	// Remaining sections are checked where they are consumed
	return c.ToContainerConfig().Validate()
}
