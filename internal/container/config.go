// Package container wires the invoice reimbursement service together and
// manages the lifecycle of its stateful components.
package container

import (
	"fmt"
	"time"
)

// Config holds everything the Container needs to build the application.
// It is decoupled from the file-based config so tests can build one directly.
type Config struct {
	Server   ServerConfig
	OpenAI   OpenAIConfig
	PDF      PDFConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Report   ReportConfig
	Lark     LarkConfig
	LogLevel string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	AllowedOrigins  []string
}

// OpenAIConfig holds chat completion settings.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	PromptsPath string
}

// PDFConfig selects the text extraction engine.
type PDFConfig struct {
	Engine string
}

// StorageConfig holds workspace settings.
type StorageConfig struct {
	TempRoot string
}

// DatabaseConfig holds batch history settings. History is skipped when Enabled is false.
type DatabaseConfig struct {
	Enabled         bool
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ReportConfig holds workbook settings.
type ReportConfig struct {
	FilenamePrefix string
}

// LarkConfig holds batch notification settings. Notifications are skipped when Enabled is false.
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string
	ChatID    string
	BaseURL   string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  50 << 20,
			AllowedOrigins:  []string{"*"},
		},
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o-mini",
			Timeout: 120 * time.Second,
		},
		PDF: PDFConfig{Engine: "mupdf"},
		Database: DatabaseConfig{
			Path:         "data/batches.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Report:   ReportConfig{FilenamePrefix: "reimbursement-report"},
		LogLevel: "info",
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.OpenAI.Model == "" {
		return fmt.Errorf("openai.model is required")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when history is enabled")
	}
	if c.Lark.Enabled && c.Lark.ChatID == "" {
		return fmt.Errorf("lark.chat_id is required when notifications are enabled")
	}
	return nil
}
