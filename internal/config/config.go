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
	Server   ServerConfig   `mapstructure:"server"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	PDF      PDFConfig      `mapstructure:"pdf"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Report   ReportConfig   `mapstructure:"report"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// OpenAIConfig holds settings for the OpenAI-compatible chat endpoint
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// PDFConfig selects the text extraction engine
type PDFConfig struct {
	Engine string `mapstructure:"engine"`
}

// StorageConfig holds per-batch workspace settings
type StorageConfig struct {
	TempRoot string `mapstructure:"temp_root"` // empty means the OS temp dir
}

// DatabaseConfig holds batch history configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ReportConfig holds XLSX report settings
type ReportConfig struct {
	FilenamePrefix string `mapstructure:"filename_prefix"`
}

// LarkConfig holds batch notification settings
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
	BaseURL   string `mapstructure:"base_url"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configuration from an optional YAML file, a .env file and the
// environment, in increasing order of precedence. A missing file at
// configPath is not an error.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isMissingFile(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding ones already set
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", 50<<20)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// OpenAI defaults; zero temperature/max_tokens defer to the prompt file
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.temperature", 0)
	v.SetDefault("openai.max_tokens", 0)
	v.SetDefault("openai.timeout", 120*time.Second)
	v.SetDefault("openai.prompts_path", "")

	v.SetDefault("pdf.engine", "mupdf")
	v.SetDefault("storage.temp_root", "")

	// History defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.path", "data/batches.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	v.SetDefault("report.filename_prefix", "reimbursement-report")

	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.chat_id", "")
	v.SetDefault("lark.base_url", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration. Every key can
// also be set as INVOICE_<SECTION>_<KEY>.
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("invoice")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Sensitive credentials from environment
	_ = v.BindEnv("openai.api_key", "INVOICE_OPENAI_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("openai.base_url", "INVOICE_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("lark.app_id", "INVOICE_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "INVOICE_LARK_APP_SECRET", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.chat_id", "INVOICE_LARK_CHAT_ID", "LARK_CHAT_ID")
}

// Validate validates the configuration. A missing OpenAI key is allowed;
// the analyzer declines invoices until one is provided.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes cannot be negative")
	}

	switch c.PDF.Engine {
	case "mupdf", "native":
	default:
		return fmt.Errorf("pdf.engine must be mupdf or native, got %q", c.PDF.Engine)
	}

	if c.OpenAI.Model == "" {
		return fmt.Errorf("openai.model is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when database.enabled is true")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark.enabled is true")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark.enabled is true")
		}
		if c.Lark.ChatID == "" {
			return fmt.Errorf("lark.chat_id is required when lark.enabled is true")
		}
	}

	return nil
}
