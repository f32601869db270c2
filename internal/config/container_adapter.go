package config

import (
	"github.com/garyjia/invoice-reimbursement/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
			MaxUploadBytes:  c.Server.MaxUploadBytes,
			AllowedOrigins:  c.Server.AllowedOrigins,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:      c.OpenAI.APIKey,
			Model:       c.OpenAI.Model,
			BaseURL:     c.OpenAI.BaseURL,
			Temperature: c.OpenAI.Temperature,
			MaxTokens:   c.OpenAI.MaxTokens,
			Timeout:     c.OpenAI.Timeout,
			PromptsPath: c.OpenAI.PromptsPath,
		},
		PDF:     container.PDFConfig{Engine: c.PDF.Engine},
		Storage: container.StorageConfig{TempRoot: c.Storage.TempRoot},
		Database: container.DatabaseConfig{
			Enabled:         c.Database.Enabled,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Report: container.ReportConfig{FilenamePrefix: c.Report.FilenamePrefix},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			ChatID:    c.Lark.ChatID,
			BaseURL:   c.Lark.BaseURL,
		},
		LogLevel: c.Logger.Level,
	}
}
