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
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "GEMINI_API_KEY", "INVOICE_OPENAI_API_KEY", "OPENAI_BASE_URL",
		"INVOICE_OPENAI_MODEL", "INVOICE_PDF_ENGINE", "INVOICE_SERVER_PORT",
		"LARK_APP_ID", "LARK_APP_SECRET", "LARK_CHAT_ID",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, int64(50<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "mupdf", cfg.PDF.Engine)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 120*time.Second, cfg.OpenAI.Timeout)
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Lark.Enabled)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_FileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9090
  max_upload_bytes: 1024
openai:
  model: gemini-2.0-flash
  base_url: https://generativelanguage.googleapis.com/v1beta/openai/
  temperature: 0.1
pdf:
  engine: native
database:
  enabled: true
  path: /tmp/history.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(1024), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "gemini-2.0-flash", cfg.OpenAI.Model)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/openai/", cfg.OpenAI.BaseURL)
	assert.InDelta(t, 0.1, cfg.OpenAI.Temperature, 1e-6)
	assert.Equal(t, "native", cfg.PDF.Engine)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "/tmp/history.db", cfg.Database.Path)
}

func TestLoad_APIKeyFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gem-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gem-key", cfg.OpenAI.APIKey)

	t.Setenv("OPENAI_API_KEY", "openai-key")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai-key", cfg.OpenAI.APIKey)
}

func TestLoad_PrefixedEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("INVOICE_OPENAI_MODEL", "gpt-4o")
	path := writeConfig(t, "openai:\n  model: gpt-4o-mini\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 8000},
			OpenAI: OpenAIConfig{Model: "gpt-4o-mini"},
			PDF:    PDFConfig{Engine: "mupdf"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid without api key", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"negative upload limit", func(c *Config) { c.Server.MaxUploadBytes = -1 }, "max_upload_bytes"},
		{"unknown engine", func(c *Config) { c.PDF.Engine = "ocr" }, "pdf.engine"},
		{"missing model", func(c *Config) { c.OpenAI.Model = "" }, "openai.model"},
		{"history without path", func(c *Config) { c.Database.Enabled = true }, "database.path"},
		{"lark without chat", func(c *Config) {
			c.Lark = LarkConfig{Enabled: true, AppID: "cli_x", AppSecret: "s"}
		}, "lark.chat_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
