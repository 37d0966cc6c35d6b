package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "")
	t.Setenv("PDF_RENDERER", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("STATE_BACKEND", "")
	t.Setenv("ALLOW_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gcs", cfg.Storage.Provider)
	assert.Equal(t, time.Hour, cfg.Storage.SignedURLTTL)
	assert.Equal(t, "chromium", cfg.Renderer.Backend)
	assert.Equal(t, 3, cfg.Renderer.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Renderer.ContentTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Templates.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 30, cfg.Poller.MaxAttempts)
	assert.Equal(t, "memory", cfg.State.Backend)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "MinIO")
	t.Setenv("STORAGE_SIGNED_URL_TTL", "15m")
	t.Setenv("PDF_RENDERER", "gotenberg")
	t.Setenv("PDF_MAX_ATTEMPTS", "5")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("ALLOW_ORIGINS", "https://a.example.com, https://b.example.com ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "minio", cfg.Storage.Provider)
	assert.Equal(t, 15*time.Minute, cfg.Storage.SignedURLTTL)
	assert.Equal(t, "gotenberg", cfg.Renderer.Backend)
	assert.Equal(t, 5, cfg.Renderer.MaxAttempts)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "redis", cfg.State.Backend)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowOrigins)
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"storage", "STORAGE_PROVIDER", "azure"},
		{"renderer", "PDF_RENDERER", "wkhtmltopdf"},
		{"llm", "LLM_PROVIDER", "ollama"},
		{"state", "STATE_BACKEND", "etcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestInvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("POLL_MAX_ATTEMPTS", "many")
	t.Setenv("POLL_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Poller.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Poller.Interval)
}

func TestDSN(t *testing.T) {
	tcp := DatabaseConfig{Host: "db", Port: "3306", User: "u", Password: "p", DBName: "legal"}
	assert.Equal(t, "u:p@tcp(db:3306)/legal?charset=utf8mb4&parseTime=True&loc=Local", tcp.DSN())

	sock := DatabaseConfig{Host: "/cloudsql/proj:region:inst", User: "u", Password: "p", DBName: "legal"}
	assert.Equal(t, "u:p@unix(/cloudsql/proj:region:inst)/legal?charset=utf8mb4&parseTime=True&loc=Local", sock.DSN())
}
