package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.MaxParallel)
	assert.Equal(t, 25, cfg.Parallelism())
	assert.Equal(t, "Downloads", cfg.DownloadsDirName)
	assert.Equal(t, uint(3), cfg.Transport.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.InitialBackoff)
	assert.Equal(t, "127.0.0.1:9091", cfg.Web.BindAddress)
	assert.Equal(t, "cedric", cfg.Telemetry.ServiceName)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("DOWNLOADS_DIR", dir)
	t.Setenv("SERIAL", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRANSPORT_RETRY_ATTEMPTS", "5")
	t.Setenv("WEB_BIND_ADDRESS", ":8080")
	t.Setenv("TELEMETRY_OTLP_ENDPOINT", "collector:4317")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Parallelism())
	assert.Equal(t, dir, cfg.DownloadsRoot())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, uint(5), cfg.Transport.RetryAttempts)
	assert.Equal(t, ":8080", cfg.Web.BindAddress)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadConfig_RejectsZeroParallelism(t *testing.T) {
	t.Setenv("MAX_PARALLEL", "0")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_CleanupInterval(t *testing.T) {
	tests := []struct {
		name     string
		keep     string
		interval string
		wantErr  bool
	}{
		{name: "retention disabled ignores interval", keep: "0s", interval: "0s"},
		{name: "retention with interval", keep: "24h", interval: "1h"},
		{name: "retention without interval", keep: "24h", interval: "0s", wantErr: true},
		{name: "negative interval", keep: "24h", interval: "-1m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KEEP_DOWNLOADED_FOR", tt.keep)
			t.Setenv("CLEANUP_INTERVAL", tt.interval)

			_, err := LoadConfig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestDownloadsRoot_DefaultUsesDirName(t *testing.T) {
	cfg := &Config{DownloadsDirName: "Cedric"}

	assert.Equal(t, "Cedric", filepath.Base(cfg.DownloadsRoot()))
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}
