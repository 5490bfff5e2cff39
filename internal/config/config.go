package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/italolelis/cedric/internal/storage/disk"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DownloadsDir      string        `envconfig:"DOWNLOADS_DIR"`
	DownloadsDirName  string        `envconfig:"DOWNLOADS_DIR_NAME" default:"Downloads"`
	MaxParallel       int           `envconfig:"MAX_PARALLEL" default:"25"`
	Serial            bool          `envconfig:"SERIAL" default:"false"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath            string        `envconfig:"DB_PATH" default:"downloads.db"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"0s"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	PutioToken        string        `envconfig:"PUTIO_TOKEN"`
	ManifestPath      string        `envconfig:"MANIFEST_PATH"`

	Transport struct {
		RetryAttempts    uint          `split_words:"true" default:"3"`
		InitialBackoff   time.Duration `split_words:"true" default:"500ms"`
		MaxBackoff       time.Duration `split_words:"true" default:"30s"`
		ProgressInterval int64         `split_words:"true" default:"1048576"`
		ResponseTimeout  time.Duration `split_words:"true" default:"30s"`
		StagingDir       string        `split_words:"true"`
	}

	Web struct {
		Enabled         bool          `default:"true"`
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}

	Telemetry struct {
		Enabled        bool          `default:"true"`
		ServiceName    string        `split_words:"true" default:"cedric"`
		ServiceVersion string        `split_words:"true" default:"dev"`
		OTLPEndpoint   string        `envconfig:"OTLP_ENDPOINT"`
		OTLPInsecure   bool          `envconfig:"OTLP_INSECURE" default:"false"`
		ExportInterval time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.MaxParallel < 1 {
		return nil, fmt.Errorf("MAX_PARALLEL must be at least 1, got %d", cfg.MaxParallel)
	}

	if cfg.KeepDownloadedFor > 0 && cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive when KEEP_DOWNLOADED_FOR is set, got %s", cfg.CleanupInterval)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Parallelism is the number of transfers allowed to run at once.
func (c *Config) Parallelism() int {
	if c.Serial {
		return 1
	}

	return c.MaxParallel
}

// DownloadsRoot is DOWNLOADS_DIR when set, otherwise DOWNLOADS_DIR_NAME under the
// user's download directory.
func (c *Config) DownloadsRoot() string {
	if c.DownloadsDir != "" {
		return c.DownloadsDir
	}

	return disk.DefaultRoot(c.DownloadsDirName)
}
