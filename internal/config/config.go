package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/pezzottify/catalog-engine/internal/logger"
	"github.com/pezzottify/catalog-engine/internal/utils"
)

// Config holds all engine configuration settings.
type Config struct {
	// ListenAddr is where the notifier's HTTP server listens; it upgrades /ws requests to WebSocket connections.
	ListenAddr string `mapstructure:"listen_addr"`

	// MediaDir is the root of the canonical audio/image output tree.
	MediaDir string `mapstructure:"media_dir"`
	// ScratchDir is the root of per-ingestion-job scratch directories.
	ScratchDir string `mapstructure:"scratch_dir"`
	// QueueDBPath is the sqlite file backing the download queue store.
	QueueDBPath string `mapstructure:"queue_db_path"`
	// IngestionDBPath is the sqlite file backing the ingestion store.
	IngestionDBPath string `mapstructure:"ingestion_db_path"`
	// CatalogDBPath is the sqlite file backing the local catalog store the
	// missing-files watchdog scans.
	CatalogDBPath string `mapstructure:"catalog_db_path"`

	// DownloaderBaseURL is the base URL of the external downloader API (C6 §6).
	DownloaderBaseURL string `mapstructure:"downloader_base_url"`
	// DownloaderAuthToken authenticates requests to the external downloader API.
	DownloaderAuthToken string `mapstructure:"downloader_auth_token"`
	// DownloaderRetryAttempts is the number of attempts for transient downloader failures.
	DownloaderRetryAttempts int64 `mapstructure:"downloader_retry_attempts"`

	// SearchBaseURL is the base URL of the search-index collaborator used for
	// album/artist candidate lookups during general album identification.
	SearchBaseURL string `mapstructure:"search_base_url"`

	// TranscoderPath is the path to the external audio probe/transcode tool.
	TranscoderPath string `mapstructure:"transcoder_path"`
	// TargetBitrate is the canonical OGG Vorbis conversion bitrate in kbps.
	TargetBitrate int64 `mapstructure:"target_bitrate"`
	// BitrateTolerance is the +/- kbps window treated as NoConversionNeeded.
	BitrateTolerance int64 `mapstructure:"bitrate_tolerance"`
	// AutoMatchThreshold is the minimum weighted score for an automatic album match.
	AutoMatchThreshold float64 `mapstructure:"auto_match_threshold"`
	// MaxFileSize caps a single uploaded file, e.g. "500MB".
	MaxFileSize string `mapstructure:"max_file_size"`

	// MaxAlbumsPerHour caps global completed-download throughput per hour.
	MaxAlbumsPerHour int64 `mapstructure:"max_albums_per_hour"`
	// MaxAlbumsPerDay caps global completed-download throughput per day.
	MaxAlbumsPerDay int64 `mapstructure:"max_albums_per_day"`
	// UserMaxRequestsPerDay caps per-user request submissions per day.
	UserMaxRequestsPerDay int64 `mapstructure:"user_max_requests_per_day"`
	// UserMaxQueueSize caps a user's simultaneous in-queue items.
	UserMaxQueueSize int64 `mapstructure:"user_max_queue_size"`

	// MaxRetries is the number of retry attempts before a queue item is marked Failed.
	MaxRetries int64 `mapstructure:"max_retries"`
	// InitialBackoffSecs is the first retry delay.
	InitialBackoffSecs int64 `mapstructure:"initial_backoff_secs"`
	// MaxBackoffSecs caps the retry delay.
	MaxBackoffSecs int64 `mapstructure:"max_backoff_secs"`
	// BackoffMultiplier is the exponential backoff growth factor.
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`

	// MaxConcurrentDownloads must be positive. The download processing loop
	// does not read it and handles one queue item at a time.
	MaxConcurrentDownloads int64 `mapstructure:"max_concurrent_downloads"`

	// StaleInProgressThresholdSecs is how long an item may sit InProgress
	// before the cleanup job treats it as abandoned and reclaims it.
	StaleInProgressThresholdSecs int64 `mapstructure:"stale_in_progress_threshold_secs"`
	// IngestionRetentionSecs is how long a terminal-state ingestion job survives before cleanup.
	IngestionRetentionSecs int64 `mapstructure:"ingestion_retention_secs"`
	// AuditRetentionDays is how long audit entries survive before cleanup.
	AuditRetentionDays int64 `mapstructure:"audit_retention_days"`

	// SchedulerProcessInterval is the cron spec for the process-next job.
	SchedulerProcessInterval string `mapstructure:"scheduler_process_interval"`
	// SchedulerRetryInterval is the cron spec for the retry-promotion job.
	SchedulerRetryInterval string `mapstructure:"scheduler_retry_interval"`
	// SchedulerWatchdogInterval is the cron spec for the watchdog job.
	SchedulerWatchdogInterval string `mapstructure:"scheduler_watchdog_interval"`
	// SchedulerCleanupInterval is the cron spec for the cleanup job.
	SchedulerCleanupInterval string `mapstructure:"scheduler_cleanup_interval"`

	// LogLevel specifies the logging verbosity level.
	LogLevel string `mapstructure:"log_level"`

	// ParsedMaxFileSize is the parsed max upload file size in bytes.
	ParsedMaxFileSize int64
	// ParsedLogLevel is the parsed zap log level.
	ParsedLogLevel zapcore.Level
	// ParsedInitialBackoff is the parsed initial retry backoff.
	ParsedInitialBackoff time.Duration
	// ParsedMaxBackoff is the parsed max retry backoff.
	ParsedMaxBackoff time.Duration
}

const (
	// DefaultConfigFilename is the default name of the configuration file.
	DefaultConfigFilename = ".catalog-engine.yaml"

	// DefaultMaxLogLength is the default maximum size (in bytes) of a logged
	// HTTP/GraphQL request or response dump.
	DefaultMaxLogLength = 1 * 1024 * 1024 // 1 MB
)

// Static error definitions for better error handling.
var (
	// ErrInvalidTargetBitrate indicates target_bitrate must be positive.
	ErrInvalidTargetBitrate = errors.New("target_bitrate must be positive")
	// ErrInvalidBitrateTolerance indicates bitrate_tolerance must be non-negative.
	ErrInvalidBitrateTolerance = errors.New("bitrate_tolerance must be non-negative")
	// ErrInvalidAutoMatchThreshold indicates auto_match_threshold must be in [0,1].
	ErrInvalidAutoMatchThreshold = errors.New("auto_match_threshold must be between 0 and 1")
	// ErrEmptyTranscoderPath indicates transcoder_path is required.
	ErrEmptyTranscoderPath = errors.New("transcoder_path cannot be empty")
	// ErrEmptyMediaDir indicates media_dir is required.
	ErrEmptyMediaDir = errors.New("media_dir cannot be empty")
	// ErrEmptyScratchDir indicates scratch_dir is required.
	ErrEmptyScratchDir = errors.New("scratch_dir cannot be empty")
	// ErrInvalidMaxRetries indicates max_retries must be non-negative.
	ErrInvalidMaxRetries = errors.New("max_retries must be non-negative")
	// ErrInvalidInitialBackoff indicates initial_backoff_secs must be positive.
	ErrInvalidInitialBackoff = errors.New("initial_backoff_secs must be positive")
	// ErrInvalidMaxBackoff indicates max_backoff_secs must be >= initial_backoff_secs.
	ErrInvalidMaxBackoff = errors.New("max_backoff_secs must be >= initial_backoff_secs")
	// ErrInvalidBackoffMultiplier indicates backoff_multiplier must be > 1.
	ErrInvalidBackoffMultiplier = errors.New("backoff_multiplier must be greater than 1")
	// ErrInvalidConcurrentDownloads indicates max_concurrent_downloads must be a positive integer.
	ErrInvalidConcurrentDownloads = errors.New("max concurrent downloads must be a positive integer")
	// ErrUnknownLogLevel indicates the log level is not recognized.
	ErrUnknownLogLevel = errors.New("unknown log level")
)

// LoadConfig loads configuration settings from a YAML file.
func LoadConfig(configFilename string) (*Config, error) {
	if configFilename == "" {
		configFilename = DefaultConfigFilename
	}

	viper.SetConfigFile(configFilename)
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults populates viper with defaults for every key absent from the
// config file, so a file that sets only some keys still produces a fully
// populated Config.
func setDefaults() {
	viper.SetDefault("listen_addr", ":8099")
	viper.SetDefault("media_dir", "./media")
	viper.SetDefault("scratch_dir", "./scratch")
	viper.SetDefault("queue_db_path", "./queue.db")
	viper.SetDefault("ingestion_db_path", "./ingestion.db")
	viper.SetDefault("catalog_db_path", "./catalog.db")
	viper.SetDefault("downloader_base_url", "http://localhost:9000")
	viper.SetDefault("downloader_auth_token", "")
	viper.SetDefault("downloader_retry_attempts", 3)
	viper.SetDefault("search_base_url", "http://localhost:9200")
	viper.SetDefault("transcoder_path", "ffmpeg")
	viper.SetDefault("target_bitrate", 192)
	viper.SetDefault("bitrate_tolerance", 16)
	viper.SetDefault("auto_match_threshold", 0.85)
	viper.SetDefault("max_file_size", "1GB")
	viper.SetDefault("max_albums_per_hour", 20)
	viper.SetDefault("max_albums_per_day", 200)
	viper.SetDefault("user_max_requests_per_day", 50)
	viper.SetDefault("user_max_queue_size", 25)
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("initial_backoff_secs", 60)
	viper.SetDefault("max_backoff_secs", 600)
	viper.SetDefault("backoff_multiplier", 2.0)
	viper.SetDefault("max_concurrent_downloads", 4)
	viper.SetDefault("stale_in_progress_threshold_secs", 1800)
	viper.SetDefault("ingestion_retention_secs", 7*24*3600)
	viper.SetDefault("audit_retention_days", 30)
	viper.SetDefault("scheduler_process_interval", "@every 2s")
	viper.SetDefault("scheduler_retry_interval", "@every 30s")
	viper.SetDefault("scheduler_watchdog_interval", "@every 1h")
	viper.SetDefault("scheduler_cleanup_interval", "@every 6h")
	viper.SetDefault("log_level", "info")
}

// ValidateConfig checks the configuration for validity and sets derived fields.
//
//nolint:funlen,gocognit,cyclop // Validation functions naturally have high complexity and length due to sequential checks.
func ValidateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.MediaDir) == "" {
		return ErrEmptyMediaDir
	}

	if strings.TrimSpace(cfg.ScratchDir) == "" {
		return ErrEmptyScratchDir
	}

	if strings.TrimSpace(cfg.TranscoderPath) == "" {
		return ErrEmptyTranscoderPath
	}

	if cfg.TargetBitrate <= 0 {
		return ErrInvalidTargetBitrate
	}

	if cfg.BitrateTolerance < 0 {
		return ErrInvalidBitrateTolerance
	}

	if cfg.AutoMatchThreshold < 0 || cfg.AutoMatchThreshold > 1 {
		return ErrInvalidAutoMatchThreshold
	}

	maxFileSize := strings.TrimSpace(cfg.MaxFileSize)
	if maxFileSize != "" {
		parsed, err := humanize.ParseBytes(maxFileSize)
		if err != nil {
			return fmt.Errorf("failed to parse max file size: %w", err)
		}

		cfg.ParsedMaxFileSize = utils.SafeUint64ToInt64(parsed)
	}

	if cfg.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if cfg.InitialBackoffSecs <= 0 {
		return ErrInvalidInitialBackoff
	}

	cfg.ParsedInitialBackoff = time.Duration(cfg.InitialBackoffSecs) * time.Second

	if cfg.MaxBackoffSecs < cfg.InitialBackoffSecs {
		return ErrInvalidMaxBackoff
	}

	cfg.ParsedMaxBackoff = time.Duration(cfg.MaxBackoffSecs) * time.Second

	if cfg.BackoffMultiplier <= 1 {
		return ErrInvalidBackoffMultiplier
	}

	if cfg.MaxConcurrentDownloads <= 0 {
		return ErrInvalidConcurrentDownloads
	}

	parsedLogLevel, isLogLevelCorrect := logger.ParseLogLevel(cfg.LogLevel)
	if !isLogLevelCorrect {
		return fmt.Errorf("%w: '%s'", ErrUnknownLogLevel, cfg.LogLevel)
	}

	cfg.ParsedLogLevel = parsedLogLevel

	return nil
}
