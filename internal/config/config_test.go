package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pezzottify/catalog-engine/internal/constants"
)

func validConfig() *Config {
	return &Config{
		MediaDir:               "/data/media",
		ScratchDir:             "/data/scratch",
		TranscoderPath:         "ffmpeg",
		TargetBitrate:          192,
		BitrateTolerance:       16,
		AutoMatchThreshold:     0.85,
		MaxFileSize:            "1GB",
		MaxRetries:             3,
		InitialBackoffSecs:     60,
		MaxBackoffSecs:         600,
		BackoffMultiplier:      2.0,
		MaxConcurrentDownloads: 4,
		LogLevel:               "info",
	}
}

// TestConfigStruct tests the Config struct fields.
func TestConfigStruct(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ListenAddr:             ":8099",
		MediaDir:               "/data/media",
		ScratchDir:             "/data/scratch",
		TranscoderPath:         "ffmpeg",
		TargetBitrate:          192,
		BitrateTolerance:       16,
		AutoMatchThreshold:     0.85,
		MaxFileSize:            "1GB",
		MaxAlbumsPerHour:       20,
		UserMaxQueueSize:       25,
		MaxRetries:             3,
		InitialBackoffSecs:     60,
		MaxBackoffSecs:         600,
		BackoffMultiplier:      2.0,
		MaxConcurrentDownloads: 4,
		LogLevel:               "info",
	}

	assert.Equal(t, ":8099", cfg.ListenAddr)
	assert.Equal(t, "/data/media", cfg.MediaDir)
	assert.Equal(t, "/data/scratch", cfg.ScratchDir)
	assert.Equal(t, "ffmpeg", cfg.TranscoderPath)
	assert.Equal(t, int64(192), cfg.TargetBitrate)
	assert.Equal(t, int64(16), cfg.BitrateTolerance)
	assert.InDelta(t, 0.85, cfg.AutoMatchThreshold, 0.0001)
	assert.Equal(t, "1GB", cfg.MaxFileSize)
	assert.Equal(t, int64(20), cfg.MaxAlbumsPerHour)
	assert.Equal(t, int64(25), cfg.UserMaxQueueSize)
	assert.Equal(t, int64(3), cfg.MaxRetries)
	assert.Equal(t, int64(60), cfg.InitialBackoffSecs)
	assert.Equal(t, int64(600), cfg.MaxBackoffSecs)
	assert.InDelta(t, 2.0, cfg.BackoffMultiplier, 0.0001)
	assert.Equal(t, int64(4), cfg.MaxConcurrentDownloads)
	assert.Equal(t, "info", cfg.LogLevel)
}

// TestConstants tests the constants.
func TestConstants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1024*1024, DefaultMaxLogLength)
}

// TestLoadConfig tests the LoadConfig function.
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		configFilename string
		configContent  string
		expectError    bool
		expectedError  string
	}{
		{
			name:           "valid config file",
			configFilename: "valid_config.yaml",
			configContent: `
media_dir: "/data/media"
scratch_dir: "/data/scratch"
transcoder_path: "ffmpeg"
target_bitrate: 192
bitrate_tolerance: 16
auto_match_threshold: 0.85
max_file_size: "1GB"
max_retries: 3
initial_backoff_secs: 60
max_backoff_secs: 600
backoff_multiplier: 2.0
max_concurrent_downloads: 4
log_level: "info"
`,
			expectError: false,
		},
		{
			name:           "non-existent file",
			configFilename: "non_existent.yaml",
			expectError:    true,
			expectedError:  "failed to read config from file",
		},
		{
			name:           "invalid yaml",
			configFilename: "invalid.yaml",
			configContent: `
invalid: yaml: content: [unclosed
`,
			expectError:   true,
			expectedError: "failed to read config from file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				tempDir    = t.TempDir()
				configPath string
			)

			switch {
			case tt.configContent != "":
				configPath = filepath.Join(tempDir, tt.configFilename)
				err := os.WriteFile(configPath, []byte(tt.configContent), constants.DefaultFilePermissions)

				require.NoError(t, err)
			case tt.configFilename != "":
				configPath = filepath.Join(tempDir, tt.configFilename)
			default:
				configPath = filepath.Join(tempDir, "non_existent.yaml")
			}

			cfg, err := LoadConfig(configPath)

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, cfg)
				assert.Equal(t, "/data/media", cfg.MediaDir)
				assert.Equal(t, int64(192), cfg.TargetBitrate)
			}
		})
	}
}

// TestValidateConfig tests the ValidateConfig function.
func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "empty media dir",
			mutate:      func(c *Config) { c.MediaDir = "" },
			expectError: true,
			errorMsg:    "media_dir cannot be empty",
		},
		{
			name:        "empty scratch dir",
			mutate:      func(c *Config) { c.ScratchDir = "" },
			expectError: true,
			errorMsg:    "scratch_dir cannot be empty",
		},
		{
			name:        "empty transcoder path",
			mutate:      func(c *Config) { c.TranscoderPath = "  " },
			expectError: true,
			errorMsg:    "transcoder_path cannot be empty",
		},
		{
			name:        "invalid target bitrate",
			mutate:      func(c *Config) { c.TargetBitrate = 0 },
			expectError: true,
			errorMsg:    "target_bitrate must be positive",
		},
		{
			name:        "invalid bitrate tolerance",
			mutate:      func(c *Config) { c.BitrateTolerance = -1 },
			expectError: true,
			errorMsg:    "bitrate_tolerance must be non-negative",
		},
		{
			name:        "auto match threshold too low",
			mutate:      func(c *Config) { c.AutoMatchThreshold = -0.1 },
			expectError: true,
			errorMsg:    "auto_match_threshold must be between 0 and 1",
		},
		{
			name:        "auto match threshold too high",
			mutate:      func(c *Config) { c.AutoMatchThreshold = 1.1 },
			expectError: true,
			errorMsg:    "auto_match_threshold must be between 0 and 1",
		},
		{
			name:        "invalid max file size",
			mutate:      func(c *Config) { c.MaxFileSize = "not-a-size" },
			expectError: true,
			errorMsg:    "failed to parse max file size",
		},
		{
			name:        "negative max retries",
			mutate:      func(c *Config) { c.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries must be non-negative",
		},
		{
			name:        "invalid initial backoff",
			mutate:      func(c *Config) { c.InitialBackoffSecs = 0 },
			expectError: true,
			errorMsg:    "initial_backoff_secs must be positive",
		},
		{
			name:        "max backoff below initial",
			mutate:      func(c *Config) { c.MaxBackoffSecs = 10 },
			expectError: true,
			errorMsg:    "max_backoff_secs must be >= initial_backoff_secs",
		},
		{
			name:        "invalid backoff multiplier",
			mutate:      func(c *Config) { c.BackoffMultiplier = 1 },
			expectError: true,
			errorMsg:    "backoff_multiplier must be greater than 1",
		},
		{
			name:        "invalid concurrent downloads",
			mutate:      func(c *Config) { c.MaxConcurrentDownloads = 0 },
			expectError: true,
			errorMsg:    "max concurrent downloads must be a positive integer",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.LogLevel = "verbose" },
			expectError: true,
			errorMsg:    "unknown log level:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				require.NoError(t, err)
				assert.Equal(t, zapcore.InfoLevel, cfg.ParsedLogLevel)
				assert.Equal(t, 60*time.Second, cfg.ParsedInitialBackoff)
				assert.Equal(t, 600*time.Second, cfg.ParsedMaxBackoff)
			}
		})
	}
}

// TestValidateConfig_MaxFileSize tests max_file_size parsing.
func TestValidateConfig_MaxFileSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		maxFileSize   string
		expectedBytes int64
	}{
		{name: "empty size", maxFileSize: "", expectedBytes: 0},
		{name: "1KB", maxFileSize: "1KB", expectedBytes: 1000},
		{name: "1MB", maxFileSize: "1MB", expectedBytes: 1000000},
		{name: "1GB", maxFileSize: "1GB", expectedBytes: 1000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.MaxFileSize = tt.maxFileSize

			err := ValidateConfig(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedBytes, cfg.ParsedMaxFileSize)
		})
	}
}
