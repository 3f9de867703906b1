// Package config resolves client configuration from defaults, an optional
// YAML file, a .env file, and environment variables, in that order of
// increasing precedence. Command-line flags are applied on top by cmd/.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvAPIBaseURL       = "MENTOR_API_BASE_URL"
	EnvMaxUploadMB      = "MENTOR_MAX_UPLOAD_MB"
	EnvAllowedTypes     = "MENTOR_ALLOWED_TYPES"
	EnvPollInterval     = "MENTOR_POLL_INTERVAL"
	EnvRequestTimeout   = "MENTOR_REQUEST_TIMEOUT"
	EnvTransferTimeout  = "MENTOR_TRANSFER_TIMEOUT"
	EnvUploadAttempts   = "MENTOR_UPLOAD_ATTEMPTS"
	EnvUploadRetryDelay = "MENTOR_UPLOAD_RETRY_DELAY"
	EnvStateDir         = "MENTOR_STATE_DIR"
	EnvArchiveBucket    = "MENTOR_ARCHIVE_BUCKET"
	EnvArchivePrefix    = "MENTOR_ARCHIVE_PREFIX"
	EnvAccessToken      = "MENTOR_ACCESS_TOKEN"
	EnvRefreshToken     = "MENTOR_REFRESH_TOKEN"
	EnvSupabaseURL      = "MENTOR_SUPABASE_URL"
	EnvSupabaseAnonKey  = "MENTOR_SUPABASE_ANON_KEY"
	EnvSSMTokenParam    = "MENTOR_SSM_TOKEN_PARAM"
)

// Defaults.
const (
	DefaultAPIBaseURL       = "http://localhost:8000"
	DefaultMaxUploadMB      = 500
	DefaultPollInterval     = 3000 * time.Millisecond
	DefaultRequestTimeout   = 30 * time.Second
	DefaultTransferTimeout  = 30 * time.Minute
	DefaultUploadAttempts   = 3
	DefaultUploadRetryDelay = 1 * time.Second
	DefaultArchivePrefix    = "mentor-metrics/"

	stateDirName = ".mentor-metrics"
)

// DefaultAllowedTypes are the video MIME types the backend accepts.
var DefaultAllowedTypes = []string{"video/mp4", "video/webm", "video/quicktime"}

// Config is the fully resolved client configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Upload  UploadConfig  `yaml:"upload"`
	Polling PollingConfig `yaml:"polling"`
	Auth    AuthConfig    `yaml:"auth"`
	Archive ArchiveConfig `yaml:"archive"`

	// StateDir holds the cached user id and the optional GPG credentials file.
	StateDir string `yaml:"state_dir"`

	// Source is the YAML file that was loaded, empty when none.
	Source string `yaml:"-"`
}

// APIConfig describes the backend endpoint.
type APIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	TransferTimeout time.Duration `yaml:"transfer_timeout"`
}

// UploadConfig holds upload validation and retry settings.
type UploadConfig struct {
	// MaxSizeMB is the single size ceiling for uploads. Deployments have
	// disagreed on the value (500 vs 50), so it is never hard-coded elsewhere.
	MaxSizeMB    int64         `yaml:"max_size_mb"`
	AllowedTypes []string      `yaml:"allowed_types"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// PollingConfig holds status polling settings.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// AuthConfig holds bearer token sources. Secrets may be set here but are
// normally supplied through the environment.
type AuthConfig struct {
	AccessToken     string `yaml:"access_token"`
	RefreshToken    string `yaml:"refresh_token"`
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`
	SSMTokenParam   string `yaml:"ssm_token_param"`
}

// ArchiveConfig controls optional S3 archival of downloaded exports.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Upload.MaxSizeMB * 1024 * 1024
}

// APIRoot returns the base URL of the REST API (base URL + "/api").
func (c *Config) APIRoot() string {
	return strings.TrimRight(c.API.BaseURL, "/") + "/api"
}

// ArchiveEnabled reports whether S3 archival is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Bucket != ""
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:         DefaultAPIBaseURL,
			RequestTimeout:  DefaultRequestTimeout,
			TransferTimeout: DefaultTransferTimeout,
		},
		Upload: UploadConfig{
			MaxSizeMB:    DefaultMaxUploadMB,
			AllowedTypes: append([]string(nil), DefaultAllowedTypes...),
			MaxAttempts:  DefaultUploadAttempts,
			RetryDelay:   DefaultUploadRetryDelay,
		},
		Polling: PollingConfig{Interval: DefaultPollInterval},
		Archive: ArchiveConfig{Prefix: DefaultArchivePrefix},
	}
}

// Load resolves configuration. path names an optional YAML file; an empty
// path skips the file. A .env file in the working directory is loaded if
// present; variables already set in the environment are not overridden.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("Ignoring unreadable .env file")
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.StateDir = filepath.Join(home, stateDirName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays values from a YAML file onto cfg.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.Source = path
	return nil
}

// applyEnv overlays values from the environment via getenv.
func (c *Config) applyEnv(getenv func(string) string) error {
	setString(&c.API.BaseURL, getenv(EnvAPIBaseURL))
	setString(&c.StateDir, getenv(EnvStateDir))
	setString(&c.Archive.Bucket, getenv(EnvArchiveBucket))
	setString(&c.Archive.Prefix, getenv(EnvArchivePrefix))
	setString(&c.Auth.AccessToken, getenv(EnvAccessToken))
	setString(&c.Auth.RefreshToken, getenv(EnvRefreshToken))
	setString(&c.Auth.SupabaseURL, getenv(EnvSupabaseURL))
	setString(&c.Auth.SupabaseAnonKey, getenv(EnvSupabaseAnonKey))
	setString(&c.Auth.SSMTokenParam, getenv(EnvSSMTokenParam))

	if v := getenv(EnvAllowedTypes); v != "" {
		var types []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		c.Upload.AllowedTypes = types
	}

	if v := getenv(EnvMaxUploadMB); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxUploadMB, v, err)
		}
		c.Upload.MaxSizeMB = n
	}

	if v := getenv(EnvUploadAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvUploadAttempts, v, err)
		}
		c.Upload.MaxAttempts = n
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvPollInterval, &c.Polling.Interval},
		{EnvRequestTimeout, &c.API.RequestTimeout},
		{EnvTransferTimeout, &c.API.TransferTimeout},
		{EnvUploadRetryDelay, &c.Upload.RetryDelay},
	}
	for _, d := range durations {
		v := getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.env, v, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Validate checks that the resolved values are usable.
func (c *Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return fmt.Errorf("api base URL is required")
	case c.Upload.MaxSizeMB <= 0:
		return fmt.Errorf("max upload size must be positive, got %d MB", c.Upload.MaxSizeMB)
	case len(c.Upload.AllowedTypes) == 0:
		return fmt.Errorf("at least one allowed MIME type is required")
	case c.Upload.MaxAttempts < 1:
		return fmt.Errorf("upload attempts must be at least 1, got %d", c.Upload.MaxAttempts)
	case c.Polling.Interval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", c.Polling.Interval)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseDuration accepts Go duration strings ("3s") and bare integers,
// which are read as milliseconds to match POLLING_INTERVAL_MS style values.
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
