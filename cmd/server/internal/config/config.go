package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the unified application configuration.
type Config struct {
	Server   ServerConfig
	Zoom     ZoomConfig
	Gemini   GeminiConfig
	Chatwork ChatworkConfig
	Data     DataConfig
	Log      LogConfig
	Sweep    SweepConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Env  string // dev, staging, production
	Port string
}

// ZoomConfig holds the recording-provider credentials.
// AccountID is optional; without it only self-signed JWT auth is used.
// WebhookSecret is optional; without it the webhook endpoint rejects
// all events.
type ZoomConfig struct {
	APIKey        string
	APISecret     string
	AccountID     string
	WebhookSecret string
}

// GeminiConfig holds the summarizer settings.
type GeminiConfig struct {
	APIKey     string
	Model      string
	PromptFile string // optional YAML prompt overrides
}

// ChatworkConfig holds the delivery settings.
type ChatworkConfig struct {
	APIToken      string
	DefaultRoomID string
}

// DataConfig holds filesystem locations.
type DataConfig struct {
	TempDir    string
	LedgerPath string
	UsagePath  string
	AuditDir   string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console, json
}

// SweepConfig controls the automatic processing sweep.
type SweepConfig struct {
	Interval      time.Duration
	WorkerPool    int
	TaskRetention time.Duration // terminal tasks older than this are pruned
}

// GlobalConfig is the process-wide configuration instance.
var GlobalConfig *Config

// LoadConfig reads configuration from environment variables.
// Credential values are trimmed because pasted keys frequently carry
// stray whitespace or newlines.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:  getEnv("ENV", "dev"),
			Port: getEnv("PORT", "8000"),
		},
		Zoom: ZoomConfig{
			APIKey:        strings.TrimSpace(getEnv("ZOOM_API_KEY", "")),
			APISecret:     strings.TrimSpace(getEnv("ZOOM_API_SECRET", "")),
			AccountID:     strings.TrimSpace(getEnv("ZOOM_ACCOUNT_ID", "")),
			WebhookSecret: strings.TrimSpace(getEnv("ZOOM_WEBHOOK_SECRET", "")),
		},
		Gemini: GeminiConfig{
			APIKey:     strings.TrimSpace(getEnv("GEMINI_API_KEY", "")),
			Model:      getEnv("GEMINI_MODEL_NAME", "gemini-2.5-pro"),
			PromptFile: getEnv("GEMINI_PROMPT_FILE", ""),
		},
		Chatwork: ChatworkConfig{
			APIToken:      strings.TrimSpace(getEnv("CHATWORK_API_TOKEN", "")),
			DefaultRoomID: strings.TrimSpace(getEnv("DEFAULT_CHATWORK_ROOM_ID", "")),
		},
		Data: DataConfig{
			TempDir:    getEnv("TEMP_DIR", "./temp"),
			LedgerPath: getEnv("LEDGER_PATH", "./auto_process_config.json"),
			UsagePath:  getEnv("USAGE_PATH", "./gemini_usage.json"),
			AuditDir:   getEnv("AUDIT_LOGS_DIR", "./audit_logs"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Sweep: SweepConfig{
			Interval:      getEnvDuration("SWEEP_INTERVAL", 300*time.Second),
			WorkerPool:    getEnvInt("WORKER_POOL_SIZE", 4),
			TaskRetention: getEnvDuration("TASK_RETENTION", 24*time.Hour),
		},
	}

	GlobalConfig = cfg
	return cfg, nil
}

// ValidateConfig checks the configuration and aggregates all problems
// into a single error so operators can fix everything in one pass.
func ValidateConfig(cfg *Config) error {
	var errors []string

	// 1. Provider credentials
	if cfg.Zoom.APIKey == "" {
		errors = append(errors, "ZOOM_API_KEY is required")
	}
	if cfg.Zoom.APISecret == "" {
		errors = append(errors, "ZOOM_API_SECRET is required")
	}

	// 2. Summarizer credentials
	if cfg.Gemini.APIKey == "" {
		errors = append(errors, "GEMINI_API_KEY is required")
	}

	// 3. Delivery credentials
	if cfg.Chatwork.APIToken == "" {
		errors = append(errors, "CHATWORK_API_TOKEN is required")
	}

	// 4. Port
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 5. Log level
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	// 6. Log format
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 7. Environment
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	// 8. Sweep settings
	if cfg.Sweep.Interval < time.Second {
		errors = append(errors, fmt.Sprintf("SWEEP_INTERVAL too small: %s (must be at least 1s)", cfg.Sweep.Interval))
	}
	if cfg.Sweep.WorkerPool < 1 {
		errors = append(errors, fmt.Sprintf("invalid WORKER_POOL_SIZE: %d (must be at least 1)", cfg.Sweep.WorkerPool))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment reports whether the server runs in a dev environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr returns the server listen address.
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig renders the configuration with secrets masked.
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Zoom:
    - API Key: %s
    - API Secret: %s
    - Account ID: %s
  Gemini:
    - API Key: %s
    - Model: %s
  Chatwork:
    - API Token: %s
    - Default Room: %s
  Data:
    - Temp Dir: %s
    - Ledger: %s
    - Usage: %s
    - Audit Logs: %s
  Logging:
    - Level: %s
    - Format: %s
  Sweep:
    - Interval: %s
    - Worker Pool: %d
    - Task Retention: %s`,
		c.Server.Env,
		c.Server.Port,
		maskSecret(c.Zoom.APIKey),
		maskSecret(c.Zoom.APISecret),
		maskSecret(c.Zoom.AccountID),
		maskSecret(c.Gemini.APIKey),
		c.Gemini.Model,
		maskSecret(c.Chatwork.APIToken),
		c.Chatwork.DefaultRoomID,
		c.Data.TempDir,
		c.Data.LedgerPath,
		c.Data.UsagePath,
		c.Data.AuditDir,
		c.Log.Level,
		c.Log.Format,
		c.Sweep.Interval,
		c.Sweep.WorkerPool,
		c.Sweep.TaskRetention,
	)
}

// helpers

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment variable, falling back on error.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration parses a duration environment variable. Bare integers
// are interpreted as seconds for compatibility with older deployments.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

// maskSecret redacts sensitive values for display.
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
