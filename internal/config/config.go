// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile        = ".env"
	defaultMediaDir       = "media"
	defaultLanguage       = "ru"
	defaultServiceName    = "navigator-bot"
	defaultStateTTL       = 30 * time.Minute
	defaultPointsCacheTTL = 10 * time.Minute
)

// Telemetry exporter names accepted in TELEMETRY_EXPORTER.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds all configuration for the application.
type Config struct {
	TelegramBotToken   string
	DatabaseURL        string
	GeminiAPIKey       string
	LogLevel           string
	LogFormat          string
	AdminUserIDs       []int64
	AdminUsernames     []string
	SkipPendingUpdates bool
	MediaDir           string
	DefaultLanguage    string
	StateTTL           time.Duration
	PointsCacheTTL     time.Duration
	TelemetryExporter  string
	OTLPEndpoint       string
	ServiceName        string
}

// EnvFilePath returns the dotenv file to load: ENV_FILE or ".env".
func EnvFilePath() string {
	if path := strings.TrimSpace(os.Getenv("ENV_FILE")); path != "" {
		return path
	}
	return defaultEnvFile
}

// Load reads configuration from environment variables.
// Values from the dotenv file never override variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load(EnvFilePath())

	cfg := &Config{
		TelegramBotToken:   strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		LogFormat:          os.Getenv("LOG_FORMAT"),
		SkipPendingUpdates: true,
		MediaDir:           defaultMediaDir,
		DefaultLanguage:    defaultLanguage,
		StateTTL:           defaultStateTTL,
		PointsCacheTTL:     defaultPointsCacheTTL,
		TelemetryExporter:  ExporterNone,
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:        defaultServiceName,
	}

	if v := os.Getenv("SKIP_PENDING_UPDATES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SkipPendingUpdates = b
		}
	}

	if dir := strings.TrimSpace(os.Getenv("MEDIA_DIR")); dir != "" {
		cfg.MediaDir = dir
	}

	if lang := strings.ToLower(strings.TrimSpace(os.Getenv("DEFAULT_LANGUAGE"))); lang != "" {
		cfg.DefaultLanguage = lang
	}

	if name := strings.TrimSpace(os.Getenv("SERVICE_NAME")); name != "" {
		cfg.ServiceName = name
	}

	cfg.StateTTL = parseDuration(os.Getenv("STATE_TTL"), defaultStateTTL)
	cfg.PointsCacheTTL = parseDuration(os.Getenv("POINTS_CACHE_TTL"), defaultPointsCacheTTL)

	if exp := strings.ToLower(strings.TrimSpace(os.Getenv("TELEMETRY_EXPORTER"))); exp != "" {
		cfg.TelemetryExporter = exp
	}

	for idStr := range strings.SplitSeq(os.Getenv("ADMIN_USER_IDS"), ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}

		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		cfg.AdminUserIDs = append(cfg.AdminUserIDs, id)
	}

	for username := range strings.SplitSeq(os.Getenv("ADMIN_USERNAMES"), ",") {
		username = strings.TrimPrefix(strings.TrimSpace(username), "@")
		if username == "" {
			continue
		}
		cfg.AdminUsernames = append(cfg.AdminUsernames, username)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseDuration returns def for empty, malformed or non-positive values.
func parseDuration(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.TelegramBotToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	switch c.TelemetryExporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLPGRPC, ExporterOTLPHTTP:
		if c.OTLPEndpoint == "" {
			errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required for OTLP exporters")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown TELEMETRY_EXPORTER %q", c.TelemetryExporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsAdmin checks if a Telegram user ID or username is an administrator.
func (c *Config) IsAdmin(userID int64, username string) bool {
	if slices.Contains(c.AdminUserIDs, userID) {
		return true
	}

	if username != "" {
		username = strings.TrimPrefix(username, "@")
		for _, admin := range c.AdminUsernames {
			if strings.EqualFold(admin, username) {
				return true
			}
		}
	}

	return false
}
