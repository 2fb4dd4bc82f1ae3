// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetTimeoutSweepInterval() time.Duration
	GetEndOfDayHourSG() int
}

// WebhookAuthConfig provides settings for authenticating inbound webhook calls.
type WebhookAuthConfig interface {
	GetWebhookAPIKey() string
	GetWebhookRatePerSecond() float64
	GetWebhookRateBurst() int
}

// ReconcileConfig provides settings for the reconciliation engine.
type ReconcileConfig interface {
	GetLiveThresholdHours() float64
	GetSweepThresholdHours() float64
	GetBatchConcurrency() int
	GetSlotSearchDays() int
}

// EligibilityConfig provides settings for the external eligibility checker.
type EligibilityConfig interface {
	GetEligibilityURL() string
	GetEligibilityAPIKey() string
	GetEligibilityTimeout() time.Duration
}

// NotifyConfig provides settings for the outbound notification webhook.
type NotifyConfig interface {
	GetNotifyURL() string
	GetNotifyAPIKey() string
	GetNotifyTimeout() time.Duration
}

// =============================================================================
// Concrete Config
// =============================================================================

// Config is the concrete configuration implementing all config interfaces.
type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	TimeoutSweepInterval time.Duration
	EndOfDayHourSG       int

	WebhookAPIKey        string
	WebhookRatePerSecond float64
	WebhookRateBurst     int

	LiveThresholdHours  float64
	SweepThresholdHours float64
	BatchConcurrency    int
	SlotSearchDays      int

	EligibilityURL     string
	EligibilityAPIKey  string
	EligibilityTimeout time.Duration

	NotifyURL     string
	NotifyAPIKey  string
	NotifyTimeout time.Duration
}

// Load reads configuration from the environment (and .env in development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     getEnvInt("ASYNQ_CONCURRENCY", 10),
		TimeoutSweepInterval: mustDuration(getEnv("TIMEOUT_SWEEP_INTERVAL", "30m")),
		EndOfDayHourSG:       getEnvInt("END_OF_DAY_HOUR_SG", 22),

		WebhookAPIKey:        getEnv("WEBHOOK_API_KEY", ""),
		WebhookRatePerSecond: getEnvFloat("WEBHOOK_RATE_PER_SECOND", 5),
		WebhookRateBurst:     getEnvInt("WEBHOOK_RATE_BURST", 10),

		LiveThresholdHours:  getEnvFloat("LIVE_THRESHOLD_HOURS", 3),
		SweepThresholdHours: getEnvFloat("SWEEP_THRESHOLD_HOURS", 2.5),
		BatchConcurrency:    getEnvInt("BATCH_CONCURRENCY", 4),
		SlotSearchDays:      getEnvInt("SLOT_SEARCH_DAYS", 5),

		EligibilityURL:     getEnv("ELIGIBILITY_URL", ""),
		EligibilityAPIKey:  getEnv("ELIGIBILITY_API_KEY", ""),
		EligibilityTimeout: mustDuration(getEnv("ELIGIBILITY_TIMEOUT", "10s")),

		NotifyURL:     getEnv("NOTIFY_URL", ""),
		NotifyAPIKey:  getEnv("NOTIFY_API_KEY", ""),
		NotifyTimeout: mustDuration(getEnv("NOTIFY_TIMEOUT", "10s")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WebhookAPIKey == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("WEBHOOK_API_KEY is required outside development")
	}
	if cfg.LiveThresholdHours <= 0 || cfg.SweepThresholdHours <= 0 {
		return nil, fmt.Errorf("threshold hours must be positive")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string        { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool      { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string   { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool    { return c.CORSAllowCreds }
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) GetEndOfDayHourSG() int     { return c.EndOfDayHourSG }
func (c *Config) GetWebhookAPIKey() string   { return c.WebhookAPIKey }
func (c *Config) GetWebhookRateBurst() int   { return c.WebhookRateBurst }
func (c *Config) GetBatchConcurrency() int   { return c.BatchConcurrency }
func (c *Config) GetSlotSearchDays() int     { return c.SlotSearchDays }
func (c *Config) GetEligibilityURL() string  { return c.EligibilityURL }
func (c *Config) GetNotifyURL() string       { return c.NotifyURL }
func (c *Config) GetNotifyAPIKey() string    { return c.NotifyAPIKey }
func (c *Config) GetEligibilityAPIKey() string { return c.EligibilityAPIKey }

func (c *Config) GetTimeoutSweepInterval() time.Duration { return c.TimeoutSweepInterval }
func (c *Config) GetWebhookRatePerSecond() float64       { return c.WebhookRatePerSecond }
func (c *Config) GetLiveThresholdHours() float64         { return c.LiveThresholdHours }
func (c *Config) GetSweepThresholdHours() float64        { return c.SweepThresholdHours }
func (c *Config) GetEligibilityTimeout() time.Duration   { return c.EligibilityTimeout }
func (c *Config) GetNotifyTimeout() time.Duration        { return c.NotifyTimeout }

// Helpers.

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
