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
	GetDatabaseMaxConns() int
	GetDatabaseMinConns() int
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// WebhookConfig provides settings for inbound webhook authentication and dedupe.
type WebhookConfig interface {
	GetWebhookSecret() string
	GetWebhookDedupEnabled() bool
	GetWebhookDedupTTL() time.Duration
}

// SchedulerConfig provides Redis and asynq settings for background work.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// CompletionConfig provides settings for the OpenAI-compatible completion provider.
type CompletionConfig interface {
	GetCompletionAPIKey() string
	GetCompletionBaseURL() string
	GetCompletionModel() string
	GetClassifyTimeout() time.Duration
	GetReplyTimeout() time.Duration
}

// CRMConfig provides settings for the CRM sync adapter.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIKey() string
	GetCRMReplyFieldKey() string
	GetCRMTimeout() time.Duration
	IsCRMEnabled() bool
}

// AgentDefaultsConfig provides the operator profile used when no
// agent_settings row exists.
type AgentDefaultsConfig interface {
	GetAgentName() string
	GetCompanyName() string
	GetServiceLabel() string
	GetSchedulingLink() string
	GetWebsite() string
	GetOpeningHours() string
	GetPhoneNumber() string
	GetBusinessTimezone() string
	GetBusinessOpenHour() int
	GetBusinessCloseHour() int
	GetSettingsCacheTTL() time.Duration
}

// ConversationConfig provides tuning knobs for the orchestrator.
type ConversationConfig interface {
	GetHistoryLimit() int
	GetDefaultChannel() string
}

// EmailConfig provides SMTP settings for operator escalation alerts.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetAlertRecipient() string
	IsEmailEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	CORSAllowAll        bool
	CORSOrigins         []string
	WebhookSecret       string
	WebhookDedupEnabled bool
	WebhookDedupTTL     time.Duration
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	CompletionAPIKey    string
	CompletionBaseURL   string
	CompletionModel     string
	ClassifyTimeout     time.Duration
	ReplyTimeout        time.Duration
	CRMBaseURL          string
	CRMAPIKey           string
	CRMReplyFieldKey    string
	CRMTimeout          time.Duration
	AgentName           string
	CompanyName         string
	ServiceLabel        string
	SchedulingLink      string
	Website             string
	OpeningHours        string
	PhoneNumber         string
	BusinessTimezone    string
	BusinessOpenHour    int
	BusinessCloseHour   int
	SettingsCacheTTL    time.Duration
	HistoryLimit        int
	DefaultChannel      string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
	AlertRecipient      string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int { return c.DatabaseMaxConns }
func (c *Config) GetDatabaseMinConns() int { return c.DatabaseMinConns }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// WebhookConfig implementation
func (c *Config) GetWebhookSecret() string          { return c.WebhookSecret }
func (c *Config) GetWebhookDedupEnabled() bool      { return c.WebhookDedupEnabled }
func (c *Config) GetWebhookDedupTTL() time.Duration { return c.WebhookDedupTTL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// CompletionConfig implementation
func (c *Config) GetCompletionAPIKey() string       { return c.CompletionAPIKey }
func (c *Config) GetCompletionBaseURL() string      { return c.CompletionBaseURL }
func (c *Config) GetCompletionModel() string        { return c.CompletionModel }
func (c *Config) GetClassifyTimeout() time.Duration { return c.ClassifyTimeout }
func (c *Config) GetReplyTimeout() time.Duration    { return c.ReplyTimeout }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string        { return c.CRMBaseURL }
func (c *Config) GetCRMAPIKey() string         { return c.CRMAPIKey }
func (c *Config) GetCRMReplyFieldKey() string  { return c.CRMReplyFieldKey }
func (c *Config) GetCRMTimeout() time.Duration { return c.CRMTimeout }
func (c *Config) IsCRMEnabled() bool           { return c.CRMBaseURL != "" }

// AgentDefaultsConfig implementation
func (c *Config) GetAgentName() string               { return c.AgentName }
func (c *Config) GetCompanyName() string             { return c.CompanyName }
func (c *Config) GetServiceLabel() string            { return c.ServiceLabel }
func (c *Config) GetSchedulingLink() string          { return c.SchedulingLink }
func (c *Config) GetWebsite() string                 { return c.Website }
func (c *Config) GetOpeningHours() string            { return c.OpeningHours }
func (c *Config) GetPhoneNumber() string             { return c.PhoneNumber }
func (c *Config) GetBusinessTimezone() string        { return c.BusinessTimezone }
func (c *Config) GetBusinessOpenHour() int           { return c.BusinessOpenHour }
func (c *Config) GetBusinessCloseHour() int          { return c.BusinessCloseHour }
func (c *Config) GetSettingsCacheTTL() time.Duration { return c.SettingsCacheTTL }

// ConversationConfig implementation
func (c *Config) GetHistoryLimit() int      { return c.HistoryLimit }
func (c *Config) GetDefaultChannel() string { return c.DefaultChannel }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetAlertRecipient() string   { return c.AlertRecipient }
func (c *Config) IsEmailEnabled() bool {
	return c.SMTPHost != "" && c.EmailFromAddress != "" && c.AlertRecipient != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    mustInt(getEnv("DATABASE_MAX_CONNS", "25")),
		DatabaseMinConns:    mustInt(getEnv("DATABASE_MIN_CONNS", "2")),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		WebhookSecret:       getEnv("WEBHOOK_SECRET", ""),
		WebhookDedupEnabled: strings.EqualFold(getEnv("WEBHOOK_DEDUP_ENABLED", "false"), "true"),
		WebhookDedupTTL:     mustDuration(getEnv("WEBHOOK_DEDUP_TTL", "2m")),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CompletionAPIKey:    getEnv("COMPLETION_API_KEY", ""),
		CompletionBaseURL:   getEnv("COMPLETION_BASE_URL", "https://api.openai.com/v1"),
		CompletionModel:     getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		ClassifyTimeout:     mustDuration(getEnv("CLASSIFY_TIMEOUT", "5s")),
		ReplyTimeout:        mustDuration(getEnv("REPLY_TIMEOUT", "30s")),
		CRMBaseURL:          getEnv("CRM_BASE_URL", ""),
		CRMAPIKey:           getEnv("CRM_API_KEY", ""),
		CRMReplyFieldKey:    getEnv("CRM_REPLY_FIELD_KEY", "ai_reply"),
		CRMTimeout:          mustDuration(getEnv("CRM_TIMEOUT", "10s")),
		AgentName:           getEnv("AGENT_NAME", "Sam"),
		CompanyName:         getEnv("COMPANY_NAME", ""),
		ServiceLabel:        getEnv("SERVICE_LABEL", ""),
		SchedulingLink:      getEnv("SCHEDULING_LINK", ""),
		Website:             getEnv("WEBSITE", ""),
		OpeningHours:        getEnv("OPENING_HOURS", "Monday to Friday, 9am to 5pm"),
		PhoneNumber:         getEnv("PHONE_NUMBER", ""),
		BusinessTimezone:    getEnv("BUSINESS_TIMEZONE", "Europe/London"),
		BusinessOpenHour:    mustInt(getEnv("BUSINESS_OPEN_HOUR", "9")),
		BusinessCloseHour:   mustInt(getEnv("BUSINESS_CLOSE_HOUR", "17")),
		SettingsCacheTTL:    mustDuration(getEnv("SETTINGS_CACHE_TTL", "1m")),
		HistoryLimit:        mustInt(getEnv("HISTORY_LIMIT", "20")),
		DefaultChannel:      getEnv("DEFAULT_CHANNEL", "sms"),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Engagement Engine"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		AlertRecipient:      getEnv("ALERT_RECIPIENT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.CompletionAPIKey == "" {
		return nil, fmt.Errorf("COMPLETION_API_KEY is required")
	}
	if cfg.WebhookDedupEnabled && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when WEBHOOK_DEDUP_ENABLED is true")
	}
	if cfg.BusinessOpenHour < 0 || cfg.BusinessCloseHour > 24 || cfg.BusinessOpenHour >= cfg.BusinessCloseHour {
		return nil, fmt.Errorf("BUSINESS_OPEN_HOUR must be before BUSINESS_CLOSE_HOUR")
	}
	if _, err := time.LoadLocation(cfg.BusinessTimezone); err != nil {
		return nil, fmt.Errorf("BUSINESS_TIMEZONE is invalid: %w", err)
	}
	if cfg.DatabaseMaxConns < 1 {
		cfg.DatabaseMaxConns = 25
	}
	if cfg.DatabaseMinConns < 0 || cfg.DatabaseMinConns > cfg.DatabaseMaxConns {
		cfg.DatabaseMinConns = 0
	}
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = 20
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
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
