// Package config loads the typed application configuration from viper.
package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // budget.timezone must resolve on hosts without zoneinfo

	"github.com/Veraticus/finbot/internal/common"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FINBOT_SERVER_ADDR.
const EnvPrefix = "FINBOT"

// Config is the complete runtime configuration.
type Config struct {
	Budget    BudgetConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Messenger MessengerConfig
	Logging   LoggingConfig
	LLM       LLMConfig
	Scheduler SchedulerConfig
}

// DatabaseConfig locates the ledger.
type DatabaseConfig struct {
	Path string
}

// ServerConfig configures the webhook listener.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// MessengerConfig holds the Messenger Platform credentials.
type MessengerConfig struct {
	AccessToken string
	VerifyToken string
	AppSecret   string
	APIVersion  string
	BaseURL     string
}

// LLMConfig configures the intent resolver.
type LLMConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	RateLimit  int
	CacheTTL   time.Duration
}

// SchedulerConfig sets the background job cadence.
type SchedulerConfig struct {
	BillingInterval time.Duration
	ReportDay       int // day of month the monthly report is sent
	ReportHour      int // local hour on ReportDay
}

// BudgetConfig holds time zone settings for weeks and months.
type BudgetConfig struct {
	Location *time.Location
	Timezone string
}

// LoggingConfig mirrors the --log-level and --log-format flags.
type LoggingConfig struct {
	Level  string
	Format string
}

// legacyEnv maps config keys to the bare variables older deployments set.
var legacyEnv = map[string]string{
	"llm.api_key":            "OPENAI_API_KEY",
	"messenger.access_token": "PAGE_ACCESS_TOKEN",
	"messenger.verify_token": "VERIFY_TOKEN",
	"messenger.app_secret":   "APP_SECRET",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("messenger.api_version", "v18.0")
	v.SetDefault("messenger.base_url", "https://graph.facebook.com")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("llm.cache_ttl", 5*time.Minute)
	v.SetDefault("scheduler.billing_interval", time.Hour)
	v.SetDefault("scheduler.report_day", 1)
	v.SetDefault("scheduler.report_hour", 9)
	v.SetDefault("budget.timezone", "Local")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load builds a Config from v. Secrets fall back to their legacy
// environment variables when not configured. Load does not require any
// secret; commands call the Require helpers for what they need.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	get := func(key string) string {
		if s := v.GetString(key); s != "" {
			return s
		}
		if env, ok := legacyEnv[key]; ok {
			return os.Getenv(env)
		}
		return ""
	}

	cfg := Config{
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Messenger: MessengerConfig{
			AccessToken: get("messenger.access_token"),
			VerifyToken: get("messenger.verify_token"),
			AppSecret:   get("messenger.app_secret"),
			APIVersion:  v.GetString("messenger.api_version"),
			BaseURL:     v.GetString("messenger.base_url"),
		},
		LLM: LLMConfig{
			APIKey:     get("llm.api_key"),
			Model:      v.GetString("llm.model"),
			BaseURL:    v.GetString("llm.base_url"),
			MaxRetries: v.GetInt("llm.max_retries"),
			RateLimit:  v.GetInt("llm.rate_limit"),
			CacheTTL:   v.GetDuration("llm.cache_ttl"),
		},
		Scheduler: SchedulerConfig{
			BillingInterval: v.GetDuration("scheduler.billing_interval"),
			ReportDay:       v.GetInt("scheduler.report_day"),
			ReportHour:      v.GetInt("scheduler.report_hour"),
		},
		Budget: BudgetConfig{
			Timezone: v.GetString("budget.timezone"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	loc, err := time.LoadLocation(cfg.Budget.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("%w: budget.timezone %q: %w", common.ErrInvalidConfig, cfg.Budget.Timezone, err)
	}
	cfg.Budget.Location = loc

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. Missing secrets are not reported here.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is empty", common.ErrInvalidConfig)
	}
	if c.Scheduler.BillingInterval < time.Minute {
		return fmt.Errorf("%w: scheduler.billing_interval must be at least 1m, got %s", common.ErrInvalidConfig, c.Scheduler.BillingInterval)
	}
	if c.Scheduler.ReportDay < 1 || c.Scheduler.ReportDay > 28 {
		return fmt.Errorf("%w: scheduler.report_day must be between 1 and 28, got %d", common.ErrInvalidConfig, c.Scheduler.ReportDay)
	}
	if c.Scheduler.ReportHour < 0 || c.Scheduler.ReportHour > 23 {
		return fmt.Errorf("%w: scheduler.report_hour must be between 0 and 23, got %d", common.ErrInvalidConfig, c.Scheduler.ReportHour)
	}
	if c.LLM.MaxRetries < 1 {
		return fmt.Errorf("%w: llm.max_retries must be positive", common.ErrInvalidConfig)
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// RequireMessenger reports missing Messenger credentials.
func (c *Config) RequireMessenger() error {
	if c.Messenger.AccessToken == "" {
		return fmt.Errorf("%w: messenger.access_token (or PAGE_ACCESS_TOKEN)", common.ErrMissingConfig)
	}
	if c.Messenger.VerifyToken == "" {
		return fmt.Errorf("%w: messenger.verify_token (or VERIFY_TOKEN)", common.ErrMissingConfig)
	}
	return nil
}

// RequireLLM reports a missing model API key.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: llm.api_key (or OPENAI_API_KEY)", common.ErrMissingConfig)
	}
	return nil
}
