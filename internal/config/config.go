package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dukerupert/crmdesk/internal/subscription"
)

// EnvPrefix is prepended to every environment variable, so the key db_path
// is read from CRMDESK_DB_PATH.
const EnvPrefix = "CRMDESK"

type Config struct {
	Port      string `mapstructure:"port"`
	DBPath    string `mapstructure:"db_path"`
	BaseURL   string `mapstructure:"base_url"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// AllowedOrigins is a comma-separated list of extra origins for /ws.
	AllowedOrigins string `mapstructure:"allowed_origins"`

	CronSecret       string `mapstructure:"cron_secret"`
	CheckSchedule    string `mapstructure:"check_schedule"`
	SchedulerEnabled bool   `mapstructure:"scheduler_enabled"`

	AdminAPIURL string `mapstructure:"admin_api_url"`
	JWTSecret   string `mapstructure:"jwt_secret"`

	PostmarkToken string `mapstructure:"postmark_token"`
	FromEmail     string `mapstructure:"from_email"`

	StripeSecretKey     string `mapstructure:"stripe_secret_key"`
	StripeWebhookSecret string `mapstructure:"stripe_webhook_secret"`

	Concurrency    int           `mapstructure:"concurrency"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RateLimit      int           `mapstructure:"rate_limit"`

	NotifyWindowDays int    `mapstructure:"notify_window_days"`
	UrgentWindowDays int    `mapstructure:"urgent_window_days"`
	DefaultGraceDays int    `mapstructure:"default_grace_days"`
	GracePeriods     string `mapstructure:"grace_periods"`
	HealthyDays      int    `mapstructure:"healthy_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "crmdesk.db")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("allowed_origins", "")

	v.SetDefault("cron_secret", "")
	v.SetDefault("check_schedule", "0 9 * * *")
	v.SetDefault("scheduler_enabled", true)

	v.SetDefault("admin_api_url", "")
	v.SetDefault("jwt_secret", "")

	v.SetDefault("postmark_token", "")
	v.SetDefault("from_email", "billing@crmdesk.local")

	v.SetDefault("stripe_secret_key", "")
	v.SetDefault("stripe_webhook_secret", "")

	v.SetDefault("concurrency", 4)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_base_delay", 500*time.Millisecond)
	v.SetDefault("rate_limit", 60)

	p := subscription.DefaultPolicy()
	v.SetDefault("notify_window_days", p.NotifyWindowDays)
	v.SetDefault("urgent_window_days", p.UrgentWindowDays)
	v.SetDefault("default_grace_days", p.DefaultGraceDays)
	v.SetDefault("grace_periods", "enterprise=14,business=10")
	v.SetDefault("healthy_days", p.HealthyDays)
}

// Load reads configuration from defaults, an optional config file, a .env
// file in the working directory and CRMDESK_* environment variables, in
// increasing order of precedence.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("retry_base_delay must be positive, got %s", c.RetryBaseDelay)
	}
	if c.AdminAPIURL != "" && c.JWTSecret == "" {
		return errors.New("jwt_secret is required when admin_api_url is set")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy builds the evaluator policy from the configured business constants.
func (c *Config) Policy() (subscription.Policy, error) {
	grace, err := subscription.ParseGraceDays(c.GracePeriods)
	if err != nil {
		return subscription.Policy{}, fmt.Errorf("grace_periods: %w", err)
	}
	p := subscription.Policy{
		NotifyWindowDays: c.NotifyWindowDays,
		UrgentWindowDays: c.UrgentWindowDays,
		DefaultGraceDays: c.DefaultGraceDays,
		GraceDays:        grace,
		HealthyDays:      c.HealthyDays,
	}
	if err := p.Validate(); err != nil {
		return subscription.Policy{}, fmt.Errorf("policy: %w", err)
	}
	return p, nil
}

// Origins splits AllowedOrigins into websocket origin patterns.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
