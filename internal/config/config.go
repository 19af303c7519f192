// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Intra     IntraConfig     `mapstructure:"intra"`
	Infra     InfraConfig     `mapstructure:"infra"`
	Wheels    WheelsConfig    `mapstructure:"wheels"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig lists Telegram users bootstrapped with the admin role.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// IntraConfig configures the campus API client.
type IntraConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	TokenURL            string        `mapstructure:"token_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`
	UnauthorizedBackoff time.Duration `mapstructure:"unauthorized_backoff"`
	DefaultRetryAfter   time.Duration `mapstructure:"default_retry_after"`
	TokenSafetyMargin   time.Duration `mapstructure:"token_safety_margin"`
	RateLimit           float64       `mapstructure:"rate_limit"`
	RateBurst           int           `mapstructure:"rate_burst"`
}

// InfraConfig configures the campus infrastructure webhook used by extension actions.
type InfraConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Token      string `mapstructure:"token"`
}

// WheelsConfig configures wheel definition loading and spin gating.
type WheelsConfig struct {
	Dir             string        `mapstructure:"dir"`
	Balance         bool          `mapstructure:"balance"`
	BalanceAttempts int           `mapstructure:"balance_attempts"`
	ColorThreshold  float64       `mapstructure:"color_threshold"`
	DefaultCooldown time.Duration `mapstructure:"default_cooldown"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. INTRA_CLIENT_SECRET, DATABASE_HOST
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wheel")
	v.SetDefault("database.name", "wheel")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("intra.base_url", "https://api.intra.42.fr")
	v.SetDefault("intra.token_url", "https://api.intra.42.fr/oauth/token")
	v.SetDefault("intra.request_timeout", "15s")
	v.SetDefault("intra.max_attempts", 3)
	v.SetDefault("intra.retry_backoff", "1s")
	v.SetDefault("intra.unauthorized_backoff", "500ms")
	v.SetDefault("intra.default_retry_after", "1s")
	v.SetDefault("intra.token_safety_margin", "10s")
	v.SetDefault("intra.rate_limit", 2.0)
	v.SetDefault("intra.rate_burst", 2)

	v.SetDefault("wheels.dir", "./wheels")
	v.SetDefault("wheels.balance", true)
	v.SetDefault("wheels.balance_attempts", 20)
	v.SetDefault("wheels.color_threshold", 100.0)
	v.SetDefault("wheels.default_cooldown", "24h")

	v.SetDefault("metrics.addr", ":9102")
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	if c.Intra.MaxAttempts < 1 {
		return fmt.Errorf("intra.max_attempts must be at least 1, got %d", c.Intra.MaxAttempts)
	}
	if c.Intra.RequestTimeout <= 0 {
		return fmt.Errorf("intra.request_timeout must be positive")
	}
	if c.Wheels.DefaultCooldown < 0 {
		return fmt.Errorf("wheels.default_cooldown cannot be negative")
	}
	return nil
}

// IsAdmin checks if a user ID is in the bootstrap admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
