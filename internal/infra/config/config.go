package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Webhook retry persistence strategies.
const (
	RetryStrategyVolatile = "volatile"
	RetryStrategyFile     = "file"
	RetryStrategyKV       = "kv"
	RetryStrategySQL      = "sql"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Store        StoreConfig        `mapstructure:"store"`
	WebhookRetry WebhookRetryConfig `mapstructure:"webhook_retry"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Stripe       StripeConfig       `mapstructure:"stripe"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig holds remote key-value backend configuration.
// Leaving both URL and Address empty runs the store in fallback mode.
type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	Address          string        `mapstructure:"address"`
	Password         string        `mapstructure:"password"`
	DB               int           `mapstructure:"db"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// Enabled reports whether a remote endpoint is configured.
func (c *RedisConfig) Enabled() bool {
	return c.URL != "" || c.Address != ""
}

// StoreConfig holds dual-tier store maintenance settings.
type StoreConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// WebhookRetryConfig holds failed-webhook queue settings.
type WebhookRetryConfig struct {
	Strategy string        `mapstructure:"strategy"` // volatile, file, kv, sql
	FilePath string        `mapstructure:"file_path"`
	Interval time.Duration `mapstructure:"interval"`
}

// DatabaseConfig holds database configuration for the sql retry strategy.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// StripeConfig holds Stripe payment configuration.
type StripeConfig struct {
	SecretKey        string        `mapstructure:"secret_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
}

// AuthConfig holds API key configuration.
type AuthConfig struct {
	DefaultAPIKeys []string `mapstructure:"default_api_keys"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/vpio")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("VPIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides reads sensitive and legacy variables that do not follow
// the VPIO_ naming scheme.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if password := os.Getenv("VPIO_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if password := os.Getenv("VPIO_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Stripe.WebhookSecret = secret
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}
}

// Validate checks option combinations that cannot be expressed as defaults.
func (c *Config) Validate() error {
	switch c.WebhookRetry.Strategy {
	case RetryStrategyVolatile, RetryStrategyFile, RetryStrategyKV, RetryStrategySQL:
	default:
		return fmt.Errorf("unknown webhook_retry.strategy %q", c.WebhookRetry.Strategy)
	}
	if c.WebhookRetry.Strategy == RetryStrategyFile && c.WebhookRetry.FilePath == "" {
		return fmt.Errorf("webhook_retry.file_path is required for the file strategy")
	}
	if c.WebhookRetry.Interval <= 0 {
		return fmt.Errorf("webhook_retry.interval must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		return fmt.Errorf("store.sweep_interval must be positive")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Redis defaults
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.probe_timeout", 3*time.Second)
	v.SetDefault("redis.operation_timeout", 2*time.Second)

	// Store defaults
	v.SetDefault("store.sweep_interval", 5*time.Minute)

	// Webhook retry defaults
	v.SetDefault("webhook_retry.strategy", RetryStrategyFile)
	v.SetDefault("webhook_retry.file_path", "data/failed-webhooks.json")
	v.SetDefault("webhook_retry.interval", 5*time.Minute)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "vpio")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Stripe defaults
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.failure_threshold", 5)
	v.SetDefault("stripe.circuit_timeout", 60*time.Second)

	// Auth defaults
	v.SetDefault("auth.default_api_keys", []string{
		"vpio-test-key-1",
		"vpio-test-key-2",
		"vpio-test-key-3",
		"vpio-demo-key",
	})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.namespace", "vpio")
}
