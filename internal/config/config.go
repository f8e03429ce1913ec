package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	ierr "github.com/reliabill/reliabill/internal/errors"
)

// Configuration holds every tunable for the billing reliability engine. It is
// constructed once at startup and injected into components; nothing reads
// viper after boot.
type Configuration struct {
	Deployment   DeploymentConfig   `mapstructure:"deployment"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	DynamoDB     DynamoDBConfig     `mapstructure:"dynamodb"`
	Processor    ProcessorConfig    `mapstructure:"processor"`
	Notification NotificationConfig `mapstructure:"notification"`
	Admin        AdminConfig        `mapstructure:"admin"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
}

type DeploymentConfig struct {
	Mode string `mapstructure:"mode"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type DynamoDBConfig struct {
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// ProcessorConfig configures the payment processor integration. The webhook
// secret signs inbound deliveries; API calls are bounded by Timeout and a
// timeout is treated as a declined attempt, never success.
type ProcessorConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type NotificationConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	FromAddress  string `mapstructure:"from_address"`
}

// AdminConfig guards the manual retry/dunning trigger endpoints with a shared
// secret bearer token.
type AdminConfig struct {
	APISecret string `mapstructure:"api_secret"`
}

// RetryConfig overrides the payment retry policy. Zero values fall back to
// the built-in policy (3 attempts, 24h base delay, x2 backoff, 7d cap).
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	BackoffMultiplier int           `mapstructure:"backoff_multiplier"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	GracePeriod       time.Duration `mapstructure:"grace_period"`
}

type WebhookConfig struct {
	DedupCacheTTL time.Duration `mapstructure:"dedup_cache_ttl"`
}

// NewConfig loads configuration from the environment (and a .env file when
// present) into a Configuration.
func NewConfig() (*Configuration, error) {
	// Best effort; production deployments configure via real env vars.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RELIABILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal configuration").
			Mark(ierr.ErrValidation)
	}

	return &cfg, nil
}

// GetDefaultConfig returns a configuration suitable for tests and scripts.
func GetDefaultConfig() *Configuration {
	v := viper.New()
	setDefaults(v)

	var cfg Configuration
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", "api")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("dynamodb.table_prefix", "reliabill")
	v.SetDefault("processor.timeout", 30*time.Second)
	v.SetDefault("processor.max_retries", 2)
	v.SetDefault("notification.enabled", false)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 24*time.Hour)
	v.SetDefault("retry.backoff_multiplier", 2)
	v.SetDefault("retry.max_delay", 7*24*time.Hour)
	v.SetDefault("retry.grace_period", 7*24*time.Hour)
	v.SetDefault("webhook.dedup_cache_ttl", 24*time.Hour)
}

func (c *Configuration) Validate() error {
	if c.Server.Address == "" {
		return ierr.NewError("server address is required").
			WithHint("Set RELIABILL_SERVER_ADDRESS").
			Mark(ierr.ErrValidation)
	}
	if c.Retry.MaxAttempts <= 0 {
		return ierr.NewError("retry max_attempts must be positive").
			Mark(ierr.ErrValidation)
	}
	return nil
}
