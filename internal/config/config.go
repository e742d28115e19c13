package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/refund-approval/internal/application/proration"
	"github.com/garyjia/refund-approval/internal/infrastructure/retry"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Orders     OrdersConfig     `mapstructure:"orders"`
	Retry      retry.Policy     `mapstructure:"retry"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Proration  ProrationConfig  `mapstructure:"proration"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID             string `mapstructure:"app_id"`
	AppSecret         string `mapstructure:"app_secret"`
	VerificationToken string `mapstructure:"verification_token"`
	// EncryptKey enables callback signature checks and body decryption
	EncryptKey string `mapstructure:"encrypt_key"`
	BaseURL    string `mapstructure:"base_url"`
	// ChannelID is the chat workflow messages are posted to
	ChannelID string `mapstructure:"channel_id"`
	// ActionTimeout bounds the handling of one card action
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	// EventMode selects how card actions arrive: "webhook" or "websocket"
	EventMode string `mapstructure:"event_mode"`
}

// Card action delivery modes
const (
	EventModeWebhook   = "webhook"
	EventModeWebSocket = "websocket"
)

// OrdersConfig holds the order API configuration
type OrdersConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIToken string        `mapstructure:"api_token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DedupConfig holds submission dedup configuration
type DedupConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ProrationConfig holds the refund schedule
type ProrationConfig struct {
	ProcessingFeePercent float64          `mapstructure:"processing_fee_percent"`
	Timezone             string           `mapstructure:"timezone"`
	Tiers                []proration.Tier `mapstructure:"tiers"`
}

// IdentityConfig holds identity lookup configuration
type IdentityConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

// DispatcherConfig holds event dispatcher configuration
type DispatcherConfig struct {
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// JournalConfig holds action journal configuration
type JournalConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	// ArchiveDir receives an xlsx of entries before they are pruned.
	// Empty disables archiving.
	ArchiveDir string `mapstructure:"archive_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
	Sampled    bool   `mapstructure:"sampled"`
}

// Load loads configuration from an optional .env file, a YAML file and
// environment variables, in increasing precedence. A missing envFile or
// configPath is not an error.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("REFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Lark defaults
	v.SetDefault("lark.action_timeout", 60*time.Second)
	v.SetDefault("lark.event_mode", EventModeWebhook)

	// Order API defaults
	v.SetDefault("orders.timeout", 15*time.Second)

	// Retry defaults
	def := retry.DefaultPolicy()
	v.SetDefault("retry.max_attempts", def.MaxAttempts)
	v.SetDefault("retry.base_delay", def.BaseDelay)
	v.SetDefault("retry.multiplier", def.Multiplier)
	v.SetDefault("retry.max_delay", def.MaxDelay)

	v.SetDefault("dedup.ttl", 300*time.Second)
	v.SetDefault("dedup.sweep_interval", time.Minute)

	v.SetDefault("proration.processing_fee_percent", 5.0)
	v.SetDefault("proration.timezone", "America/New_York")

	v.SetDefault("identity.concurrency", 8)
	v.SetDefault("identity.max_attempts", 3)

	v.SetDefault("dispatcher.handler_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/refunds.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("journal.retention", 90*24*time.Hour)
	v.SetDefault("journal.prune_interval", 6*time.Hour)
	v.SetDefault("journal.archive_dir", "data/journal-archive")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds credentials to their conventional variable names
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.verification_token", "LARK_VERIFICATION_TOKEN")
	_ = v.BindEnv("lark.encrypt_key", "LARK_ENCRYPT_KEY")
	_ = v.BindEnv("lark.channel_id", "LARK_CHANNEL_ID")
	_ = v.BindEnv("orders.base_url", "ORDERS_BASE_URL")
	_ = v.BindEnv("orders.api_token", "ORDERS_API_TOKEN")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Lark.AppID == "" {
		return fmt.Errorf("lark.app_id is required")
	}
	if c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required")
	}
	if c.Lark.ChannelID == "" {
		return fmt.Errorf("lark.channel_id is required")
	}
	if c.Lark.EventMode != EventModeWebhook && c.Lark.EventMode != EventModeWebSocket {
		return fmt.Errorf("lark.event_mode must be %q or %q", EventModeWebhook, EventModeWebSocket)
	}

	if c.Orders.BaseURL == "" {
		return fmt.Errorf("orders.base_url is required")
	}
	if u, err := url.Parse(c.Orders.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("orders.base_url must be an absolute URL")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Identity.MaxAttempts < 1 {
		return fmt.Errorf("identity.max_attempts must be at least 1")
	}
	if c.Dedup.TTL <= 0 {
		return fmt.Errorf("dedup.ttl must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := proration.NewCalculator(c.ProrationSettings(time.UTC)); err != nil {
		return fmt.Errorf("proration: %w", err)
	}

	return nil
}

// Location returns the configured business time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Proration.Timezone)
	if err != nil {
		return nil, fmt.Errorf("proration.timezone: %w", err)
	}
	return loc, nil
}

// ProrationSettings converts the proration section for the calculator
func (c *Config) ProrationSettings(loc *time.Location) proration.Config {
	return proration.Config{
		Tiers:                c.Proration.Tiers,
		ProcessingFeePercent: c.Proration.ProcessingFeePercent,
		Location:             loc,
	}
}

// IdentityRetry is the retry policy for identity lookups
func (c *Config) IdentityRetry() retry.Policy {
	p := c.Retry
	p.MaxAttempts = c.Identity.MaxAttempts
	return p
}
