package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Security SecurityConfig `mapstructure:"security"`
	Admin    AdminConfig    `mapstructure:"admin"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       string        `mapstructure:"body_limit"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
	ContactLimit       int           `mapstructure:"contact_limit"`
	ContactWindow      time.Duration `mapstructure:"contact_window"`
	EmailLimit         int           `mapstructure:"email_limit"`
	EmailWindow        time.Duration `mapstructure:"email_window"`
}

// AdminConfig holds admin gate configuration
type AdminConfig struct {
	Token      string `mapstructure:"token"`
	AllowedIPs string `mapstructure:"allowed_ips"`
}

// SMTPConfig holds outbound mail configuration
type SMTPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Secure         bool          `mapstructure:"secure"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	From           string        `mapstructure:"from"`
	Recipient      string        `mapstructure:"recipient"`
	CC             string        `mapstructure:"cc"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxMessages    int           `mapstructure:"max_messages"`
}

// StorageConfig holds file locations for records and uploads
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	PublicDir string `mapstructure:"public_dir"`
}

// RedisConfig holds the optional shared counter store
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "siteapi")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 3001)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.body_limit", "10M")
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 20)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("security.cors_allowed_origins", "http://localhost:5173")
	v.SetDefault("security.rate_limit_requests", 100)
	v.SetDefault("security.rate_limit_window", "15m")
	v.SetDefault("security.contact_limit", 5)
	v.SetDefault("security.contact_window", "1h")
	v.SetDefault("security.email_limit", 5)
	v.SetDefault("security.email_window", "1h")

	v.SetDefault("admin.token", "")
	v.SetDefault("admin.allowed_ips", "127.0.0.1,::1")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.secure", false)
	v.SetDefault("smtp.timeout", "10s")
	v.SetDefault("smtp.max_connections", 5)
	v.SetDefault("smtp.max_messages", 100)

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.public_dir", "public")

	v.SetDefault("redis.url", "")

	v.SetDefault("metrics.enabled", true)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.version", "APP_VERSION")
	v.BindEnv("app.environment", "NODE_ENV", "APP_ENV")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")
	v.BindEnv("server.shutdown_timeout", "SHUTDOWN_TIMEOUT")
	v.BindEnv("server.body_limit", "BODY_LIMIT")
	v.BindEnv("server.trust_proxy", "TRUST_PROXY")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("logger.file", "LOG_FILE")
	v.BindEnv("logger.max_size_mb", "LOG_MAX_SIZE_MB")
	v.BindEnv("logger.max_backups", "LOG_MAX_BACKUPS")
	v.BindEnv("logger.max_age_days", "LOG_MAX_AGE_DAYS")

	// Security
	v.BindEnv("security.cors_allowed_origins", "CORS_ORIGIN")
	v.BindEnv("security.rate_limit_requests", "RATE_LIMIT_MAX")
	v.BindEnv("security.rate_limit_window", "RATE_LIMIT_WINDOW")
	v.BindEnv("security.contact_limit", "CONTACT_RATE_LIMIT_MAX")
	v.BindEnv("security.contact_window", "CONTACT_RATE_LIMIT_WINDOW")
	v.BindEnv("security.email_limit", "EMAIL_RATE_LIMIT_MAX")
	v.BindEnv("security.email_window", "EMAIL_RATE_LIMIT_WINDOW")

	// Admin
	v.BindEnv("admin.token", "ADMIN_TOKEN")
	v.BindEnv("admin.allowed_ips", "ADMIN_ALLOWED_IPS")

	// SMTP
	v.BindEnv("smtp.host", "SMTP_HOST")
	v.BindEnv("smtp.port", "SMTP_PORT")
	v.BindEnv("smtp.secure", "SMTP_SECURE")
	v.BindEnv("smtp.user", "SMTP_USER")
	v.BindEnv("smtp.password", "SMTP_PASS")
	v.BindEnv("smtp.from", "SMTP_FROM")
	v.BindEnv("smtp.recipient", "RECIPIENT_EMAIL")
	v.BindEnv("smtp.cc", "CC_EMAILS")
	v.BindEnv("smtp.timeout", "SMTP_TIMEOUT")
	v.BindEnv("smtp.max_connections", "SMTP_MAX_CONNECTIONS")
	v.BindEnv("smtp.max_messages", "SMTP_MAX_MESSAGES")

	// Storage
	v.BindEnv("storage.data_dir", "DATA_DIR")
	v.BindEnv("storage.public_dir", "PUBLIC_DIR")

	// Redis
	v.BindEnv("redis.url", "REDIS_URL")

	// Metrics
	v.BindEnv("metrics.enabled", "METRICS_ENABLED")
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if cfg.Security.RateLimitRequests <= 0 || cfg.Security.ContactLimit <= 0 || cfg.Security.EmailLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	if cfg.Security.RateLimitWindow <= 0 || cfg.Security.ContactWindow <= 0 || cfg.Security.EmailWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}

	if cfg.SMTP.MaxConnections <= 0 {
		return fmt.Errorf("SMTP max connections must be positive")
	}

	if cfg.App.IsProduction() {
		if cfg.Admin.Token == "" {
			return fmt.Errorf("ADMIN_TOKEN must be set in production")
		}
		if cfg.SMTP.Host == "" || cfg.SMTP.Recipient == "" {
			return fmt.Errorf("SMTP_HOST and RECIPIENT_EMAIL must be set in production")
		}
	}

	return nil
}

// AllowedOrigins returns the configured CORS origins
func (cfg *SecurityConfig) AllowedOrigins() []string {
	return splitList(cfg.CORSAllowedOrigins)
}

// AllowedIPList returns the admin allowlist entries
func (cfg *AdminConfig) AllowedIPList() []string {
	return splitList(cfg.AllowedIPs)
}

// CCList returns the configured carbon-copy recipients
func (cfg *SMTPConfig) CCList() []string {
	return splitList(cfg.CC)
}

// Sender returns the From address, falling back to the SMTP user
func (cfg *SMTPConfig) Sender() string {
	if cfg.From != "" {
		return cfg.From
	}
	return cfg.User
}

// IsDevelopment returns true if the environment is development
func (cfg *AppConfig) IsDevelopment() bool {
	return cfg.Environment == "development"
}

// IsProduction returns true if the environment is production
func (cfg *AppConfig) IsProduction() bool {
	return cfg.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
