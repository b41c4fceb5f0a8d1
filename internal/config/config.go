// Package config loads server configuration from the environment and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the server.
// Environment variables override YAML values. Secrets only come from the environment.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port         string        `yaml:"port" env:"PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"60s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"30s"`
}

// DatabaseConfig selects the store driver. DATABASE_URL wins over the discrete PG* fields.
type DatabaseConfig struct {
	Driver     string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	URL        string `yaml:"-" env:"DATABASE_URL"`
	Host       string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port       int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User       string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password   string `yaml:"-" env:"DB_PASSWORD"`
	Name       string `yaml:"name" env:"DB_NAME" env-default:"bloodboard"`
	SSLMode    string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"bloodboard.db"`
	Migrations bool   `yaml:"migrations" env:"MIGRATIONS" env-default:"false"`
}

// AuthConfig configures the identity provider and the session cookie.
type AuthConfig struct {
	// Provider is "local" (built-in users table) or "gotrue" (hosted auth server).
	Provider       string `yaml:"provider" env:"AUTH_PROVIDER" env-default:"local"`
	GoTrueURL      string `yaml:"gotrue_url" env:"GOTRUE_URL"`
	AnonKey        string `yaml:"-" env:"GOTRUE_ANON_KEY"`
	ServiceRoleKey string `yaml:"-" env:"GOTRUE_SERVICE_ROLE_KEY"`
	JWTSecret      string `yaml:"-" env:"JWT_SECRET"`
	JWKSURL        string `yaml:"jwks_url" env:"JWKS_URL"`
	SessionSecret  string `yaml:"-" env:"SESSION_SECRET"`
	SiteURL        string `yaml:"site_url" env:"SITE_URL" env-default:"http://localhost:8080"`
	// RequireEmailConfirmation makes the local provider hold new accounts until a code is verified.
	RequireEmailConfirmation bool `yaml:"require_email_confirmation" env:"REQUIRE_EMAIL_CONFIRMATION" env-default:"false"`
}

// RedisConfig enables the Redis change feed and cache. An empty Addr keeps both in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Load reads config.yaml when present, then applies environment overrides.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Auth.Provider {
	case "local":
		if c.Auth.JWTSecret == "" {
			return errors.New("JWT_SECRET is required for the local auth provider")
		}
	case "gotrue":
		if c.Auth.GoTrueURL == "" || c.Auth.AnonKey == "" {
			return errors.New("GOTRUE_URL and GOTRUE_ANON_KEY are required for the gotrue auth provider")
		}
		if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
			return errors.New("JWT_SECRET or JWKS_URL is required to verify gotrue tokens")
		}
	default:
		return fmt.Errorf("unsupported AUTH_PROVIDER %q", c.Auth.Provider)
	}
	if c.Auth.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// MaskedDSN hides the password so the DSN can be logged.
func (d *DatabaseConfig) MaskedDSN() string {
	dsn := d.DSN()
	if d.Password != "" {
		dsn = strings.ReplaceAll(dsn, d.Password, "****")
	}
	return dsn
}

// RedisEnabled reports whether a Redis server is configured.
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }
