package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "coursehub/backend/libs/config"
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"PAYMENTS_HTTP_PORT"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"PAYMENTS_POSTGRES_DSN"`
}

// RedisConfig holds outcome-cache settings. Empty Addr disables the cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"PAYMENTS_REDIS_ADDR"`
	Password string `yaml:"password" env:"PAYMENTS_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"PAYMENTS_REDIS_DB"`
	TTL      int    `yaml:"ttlSeconds" env:"PAYMENTS_REDIS_TTL"`
}

// PaystackConfig holds gateway credentials. The secret key authenticates
// outbound API calls and keys the webhook body HMAC.
type PaystackConfig struct {
	SecretKey string        `yaml:"secretKey" env:"PAYSTACK_SECRET_KEY"`
	BaseURL   string        `yaml:"baseUrl" env:"PAYSTACK_BASE_URL"`
	Timeout   time.Duration `yaml:"timeout" env:"PAYSTACK_TIMEOUT"`
}

// CatalogConfig points at the course catalog collaborator.
type CatalogConfig struct {
	BaseURL string        `yaml:"baseUrl" env:"CATALOG_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"CATALOG_TIMEOUT"`
}

// AuthConfig holds the JWT verification secret shared with the auth service.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"PAYMENTS_JWT_SECRET"`
}

// Config defines payments service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Paystack PaystackConfig `yaml:"paystack"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Auth     AuthConfig     `yaml:"auth"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: "8084"},
		Redis: RedisConfig{
			TTL: 3600,
		},
		Paystack: PaystackConfig{
			Timeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			Timeout: 5 * time.Second,
		},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Paystack.SecretKey) == "" {
		return nil, errors.New("config: paystack secret key required")
	}
	if strings.TrimSpace(cfg.Catalog.BaseURL) == "" {
		return nil, errors.New("config: catalog base url required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8084"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// OutcomeTTL returns the cache ttl as duration.
func (c *Config) OutcomeTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}
