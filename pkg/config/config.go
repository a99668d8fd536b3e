package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort  int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// RedisURL is optional; empty keeps the principal cache in process.
	RedisURL string `env:"REDIS_URL"`

	JWTSecret         string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer         string        `env:"JWT_ISSUER" envDefault:"assettrack"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	PrincipalCacheTTL time.Duration `env:"PRINCIPAL_CACHE_TTL" envDefault:"0s"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"10"`

	CORSAllowedOrigins      []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`
	RateLimitRPS            float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst          int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
	LoginRateLimitPerMinute int      `env:"LOGIN_RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	TrustProxyHeaders       bool     `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"10m"`
	OTLPEndpoint      string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from the environment, after a best-effort .env load
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would start a misconfigured server.
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort)
	}
	if len(c.JWTSecret) < 16 && c.Environment == "production" {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters in production")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("invalid TOKEN_TTL: %s", c.TokenTTL)
	}
	if c.PrincipalCacheTTL < 0 {
		return fmt.Errorf("invalid PRINCIPAL_CACHE_TTL: %s", c.PrincipalCacheTTL)
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("invalid RECONCILE_INTERVAL: %s", c.ReconcileInterval)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
