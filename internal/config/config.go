package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	LogLevel         string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string   `mapstructure:"MIGRATIONS_DIR"`
	AuthIssuer       string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWTSecret    string   `mapstructure:"AUTH_JWT_SECRET"`
	MFAIssuer        string   `mapstructure:"MFA_ISSUER"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit        string   `mapstructure:"BODY_LIMIT"`
	ImportBodyLimit  string   `mapstructure:"IMPORT_BODY_LIMIT"`
	StrictValidation bool     `mapstructure:"STRICT_VALIDATION"`
	MetricsEnabled   bool     `mapstructure:"METRICS_ENABLED"`
	MinioEndpoint    string   `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey   string   `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey   string   `mapstructure:"MINIO_SECRET_KEY"`
	MinioUseSSL      bool     `mapstructure:"MINIO_USE_SSL"`
	ExportBucket     string   `mapstructure:"EXPORT_BUCKET"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWT_SECRET", "MFA_ISSUER",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "IMPORT_BODY_LIMIT",
	"STRICT_VALIDATION", "METRICS_ENABLED",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_USE_SSL", "EXPORT_BUCKET",
}

// Load reads .env (when present) and the environment. It does not validate;
// commands call Validate and RequireDatabase as they need.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("MFA_ISSUER", "Trial Portal")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("IMPORT_BODY_LIMIT", "20M")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("EXPORT_BUCKET", "portal-exports")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ArchiveEnabled reports whether exports are archived to MinIO.
func (c *Config) ArchiveEnabled() bool {
	return c.MinioEndpoint != ""
}

// RequireDatabase fails when DATABASE_URL is unset.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// Validate checks that the configuration is safe to serve with. Outside
// development a JWT secret of at least 32 bytes is required, and MinIO
// settings must be complete when an endpoint is set.
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging or production, got %q", c.Env)
	}
	if !c.IsDev() {
		if c.AuthJWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required when ENV=%s", c.Env)
		}
		if len(c.AuthJWTSecret) < 32 {
			return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes, got %d", len(c.AuthJWTSecret))
		}
	}
	if c.ArchiveEnabled() {
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
		}
		if c.ExportBucket == "" {
			return errors.New("EXPORT_BUCKET is required when MINIO_ENDPOINT is set")
		}
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
