package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL          string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RegistryBaseURL      string        `mapstructure:"REGISTRY_BASE_URL"`
	RegistryAPIKey       string        `mapstructure:"REGISTRY_API_KEY"`
	RegistryTimeout      time.Duration `mapstructure:"REGISTRY_TIMEOUT"`
	PaymentWebhookSecret string        `mapstructure:"PAYMENT_WEBHOOK_SECRET"`
	ViewTokenSecret      string        `mapstructure:"VIEW_TOKEN_SECRET"`
	ViewTokenTTL         time.Duration `mapstructure:"VIEW_TOKEN_TTL"`
	BlobstoreDir         string        `mapstructure:"BLOBSTORE_DIR"`
	PortalBaseURL        string        `mapstructure:"PORTAL_BASE_URL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REGISTRY_TIMEOUT", "10s")
	v.SetDefault("VIEW_TOKEN_TTL", "15m")
	v.SetDefault("BLOBSTORE_DIR", "./data/blobs")
	v.SetDefault("PORTAL_BASE_URL", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("REGISTRY_BASE_URL")
	v.BindEnv("REGISTRY_API_KEY")
	v.BindEnv("REGISTRY_TIMEOUT")
	v.BindEnv("PAYMENT_WEBHOOK_SECRET")
	v.BindEnv("VIEW_TOKEN_SECRET")
	v.BindEnv("VIEW_TOKEN_TTL")
	v.BindEnv("BLOBSTORE_DIR")
	v.BindEnv("PORTAL_BASE_URL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Staff endpoints accept unauthenticated requests as admin.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode the identity provider and the secrets guarding patient-facing surfaces
// must all be configured.
func (c *Config) Validate() error {
	if c.IsDev() {
		return nil
	}
	if c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER is required when ENV is not development; " +
			"refusing to start staff endpoints without authentication")
	}
	if c.ViewTokenSecret == "" {
		return fmt.Errorf("VIEW_TOKEN_SECRET is required when ENV is not development")
	}
	if len(c.ViewTokenSecret) < 32 {
		return fmt.Errorf("VIEW_TOKEN_SECRET must be at least 32 bytes, got %d", len(c.ViewTokenSecret))
	}
	if c.PaymentWebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required when ENV is not development")
	}
	if c.RegistryBaseURL == "" {
		return fmt.Errorf("REGISTRY_BASE_URL is required when ENV is not development")
	}
	return nil
}
