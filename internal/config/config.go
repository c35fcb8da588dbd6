package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer    string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL   string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience  string   `mapstructure:"AUTH_AUDIENCE"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	// Payment gateway. API keys are per tenant and live in the tenant
	// table; only the endpoint and timeout are global.
	GatewayBaseURL string        `mapstructure:"GATEWAY_BASE_URL"`
	GatewayTimeout time.Duration `mapstructure:"GATEWAY_TIMEOUT"`

	// Webhook delivery worker.
	WebhookDrainInterval time.Duration `mapstructure:"WEBHOOK_DRAIN_INTERVAL"`
	WebhookBatchSize     int           `mapstructure:"WEBHOOK_BATCH_SIZE"`
	WebhookHTTPTimeout   time.Duration `mapstructure:"WEBHOOK_HTTP_TIMEOUT"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
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
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("GATEWAY_TIMEOUT", "15s")
	v.SetDefault("WEBHOOK_DRAIN_INTERVAL", "5s")
	v.SetDefault("WEBHOOK_BATCH_SIZE", 50)
	v.SetDefault("WEBHOOK_HTTP_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("GATEWAY_BASE_URL")
	v.BindEnv("GATEWAY_TIMEOUT")
	v.BindEnv("WEBHOOK_DRAIN_INTERVAL")
	v.BindEnv("WEBHOOK_BATCH_SIZE")
	v.BindEnv("WEBHOOK_HTTP_TIMEOUT")
	v.BindEnv("TLS_ENABLED")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")

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
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
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

// Validate checks that the configuration is safe to run. Outside development,
// AUTH_ISSUER must be set so that real JWT authentication is enforced, and
// GATEWAY_BASE_URL must be an https endpoint in production — every charge the
// orchestrator creates goes through it.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_ISSUER must be set when ENV is %q. "+
				"Refusing to start without authentication configuration", c.Env)
	}

	if c.GatewayBaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL is required")
	}
	u, err := url.Parse(c.GatewayBaseURL)
	if err != nil {
		return fmt.Errorf("GATEWAY_BASE_URL is not a valid URL: %w", err)
	}
	if c.IsProduction() && u.Scheme != "https" {
		return fmt.Errorf("GATEWAY_BASE_URL must use https in production, got %q", u.Scheme)
	}

	if c.WebhookBatchSize <= 0 {
		return fmt.Errorf("WEBHOOK_BATCH_SIZE must be positive, got %d", c.WebhookBatchSize)
	}
	if c.WebhookDrainInterval <= 0 {
		return fmt.Errorf("WEBHOOK_DRAIN_INTERVAL must be positive, got %s", c.WebhookDrainInterval)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
