package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	// AMQPURL enables the outbox dispatcher when set. Empty leaves status
	// events in the outbox table for a later consumer.
	AMQPURL      string `default:"" usage:"RabbitMQ connection URL" flag:"amqp-url"`
	AMQPExchange string `default:"orders.events" usage:"RabbitMQ exchange for order status events" flag:"amqp-exchange"`

	APIKeyPepper string `usage:"HMAC pepper for API key hashing (CHECKOUT_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Currency     string `default:"USD" usage:"Currency code orders are priced in"`

	Gateway   GatewayConfig
	Sweep     SweepConfig
	Outbox    OutboxConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// GatewayConfig holds external payment processor settings.
type GatewayConfig struct {
	BaseURL string        `usage:"Payment processor API base URL" flag:"gateway-url"`
	KeyID   string        `usage:"Payment processor key id" flag:"gateway-key-id"`
	Secret  string        `usage:"Payment processor shared secret" flag:"gateway-secret"`
	Timeout time.Duration `default:"10s" usage:"Payment processor call timeout" flag:"gateway-timeout"`
}

// SweepConfig controls expiry of stale gateway payments.
type SweepConfig struct {
	Interval time.Duration `default:"1m"  usage:"How often to sweep stale pending payments"`
	MaxAge   time.Duration `default:"30m" usage:"Age after which an unpaid gateway order is cancelled" flag:"sweep-max-age"`
}

// OutboxConfig controls the status event dispatcher.
type OutboxConfig struct {
	Interval time.Duration `default:"2s" usage:"Outbox poll interval"`
	Batch    int           `default:"100" usage:"Outbox rows claimed per poll"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Gateway.BaseURL == "" {
		return nil, errors.New("payment gateway URL is required: set CHECKOUT_GATEWAY_BASE_URL")
	}
	if cfg.Gateway.Secret == "" {
		return nil, errors.New("payment gateway secret is required: set CHECKOUT_GATEWAY_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.AMQPURL == "" {
		if v := os.Getenv("AMQP_URL"); v != "" {
			c.AMQPURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
