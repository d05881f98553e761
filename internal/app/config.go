package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Config is the storefront configuration. Values come from SHOP_* variables,
// flags, or config.yaml.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Kafka       KafkaConfig
	Gateway     GatewayConfig
	Auth        AuthConfig
	Checkout    CheckoutConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig locates the cart and payment intent store.
type RedisConfig struct {
	URL     string        `usage:"Redis URL (SHOP_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	CartTTL time.Duration `default:"720h" usage:"Idle lifetime of a cart"`
}

// KafkaConfig enables order events. Without brokers events are dropped.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"storefront.events" usage:"Topic for order and wallet events"`
}

// GatewayConfig is the hosted payment gateway account.
type GatewayConfig struct {
	BaseURL   string        `default:"https://api.razorpay.com" usage:"Payment gateway API base URL"`
	KeyID     string        `usage:"Gateway key ID" flag:"gateway-key-id"`
	KeySecret string        `usage:"Gateway key secret, also used to verify payment signatures" flag:"gateway-key-secret"`
	Currency  string        `default:"INR" usage:"Settlement currency"`
	Timeout   time.Duration `default:"10s" usage:"Gateway call timeout"`
}

// AuthConfig holds the credentials used to authenticate callers.
type AuthConfig struct {
	JWTSecret    string `usage:"HS256 secret for customer bearer tokens" flag:"jwt-secret"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing" flag:"api-key-pepper"`
}

// CheckoutConfig holds pricing and lifecycle policy.
type CheckoutConfig struct {
	FreeDeliveryThreshold string        `default:"500" usage:"Subtotal above which delivery is free"`
	DeliveryCharge        string        `default:"40" usage:"Delivery charge below the threshold"`
	MaxCartQuantity       int           `default:"5" usage:"Maximum quantity of one product per cart"`
	IntentTTL             time.Duration `default:"30m" usage:"Lifetime of an unpaid payment intent"`
	ReturnWindow          time.Duration `default:"168h" usage:"How long after delivery an item may be returned"`
}

// RateLimitConfig controls the per-client token bucket: Max requests of burst,
// refilled over Window.
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

// LoadConfig loads configuration from the environment and config files.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults picks up the unprefixed DATABASE_URL, REDIS_URL and
// PORT set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.Redis.URL == "":
		return errors.New("redis URL is required: set SHOP_REDIS_URL or REDIS_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("SHOP_AUTH_JWT_SECRET is required")
	case c.Gateway.KeySecret == "":
		return errors.New("SHOP_GATEWAY_KEY_SECRET is required")
	}
	if _, err := c.Delivery(); err != nil {
		return err
	}
	return nil
}

// Delivery parses the delivery policy.
func (c *Config) Delivery() (pricing.DeliveryPolicy, error) {
	threshold, err := decimal.NewFromString(c.Checkout.FreeDeliveryThreshold)
	if err != nil {
		return pricing.DeliveryPolicy{}, errors.Wrap(err, "parse free delivery threshold")
	}
	charge, err := decimal.NewFromString(c.Checkout.DeliveryCharge)
	if err != nil {
		return pricing.DeliveryPolicy{}, errors.Wrap(err, "parse delivery charge")
	}
	if threshold.IsNegative() || charge.IsNegative() {
		return pricing.DeliveryPolicy{}, errors.New("delivery threshold and charge must not be negative")
	}
	return pricing.DeliveryPolicy{Threshold: threshold, Charge: charge}, nil
}
