package app

import (
	"net/url"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/food-delivery/internal/domain/order"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the order service configuration. Values come from ORDERS_*
// environment variables, flags or a YAML file.
type Config struct {
	Addr            string `default:"0.0.0.0:8003" usage:"Order service listen address"`
	RestaurantURL   string `default:"http://localhost:8002" usage:"Restaurant service base URL (foods, coupons)" flag:"restaurant-url"`
	NotificationURL string `default:"" usage:"Notification service base URL, empty disables notifications" flag:"notification-url"`
	Storage         StorageConfig
	Checkout        CheckoutConfig
	Redis           RedisConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// StorageConfig selects the order store.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Order store driver: postgres or sqlite"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERS_STORAGE_DATABASEURL or DATABASE_URL)" flag:"database-url"`
	SQLitePath  string `default:"orders.db" usage:"SQLite database file" flag:"sqlite-path"`
	MaxConns    int32  `default:"10" usage:"PostgreSQL pool size" flag:"db-max-conns"`
}

// CheckoutConfig tunes the checkout flow.
type CheckoutConfig struct {
	ItemPolicy         string        `default:"strict" usage:"Unpriceable item policy: strict or lenient" flag:"item-policy"`
	PricingConcurrency int           `default:"8" usage:"Parallel price lookups per checkout" flag:"pricing-concurrency"`
	UpstreamTimeout    time.Duration `default:"5s" usage:"Timeout for restaurant service calls" flag:"upstream-timeout"`
	NotifyTimeout      time.Duration `default:"5s" usage:"Timeout for a branch notification" flag:"notify-timeout"`
}

// RedisConfig enables Idempotency-Key support when Addr is set.
type RedisConfig struct {
	Addr    string        `default:"" usage:"Redis address for idempotency keys, empty disables" flag:"redis-addr"`
	LockTTL time.Duration `default:"30s" usage:"How long an unfinished checkout blocks retries" flag:"idempotency-lock-ttl"`
	TTL     time.Duration `default:"24h" usage:"How long checkout responses are replayed" flag:"idempotency-ttl"`
}

// RateLimitConfig controls the per-client limiter. Zero Max disables it.
type RateLimitConfig struct {
	Max    int           `default:"0" usage:"Max requests per window, 0 disables"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration and validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"orders.yaml", "/etc/food-delivery/orders.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set ORDERS_STORAGE_DATABASEURL or DATABASE_URL")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if err := checkURL("restaurant", c.RestaurantURL); err != nil {
		return err
	}
	if c.NotificationURL != "" {
		if err := checkURL("notification", c.NotificationURL); err != nil {
			return err
		}
	}
	if _, err := order.ParsePolicy(c.Checkout.ItemPolicy); err != nil {
		return err
	}
	return nil
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("invalid %s URL %q", name, raw)
	}
	return nil
}

// applyPlatformDefaults maps DATABASE_URL and PORT, as set by hosting
// platforms, onto the prefixed settings.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8003" {
		c.Addr = "0.0.0.0:" + port
	}
}
