package gateway

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config is the gateway configuration, loaded from GATEWAY_* variables,
// flags or a YAML file.
type Config struct {
	Addr          string        `default:"0.0.0.0:8000" usage:"Gateway listen address"`
	UpstreamWait  time.Duration `default:"30s" usage:"Max wait for backend response headers" flag:"upstream-wait"`
	Services      ServicesConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
	MetricsPath   string `default:"/metrics" usage:"Prometheus scrape path" flag:"metrics-path"`
	MetricsEnable bool   `default:"true" usage:"Expose Prometheus metrics" flag:"metrics"`
}

// ServicesConfig holds backend base URLs.
type ServicesConfig struct {
	User       string `default:"http://user_service:8001" usage:"User service URL" flag:"user-service-url"`
	Restaurant string `default:"http://restaurant_service:8002" usage:"Restaurant service URL" flag:"restaurant-service-url"`
	Order      string `default:"http://order_service:8003" usage:"Order service URL" flag:"order-service-url"`
	Payment    string `default:"http://payment_service:8004" usage:"Payment service URL" flag:"payment-service-url"`
	Cart       string `default:"http://cart_service:8005" usage:"Cart service URL" flag:"cart-service-url"`
}

// Backends maps backend names to URLs.
func (s ServicesConfig) Backends() map[string]string {
	return map[string]string{
		BackendUser:       s.User,
		BackendRestaurant: s.Restaurant,
		BackendOrder:      s.Order,
		BackendPayment:    s.Payment,
		BackendCart:       s.Cart,
	}
}

// RateLimitConfig controls the per-client limiter. Zero Max disables it.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables"`
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

// LoadConfig loads the gateway configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GATEWAY",
		Files:     []string{"gateway.yaml", "/etc/food-delivery/gateway.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// applyPlatformDefaults honours PORT and the plain *_SERVICE_URL variables
// used by docker-compose when the prefixed settings keep their defaults.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8000" {
		c.Addr = "0.0.0.0:" + port
	}
	for _, s := range []struct {
		env string
		dst *string
		def string
	}{
		{"USER_SERVICE_URL", &c.Services.User, "http://user_service:8001"},
		{"RESTAURANT_SERVICE_URL", &c.Services.Restaurant, "http://restaurant_service:8002"},
		{"ORDER_SERVICE_URL", &c.Services.Order, "http://order_service:8003"},
		{"PAYMENT_SERVICE_URL", &c.Services.Payment, "http://payment_service:8004"},
		{"CART_SERVICE_URL", &c.Services.Cart, "http://cart_service:8005"},
	} {
		if v := os.Getenv(s.env); v != "" && *s.dst == s.def {
			*s.dst = v
		}
	}
}
