package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/food-delivery/internal/domain/notify"
	"github.com/xenking/food-delivery/internal/domain/order"
	"github.com/xenking/food-delivery/internal/handler"
	"github.com/xenking/food-delivery/internal/idempotency"
	"github.com/xenking/food-delivery/internal/storage/postgres"
	"github.com/xenking/food-delivery/internal/storage/sqlite"
	"github.com/xenking/food-delivery/internal/upstream"
	"github.com/xenking/food-delivery/pkg/health"
	"github.com/xenking/food-delivery/pkg/httpmiddleware"
)

// store is an order repository the process owns.
type store interface {
	order.Repository
	Ping(ctx context.Context) error
	io.Closer
}

type pgStore struct {
	*postgres.OrderRepository
	close func()
}

func (s pgStore) Close() error {
	s.close()
	return nil
}

func openStore(ctx context.Context, cfg StorageConfig) (store, error) {
	switch cfg.Driver {
	case DriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		return repo, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return pgStore{OrderRepository: postgres.NewOrderRepository(pool), close: pool.Close}, nil
	}
}

// Run builds every dependency, serves HTTP until ctx is done and then shuts
// down gracefully.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("item_policy", cfg.Checkout.ItemPolicy),
	)

	orders, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = orders.Close() }()

	clientOpts := []upstream.Option{
		upstream.WithTimeout(cfg.Checkout.UpstreamTimeout),
		upstream.WithTracerProvider(m.TracerProvider()),
		upstream.WithMeterProvider(m.MeterProvider()),
	}
	restaurant, err := upstream.NewRestaurantClient(cfg.RestaurantURL, clientOpts...)
	if err != nil {
		return errors.Wrap(err, "create restaurant client")
	}
	var notifier notify.Notifier
	if cfg.NotificationURL != "" {
		nc, err := upstream.NewNotificationClient(cfg.NotificationURL, clientOpts...)
		if err != nil {
			return errors.Wrap(err, "create notification client")
		}
		notifier = nc
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("orders-store", 5*time.Second, health.PingCheck(orders.Ping))
	healthSvc.AddReadinessCheck("restaurant", 5*time.Second, health.HTTPCheck(nil, restaurant.URL()))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var (
		idem         idempotency.Store
		claimTimeout time.Duration
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = rdb.Close() }()
		rs := idempotency.NewRedisStore(rdb, idempotency.RedisConfig{
			Namespace: "orders",
			LockTTL:   cfg.Redis.LockTTL,
			TTL:       cfg.Redis.TTL,
		})
		healthSvc.AddReadinessCheck("redis", time.Second, health.PingCheck(rs.Ping))
		idem = rs
		claimTimeout = checkoutClaimTimeout(rs.ClaimTTL())
	}

	policy, err := order.ParsePolicy(cfg.Checkout.ItemPolicy)
	if err != nil {
		return err
	}
	svc, err := order.NewService(order.ServiceConfig{
		Policy:             policy,
		PricingConcurrency: cfg.Checkout.PricingConcurrency,
		NotifyTimeout:      cfg.Checkout.NotifyTimeout,
		MeterProvider:      m.MeterProvider(),
	}, restaurant, restaurant, notifier, orders)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	h := handler.NewHandler(handler.HandlerConfig{ClaimTimeout: claimTimeout}, svc, idem)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	r := chi.NewRouter()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Headers:     []string{"Content-Type", "Authorization", handler.IdempotencyKeyHeader},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument("order-service", m),
			httpmiddleware.LogRequests(),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// Pending branch notifications hold their own timeouts.
		svc.Wait()
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// checkoutClaimTimeout leaves a fifth of the claim TTL to store the response.
func checkoutClaimTimeout(ttl time.Duration) time.Duration {
	return ttl - ttl/5
}
