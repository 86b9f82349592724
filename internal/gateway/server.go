package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-delivery/pkg/health"
	"github.com/xenking/food-delivery/pkg/httpmiddleware"
)

// Handler mounts the operational endpoints next to the proxy.
func Handler(g *Gateway, hs *health.Health, metricsPath string) http.Handler {
	r := chi.NewRouter()
	r.Get("/livez", hs.LiveEndpoint)
	r.Get("/readyz", hs.ReadyEndpoint)
	if metricsPath != "" {
		r.Method(http.MethodGet, metricsPath, g.metrics.Handler())
	}
	r.Handle("/*", g)
	return r
}

// Run serves the gateway until ctx is done.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing gateway", zap.String("addr", cfg.Addr))

	g, err := New(Options{
		Backends:              cfg.Services.Backends(),
		ResponseHeaderTimeout: cfg.UpstreamWait,
	})
	if err != nil {
		return errors.Wrap(err, "create gateway")
	}

	hs := health.New()
	hs.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	hs.Start(ctx, 10*time.Second)
	hs.SetReady(true)

	metricsPath := ""
	if cfg.MetricsEnable {
		metricsPath = cfg.MetricsPath
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(Handler(g, hs, metricsPath),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Credentials: cfg.CORS.AllowCredentials,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument("gateway", m),
			httpmiddleware.LogRequests(),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		hs.SetReady(false)
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		lg.Info("Shutting down gateway", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Gateway shutdown error", zap.Error(err))
		}
		hs.Stop()
	}()

	lg.Info("Gateway listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
