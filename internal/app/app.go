package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/handler"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/storage/postgres"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/health"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL,
		postgres.WithApplicationName("frequence-api"),
		postgres.WithMaxConns(cfg.DBMaxConns),
	)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	services, err := NewServices(ctx, cfg, pool, m)
	if err != nil {
		return errors.Wrap(err, "create services")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("postgres_pool", time.Second, health.PoolSaturationCheck(func() health.PoolStat {
		return pool.Stat()
	}),
		health.WithThresholds(5, 2),
	)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	for feature, reason := range services.Disabled {
		healthSvc.Disable(feature, reason)
	}
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		// Replicate predictions and speech synthesis answer slowly.
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        NewHandler(ctx, cfg, services, healthSvc, m),
	}

	return serve(ctx, lg, server, healthSvc, cfg.Graceful)
}

// serve runs server until ctx is done, then fails readiness, waits for
// the load balancer to notice and drains in-flight requests.
func serve(ctx context.Context, lg *zap.Logger, server *http.Server, healthSvc *health.Health, graceful GracefulConfig) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		healthSvc.Stop()
		return errors.Wrap(err, "listen")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.Stringer("addr", ln.Addr()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer healthSvc.Stop()

		// Fail /readyz first so the load balancer stops routing new walks here.
		healthSvc.SetReady(false)
		lg.Info("Draining", zap.Duration("delay", graceful.ReadinessDelay))
		time.Sleep(graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), graceful.ShutdownTimeout)
		defer cancel()
		lg.Info("Shutting down", zap.Duration("timeout", graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}

// NewHandler builds the HTTP handler: health probes and the API router
// behind the middleware chain.
func NewHandler(ctx context.Context, cfg *Config, s *Services, healthSvc *health.Health, tel Telemetry) http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	h := handler.New(s.Deps(cfg), s.APIKeys, []byte(cfg.APIKeyPepper))
	h.Register(e)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", e)

	api := otelhttp.NewHandler(mux, "frequence-api",
		otelhttp.WithTracerProvider(tel.TracerProvider()),
		otelhttp.WithMeterProvider(tel.MeterProvider()),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	return httpmiddleware.Wrap(api,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:          cfg.RateLimit.Max,
			Window:       cfg.RateLimit.Window,
			Cost:         handler.RequestCost(cfg.RateLimit.AICost),
			APIKeyHeader: handler.APIKeyHeader,
			VerifyKey:    h.VerifyKey,
		}),
	)
}
