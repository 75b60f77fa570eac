package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/messaging/amqp"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-api"

// server holds the wired HTTP server and the resources it owns.
type server struct {
	http    *http.Server
	health  *health.Health
	closers []func()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	srv, err := newServer(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	srv.health.Start(ctx, 10*time.Second)
	srv.health.SetReady(true)
	httpServer, healthSvc := srv.http, srv.health

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newServer connects to the backing services and wires the HTTP handler
// chain. The returned server is not started.
func newServer(ctx context.Context, lg *zap.Logger, tel httpmiddleware.Telemetry, cfg *Config) (*server, error) {
	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.Postgres.MaxConns))
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	srv := &server{closers: []func(){pool.Close}}
	ok := false
	defer func() {
		if !ok {
			srv.close()
		}
	}()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(5*time.Second), health.WithFailureThreshold(5))

	// Optional Redis: catalog cache and shared rate limiter.
	var (
		catalogCache   store.Cache
		rateLimitStore httpmiddleware.RateLimitStore
	)
	if cfg.Redis.URL != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		srv.closers = append(srv.closers, func() { _ = rdb.Close() })

		catalogCache = redis.NewCatalogCache(rdb, redis.WithTTL(cfg.Redis.CatalogTTL))
		rateLimitStore = redis.NewRateLimitStore(rdb, "")
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		lg.Info("Redis disabled, using in-process rate limiting and no catalog cache")
	}

	orderOpts := []order.Option{
		order.WithTracerProvider(tel.TracerProvider()),
		order.WithMeterProvider(tel.MeterProvider()),
	}
	if cfg.AMQP.URL != "" {
		publisher, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			return nil, errors.Wrap(err, "connect rabbitmq")
		}
		srv.closers = append(srv.closers, func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close rabbitmq publisher", zap.Error(err))
			}
		})
		orderOpts = append(orderOpts, order.WithPublisher(publisher))
		healthSvc.AddReadinessCheck("rabbitmq", time.Second, publisher.Check)
	} else {
		lg.Info("RabbitMQ disabled, order events are not published")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	storeRepo := postgres.NewStoreRepository(pool)
	tx := postgres.NewTransactor(pool, cfg.Postgres.Serializable, cfg.Postgres.TxAttempts)

	// Domain services.
	orderService, err := order.NewService(productRepo, coupon.NewFinder(couponRepo), orderRepo, tx, orderOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	catalogService := store.NewService(storeRepo, catalogCache)

	// HTTP: API routes under /api plus probes on one router.
	router := handler.NewRouter(
		handler.NewHandler(orderService, catalogService),
		handler.NewSecurityHandler(sessionRepo, []byte(cfg.SessionPepper)),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	for name, err := range healthSvc.Probe(ctx) {
		lg.Warn("Readiness check failing at startup", zap.String("check", name), zap.Error(err))
	}

	srv.http = &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORS.Origins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposedHeaders:   []string{httpmiddleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Store:  rateLimitStore,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, tel),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}
	srv.health = healthSvc

	ok = true
	return srv, nil
}
