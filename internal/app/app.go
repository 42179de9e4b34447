package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	sdkapp "github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veldmart/checkout/internal/domain/order"
	"github.com/veldmart/checkout/internal/domain/payment"
	"github.com/veldmart/checkout/internal/gateway"
	"github.com/veldmart/checkout/internal/handler"
	"github.com/veldmart/checkout/internal/messaging"
	"github.com/veldmart/checkout/internal/storage/postgres"
	"github.com/veldmart/checkout/internal/sweeper"
	"github.com/veldmart/checkout/internal/ws"
	"github.com/veldmart/checkout/pkg/health"
	"github.com/veldmart/checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and background
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *sdkapp.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	ledgerEventRepo := postgres.NewLedgerEventRepository(pool)

	// Payment processor client.
	processor := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		KeyID:   cfg.Gateway.KeyID,
		Secret:  cfg.Gateway.Secret,
		Timeout: cfg.Gateway.Timeout,
	})

	// Domain services.
	builder := order.NewService(orderRepo, cfg.Currency)
	coordinator := payment.NewCoordinator(cartRepo, cartRepo, builder, orderRepo, processor)

	// WebSocket status feed.
	hub := ws.NewHub()
	wsHandler := ws.NewHandler(hub, lg.Named("ws"))

	// HTTP handlers.
	h := handler.NewHandler(coordinator, orderRepo, ledgerEventRepo, hub)
	security := handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper))

	api := http.NewServeMux()
	h.Register(api)

	// Mux: health endpoints + authenticated API + WebSocket feed.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", security.Middleware(api))
	mux.HandleFunc("GET /ws/orders/{id}", wsHandler.Subscribe)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key", "Idempotency-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("checkout-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	g, runCtx := errgroup.WithContext(ctx)

	// WebSocket hub.
	g.Go(func() error { return hub.Run(runCtx) })

	// Stale gateway payment sweep.
	sweep := sweeper.New(orderRepo, hub, cfg.Sweep.Interval, cfg.Sweep.MaxAge, lg.Named("sweeper"))
	g.Go(func() error { return sweep.Run(runCtx) })

	// Outbox dispatcher, only when a broker is configured.
	if cfg.AMQPURL != "" {
		publisher, err := messaging.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return errors.Wrap(err, "connect rabbitmq")
		}
		defer publisher.Close()

		dispatcher := messaging.NewOutboxDispatcher(pool, publisher,
			cfg.Outbox.Interval, cfg.Outbox.Batch, lg.Named("outbox"))
		g.Go(func() error { return dispatcher.Run(runCtx) })
	} else {
		lg.Info("AMQP URL not set, outbox dispatch disabled")
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-runCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
