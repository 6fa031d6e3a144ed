package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storefront-labs/checkout/internal/domain/discount"
	"github.com/storefront-labs/checkout/internal/domain/order"
	"github.com/storefront-labs/checkout/internal/domain/pricing"
	"github.com/storefront-labs/checkout/internal/handler"
	"github.com/storefront-labs/checkout/internal/notify"
	"github.com/storefront-labs/checkout/internal/repository"
	"github.com/storefront-labs/checkout/pkg/health"
	"github.com/storefront-labs/checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the background
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
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
	productRepo := repository.NewProductRepository(pool)
	deliveryRepo := repository.NewDeliveryRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	voucherRepo := repository.NewVoucherRepository(pool)
	loyaltyRepo := repository.NewLoyaltyRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)

	// Domain services.
	resolver := discount.NewResolver(couponRepo, voucherRepo)
	engine := pricing.NewEngine(productRepo, deliveryRepo, resolver, loyaltyRepo)
	guard := pricing.NewGuard(engine)
	lifecycle := order.NewLifecycle(orderRepo)

	// Background workers: stale-order promotion and the notification outbox.
	autoConfirm := order.NewAutoConfirm(lifecycle, orderRepo,
		cfg.AutoConfirm.Interval, cfg.AutoConfirm.Threshold, lg.Named("autoconfirm"))
	relay := notify.NewRelay(outboxRepo, notify.NewLogGateway(lg.Named("notify")),
		cfg.Outbox.Interval, lg.Named("outbox"))

	// HTTP surface.
	metrics, err := handler.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "register metrics")
	}
	h := handler.NewHandler(engine, guard, lifecycle, metrics)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("checkout-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return autoConfirm.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-gctx.Done()
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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return g.Wait()
}
