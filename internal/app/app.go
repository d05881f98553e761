// Package app wires the storefront server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/event"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/report"
	"github.com/xenking/storefront/internal/domain/settlement"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/domain/wallet"
	"github.com/xenking/storefront/internal/gateway/razorpay"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/messaging/kafka"
	"github.com/xenking/storefront/internal/storage/postgres"
	redisstore "github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-api"

// Telemetry provides the OpenTelemetry providers. *app.Telemetry from
// go-faster/sdk satisfies it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

type server struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Run creates all dependencies, serves HTTP until ctx is cancelled, then
// drains and shuts down.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	srv, err := newServer(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer srv.close()
	srv.health.Start(ctx, 10*time.Second)

	httpServer := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Covers a gateway round trip plus the commit.
		WriteTimeout:   cfg.Gateway.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        srv.handler,
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		srv.health.Stop()
		close(shutdownDone)
	}()

	srv.health.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newServer connects to the stores and builds the middleware wrapped mux.
// Health checks are registered but not started.
func newServer(ctx context.Context, lg *zap.Logger, tel Telemetry, cfg *Config) (_ *server, rerr error) {
	delivery, err := cfg.Delivery()
	if err != nil {
		return nil, err
	}

	srv := &server{health: health.New()}
	defer func() {
		if rerr != nil {
			srv.close()
		}
	}()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	srv.closers = append(srv.closers, pool.Close)
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}
	db := postgres.New(pool)

	rdb, err := redisstore.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connect redis")
	}
	srv.closers = append(srv.closers, func() { _ = rdb.Close() })

	var events event.Publisher = event.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, lg.Named("kafka"))
		if err != nil {
			return nil, errors.Wrap(err, "create event publisher")
		}
		srv.closers = append(srv.closers, func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		})
		events = p
	} else {
		lg.Info("No Kafka brokers configured, events are dropped")
	}

	srv.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	srv.health.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
	srv.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	products := postgres.NewProductRepository(db)
	coupons := postgres.NewCouponRepository(db)
	orders := postgres.NewOrderRepository(db)
	wallets := postgres.NewWalletRepository(db)
	addresses := postgres.NewAddressRepository(db)
	apiKeys := postgres.NewAPIKeyRepository(db)
	carts := redisstore.NewCartStore(rdb, cfg.Redis.CartTTL)

	// Domain services.
	couponValidator := coupon.NewValidator(coupons)
	reconciler := stock.NewReconciler(products)
	ledger := wallet.NewLedger(wallets, db)
	payments := payment.NewService(
		razorpay.New(razorpay.Config{
			BaseURL:   cfg.Gateway.BaseURL,
			KeyID:     cfg.Gateway.KeyID,
			KeySecret: cfg.Gateway.KeySecret,
			Timeout:   cfg.Gateway.Timeout,
		}),
		redisstore.NewIntentStore(rdb),
		payment.NewSigner(cfg.Gateway.KeySecret),
		payment.Config{Currency: cfg.Gateway.Currency, IntentTTL: cfg.Checkout.IntentTTL},
	)

	orderMetrics, err := order.NewMetrics(tel.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "order metrics")
	}
	settlementMetrics, err := settlement.NewMetrics(tel.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "settlement metrics")
	}

	checkout := order.NewService(order.Deps{
		Orders:    orders,
		Carts:     carts,
		Addresses: addresses,
		Assembler: order.NewAssembler(products, couponValidator, delivery),
		Coupons:   couponValidator,
		Stock:     reconciler,
		Ledger:    ledger,
		Payments:  payments,
		Tx:        db,
		Events:    events,
		Metrics:   orderMetrics,
		Tracer:    tel.TracerProvider().Tracer("github.com/xenking/storefront/internal/domain/order"),
	})
	settler := settlement.NewService(orders, reconciler, ledger, db, events, settlementMetrics, settlement.Config{
		ReturnWindow: cfg.Checkout.ReturnWindow,
	})

	h := handler.New(handler.Deps{
		Checkout:    checkout,
		Settlement:  settler,
		TopUps:      wallet.NewTopUp(ledger, payments, events),
		Ledger:      ledger,
		Carts:       cart.NewService(carts, products, cfg.Checkout.MaxCartQuantity),
		Coupons:     couponValidator,
		CouponAdmin: coupon.NewAdmin(coupons),
		Reports:     report.NewService(orders),
		Keys:        auth.NewAuthenticator(apiKeys, []byte(cfg.Auth.APIKeyPepper)),
		Tokens:      handler.NewTokenVerifier([]byte(cfg.Auth.JWTSecret)),
	}, handler.Config{GatewayKeyID: cfg.Gateway.KeyID})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", srv.health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", srv.health.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	srv.handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.KeyByHeader(handler.APIKeyHeader),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument(serviceName, routeFinder, tel.TracerProvider(), tel.MeterProvider()),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
	return srv, nil
}
