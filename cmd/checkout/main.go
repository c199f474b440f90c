package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/khobz-app/checkout/internal/commerce"
	"github.com/khobz-app/checkout/internal/handlers"
	"github.com/khobz-app/checkout/internal/payments"
	"github.com/khobz-app/checkout/internal/platform/config"
	"github.com/khobz-app/checkout/internal/platform/observability"
	"github.com/khobz-app/checkout/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("checkout")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	backend, err := commerce.NewClient(cfg.Commerce.BaseURL,
		commerce.WithAPIKey(cfg.Commerce.APIKey),
		commerce.WithLogger(logger.Named("commerce")),
		commerce.WithHTTPClient(&http.Client{Timeout: cfg.Commerce.Timeout}),
		commerce.WithBreakerSettings(cfg.Commerce.BreakerWindow, cfg.Commerce.BreakerCooloff),
	)
	if err != nil {
		logger.Fatal("failed to initialise commerce client", zap.Error(err))
	}

	paymentCreator, paymentManager := buildPayments(logger, cfg.Payments)

	checkoutLogger := observability.EventLogger(logger.Named("session"))
	autoApply, err := services.NewAutoApplySelector(services.AutoApplySelectorDeps{
		Promotions: backend,
		Debounce:   cfg.Checkout.AutoApplyDebounce,
		Logger:     checkoutLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise auto-apply selector", zap.Error(err))
	}

	availability, err := services.NewAvailabilityResolver(services.AvailabilityResolverDeps{
		Backend:           backend,
		LowStockThreshold: cfg.Checkout.LowStockThreshold,
		CacheTTL:          cfg.Checkout.AvailabilityTTL,
		Clock:             time.Now,
		Logger:            observability.EventLogger(logger.Named("availability")),
	})
	if err != nil {
		logger.Fatal("failed to initialise availability resolver", zap.Error(err))
	}

	guestOrders := handlers.NewGuestOrderLog()
	placer, err := services.NewOrderPlacer(services.OrderPlacerDeps{
		Orders:         backend,
		Payments:       paymentCreator,
		GuestOrders:    guestOrders,
		Attempts:       cfg.Checkout.PlacementAttempts,
		BaseDelay:      cfg.Checkout.PlacementBaseDelay,
		AttemptTimeout: cfg.Checkout.PlacementTimeout,
		Clock:          time.Now,
		Logger:         observability.EventLogger(logger.Named("placement")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order placer", zap.Error(err))
	}

	factory := func(id, userID, locale string) (*services.Checkout, error) {
		return services.NewCheckout(id, userID, locale, services.CheckoutDeps{
			Calculation:        backend,
			Promotions:         backend,
			AutoApply:          autoApply,
			CalculationTimeout: cfg.Checkout.CalculationTimeout,
			DefaultDeliveryFee: cfg.Checkout.DefaultDeliveryFee,
			Clock:              time.Now,
			Logger:             checkoutLogger,
		})
	}

	store := handlers.NewSessionStore(cfg.Checkout.SessionTTL, nil)
	checkoutHandlers := handlers.NewCheckoutHandlers(store, factory, placer, availability, backend, guestOrders)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadyCheck(func() error {
			if cfg.Commerce.BaseURL == "" {
				return errors.New("commerce backend not configured")
			}
			return nil
		}),
	)

	routerOpts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.LocaleMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
	}
	if paymentManager != nil {
		routerOpts = append(routerOpts, handlers.WithPaymentRoutes(handlers.NewPaymentHandlers(paymentManager).Routes))
	}
	router := handlers.NewRouter(routerOpts...)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("khobz checkout api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildPayments wires the Stripe session creator and the provider manager
// behind the status lookup routes when an API key is configured. Without one
// the service still runs, cash orders only.
func buildPayments(logger *zap.Logger, cfg config.PaymentsConfig) (services.PaymentSessionCreator, *payments.Manager) {
	if cfg.StripeAPIKey == "" {
		logger.Warn("stripe api key not configured; card payment sessions disabled")
		return nil, nil
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.StripeAPIKey,
		Logger: observability.EventLogger(logger.Named("stripe")),
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	manager, err := payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	creator, err := payments.NewSessionCreator(payments.SessionCreatorConfig{
		Manager:    manager,
		Currency:   "JOD",
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment session creator", zap.Error(err))
	}
	return creator, manager
}
