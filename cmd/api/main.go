package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/storefront-core/api/controllers"
	"github.com/angelmondragon/storefront-core/api/routes"
	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/internal/events"
	"github.com/angelmondragon/storefront-core/internal/sessions"
	"github.com/angelmondragon/storefront-core/pkg/auth/session"
	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/gateway"
	"github.com/angelmondragon/storefront-core/pkg/instance"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/angelmondragon/storefront-core/pkg/migrate"
	"github.com/angelmondragon/storefront-core/pkg/postalcode"
	"github.com/angelmondragon/storefront-core/pkg/pubsub"
	"github.com/angelmondragon/storefront-core/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pingers := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	var cartEvents cart.EventSink
	var checkoutEvents checkout.CompletionSink
	if cfg.PubSub.Enabled(cfg.GCP) {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher, err := events.NewPublisher(psClient.CheckoutPublisher(), logg)
		if err != nil {
			logg.Error(ctx, "failed to create event publisher", err)
			os.Exit(1)
		}
		cartEvents = publisher
		checkoutEvents = publisher
		pingers["pubsub"] = psClient
	} else {
		logg.Info(ctx, "pubsub disabled, checkout events will not be published")
	}

	attempts := checkout.NewAttemptRepository(dbClient.DB())
	registry, err := buildRegistry(cfg, logg, redisClient, sessionManager, attempts, promRegistry, cartEvents, checkoutEvents)
	if err != nil {
		logg.Error(ctx, "failed to wire session registry", err)
		os.Exit(1)
	}
	go func() {
		if err := registry.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "session janitor stopped", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:   cfg,
			Logger:   logg,
			Pingers:  pingers,
			Redis:    redisClient,
			Tokens:   sessionManager,
			Sessions: registry,
			Attempts: attempts,
			Metrics:  promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
		logg.Info(logCtx, "api server stopped")
	}
}

// buildRegistry wires the per-session cart orchestrators and checkout flows to the commerce
// backend, the card gateway and the postal code directory.
func buildRegistry(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	tokens *session.Manager,
	attempts checkout.AttemptRepository,
	reg prometheus.Registerer,
	cartEvents cart.EventSink,
	checkoutEvents checkout.CompletionSink,
) (*sessions.Registry, error) {
	commerceClient, err := commerce.NewClient(cfg.Commerce.BaseURL, commerce.WithTimeout(cfg.Commerce.Timeout))
	if err != nil {
		return nil, err
	}
	gatewayClient, err := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.PublicKey,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout}),
		gateway.WithBreaker(cfg.Gateway.BreakerFailures, cfg.Gateway.BreakerOpenDelay),
		gateway.WithStateListener(func(from, to gobreaker.State) {
			logg.Warn(logg.WithFields(context.Background(), map[string]any{
				"from": from.String(),
				"to":   to.String(),
			}), "gateway.breaker_state_changed")
		}),
	)
	if err != nil {
		return nil, err
	}
	addresses := postalcode.NewClient(
		postalcode.WithBaseURL(cfg.PostalCode.BaseURL),
		postalcode.WithHTTPClient(&http.Client{Timeout: cfg.PostalCode.Timeout}),
	)

	cartMetrics := metrics.NewCartMetrics(reg)
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)
	validator := checkout.NewValidator(cfg.Checkout.PostalCodeLength)

	pipeline, err := checkout.NewPipeline(checkout.PipelineConfig{
		Validator:      validator,
		Tokenizer:      gatewayClient,
		Registrar:      commerceClient,
		Payments:       commerceClient,
		Tokens:         tokens,
		Attempts:       attempts,
		Logger:         logg,
		Metrics:        checkoutMetrics,
		SuccessPath:    cfg.Checkout.SuccessPath,
		PixDescription: cfg.Checkout.PixDescription,
	})
	if err != nil {
		return nil, err
	}

	return sessions.NewRegistry(sessions.Config{
		NewCart: func(sessionID string) (*cart.Orchestrator, error) {
			guest, err := cart.NewRedisGuestStore(redisClient, redisClient, sessionID, cfg.Cart.GuestSnapshotTTL)
			if err != nil {
				return nil, err
			}
			return cart.NewOrchestrator(cart.OrchestratorConfig{
				SessionID: sessionID,
				Guest:     guest,
				Preview:   commerceClient,
				Remote:    commerceClient,
				Logger:    logg,
				Metrics:   cartMetrics,
				Events:    cartEvents,
			})
		},
		NewFlow: func(sessionID string, source checkout.CartSource) (*checkout.Flow, error) {
			return checkout.NewFlow(sessionID, source, checkout.FlowDeps{
				Validator:        validator,
				Profiles:         commerceClient,
				Addresses:        addresses,
				Quotes:           commerceClient,
				Availability:     commerceClient,
				Pipeline:         pipeline,
				Events:           checkoutEvents,
				Logger:           logg,
				Metrics:          checkoutMetrics,
				ShippingDebounce: cfg.Checkout.ShippingDebounce,
			})
		},
		IdleTTL:  cfg.Cart.SessionIdleTTL,
		Interval: cfg.Cart.JanitorInterval,
		Logger:   logg,
		Metrics:  metrics.NewSessionMetrics(reg),
	})
}
