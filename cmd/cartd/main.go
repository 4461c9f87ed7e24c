// cartd serves the cart sync engine over REST, server-sent events and MCP.
// One engine runs per cart session; sessions idle past their TTL are evicted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cartsync/internal/adapter"
	"cartsync/internal/config"
	"cartsync/internal/engine"
	"cartsync/internal/handler"
	"cartsync/internal/localcache"
	"cartsync/internal/metrics"
	"cartsync/internal/middleware"
	"cartsync/internal/pointerstore"
	"cartsync/internal/session"
	"cartsync/internal/shopify"
	"cartsync/internal/woocommerce"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()
	slog.SetDefault(logger)

	// Load configuration
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("store_id", cfg.StoreID),
		slog.String("adapter_type", cfg.AdapterType),
		slog.String("environment", cfg.Environment),
		slog.String("store_domain", cfg.StoreDomain()),
		slog.String("pointer_backend", cfg.Pointers.Backend),
		slog.String("session_provider", cfg.Session.Provider),
	)

	carts, err := createCartService(cfg)
	if err != nil {
		return fmt.Errorf("creating cart service: %w", err)
	}

	pointers, closePointers, err := createPointerStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating pointer store: %w", err)
	}
	defer closePointers()

	identity, err := createSessionProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating session provider: %w", err)
	}

	recorder := metrics.New()

	factory := func(ctx context.Context, sessionID string) (*engine.Engine, error) {
		cache, err := createCache(cfg, sessionID)
		if err != nil {
			return nil, err
		}
		return engine.New(ctx, engine.Deps{
			Carts:          carts,
			Pointers:       pointers,
			Cache:          cache,
			Logger:         logger.With(slog.String("cart_session", sessionID)),
			Metrics:        recorder,
			PointerDelay:   cfg.Sync.PointerDebounce.Std(),
			CreateBurst:    cfg.Sync.CreateBurst,
			CreateInterval: cfg.Sync.CreateInterval.Std(),
		})
	}
	engines := engine.NewRegistry(factory, cfg.Sync.SessionIdleTTL.Std(), logger, recorder)
	engines.StartSweeper(ctx, time.Minute)

	h := handler.New(engines, identity, recorder, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware.
	// CORS answers browser preflights before they reach the mux.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.CORS(cfg.AllowedOrigins),
	)(mux)

	// No WriteTimeout: /cart/events and /mcp hold streams open.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Event streams end with the base context; other requests get the drain window.
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped", slog.Int("sessions", engines.Len()))
	return nil
}

// createCartService creates the storefront cart backend for the configured adapter.
func createCartService(cfg *config.Config) (adapter.CartService, error) {
	switch cfg.AdapterType {
	case config.AdapterShopify:
		return shopify.New(shopify.Config{
			StoreURL:    cfg.Store.StoreURL,
			Token:       cfg.Store.Token,
			APIVersion:  cfg.Store.APIVersion,
			Fingerprint: cfg.TLSFingerprint,
		})
	case config.AdapterWooCommerce:
		return woocommerce.New(woocommerce.Config{
			StoreURL:      cfg.Store.StoreURL,
			BatchStrategy: woocommerce.BatchStrategy(cfg.Store.BatchStrategy),
			Fingerprint:   cfg.TLSFingerprint,
		})
	case config.AdapterMemory:
		return adapter.NewMemoryCartService(nil), nil
	default:
		return nil, fmt.Errorf("unsupported adapter type: %s", cfg.AdapterType)
	}
}

// createPointerStore returns the pointer store and a func that releases it.
func createPointerStore(ctx context.Context, cfg *config.Config) (adapter.PointerStore, func(), error) {
	p := cfg.Pointers
	switch p.Backend {
	case config.PointerStoreMemory:
		return pointerstore.NewMemory(), func() {}, nil
	case config.PointerStoreFirestore:
		fs, err := pointerstore.NewFirestore(ctx, p.FirestoreProject, p.FirestoreCollection, p.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return fs, closer(fs), nil
	case config.PointerStoreRedis:
		rs, err := pointerstore.NewRedis(ctx, pointerstore.RedisConfig{
			Addr:     p.RedisAddr,
			Password: p.RedisPassword,
			DB:       p.RedisDB,
			TTL:      p.TTL.Std(),
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, closer(rs), nil
	default:
		return nil, nil, fmt.Errorf("unsupported pointer backend: %s", p.Backend)
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("closing pointer store", slog.String("error", err.Error()))
		}
	}
}

func createSessionProvider(ctx context.Context, cfg *config.Config) (session.Provider, error) {
	switch cfg.Session.Provider {
	case config.SessionProviderHeader:
		return session.HeaderProvider{}, nil
	case config.SessionProviderFirebase:
		verifier, err := session.NewFirebaseVerifier(ctx, cfg.Session.FirebaseProject)
		if err != nil {
			return nil, err
		}
		return session.NewFirebaseProvider(verifier), nil
	case config.SessionProviderJWT:
		return session.NewJWTProvider(cfg.Session.JWTSecret, cfg.Session.JWTIssuer), nil
	default:
		return nil, fmt.Errorf("unsupported session provider: %s", cfg.Session.Provider)
	}
}

// createCache picks the per-session snapshot store: a TOML file under
// CacheDir when set, memory otherwise.
func createCache(cfg *config.Config, sessionID string) (localcache.Cache, error) {
	if cfg.CacheDir == "" {
		return localcache.NewMemory(), nil
	}
	return localcache.NewFile(cfg.CacheDir, sessionID)
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(os.Getenv("LOG_LEVEL")))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
