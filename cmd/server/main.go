package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/config"
	"github.com/diewo77/bloodboard/internal/db"
	"github.com/diewo77/bloodboard/internal/identity"
	"github.com/diewo77/bloodboard/internal/logging"
	"github.com/diewo77/bloodboard/internal/policy"
	"github.com/diewo77/bloodboard/internal/realtime"
)

const (
	membershipCacheTTL = 5 * time.Minute
	memoryCacheSize    = 1024
	shutdownTimeout    = 10 * time.Second
)

var migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, "bloodboard")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gdb, err := db.Connect(cfg.Database, logger, cfg.Log.Level == "debug")
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.Migrate(gdb, cfg.Database.Migrations, logger); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
	if *migrateOnlyFlag {
		logger.Info("Migrations completed successfully")
		return
	}

	// Change feed and view cache: Redis when configured, in-process otherwise.
	var (
		feed  realtime.Feed
		store cache.Store
	)
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
		feed = realtime.NewRedisFeed(rdb, logger.Named("realtime"))
		store = cache.NewRedis(rdb)
		logger.Info("Using redis change feed and cache", zap.String("addr", cfg.Redis.Addr))
	} else {
		feed = realtime.NewHub(logger.Named("realtime"))
		store = cache.NewMemory(memoryCacheSize, cfg.Server.CacheTTL)
		logger.Info("Using in-process change feed and cache")
	}
	defer feed.Close()

	// Cached views are dropped before browsers hear about a change and re-fetch.
	publisher := &cache.InvalidatingPublisher{
		Store:  store,
		Next:   feed,
		Paths:  []string{"/"},
		Logger: logger,
	}
	if err := db.Install(gdb, publisher, logger.Named("db")); err != nil {
		logger.Fatal("Failed to install store plugins", zap.Error(err))
	}

	// appCtx lives until shutdown: JWKS refreshes and websocket connections end with it.
	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	provider, verifier, err := newIdentity(appCtx, cfg, gdb, logger.Named("identity"))
	if err != nil {
		logger.Fatal("Failed to configure identity provider", zap.Error(err))
	}

	secure := strings.HasPrefix(cfg.Auth.SiteURL, "https://")
	sessions := auth.NewManager(cfg.Auth.SessionSecret, secure, verifier, provider, logger.Named("session"))

	relay := realtime.NewRelay(feed, logger.Named("relay"), "shortages", "centers")
	if host := siteHost(cfg.Auth.SiteURL); host != "" {
		relay.AllowOrigins(host)
	}

	app := NewApp(Deps{
		DB:       gdb,
		Gate:     policy.NewAuthGate(gdb, membershipCacheTTL),
		Sessions: sessions,
		Provider: provider,
		Cache:    store,
		CacheTTL: cfg.Server.CacheTTL,
		Relay:    relay,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	srv.BaseContext = func(net.Listener) context.Context { return appCtx }

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port), zap.String("auth_provider", cfg.Auth.Provider))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopApp()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

// newIdentity builds the configured identity provider and the verifier for its access tokens.
func newIdentity(ctx context.Context, cfg *config.Config, gdb *gorm.DB, logger *zap.Logger) (identity.Provider, auth.Verifier, error) {
	if cfg.Auth.Provider == "gotrue" {
		provider := identity.NewGoTrue(identity.GoTrueConfig{
			URL:            cfg.Auth.GoTrueURL,
			AnonKey:        cfg.Auth.AnonKey,
			ServiceRoleKey: cfg.Auth.ServiceRoleKey,
			SiteURL:        cfg.Auth.SiteURL,
		}, logger)
		if cfg.Auth.JWKSURL != "" {
			v, err := identity.NewJWKSVerifier(ctx, cfg.Auth.JWKSURL)
			if err != nil {
				return nil, nil, err
			}
			return provider, v, nil
		}
		return provider, identity.NewHS256Verifier(cfg.Auth.JWTSecret), nil
	}

	provider := identity.NewLocal(gdb, identity.LocalConfig{
		JWTSecret:                cfg.Auth.JWTSecret,
		RequireEmailConfirmation: cfg.Auth.RequireEmailConfirmation,
	}, nil, logger)
	return provider, identity.NewHS256Verifier(cfg.Auth.JWTSecret), nil
}

// siteHost returns the host[:port] of the public site URL, used as the websocket origin pattern.
func siteHost(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	return u.Host
}
