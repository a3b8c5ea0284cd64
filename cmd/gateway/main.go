package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/relaybot/interaction-gateway/internal/cache"
	"github.com/relaybot/interaction-gateway/internal/gateway"
	"github.com/relaybot/interaction-gateway/internal/identity"
	"github.com/relaybot/interaction-gateway/internal/platform/config"
	"github.com/relaybot/interaction-gateway/internal/platform/database"
	"github.com/relaybot/interaction-gateway/internal/platform/server"
	"github.com/relaybot/interaction-gateway/internal/platform/telemetry"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

const drainTimeout = 10 * time.Second

// credentialSource is what both the router and the forwarder need from the
// identity layer.
type credentialSource interface {
	gateway.KeySource
	gateway.TokenSource
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("interaction gateway starting",
		"port", cfg.Server.Port,
		"public_bot_id", cfg.Bot.PublicID,
	)

	ctx := context.Background()

	if cfg.Telemetry.TracingEnabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, nil, logger)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	public, err := buildPublicBot(cfg.Bot)
	if err != nil {
		return err
	}

	var pool *database.Pool
	if cfg.Database.URL != "" {
		slog.Info("connecting to database")
		pool, err = database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
	} else {
		slog.Warn("no database configured, whitelabel bots will not resolve")
	}

	store, err := buildStore(pool, cfg.Identity)
	if err != nil {
		return err
	}
	credentials := buildCredentials(public, store, cfg.Identity)

	entityCache, redisClient, err := buildEntityCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	populator := gateway.NewPopulator(entityCache, logger, cfg.Cache.WriteTimeout())
	forwarder := gateway.NewForwarder(cfg.Worker.URL, credentials, gateway.NewHTTPClient(cfg.Worker.Timeout()))
	router := gateway.NewRouter(credentials, forwarder, populator)

	deps := server.Dependencies{
		Pool:               pool,
		InteractionHandler: gateway.NewHandler(router, logger),
		Logger:             logger,
		TracingEnabled:     cfg.Telemetry.TracingEnabled,
		ServiceName:        cfg.Telemetry.ServiceName,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, deps)

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("server ready", "addr", addr, "worker_url", cfg.Worker.URL)
	serveErr := srv.Start(ctx)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if err := populator.Wait(drainCtx); err != nil {
		slog.Warn("cache writes still pending at shutdown", "error", err)
	}

	return serveErr
}

func buildPublicBot(cfg config.BotConfig) (identity.PublicBot, error) {
	id, err := snowflake.Parse(cfg.PublicID)
	if err != nil {
		return identity.PublicBot{}, fmt.Errorf("bot.public_id: %w", err)
	}
	key, err := identity.ParsePublicKey(cfg.PublicKey)
	if err != nil {
		return identity.PublicBot{}, fmt.Errorf("bot.public_key: %w", err)
	}
	return identity.PublicBot{
		ID:         id,
		Credential: identity.Credential{PublicKey: key, Token: cfg.PublicToken},
	}, nil
}

// buildStore returns nil without a database so the resolver reports every
// whitelabel bot as unknown.
func buildStore(pool *database.Pool, cfg config.IdentityConfig) (identity.Store, error) {
	if pool == nil {
		return nil, nil
	}

	var opener *identity.TokenOpener
	if cfg.CredentialKey != "" {
		o, err := identity.NewTokenOpener(cfg.CredentialKey)
		if err != nil {
			return nil, fmt.Errorf("identity.credential_key: %w", err)
		}
		opener = o
	}
	return identity.NewPostgresStore(pool, opener), nil
}

func buildCredentials(public identity.PublicBot, store identity.Store, cfg config.IdentityConfig) credentialSource {
	resolver := identity.NewResolver(public, store)
	if cfg.CacheTTL() <= 0 {
		return resolver
	}
	slog.Info("whitelabel credential cache enabled",
		"ttl", cfg.CacheTTL().String(),
		"size", cfg.CacheSize,
	)
	return identity.NewCachingResolver(resolver, cfg.CacheSize, cfg.CacheTTL())
}

// buildEntityCache connects redis when an address is configured. Without one
// entity caching is a no-op.
func buildEntityCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, *redis.Client, error) {
	if cfg.Addr == "" {
		slog.Warn("no redis configured, interaction entities will not be cached")
		return cache.NopCache{}, nil, nil
	}

	client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		KeyPrefix: cfg.KeyPrefix,
		TTL:       cfg.TTL(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return cache.NewRedisCache(client, cfg.KeyPrefix, cfg.TTL()), client, nil
}
