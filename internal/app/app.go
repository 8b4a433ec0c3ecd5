// Package app opens the backend collaborators selected by configuration.
package app

import (
	"context"
	"fmt"

	"github.com/localnerve/reportdesk/internal/agents"
	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/database"
	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/services"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Backend is the set of opened collaborators
type Backend struct {
	Config   *config.Config
	DB       *gorm.DB // nil in postgrest mode
	Store    store.Store
	Redis    *redis.Client // nil without REDIS_ADDR
	Hub      *realtime.Hub
	Bridge   *realtime.RedisBridge // nil without REDIS_ADDR
	Identity identity.Provider
	Webhooks *agents.Client

	log *zap.Logger
}

// Open connects the backend, the optional Redis change stream and the identity provider
func Open(cfg *config.Config, log *zap.Logger) (*Backend, error) {
	b := &Backend{
		Config:   cfg,
		Hub:      realtime.NewHub(log),
		Webhooks: agents.NewClient(cfg.WebhookTimeout, cfg.BugReportURL, cfg.ConfirmationEmailURL, log),
		log:      log,
	}

	var publisher realtime.Publisher = b.Hub
	if cfg.RedisAddr != "" {
		b.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b.Bridge = realtime.NewRedisBridge(b.Redis, cfg.EventsStream, b.Hub, log)
		publisher = b.Bridge
	}

	switch cfg.BackendMode {
	case config.BackendPostgREST:
		b.Store = store.NewPostgRESTStore(cfg.PostgRESTURL, cfg.PostgRESTAPIKey, cfg.WebhookTimeout, publisher, log)
	default:
		db, err := database.Connect(cfg, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.DB = db
		b.Store = store.NewGormStore(db, publisher, log)
	}

	provider, err := b.provider()
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Identity = provider

	return b, nil
}

func (b *Backend) provider() (identity.Provider, error) {
	cfg := b.Config
	switch cfg.IdentityProvider {
	case config.IdentityGoTrue:
		return identity.NewGoTrueProvider(cfg.GoTrueURL, cfg.GoTrueAPIKey, cfg.WebhookTimeout, b.log), nil
	case config.IdentityAuthorizer:
		return identity.NewAuthorizerProvider(cfg.AuthzURL, cfg.AuthzClientID, cfg.PublicURL, b.log)
	case config.IdentityLocal:
		creds, ok := b.Store.(*store.GormStore)
		if !ok {
			return nil, fmt.Errorf("the local identity provider requires the database backend")
		}
		return identity.NewLocalProvider(creds, b.Webhooks, cfg.JWTSecret, cfg.SessionTTL, cfg.RecoveryTTL, b.log), nil
	}
	return nil, fmt.Errorf("unsupported identity provider: %s", cfg.IdentityProvider)
}

// Migrate creates the tables for the database backend
func (b *Backend) Migrate() error {
	if b.DB == nil {
		return nil
	}
	return database.AutoMigrate(b.DB)
}

// RunBridge consumes the shared change stream until ctx is done; a no-op without Redis
func (b *Backend) RunBridge(ctx context.Context) {
	if b.Bridge == nil {
		return
	}
	if err := b.Bridge.Run(ctx); err != nil {
		b.log.Error("change stream bridge stopped", zap.Error(err))
	}
}

// Checks returns what the health check pings
func (b *Backend) Checks() services.Checks {
	return services.Checks{Store: b.Store, Identity: b.Identity, Redis: b.Redis}
}

// Close releases the database pool and the Redis client
func (b *Backend) Close() {
	if b.DB != nil {
		if err := database.Close(b.DB); err != nil {
			b.log.Warn("failed to close database", zap.Error(err))
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			b.log.Warn("failed to close redis", zap.Error(err))
		}
	}
}
