// main.go
//
// A compliance report review and analysis-agent gateway service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reportdesk.
// reportdesk is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reportdesk is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reportdesk.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/localnerve/reportdesk/internal/agents"
	"github.com/localnerve/reportdesk/internal/app"
	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/confirm"
	"github.com/localnerve/reportdesk/internal/handlers"
	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/logging"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/realtime"
	"github.com/localnerve/reportdesk/internal/review"
	"github.com/localnerve/reportdesk/internal/store"
	"go.uber.org/zap"

	_ "github.com/localnerve/reportdesk/docs/api" // Swagger docs
)

// @title reportdesk API
// @version 1.0.0
// @description Compliance report review and analysis-agent gateway
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/reportdesk
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name session

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "reportdesk")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	// Backend, change stream and identity provider
	backend, err := app.Open(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to open backend", zap.Error(err))
	}
	defer backend.Close()

	// Run auto-migrations
	if err := backend.Migrate(); err != nil {
		zlog.Fatal("Failed to run migrations", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go backend.RunBridge(ctx)

	auth := identity.NewAppContext(backend.Identity, backend.Store, zlog)
	if err := auth.Init(ctx); err != nil {
		zlog.Fatal("Failed to initialize identity context", zap.Error(err))
	}
	defer auth.Dispose()
	auth.OnChange(func(c identity.Change) {
		zlog.Debug("auth state change", zap.String("kind", string(c.Kind)))
	})

	// Live active-site directory; the hosted backend is read per request
	var sites *realtime.View[models.Site]
	if cfg.BackendMode == config.BackendDatabase {
		initialSites, err := backend.Store.ListSites(ctx, true)
		if err != nil {
			zlog.Fatal("Failed to load sites", zap.Error(err))
		}
		sites = realtime.NewView(backend.Hub, store.TableSites, initialSites, realtime.SitesByName,
			func(s models.Site) bool { return s.IsActive }, zlog)
		defer sites.Close()
	}

	var pending confirm.Store = confirm.NewMemoryStore()
	if backend.Redis != nil {
		pending = confirm.NewRedisStore(backend.Redis, "reportdesk:confirm:", zlog)
	}

	deps := handlers.Deps{
		Config:  cfg,
		Store:   backend.Store,
		Auth:    auth,
		Reviews: review.NewService(backend.Store, zlog),
		Uploads: agents.NewService(backend.Webhooks, agents.NewRegistry(cfg.Agents), backend.Store, zlog),
		Confirm: confirm.NewFlow(pending, cfg.ConfirmTTL, zlog),
		Hub:     backend.Hub,
		Sites:   sites,
		Log:     zlog,
	}
	handlers.RegisterActions(deps.Confirm, deps)

	// Create Fiber app
	server := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    cfg.UploadMaxBytes,
		// agent webhooks can take minutes
		ReadTimeout:  cfg.WebhookTimeout + 30*time.Second,
		WriteTimeout: cfg.WebhookTimeout + 30*time.Second,
	})

	// Global middleware
	server.Use(recover.New())
	server.Use(logger.New())
	server.Use(compress.New(compress.Config{
		// the event stream must not be buffered
		Next: func(c *fiber.Ctx) bool { return c.Path() == "/api/events" },
	}))

	// Prometheus metrics
	prometheus := fiberprometheus.New("reportdesk")
	prometheus.RegisterAt(server, "/metrics")
	server.Use(prometheus.Middleware)

	// Swagger documentation
	server.Get("/swagger/*", swagger.HandlerDefault)

	// API routes under /api
	handlers.Register(server.Group("/api"), deps)

	// 404 handler
	server.Use(handlers.NotFound)

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		zlog.Info("Gracefully shutting down...")
		cancel()
		_ = server.ShutdownWithTimeout(10 * time.Second)
	}()

	// Start server
	zlog.Info("Starting server", zap.String("port", cfg.Port), zap.String("backend", cfg.BackendMode),
		zap.String("identity", backend.Identity.Name()))
	if err := server.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("Failed to start server", zap.Error(err))
	}

	zlog.Info("Server stopped")
}
