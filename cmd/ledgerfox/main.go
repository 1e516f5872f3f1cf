package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/alerts"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/archive"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/cache"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/database"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/events"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/gateway"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown error: %v", err)
	}
	shutdown()
}

// NewApplication wires storage, the reconciliation pipeline, the alert
// scheduler and the HTTP routes. The returned func stops background work.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	ctx := context.Background()
	gate := gateway.LoadProviderGate()
	publisher := events.NewPublisherFromEnv()
	settings := alerts.LoadSettings()

	proc := reconciliation.NewProcessor(reconciliation.ProcessorOptions{
		Repos:      repos,
		Gate:       gate,
		Mode:       gateway.ModeFromEnv(),
		StaleAfter: time.Duration(env.GetInt("WEBHOOK_STALE_AFTER_SECONDS", 300)) * time.Second,
		Archiver:   archive.NewFromEnv(ctx),
		Publisher:  publisher,
	})

	var locker alerts.Locker = cache.NewLocalLocker()
	var limiterStorage fiber.Storage
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := cache.Ping(pingCtx); err == nil {
		locker = cache.NewRedisLocker(cache.GetClient(), "ledgerfox:lock:")
		limiterStorage = cache.NewFiberStorage(cache.LimiterDatabase)
	} else {
		log.Warnf("[Cache] Redis unavailable, using in-process locks and limiter: %v", err)
	}
	cancel()

	alertService := alerts.NewService(repos, proc, settings, locker)
	scheduler := alerts.NewScheduler(alertService, proc.Ledger(), repos.Configuration, settings.SweepInterval)
	if env.GetEnv("ALERT_SCHEDULER_ENABLED", "true") == "true" {
		scheduler.Start()
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Dependencies{
		Repos:            repos,
		Processor:        proc,
		Alerts:           alertService,
		LimiterStorage:   limiterStorage,
		WebhookRateLimit: env.GetInt("WEBHOOK_RATE_LIMIT", 300),
		HealthChecks: map[string]func(ctx context.Context) error{
			"database": func(ctx context.Context) error {
				sqlDB, err := database.GetDB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"cache": cache.Ping,
		},
	})

	log.Infof("[Server] Gateway mode %s, enabled providers: %v", proc.Mode(), gate.Enabled())

	return app, func() {
		scheduler.Stop()
		if err := publisher.Close(); err != nil {
			log.Warnf("[Events] Close failed: %v", err)
		}
	}
}
