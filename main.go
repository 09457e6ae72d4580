package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pivotdesk/adapters/compute"
	"pivotdesk/adapters/excel"
	"pivotdesk/adapters/memory"
	"pivotdesk/adapters/postgres"
	"pivotdesk/adapters/redis"
	"pivotdesk/app"
	"pivotdesk/internal"
	"pivotdesk/internal/api"
	"pivotdesk/internal/config"
	"pivotdesk/internal/errors"
	"pivotdesk/internal/migration"
	"pivotdesk/ports"
	"pivotdesk/ui"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

// initDatabase connects to PostgreSQL and applies migrations. An empty
// DATABASE_URL disables saved configurations and returns a nil DB.
func initDatabase(ctx context.Context, appConfig *config.Config) (*sqlx.DB, error) {
	if appConfig.Database.URL == "" {
		return nil, nil
	}

	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}
	return db, nil
}

// initCache picks Redis when REDIS_URL is set, otherwise the in-process cache
func initCache(appConfig *config.Config, logger *internal.Logger) (ports.ResultCache, func(), error) {
	if appConfig.Cache.RedisURL == "" {
		logger.Info("using in-process result cache (ttl %s, %d entries)", appConfig.Cache.TTL, appConfig.Cache.MaxEntries)
		return memory.NewResultCache(appConfig.Cache.MaxEntries, appConfig.Cache.TTL), func() {}, nil
	}
	cache, err := redis.NewResultCache(appConfig.Cache.RedisURL, appConfig.Cache.TTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis result cache (ttl %s)", appConfig.Cache.TTL)
	return cache, func() { cache.Close() }, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.NewLogger(internal.ParseLogLevel(appConfig.LogLevel))
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, appConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	var configs ports.ConfigurationRepository
	if db != nil {
		defer db.Close()
		configs = postgres.NewConfigurationRepository(db)
		logger.Info("saved configurations enabled")
	} else {
		logger.Warn("DATABASE_URL not set, saved configurations disabled")
	}

	cache, closeCache, err := initCache(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to initialize result cache: %v", err)
	}
	defer closeCache()

	computeClient, err := compute.NewClient(compute.Config{
		BaseURL: appConfig.Compute.URL,
		APIKey:  appConfig.Compute.APIKey,
		Timeout: appConfig.Compute.Timeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create compute client: %v", err)
	}

	hub := api.NewSSEHub(logger)

	excelConfig := excel.DefaultExcelConfig()
	excelConfig.Dir = appConfig.Data.Dir

	pivots := app.NewPivotService(app.PivotServiceDeps{
		Catalogs: excel.NewCatalogSource(excelConfig),
		Compute:  computeClient,
		Cache:    cache,
		Configs:  configs,
		Exporter: excel.NewWorkbookExporter(),
		Events:   hub,
		Logger:   logger,
	}, app.PivotServiceConfig{
		DefaultDecimals:       appConfig.Pivot.DefaultDecimals,
		MaxConcurrentComputes: int64(appConfig.Compute.MaxConcurrent),
	})

	server, err := ui.NewServer(pivots, hub, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, ":"+appConfig.Server.Port)
	})
	g.Go(func() error {
		pruneIdleSessions(gctx, pivots, appConfig.Pivot.SessionIdleTTL, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// pruneIdleSessions drops sessions untouched for longer than idle until ctx
// is done
func pruneIdleSessions(ctx context.Context, pivots *app.PivotService, idle time.Duration, logger *internal.Logger) {
	if idle <= 0 {
		return
	}
	interval := idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := pivots.PruneIdle(idle); n > 0 {
				logger.Info("pruned %d idle sessions, %d open", n, pivots.SessionCount())
			}
		}
	}
}
