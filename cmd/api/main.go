package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"stockroom/internal/cache"
	"stockroom/internal/config"
	"stockroom/internal/database"
	"stockroom/internal/logger"
	"stockroom/internal/router"
	"stockroom/internal/services"
	"stockroom/internal/validator"
)

// @title           Stockroom API
// @version         1.0
// @description     Stockroom files warehouse catalog items under a three-level category tree.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig(appConfig)
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	// Run migrations
	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	db := dbManager.DB()

	// The API refuses to start without its fallback category.
	sentinel, err := services.ResolveSentinel(db, appConfig.SentinelID, appConfig.SentinelName)
	if err != nil {
		return fmt.Errorf("failed to resolve fallback category: %w", err)
	}
	log.Infow("fallback category resolved", "sentinel_id", sentinel.ID, "name", sentinel.Name)

	breadcrumbs, err := newBreadcrumbCache(appConfig)
	if err != nil {
		return fmt.Errorf("failed to connect breadcrumb cache: %w", err)
	}

	validator.Register()

	// Initialize services
	itemService := services.NewItemService(db)
	svc := router.Services{
		Category:  services.NewCategoryService(db, itemService, breadcrumbs, sentinel.ID),
		Item:      itemService,
		Integrity: services.NewIntegrityService(db, breadcrumbs, sentinel.ID),
		Audit:     services.NewAuditService(db),
	}

	if appConfig.CatalogAPIKeyHash == "" {
		log.Warn("CATALOG_API_KEY_HASH not set, catalog endpoints will answer 503")
	}

	engine := router.New(svc, router.Options{
		JWTSecret:         appConfig.JWTSecret,
		CatalogAPIKeyHash: appConfig.CatalogAPIKeyHash,
	})

	log.Infof("Starting Stockroom server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return engine.Run(":" + appConfig.Port)
}

// newBreadcrumbCache picks Redis when REDIS_ADDR is set so every API
// instance sees the same invalidations, otherwise a process-local cache.
func newBreadcrumbCache(cfg *config.Config) (cache.BreadcrumbCache, error) {
	if cfg.RedisAddr == "" {
		logger.Get().Info("REDIS_ADDR not set, using in-process breadcrumb cache")
		return cache.NewMemory(), nil
	}
	client, err := cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return cache.NewRedis(client, cfg.BreadcrumbTTL), nil
}
