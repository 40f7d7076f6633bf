// Package router wires handlers and middleware into the HTTP engine.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "stockroom/internal/docs" // Import swagger docs
	"stockroom/internal/handlers"
	"stockroom/internal/middleware"
	"stockroom/internal/services"
)

// Services bundles the service layer the routes dispatch to.
type Services struct {
	Category  services.CategoryServicer
	Item      services.ItemServicer
	Integrity services.IntegrityServicer
	Audit     services.AuditServicer
}

// Options holds the request-level secrets.
type Options struct {
	JWTSecret         string
	CatalogAPIKeyHash string
}

// New builds the gin engine with every API route registered.
func New(svc Services, opts Options) *gin.Engine {
	categoryHandler := handlers.NewCategoryHandler(svc.Category, svc.Item, svc.Integrity, svc.Audit)
	itemHandler := handlers.NewItemHandler(svc.Item, svc.Audit)
	catalogHandler := handlers.NewCatalogHandler(svc.Category)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Item catalog collaborator, authenticated by API key
	catalog := v1.Group("/catalog")
	catalog.Use(middleware.CatalogKeyMiddleware(opts.CatalogAPIKeyHash))
	catalog.GET("/categories/:id/exists", catalogHandler.CategoryExists)

	// Operator routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(opts.JWTSecret))

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.ListCategories)
	categories.GET("/tree", categoryHandler.GetTree)
	categories.GET("/children", categoryHandler.ListChildren)
	categories.GET("/integrity", categoryHandler.CheckIntegrity)
	categories.GET("/:id", categoryHandler.GetCategory)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)
	categories.GET("/:id/breadcrumb", categoryHandler.GetBreadcrumb)
	categories.POST("/:id/move", categoryHandler.MoveCategory)
	categories.GET("/:id/item-count", categoryHandler.GetItemCount)
	categories.GET("/:id/descendants", categoryHandler.GetDescendants)
	categories.GET("/:id/move-targets", categoryHandler.GetMoveTargets)
	categories.GET("/:id/items", categoryHandler.ListCategoryItems)

	items := protected.Group("/items")
	items.POST("", itemHandler.CreateItem)
	items.GET("/:id", itemHandler.GetItem)

	return router
}
