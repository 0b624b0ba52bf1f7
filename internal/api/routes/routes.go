package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/iotguard/guardd/internal/api/handlers"
	"github.com/iotguard/guardd/internal/api/middleware"
	"github.com/iotguard/guardd/internal/config"
	"github.com/iotguard/guardd/internal/engine"
	"github.com/iotguard/guardd/internal/services"
)

// Deps carries the shared components the API surfaces.
type Deps struct {
	DB       *gorm.DB
	Store    *config.Store
	Engine   *engine.Engine
	Actions  *services.ActionService
	Auth     *services.AuthService
	Registry *prometheus.Registry
}

// Register wires up the API routes.
func Register(router *gin.Engine, deps Deps) {
	router.GET("/api/v1/health", handlers.HealthHandler)

	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")

	authHandler := handlers.NewAuthHandler(deps.Auth)
	api.POST("/auth/login", authHandler.Login)

	statusHandler := handlers.NewStatusHandler(deps.Store, deps.Engine, deps.Actions)
	api.GET("/status", statusHandler.GetStatus)
	api.GET("/decisions", statusHandler.ListDecisions)
	api.GET("/sources", statusHandler.ListSources)
	api.GET("/sources/blocked", statusHandler.ListBlocked)

	eventHandler := handlers.NewEventHandler(deps.Engine)
	api.POST("/events", eventHandler.Ingest)

	// Mutating source operations require an authenticated admin.
	sourceHandler := handlers.NewSourceHandler(deps.Engine, deps.Actions)
	admin := api.Group("/sources")
	admin.Use(middleware.AuthMiddleware(deps.Auth), middleware.RequireRole("admin"))
	admin.POST("/:id/unblock", sourceHandler.Unblock)
}
