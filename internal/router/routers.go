package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/viewtube/backend/config"
	"github.com/viewtube/backend/internal/handler"
	"github.com/viewtube/backend/internal/middleware"
)

type Router struct {
	authHandler   *handler.AuthHandler
	userHandler   *handler.UserHandler
	healthHandler *handler.HealthHandler

	authMw       *middleware.AuthMiddleware
	limiterStore middleware.LimiterStore
	Config       *config.Config
}

func NewRouter(
	auth *handler.AuthHandler,
	user *handler.UserHandler,
	health *handler.HealthHandler,
	authMw *middleware.AuthMiddleware,
	limiterStore middleware.LimiterStore,
	config *config.Config,
) *Router {
	return &Router{
		authHandler:   auth,
		userHandler:   user,
		healthHandler: health,
		authMw:        authMw,
		limiterStore:  limiterStore,
		Config:        config,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	if r.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = r.Config.Upload.MaxFileSize

	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.CORS(r.Config.CORS.Origin))
	router.Use(middleware.ContextMiddleware("api", r.Config.App.Timeout))

	api := router.Group("/api")
	{
		api.GET("/health", r.healthHandler.HealthCheck)

		v1 := api.Group("/v1")
		{
			v1.Use(middleware.RateLimit(
				r.limiterStore,
				r.Config.RateLimit.Request,
				time.Duration(r.Config.RateLimit.Duration)*time.Second,
			))

			r.userRoutes(v1)
		}
	}

	return router
}
