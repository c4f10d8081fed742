package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/auth"
	"github.com/abduss/clientdrop/internal/config"
	"github.com/abduss/clientdrop/internal/file"
	"github.com/abduss/clientdrop/internal/logger"
	"github.com/abduss/clientdrop/internal/metrics"
	"github.com/abduss/clientdrop/internal/share"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config       config.Config
	Log          *zap.Logger
	AuthService  *auth.Service
	FileService  *file.Service
	ShareService *share.Service
	// StaticDir is served under Config.Storage.PublicPrefix when set (local backend only).
	StaticDir string
	Checks    []ReadinessCheck
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	metrics.Init()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware(log))
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps.Checks)
	if path := deps.Config.Metrics.PrometheusPath; path != "" {
		metrics.Register(router, path)
	}

	if deps.StaticDir != "" {
		router.Static(deps.Config.Storage.PublicPrefix, deps.StaticDir)
	}

	api := router.Group("/api")
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService)

		protected := api.Group("")
		protected.Use(auth.AuthMiddleware(deps.AuthService))

		if deps.FileService != nil {
			file.RegisterRoutes(protected, deps.FileService, log)
		}
		if deps.ShareService != nil {
			share.NewHandler(deps.ShareService, deps.Config.Server.PublicURL, log).RegisterRoutes(protected, api)
		}
	}

	return router
}

// NewHandler wraps the router with CORS handling.
func NewHandler(deps Dependencies) http.Handler {
	router := NewRouter(deps)

	origins := deps.Config.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logger.CorrelationIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", logger.CorrelationIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(router)
}
