// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-bridge/internal/config"
	"serial-bridge/internal/database"
	"serial-bridge/internal/handler"
	"serial-bridge/internal/middleware"
	"serial-bridge/internal/service"
	"serial-bridge/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	db             *database.DB
	sessionService *service.SessionService
	libraryService *service.LibraryService

	wsHandler *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db may be nil.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	sessionService *service.SessionService,
	libraryService *service.LibraryService,
) *Router {
	return &Router{
		config:         config,
		logger:         logger,
		db:             db,
		sessionService: sessionService,
		libraryService: libraryService,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.App.Environment == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// Close stops the WebSocket event stream and drops its clients
func (r *Router) Close() {
	if r.wsHandler != nil {
		r.wsHandler.Close()
	}
}

func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Debug("Middleware configured")
}

func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.sessionService, r.config, r.logger)
	sessionHandler := handler.NewSessionHandler(r.sessionService, r.logger)
	libraryHandler := handler.NewLibraryHandler(r.libraryService, r.logger)
	r.wsHandler = handler.NewWebSocketHandler(r.sessionService, r.config.Security.AllowedOrigins, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(router)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	sessionHandler.RegisterRoutes(apiV1)
	libraryHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	r.wsHandler.RegisterRoutes(router)

	r.logger.Info("All routes configured successfully")
}
