// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-bridge/internal/config"
	"serial-bridge/internal/database"
	"serial-bridge/internal/service"
	"serial-bridge/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db             *database.DB // nil when sketches are kept in memory
	sessionService *service.SessionService
	config         *config.Config
	startedAt      time.Time
	logger         *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, sessionService *service.SessionService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:             db,
		sessionService: sessionService,
		config:         config,
		startedAt:      time.Now(),
		logger:         utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports database connectivity and the serial session state.
// A closed or failed serial connection does not make the service unhealthy.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	if h.db != nil {
		if err := h.db.HealthCheck(); err != nil {
			h.logger.Warn("Database health check failed", zap.Error(err))
			health.Status = "unhealthy"
			health.Checks["database"] = CheckResult{Status: "unhealthy", Message: err.Error()}
		} else {
			stats := h.db.GetStats()
			health.Checks["database"] = CheckResult{
				Status:  "healthy",
				Message: "Database connection OK",
				Data: map[string]any{
					"open_connections": stats.OpenConnections,
					"in_use":           stats.InUse,
					"idle":             stats.Idle,
				},
			}
		}
	} else {
		health.Checks["database"] = CheckResult{Status: "disabled", Message: "Sketches kept in memory"}
	}

	status := h.sessionService.Status()
	serial := CheckResult{
		Status: "healthy",
		Data: map[string]any{
			"state":         status.Connection.State,
			"port":          status.Connection.Port,
			"bytes_read":    status.Stats.BytesRead,
			"bytes_written": status.Stats.BytesWritten,
		},
	}
	if status.Connection.Error != "" {
		serial.Message = status.Connection.Error
	}
	health.Checks["serial"] = serial

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}

// ReadinessCheck reports whether the service can accept traffic
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.db != nil {
		if err := h.db.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "database not available",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck reports that the process is serving requests
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
