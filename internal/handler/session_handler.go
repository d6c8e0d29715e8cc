// internal/handler/session_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-bridge/internal/service"
	"serial-bridge/internal/utils"
)

// SessionHandler handles the serial session REST endpoints
type SessionHandler struct {
	sessionService *service.SessionService
	logger         *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         utils.NewServiceLogger(logger, "session-handler"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	s := router.Group("/session")
	{
		s.GET("", h.GetStatus)
		s.POST("/connect", h.Connect)
		s.POST("/disconnect", h.Disconnect)
		s.POST("/send", h.Send)
		s.POST("/upload", h.Upload)
		s.POST("/upload/cancel", h.CancelUpload)
		s.GET("/records", h.GetRecords)
		s.DELETE("/records", h.ClearRecords)
	}
}

// Connect opens the serial port
// @Summary Connect to a serial port
// @Tags Session
// @Accept json
// @Produce json
// @Param request body service.ConnectRequest true "Port, baud rate and board"
// @Success 200 {object} utils.APIResponse{data=model.Connection}
// @Failure 404 {object} utils.APIResponse "No port granted"
// @Failure 409 {object} utils.APIResponse "Already open"
// @Failure 502 {object} utils.APIResponse "Port could not be opened"
// @Router /session/connect [post]
func (h *SessionHandler) Connect(c *gin.Context) {
	var req service.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	conn, err := h.sessionService.Connect(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("Connect failed", zap.String("port", req.Port), zap.Error(err))
		respondError(c, "Failed to connect", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Connected", conn)
}

// Disconnect closes the serial port
// @Summary Disconnect the serial port
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=session.Status}
// @Router /session/disconnect [post]
func (h *SessionHandler) Disconnect(c *gin.Context) {
	if err := h.sessionService.Disconnect(c.Request.Context()); err != nil {
		h.logger.Error("Disconnect failed", zap.Error(err))
		respondError(c, "Failed to disconnect", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Disconnected", h.sessionService.Status())
}

// GetStatus returns the connection and current upload job
func (h *SessionHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Session status", h.sessionService.Status())
}

// Send writes a line of text to the device
// @Summary Send a line
// @Tags Session
// @Accept json
// @Produce json
// @Param request body service.SendRequest true "Text to send, a newline is appended"
// @Success 200 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse "Not open or upload in progress"
// @Router /session/send [post]
func (h *SessionHandler) Send(c *gin.Context) {
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.sessionService.Send(c.Request.Context(), &req); err != nil {
		respondError(c, "Failed to send", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sent", gin.H{"bytes": len(req.Text) + 1})
}

// Upload starts an upload job and returns immediately
// @Summary Upload a payload
// @Tags Session
// @Accept json
// @Produce json
// @Param request body service.UploadRequest true "One of sketch, payload or payload_base64"
// @Success 202 {object} utils.APIResponse{data=model.UploadJob}
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Not open or upload in progress"
// @Router /session/upload [post]
func (h *SessionHandler) Upload(c *gin.Context) {
	var req service.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	job, err := h.sessionService.Upload(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to start upload", err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Upload started", job)
}

// CancelUpload requests cancellation of the running upload
func (h *SessionHandler) CancelUpload(c *gin.Context) {
	job, err := h.sessionService.CancelUpload()
	if err != nil {
		respondError(c, "Failed to cancel upload", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Cancellation requested", job)
}

// GetRecords returns buffered inbound records, oldest first
func (h *SessionHandler) GetRecords(c *gin.Context) {
	records := h.sessionService.Records()
	utils.SuccessResponse(c, http.StatusOK, "Records retrieved", gin.H{
		"count":   len(records),
		"records": records,
	})
}

// ClearRecords drops buffered inbound records
func (h *SessionHandler) ClearRecords(c *gin.Context) {
	h.sessionService.ClearRecords()
	utils.SuccessResponse(c, http.StatusOK, "Records cleared", nil)
}
