// internal/handler/library_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-bridge/internal/model"
	"serial-bridge/internal/service"
	"serial-bridge/internal/utils"
)

// LibraryHandler serves sketches, boards and serial ports
type LibraryHandler struct {
	libraryService *service.LibraryService
	logger         *utils.ServiceLogger
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(libraryService *service.LibraryService, logger *zap.Logger) *LibraryHandler {
	return &LibraryHandler{
		libraryService: libraryService,
		logger:         utils.NewServiceLogger(logger, "library-handler"),
	}
}

// RegisterRoutes registers sketch, board and port routes
func (h *LibraryHandler) RegisterRoutes(router *gin.RouterGroup) {
	sketches := router.Group("/sketches")
	{
		sketches.GET("", h.ListSketches)
		sketches.PUT("", h.SaveSketches)
		sketches.GET("/:name", h.GetSketch)
	}
	router.GET("/boards", h.ListBoards)
	router.GET("/ports", h.ListPorts)
}

// ListSketches returns all stored sketches
func (h *LibraryHandler) ListSketches(c *gin.Context) {
	sketches, err := h.libraryService.ListSketches(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list sketches", zap.Error(err))
		respondError(c, "Failed to list sketches", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sketches retrieved", sketches)
}

// GetSketch returns one sketch by name
func (h *LibraryHandler) GetSketch(c *gin.Context) {
	sketch, err := h.libraryService.GetSketch(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, "Failed to get sketch", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sketch retrieved", sketch)
}

// SaveSketches replaces the stored sketch list with the request body
// @Summary Save sketches
// @Tags Sketches
// @Accept json
// @Produce json
// @Param request body []model.Sketch true "Complete sketch list"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse "Invalid sketch list"
// @Router /sketches [put]
func (h *LibraryHandler) SaveSketches(c *gin.Context) {
	var sketches []model.Sketch
	if err := c.ShouldBindJSON(&sketches); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.libraryService.SaveSketches(c.Request.Context(), sketches); err != nil {
		respondError(c, "Failed to save sketches", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sketches saved", gin.H{"count": len(sketches)})
}

// ListBoards returns the supported boards
func (h *LibraryHandler) ListBoards(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Boards retrieved", h.libraryService.Boards())
}

// ListPorts lists serial ports present on the host
func (h *LibraryHandler) ListPorts(c *gin.Context) {
	ports, err := h.libraryService.ListPorts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Ports retrieved", gin.H{
		"count": len(ports),
		"ports": ports,
	})
}
