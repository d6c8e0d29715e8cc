// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"serial-bridge/internal/protocol"
	"serial-bridge/internal/repository"
	"serial-bridge/internal/service"
	"serial-bridge/internal/session"
	"serial-bridge/internal/utils"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Ordered: the first sentinel found in the chain wins
var errorMappings = []errorMapping{
	{service.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{repository.ErrInvalidSketch, http.StatusBadRequest, "INVALID_SKETCH"},
	{repository.ErrSketchNotFound, http.StatusNotFound, "SKETCH_NOT_FOUND"},
	{protocol.ErrPortUnavailable, http.StatusNotFound, "PORT_UNAVAILABLE"},
	{protocol.ErrAlreadyOpen, http.StatusConflict, "ALREADY_OPEN"},
	{protocol.ErrNotOpen, http.StatusConflict, "NOT_OPEN"},
	{session.ErrUploadInProgress, http.StatusConflict, "UPLOAD_IN_PROGRESS"},
	{session.ErrNoActiveUpload, http.StatusNotFound, "NO_ACTIVE_UPLOAD"},
	{protocol.ErrOpenFailed, http.StatusBadGateway, "OPEN_FAILED"},
	{protocol.ErrWriteFailed, http.StatusBadGateway, "WRITE_FAILED"},
	{context.DeadlineExceeded, http.StatusRequestTimeout, "TIMEOUT"},
}

// classifyError maps a domain error to an HTTP status and error code
func classifyError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
}

func respondError(c *gin.Context, message string, err error) {
	status, code := classifyError(err)
	utils.CodedErrorResponse(c, status, code, message, err)
}
