package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/edumsg/internal/model"
)

// retryAfterSeconds is advertised when the read position is contended
const retryAfterSeconds = "1"

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrAlreadyParticipant):
		return http.StatusConflict
	case errors.Is(err, model.ErrConcurrencyExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrAttachmentFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error response for err. Internal errors are logged
// and not exposed.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, model.ErrorResponse{Error: "Internal server error"})
		return
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", retryAfterSeconds)
	case http.StatusBadGateway:
		slog.Warn("attachment storage failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, model.ErrorResponse{Error: err.Error()})
}

// paramID parses a positive int64 path parameter
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return id, true
}
