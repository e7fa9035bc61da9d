package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/edumsg/internal/middleware"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/service"
)

// NotificationHandler handles notification and device endpoints
type NotificationHandler struct {
	notifService *service.NotificationService
}

func NewNotificationHandler(notifService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifService: notifService}
}

// ListNotifications godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param unread_only query bool false "Only unread notifications"
// @Param limit query int false "Number of notifications (default: 50)"
// @Success 200 {array} model.Notification
// @Router /notifications [get]
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var req model.NotificationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request"})
		return
	}

	notifications, err := h.notifService.ListNotifications(c.Request.Context(), middleware.Identity(c), req.UnreadOnly, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, notifications)
}

// UnreadSummary godoc
// @Summary Unread badge over all conversations
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.UnreadSummary
// @Router /notifications/unread [get]
func (h *NotificationHandler) UnreadSummary(c *gin.Context) {
	summary, err := h.notifService.UnreadSummary(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// RegisterDevice godoc
// @Summary Register a push token
// @Tags Notifications
// @Accept json
// @Security BearerAuth
// @Param body body model.RegisterDeviceRequest true "Device"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /devices [post]
func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.notifService.RegisterDevice(c.Request.Context(), middleware.Identity(c), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Device registered"})
}
