package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/edumsg/internal/middleware"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/service"
)

// ChatHandler handles message and read-tracking endpoints
type ChatHandler struct {
	messageService *service.MessageService
	tracker        *service.ReadTracker
	notifService   *service.NotificationService
	notifier       *Notifier
}

func NewChatHandler(
	messageService *service.MessageService,
	tracker *service.ReadTracker,
	notifService *service.NotificationService,
	notifier *Notifier,
) *ChatHandler {
	return &ChatHandler{
		messageService: messageService,
		tracker:        tracker,
		notifService:   notifService,
		notifier:       notifier,
	}
}

// SendMessage godoc
// @Summary Send a message to a conversation
// @Description JSON body, or multipart/form-data with body, status, parent_message_id and up to 10 "files".
// @Tags Messages
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param body body model.SendMessageRequest true "Send message request"
// @Success 201 {object} model.SendMessageResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 413 {object} model.ErrorResponse
// @Failure 502 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	convID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var (
		req   model.SendMessageRequest
		files []model.AttachmentInput
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		// Limit request body size
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

		form, err := c.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: errTooLarge.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid form data", Message: err.Error()})
			return
		}
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
			return
		}
		if files, err = readAttachments(form); err != nil {
			respondError(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	result, err := h.messageService.Send(c.Request.Context(), middleware.Identity(c), convID, req, files)
	if err != nil {
		respondError(c, err)
		return
	}

	// Broadcast to recipients via WebSocket and push
	h.notifier.NewMessage(result)

	c.JSON(http.StatusCreated, model.SendMessageResponse{MessageID: result.Message.ID})
}

// GetMessages godoc
// @Summary Get messages for a conversation
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param before query int false "Cursor: message ID to get messages before"
// @Param limit query int false "Number of messages to return (default: 50)"
// @Success 200 {array} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	convID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request"})
		return
	}

	messages, err := h.messageService.ListMessages(c.Request.Context(), middleware.Identity(c), convID, req.Before, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// MarkConversationRead godoc
// @Summary Mark all messages in a conversation as read
// @Tags Read
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} service.ReadResult
// @Failure 403 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /conversations/{id}/read [post]
func (h *ChatHandler) MarkConversationRead(c *gin.Context) {
	convID, ok := paramID(c, "id")
	if !ok {
		return
	}

	who := middleware.Identity(c)
	result, err := h.tracker.MarkConversationRead(c.Request.Context(), who, convID)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.LastReadMessageID != nil {
		h.notifier.ReadChanged(c.Request.Context(), who, model.WSEventMessageRead, *result.LastReadMessageID, result)
	}
	c.JSON(http.StatusOK, result)
}

// MarkMessageRead godoc
// @Summary Mark messages up to this one as read
// @Tags Read
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} service.ReadResult
// @Failure 403 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /messages/{id}/read [post]
func (h *ChatHandler) MarkMessageRead(c *gin.Context) {
	msgID, ok := paramID(c, "id")
	if !ok {
		return
	}

	who := middleware.Identity(c)
	result, err := h.tracker.MarkMessageRead(c.Request.Context(), who, msgID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.notifier.ReadChanged(c.Request.Context(), who, model.WSEventMessageRead, msgID, result)
	c.JSON(http.StatusOK, result)
}

// MarkMessageUnread godoc
// @Summary Mark a message and everything after it as unread
// @Tags Read
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} service.ReadResult
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id}/unread [post]
func (h *ChatHandler) MarkMessageUnread(c *gin.Context) {
	msgID, ok := paramID(c, "id")
	if !ok {
		return
	}

	who := middleware.Identity(c)
	result, err := h.tracker.MarkUnread(c.Request.Context(), who, msgID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.notifier.ReadChanged(c.Request.Context(), who, model.WSEventMessageUnread, msgID, result)
	c.JSON(http.StatusOK, result)
}

// GetReadStatus godoc
// @Summary Get who has read a message
// @Tags Read
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} model.ReadStatus
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id}/read-status [get]
func (h *ChatHandler) GetReadStatus(c *gin.Context) {
	msgID, ok := paramID(c, "id")
	if !ok {
		return
	}

	status, err := h.notifService.GetReadStatus(c.Request.Context(), middleware.Identity(c), msgID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
