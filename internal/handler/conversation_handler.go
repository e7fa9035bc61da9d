package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/edumsg/internal/middleware"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/service"
)

// ConversationHandler handles conversation and membership endpoints
type ConversationHandler struct {
	convService *service.ConversationService
}

func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// CreateConversation godoc
// @Summary Create a new conversation
// @Description The caller becomes the conversation admin.
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.CreateConversationRequest true "Create conversation request"
// @Success 201 {object} model.CreateConversationResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /conversations [post]
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req model.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	convID, err := h.convService.CreateConversation(c.Request.Context(), middleware.Identity(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.CreateConversationResponse{ConversationID: convID})
}

// GetConversations godoc
// @Summary Get all conversations for the current user
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param archived query bool false "List archived conversations instead"
// @Success 200 {array} model.ConversationResponse
// @Router /conversations [get]
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	var req model.ConversationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request"})
		return
	}

	conversations, err := h.convService.GetConversations(c.Request.Context(), middleware.Identity(c), req.Archived)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// GetConversation godoc
// @Summary Get a specific conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} model.ConversationResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id} [get]
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	convID, ok := paramID(c, "id")
	if !ok {
		return
	}

	conv, err := h.convService.GetConversation(c.Request.Context(), middleware.Identity(c), convID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// Archive godoc
// @Summary Archive a conversation
// @Tags Conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/archive [post]
func (h *ConversationHandler) Archive(c *gin.Context) {
	h.membershipAction(c, h.convService.Archive, "Conversation archived")
}

// Unarchive godoc
// @Summary Unarchive a conversation
// @Tags Conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/archive [delete]
func (h *ConversationHandler) Unarchive(c *gin.Context) {
	h.membershipAction(c, h.convService.Unarchive, "Conversation unarchived")
}

// Delete godoc
// @Summary Leave a conversation
// @Description Soft delete; the conversation can be restored later.
// @Tags Conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	h.membershipAction(c, h.convService.Delete, "Conversation deleted")
}

// DeletePermanently godoc
// @Summary Permanently remove a conversation for the caller
// @Tags Conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/permanent [delete]
func (h *ConversationHandler) DeletePermanently(c *gin.Context) {
	h.membershipAction(c, h.convService.DeletePermanently, "Conversation permanently deleted")
}

// Restore godoc
// @Summary Restore a deleted conversation
// @Tags Conversations
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/restore [post]
func (h *ConversationHandler) Restore(c *gin.Context) {
	h.membershipAction(c, h.convService.Restore, "Conversation restored")
}

// AddParticipant godoc
// @Summary Add a participant
// @Description Requires moderator rights.
// @Tags Participants
// @Accept json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param body body model.ParticipantRequest true "Participant"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Router /conversations/{id}/participants [post]
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	h.participantAction(c, h.convService.AddParticipant, "Participant added")
}

// RemoveParticipant godoc
// @Summary Remove a participant
// @Description Requires moderator rights; removing a moderator requires the admin.
// @Tags Participants
// @Accept json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param body body model.ParticipantRequest true "Participant"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/participants [delete]
func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	h.participantAction(c, h.convService.RemoveParticipant, "Participant removed")
}

// PromoteModerator godoc
// @Summary Grant moderator rights
// @Description Admin only.
// @Tags Participants
// @Accept json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param body body model.ParticipantRequest true "Participant"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/moderators [post]
func (h *ConversationHandler) PromoteModerator(c *gin.Context) {
	h.participantAction(c, h.convService.PromoteToModerator, "Moderator added")
}

// DemoteModerator godoc
// @Summary Revoke moderator rights
// @Description Admin only.
// @Tags Participants
// @Accept json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Param body body model.ParticipantRequest true "Participant"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/moderators [delete]
func (h *ConversationHandler) DemoteModerator(c *gin.Context) {
	h.participantAction(c, h.convService.DemoteFromModerator, "Moderator removed")
}

func (h *ConversationHandler) membershipAction(c *gin.Context, action func(context.Context, model.Identity, int64) error, done string) {
	convID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := action(c.Request.Context(), middleware.Identity(c), convID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: done})
}

func (h *ConversationHandler) participantAction(c *gin.Context, action func(context.Context, model.Identity, int64, model.UserRef) error, done string) {
	convID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := action(c.Request.Context(), middleware.Identity(c), convID, req.UserRef); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: done})
}
