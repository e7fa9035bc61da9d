package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/repository"
	"gorm.io/gorm"
)

// ErrAdminNotRemovable is returned when a moderator tries to remove the
// conversation admin
var ErrAdminNotRemovable = fmt.Errorf("%w: the conversation admin cannot be removed", model.ErrUnauthorized)

// ConversationService handles conversation membership
type ConversationService struct {
	db        *gorm.DB
	convRepo  *repository.ConversationRepository
	msgRepo   *repository.MessageRepository
	notifRepo *repository.NotificationRepository
	store     AttachmentStore
	logger    *slog.Logger
}

func NewConversationService(
	db *gorm.DB,
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	notifRepo *repository.NotificationRepository,
	store AttachmentStore,
	logger *slog.Logger,
) *ConversationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationService{
		db:        db,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		notifRepo: notifRepo,
		store:     store,
		logger:    logger.With("component", "conversation_service"),
	}
}

// CreateConversation creates a conversation with the caller as its admin
func (s *ConversationService) CreateConversation(ctx context.Context, who model.Identity, req model.CreateConversationRequest) (int64, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return 0, model.Validationf("subject is required")
	}

	now := time.Now()
	creator := who.Ref()

	// Creator is the admin
	participants := []model.Participant{{
		UserID:   creator.UserID,
		UserType: creator.UserType,
		IsAdmin:  true,
		JoinedAt: now,
	}}

	seen := map[model.UserRef]bool{creator: true}
	for _, ref := range req.Participants {
		if ref.UserID <= 0 || !ref.UserType.Valid() {
			return 0, model.Validationf("invalid participant %s", ref)
		}
		if seen[ref] {
			continue // creator or duplicate
		}
		seen[ref] = true
		participants = append(participants, model.Participant{
			UserID:   ref.UserID,
			UserType: ref.UserType,
			JoinedAt: now,
		})
	}
	if len(participants) < 2 {
		return 0, model.Validationf("a conversation needs at least one other participant")
	}

	conv := &model.Conversation{
		Subject:      subject,
		Participants: participants,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return 0, err
	}

	s.logger.Info("conversation created",
		"conversation_id", conv.ID, "admin", creator.String(), "participants", len(participants))
	return conv.ID, nil
}

// GetConversations returns the caller's conversations with their unread
// counter and last message, latest activity first
func (s *ConversationService) GetConversations(ctx context.Context, who model.Identity, archived bool) ([]model.ConversationResponse, error) {
	memberships, err := s.convRepo.GetUserConversations(ctx, who.Ref(), archived)
	if err != nil {
		return nil, err
	}

	result := []model.ConversationResponse{}
	for i := range memberships {
		conv := memberships[i].Conversation

		// Get last message for each conversation
		lastMsg, err := s.msgRepo.GetLastMessage(ctx, conv.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		conv.LastMessage = lastMsg

		result = append(result, model.ConversationResponse{
			Conversation: conv,
			UnreadCount:  memberships[i].UnreadCount,
			IsArchived:   memberships[i].IsArchived,
		})
	}

	return result, nil
}

// GetConversation returns a conversation with its active participants
func (s *ConversationService) GetConversation(ctx context.Context, who model.Identity, convID int64) (*model.ConversationResponse, error) {
	me, err := s.convRepo.FindActiveParticipant(ctx, convID, who.Ref())
	if err != nil {
		return nil, notParticipant(err)
	}

	conv, err := s.convRepo.FindByID(ctx, convID)
	if err != nil {
		return nil, notParticipant(err)
	}

	lastMsg, err := s.msgRepo.GetLastMessage(ctx, convID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	conv.LastMessage = lastMsg

	return &model.ConversationResponse{
		Conversation: *conv,
		UnreadCount:  me.UnreadCount,
		IsArchived:   me.IsArchived,
	}, nil
}

// MemberRefs returns the active participants of a conversation
func (s *ConversationService) MemberRefs(ctx context.Context, convID int64) ([]model.UserRef, error) {
	participants, err := s.convRepo.ListActiveParticipants(ctx, convID)
	if err != nil {
		return nil, err
	}
	refs := make([]model.UserRef, 0, len(participants))
	for _, p := range participants {
		refs = append(refs, p.Ref())
	}
	return refs, nil
}

// Archive hides the conversation from the caller's main list
func (s *ConversationService) Archive(ctx context.Context, who model.Identity, convID int64) error {
	return s.setArchived(ctx, who, convID, true)
}

// Unarchive brings the conversation back to the caller's main list
func (s *ConversationService) Unarchive(ctx context.Context, who model.Identity, convID int64) error {
	return s.setArchived(ctx, who, convID, false)
}

func (s *ConversationService) setArchived(ctx context.Context, who model.Identity, convID int64, archived bool) error {
	p, err := s.convRepo.FindActiveParticipant(ctx, convID, who.Ref())
	if err != nil {
		return notParticipant(err)
	}
	return s.convRepo.SetArchived(ctx, p.ID, archived)
}

// Delete makes the caller leave the conversation. Other participants and the
// message log are untouched.
func (s *ConversationService) Delete(ctx context.Context, who model.Identity, convID int64) error {
	p, err := s.convRepo.FindActiveParticipant(ctx, convID, who.Ref())
	if err != nil {
		return notParticipant(err)
	}
	if err := s.convRepo.SoftDelete(ctx, p.ID); err != nil {
		return err
	}
	s.logger.Info("participant left", "conversation_id", convID, "user", who.Ref().String())
	return nil
}

// DeletePermanently removes every row the caller has in the conversation.
// The conversation is dropped with its messages once nobody references it.
func (s *ConversationService) DeletePermanently(ctx context.Context, who model.Identity, convID int64) error {
	var (
		orphaned []string
		dropped  bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)
		// Same order as send: conversation row before participant rows. It also
		// makes the remaining-rows count exact when the last members leave together.
		if err := convRepo.LockConversation(ctx, convID); err != nil {
			return notParticipant(err)
		}
		if _, err := convRepo.FindAnyParticipant(ctx, convID, who.Ref()); err != nil {
			return notParticipant(err)
		}
		if _, err := convRepo.DeleteUserRows(ctx, convID, who.Ref()); err != nil {
			return err
		}
		if err := s.notifRepo.WithTx(tx).DeleteForUserInConversation(ctx, who.Ref(), convID); err != nil {
			return err
		}

		remaining, err := convRepo.CountRows(ctx, convID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		orphaned, err = s.msgRepo.WithTx(tx).AttachmentPaths(ctx, convID)
		if err != nil {
			return err
		}
		dropped = true
		return convRepo.Delete(ctx, convID)
	})
	if err != nil {
		return err
	}

	if !dropped {
		return nil
	}
	s.logger.Info("conversation removed", "conversation_id", convID, "attachments", len(orphaned))
	if s.store != nil {
		for _, ref := range orphaned {
			if err := s.store.Delete(ctx, ref); err != nil {
				s.logger.Warn("failed to remove attachment", "ref", ref, "error", err)
			}
		}
	}
	return nil
}

// Restore brings a left conversation back for the caller. Restoring an
// active membership is a no-op.
func (s *ConversationService) Restore(ctx context.Context, who model.Identity, convID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)
		if _, err := convRepo.FindAnyParticipant(ctx, convID, who.Ref()); err != nil {
			return notParticipant(err)
		}
		p, revived, err := convRepo.ReviveParticipant(ctx, convID, who.Ref())
		if err != nil || !revived {
			return err
		}
		s.logger.Info("participant restored", "conversation_id", convID, "user", who.Ref().String())
		return convRepo.RecomputeUnread(ctx, p.ID)
	})
}

// AddParticipant adds target to the conversation, reusing the row of a
// participant who left. Requires moderator rights.
func (s *ConversationService) AddParticipant(ctx context.Context, who model.Identity, convID int64, target model.UserRef) error {
	if target.UserID <= 0 || !target.UserType.Valid() {
		return model.Validationf("invalid participant %s", target)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)
		actor, err := convRepo.FindActiveParticipant(ctx, convID, who.Ref())
		if err != nil {
			return notParticipant(err)
		}
		if !actor.CanModerate() {
			return model.ErrNotModerator
		}

		p, revived, err := convRepo.ReviveParticipant(ctx, convID, target)
		if err != nil {
			return err
		}
		if !revived {
			return model.ErrAlreadyParticipant
		}
		s.logger.Info("participant added", "conversation_id", convID, "user", target.String(), "by", who.Ref().String())
		return convRepo.RecomputeUnread(ctx, p.ID)
	})
}

// RemoveParticipant makes target leave the conversation. Requires moderator
// rights; removing a moderator requires the admin.
func (s *ConversationService) RemoveParticipant(ctx context.Context, who model.Identity, convID int64, target model.UserRef) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)
		actor, err := convRepo.FindActiveParticipant(ctx, convID, who.Ref())
		if err != nil {
			return notParticipant(err)
		}
		if !actor.CanModerate() {
			return model.ErrNotModerator
		}

		p, err := s.findTarget(ctx, convRepo, convID, target)
		if err != nil {
			return err
		}
		if p.IsAdmin {
			return ErrAdminNotRemovable
		}
		if p.IsModerator && !actor.IsAdmin {
			return model.ErrNotAdmin
		}
		return convRepo.SoftDelete(ctx, p.ID)
	})
}

// PromoteToModerator grants moderator rights. Admin only.
func (s *ConversationService) PromoteToModerator(ctx context.Context, who model.Identity, convID int64, target model.UserRef) error {
	return s.setModerator(ctx, who, convID, target, true)
}

// DemoteFromModerator revokes moderator rights. Admin only.
func (s *ConversationService) DemoteFromModerator(ctx context.Context, who model.Identity, convID int64, target model.UserRef) error {
	return s.setModerator(ctx, who, convID, target, false)
}

func (s *ConversationService) setModerator(ctx context.Context, who model.Identity, convID int64, target model.UserRef, moderator bool) error {
	actor, err := s.convRepo.FindActiveParticipant(ctx, convID, who.Ref())
	if err != nil {
		return notParticipant(err)
	}
	if !actor.IsAdmin {
		return model.ErrNotAdmin
	}

	p, err := s.findTarget(ctx, s.convRepo, convID, target)
	if err != nil {
		return err
	}
	if p.IsAdmin {
		return model.Validationf("the conversation admin already moderates")
	}
	return s.convRepo.SetModerator(ctx, p.ID, moderator)
}

func (s *ConversationService) findTarget(ctx context.Context, convRepo *repository.ConversationRepository, convID int64, target model.UserRef) (*model.Participant, error) {
	p, err := convRepo.FindActiveParticipant(ctx, convID, target)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.Validationf("%s is not an active participant", target)
	}
	return p, err
}
