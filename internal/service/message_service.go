package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/quocanhngo/edumsg/internal/config"
	"github.com/quocanhngo/edumsg/internal/metrics"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/repository"
	"gorm.io/gorm"
)

// MaxBodyLength is the longest message body accepted, in characters
const MaxBodyLength = 10000

// AttachmentStore persists attachment blobs and returns an opaque reference
type AttachmentStore interface {
	StoreFile(ctx context.Context, data []byte, meta model.FileMeta) (string, error)
	Delete(ctx context.Context, ref string) error
}

// MessageService handles sending and reading messages
type MessageService struct {
	db        *gorm.DB
	convRepo  *repository.ConversationRepository
	msgRepo   *repository.MessageRepository
	notifRepo *repository.NotificationRepository
	tracker   *ReadTracker
	store     AttachmentStore
	cfg       config.ReadConfig
	logger    *slog.Logger
}

func NewMessageService(
	db *gorm.DB,
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	notifRepo *repository.NotificationRepository,
	tracker *ReadTracker,
	store AttachmentStore,
	cfg config.ReadConfig,
	logger *slog.Logger,
) *MessageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageService{
		db:        db,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		notifRepo: notifRepo,
		tracker:   tracker,
		store:     store,
		cfg:       cfg,
		logger:    logger.With("component", "message_service"),
	}
}

// SendResult is a committed message and the participants who were notified
type SendResult struct {
	Message    *model.Message
	Recipients []model.UserRef
}

// Send stores a message, advances the sender's read position, notifies every
// other active participant and stores the attachments, all in one transaction.
// Nothing is left behind when any step fails.
func (s *MessageService) Send(ctx context.Context, who model.Identity, convID int64, req model.SendMessageRequest, files []model.AttachmentInput) (*SendResult, error) {
	if req.Status == "" {
		req.Status = model.MessageStatusNormal
	}
	if err := validateSend(req, files); err != nil {
		return nil, err
	}

	var result *SendResult
	err := withRetry(ctx, s.cfg, s.logger, "send", func() error {
		var stored []string
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = s.send(ctx, tx, who, convID, req, files, &stored)
			return err
		})
		if err != nil {
			s.discardBlobs(ctx, stored)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesSent.WithLabelValues(string(result.Message.Status)).Inc()
	metrics.NotificationsCreated.
		WithLabelValues(string(model.NotificationTypeFor(result.Message.Status, result.Message.ParentMessageID))).
		Add(float64(len(result.Recipients)))
	s.logger.Info("message sent",
		"conversation_id", convID,
		"message_id", result.Message.ID,
		"sender", who.Ref().String(),
		"status", result.Message.Status,
		"recipients", len(result.Recipients),
		"attachments", len(files))
	return result, nil
}

func (s *MessageService) send(ctx context.Context, tx *gorm.DB, who model.Identity, convID int64, req model.SendMessageRequest, files []model.AttachmentInput, stored *[]string) (*SendResult, error) {
	convRepo := s.convRepo.WithTx(tx)
	msgRepo := s.msgRepo.WithTx(tx)

	// Sends in one conversation serialize on its row. Taken before any
	// participant row so that two senders never wait on each other's rows.
	if err := convRepo.LockConversation(ctx, convID); err != nil {
		return nil, notParticipant(err)
	}

	// 1. Authorization, before any write
	sender, err := convRepo.LockActiveParticipant(ctx, convID, who.Ref())
	if err != nil {
		return nil, notParticipant(err)
	}

	last, err := msgRepo.GetLastMessage(ctx, convID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, err
	case last.Status == model.MessageStatusAnnonce && !sender.CanModerate():
		return nil, model.ErrAnnouncementLocked
	}

	if req.Status == model.MessageStatusAnnonce && !sender.CanModerate() {
		return nil, model.ErrNotModerator
	}

	if req.ParentMessageID != nil {
		if _, err := msgRepo.FindInConversation(ctx, convID, *req.ParentMessageID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, model.Validationf("parent message %d is not part of conversation %d", *req.ParentMessageID, convID)
			}
			return nil, err
		}
	}

	// 2. Message row
	msg := &model.Message{
		ConversationID:  convID,
		SenderID:        who.UserID,
		SenderType:      who.UserType,
		Body:            req.Body,
		Status:          req.Status,
		ParentMessageID: req.ParentMessageID,
	}
	if err := msgRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	// 3. Sort by latest activity
	if err := convRepo.TouchUpdatedAt(ctx, convID); err != nil {
		return nil, err
	}

	// 4. The sender has read their own message
	if _, err := s.tracker.advance(ctx, tx, sender, msg.ID, msg.CreatedAt); err != nil {
		return nil, err
	}

	// 5. Fan-out
	participants, err := convRepo.ListActiveParticipants(ctx, convID)
	if err != nil {
		return nil, err
	}
	notificationType := model.NotificationTypeFor(msg.Status, msg.ParentMessageID)
	notifications := make([]model.Notification, 0, len(participants))
	recipientIDs := make([]int64, 0, len(participants))
	recipients := make([]model.UserRef, 0, len(participants))
	for _, p := range participants {
		if p.ID == sender.ID {
			continue
		}
		notifications = append(notifications, model.Notification{
			UserID:           p.UserID,
			UserType:         p.UserType,
			MessageID:        msg.ID,
			ConversationID:   convID,
			NotificationType: notificationType,
		})
		recipientIDs = append(recipientIDs, p.ID)
		recipients = append(recipients, p.Ref())
	}
	if err := s.notifRepo.WithTx(tx).CreateBatch(ctx, notifications); err != nil {
		return nil, err
	}
	if err := convRepo.IncrementUnread(ctx, recipientIDs); err != nil {
		return nil, err
	}

	// 6. Attachments
	attachments, err := s.storeAttachments(ctx, msg.ID, files, stored)
	if err != nil {
		return nil, err
	}
	if err := msgRepo.CreateAttachments(ctx, attachments); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAttachmentFailure, err)
	}
	msg.Attachments = attachments

	return &SendResult{Message: msg, Recipients: recipients}, nil
}

func (s *MessageService) storeAttachments(ctx context.Context, messageID int64, files []model.AttachmentInput, stored *[]string) ([]model.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: no attachment store configured", model.ErrAttachmentFailure)
	}

	attachments := make([]model.Attachment, 0, len(files))
	for _, f := range files {
		meta := model.FileMeta{
			FileName:    f.FileName,
			ContentType: f.MimeType,
			Size:        int64(len(f.Data)),
		}
		ref, err := s.store.StoreFile(ctx, f.Data, meta)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrAttachmentFailure, f.FileName, err)
		}
		*stored = append(*stored, ref)
		attachments = append(attachments, model.Attachment{
			MessageID: messageID,
			FileName:  f.FileName,
			FilePath:  ref,
			MimeType:  f.MimeType,
			FileSize:  meta.Size,
		})
	}
	return attachments, nil
}

// discardBlobs removes blobs uploaded by a rolled back attempt
func (s *MessageService) discardBlobs(ctx context.Context, refs []string) {
	if s.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, ref := range refs {
		if err := s.store.Delete(ctx, ref); err != nil {
			s.logger.Warn("failed to remove orphaned attachment", "ref", ref, "error", err)
		}
	}
}

// ListMessages returns a page of messages, newest first
func (s *MessageService) ListMessages(ctx context.Context, who model.Identity, convID, before int64, limit int) ([]model.Message, error) {
	if _, err := s.convRepo.FindActiveParticipant(ctx, convID, who.Ref()); err != nil {
		return nil, notParticipant(err)
	}

	switch {
	case limit <= 0:
		limit = 50
	case limit > 100:
		limit = 100
	}

	return s.msgRepo.GetConversationMessages(ctx, convID, before, limit)
}

// GetMessage returns one message with its attachments
func (s *MessageService) GetMessage(ctx context.Context, who model.Identity, messageID int64) (*model.Message, error) {
	msg, err := s.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, notParticipant(err)
	}
	if _, err := s.convRepo.FindActiveParticipant(ctx, msg.ConversationID, who.Ref()); err != nil {
		return nil, notParticipant(err)
	}
	return msg, nil
}

func validateSend(req model.SendMessageRequest, files []model.AttachmentInput) error {
	if !req.Status.Valid() {
		return model.Validationf("unknown status %q", req.Status)
	}
	if strings.TrimSpace(req.Body) == "" && len(files) == 0 {
		return model.Validationf("message body is empty")
	}
	if utf8.RuneCountInString(req.Body) > MaxBodyLength {
		return model.Validationf("message body exceeds %d characters", MaxBodyLength)
	}
	for _, f := range files {
		if f.FileName == "" || len(f.Data) == 0 {
			return model.Validationf("attachment %q is empty", f.FileName)
		}
	}
	return nil
}
