package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/repository"
)

// Pusher delivers push notifications to device tokens and reports the tokens
// the provider rejected as no longer valid
type Pusher interface {
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (invalid []string, err error)
}

// NotificationService projects read status and exposes the notification rows
type NotificationService struct {
	convRepo   *repository.ConversationRepository
	msgRepo    *repository.MessageRepository
	notifRepo  *repository.NotificationRepository
	deviceRepo *repository.DeviceRepository
	pusher     Pusher
	logger     *slog.Logger
}

func NewNotificationService(
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	notifRepo *repository.NotificationRepository,
	deviceRepo *repository.DeviceRepository,
	pusher Pusher,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		notifRepo:  notifRepo,
		deviceRepo: deviceRepo,
		pusher:     pusher,
		logger:     logger.With("component", "notification_service"),
	}
}

// GetReadStatus computes who has read a message from the participants' read
// positions. The sender is not counted.
func (s *NotificationService) GetReadStatus(ctx context.Context, viewer model.Identity, messageID int64) (*model.ReadStatus, error) {
	msg, err := s.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, notParticipant(err)
	}
	if _, err := s.convRepo.FindActiveParticipant(ctx, msg.ConversationID, viewer.Ref()); err != nil {
		return nil, notParticipant(err)
	}

	participants, err := s.convRepo.ListActiveParticipants(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	return readStatusOf(msg, participants), nil
}

func readStatusOf(msg *model.Message, participants []model.Participant) *model.ReadStatus {
	status := &model.ReadStatus{
		MessageID: msg.ID,
		Readers:   []model.Reader{},
	}
	sender := msg.Sender()
	for i := range participants {
		p := &participants[i]
		if p.IsDeleted || p.Ref() == sender {
			continue
		}
		status.TotalParticipants++
		if p.HasRead(msg.ID) {
			status.Readers = append(status.Readers, model.Reader{UserRef: p.Ref(), LastReadAt: p.LastReadAt})
		}
	}
	status.ReadCount = len(status.Readers)
	status.AllRead = status.ReadCount == status.TotalParticipants
	return status
}

// ListNotifications returns the caller's notifications, newest first
func (s *NotificationService) ListNotifications(ctx context.Context, who model.Identity, unreadOnly bool, limit int) ([]model.Notification, error) {
	switch {
	case limit <= 0:
		limit = 50
	case limit > 100:
		limit = 100
	}
	return s.notifRepo.ListForUser(ctx, who.Ref(), unreadOnly, limit)
}

// UnreadSummary returns the caller's unread badge
func (s *NotificationService) UnreadSummary(ctx context.Context, who model.Identity) (model.UnreadSummary, error) {
	return s.convRepo.SumUnread(ctx, who.Ref())
}

// RegisterDevice stores a push token for the caller
func (s *NotificationService) RegisterDevice(ctx context.Context, who model.Identity, req model.RegisterDeviceRequest) error {
	return s.deviceRepo.AddDevice(ctx, who.Ref(), req.FCMToken, req.DeviceType)
}

// PushNewMessage sends a push notification about msg to each recipient's
// devices. Tokens the provider rejects are removed.
func (s *NotificationService) PushNewMessage(ctx context.Context, msg *model.Message, recipients []model.UserRef) error {
	if s.pusher == nil || len(recipients) == 0 {
		return nil
	}

	var tokens []string
	for _, ref := range recipients {
		devices, err := s.deviceRepo.GetUserDevices(ctx, ref)
		if err != nil {
			return fmt.Errorf("load devices of %s: %w", ref, err)
		}
		for _, d := range devices {
			tokens = append(tokens, d.FCMToken)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	body := msg.Body
	if body == "" {
		body = "Sent an attachment"
	}
	data := map[string]string{
		"type":            model.WSEventNewMessage,
		"conversation_id": strconv.FormatInt(msg.ConversationID, 10),
		"message_id":      strconv.FormatInt(msg.ID, 10),
		"status":          string(msg.Status),
	}

	invalid, err := s.pusher.SendMulticast(ctx, tokens, pushTitle(msg.Status), body, data)
	for _, token := range invalid {
		if rmErr := s.deviceRepo.RemoveToken(ctx, token); rmErr != nil {
			s.logger.Warn("failed to remove invalid token", "error", rmErr)
		}
	}
	return err
}

func pushTitle(status model.MessageStatus) string {
	switch status {
	case model.MessageStatusAnnonce:
		return "New announcement"
	case model.MessageStatusImportant, model.MessageStatusUrgent:
		return "Important message"
	default:
		return "New message"
	}
}
