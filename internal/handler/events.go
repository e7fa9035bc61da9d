package handler

import (
	"context"
	"log"
	"time"

	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/service"
	"github.com/quocanhngo/edumsg/internal/ws"
)

// pushTimeout bounds the post-commit push delivery of one message
const pushTimeout = 10 * time.Second

// Notifier fans committed changes out to websocket clients and devices.
// It runs after the transaction and never fails the request.
type Notifier struct {
	hub          *ws.Hub
	convService  *service.ConversationService
	notifService *service.NotificationService
}

func NewNotifier(hub *ws.Hub, convService *service.ConversationService, notifService *service.NotificationService) *Notifier {
	return &Notifier{hub: hub, convService: convService, notifService: notifService}
}

// NewMessage tells the recipients of a committed message about it
func (n *Notifier) NewMessage(result *service.SendResult) {
	msg := result.Message
	n.hub.SendToUsers(result.Recipients, &model.WSEvent{
		Type: model.WSEventNewMessage,
		Payload: model.NewMessageEvent{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Sender:         msg.Sender(),
			Status:         msg.Status,
		},
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := n.notifService.PushNewMessage(ctx, msg, result.Recipients); err != nil {
			log.Printf("⚠️ Push for message %d failed: %v", msg.ID, err)
		}
	}()
}

// ReadChanged tells the other participants that who moved their read position
func (n *Notifier) ReadChanged(ctx context.Context, who model.Identity, eventType string, messageID int64, result *service.ReadResult) {
	if result == nil || !result.Changed {
		return
	}
	n.toOthers(ctx, result.ConversationID, who.Ref(), &model.WSEvent{
		Type: eventType,
		Payload: model.MessageReadEvent{
			ConversationID: result.ConversationID,
			MessageID:      messageID,
			User:           who.Ref(),
		},
	})
}

// Typing relays a typing indicator to the other participants
func (n *Notifier) Typing(ctx context.Context, who model.Identity, eventType string, convID int64) {
	n.toOthers(ctx, convID, who.Ref(), &model.WSEvent{
		Type:    eventType,
		Payload: model.TypingEvent{ConversationID: convID, User: who.Ref()},
	})
}

func (n *Notifier) toOthers(ctx context.Context, convID int64, except model.UserRef, event *model.WSEvent) {
	members, err := n.convService.MemberRefs(ctx, convID)
	if err != nil {
		log.Printf("Error getting members of conversation %d: %v", convID, err)
		return
	}

	member := false
	others := make([]model.UserRef, 0, len(members))
	for _, m := range members {
		if m == except {
			member = true
			continue
		}
		others = append(others, m)
	}
	// Only participants may signal the conversation
	if member {
		n.hub.SendToUsers(others, event)
	}
}
