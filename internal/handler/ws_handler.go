package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/edumsg/internal/middleware"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/service"
	"github.com/quocanhngo/edumsg/internal/ws"
)

// wsEventTimeout bounds the handling of one client event
const wsEventTimeout = 10 * time.Second

// NewUpgrader builds the websocket upgrader; origins are checked against the
// same list as CORS
func NewUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	tracker  *service.ReadTracker
	notifier *Notifier
}

func NewWSHandler(hub *ws.Hub, upgrader websocket.Upgrader, tracker *service.ReadTracker, notifier *Notifier) *WSHandler {
	return &WSHandler{
		hub:      hub,
		upgrader: upgrader,
		tracker:  tracker,
		notifier: notifier,
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection
// Client connects with: ws://host/ws?token=<jwt_token>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	who := middleware.Identity(c)

	// Upgrade HTTP to WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	// Create client and register with hub
	client := ws.NewClient(h.hub, conn, who)
	h.hub.Register(client)

	log.Printf("✅ WS Connected: %s (%s)", client.User, client.ID)

	// Start read/write pumps in goroutines
	go client.WritePump()
	go client.ReadPump(h.handleWSMessage)
}

// readEventPayload is sent by clients with mark_read, mark_unread and typing
type readEventPayload struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
}

// handleWSMessage processes incoming WebSocket messages from clients
func (h *WSHandler) handleWSMessage(client *ws.Client, event model.WSEvent) {
	payloadBytes, _ := json.Marshal(event.Payload)
	var payload readEventPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		client.Send(wsError("invalid payload"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsEventTimeout)
	defer cancel()

	switch event.Type {
	case model.WSEventMarkRead:
		h.handleMarkRead(ctx, client, payload)

	case model.WSEventMarkUnread:
		h.handleMarkUnread(ctx, client, payload)

	case model.WSEventTyping, model.WSEventStopTyping:
		if payload.ConversationID > 0 {
			h.notifier.Typing(ctx, client.Identity, event.Type, payload.ConversationID)
		}

	default:
		log.Printf("Unknown WebSocket event type: %s", event.Type)
		client.Send(wsError("unknown event type " + event.Type))
	}
}

// handleMarkRead moves the read position from a websocket event. Without a
// message id the whole conversation is marked read.
func (h *WSHandler) handleMarkRead(ctx context.Context, client *ws.Client, payload readEventPayload) {
	var (
		result *service.ReadResult
		err    error
	)
	switch {
	case payload.MessageID > 0 && payload.ConversationID > 0:
		result, err = h.tracker.MarkRead(ctx, client.Identity, payload.ConversationID, payload.MessageID)
	case payload.MessageID > 0:
		result, err = h.tracker.MarkMessageRead(ctx, client.Identity, payload.MessageID)
	case payload.ConversationID > 0:
		result, err = h.tracker.MarkConversationRead(ctx, client.Identity, payload.ConversationID)
	default:
		client.Send(wsError("conversation_id or message_id required"))
		return
	}
	if err != nil {
		client.Send(wsErrorFrom(err))
		return
	}

	if result.LastReadMessageID != nil {
		h.notifier.ReadChanged(ctx, client.Identity, model.WSEventMessageRead, *result.LastReadMessageID, result)
	}
}

func (h *WSHandler) handleMarkUnread(ctx context.Context, client *ws.Client, payload readEventPayload) {
	if payload.MessageID <= 0 {
		client.Send(wsError("message_id required"))
		return
	}

	result, err := h.tracker.MarkUnread(ctx, client.Identity, payload.MessageID)
	if err != nil {
		client.Send(wsErrorFrom(err))
		return
	}
	h.notifier.ReadChanged(ctx, client.Identity, model.WSEventMessageUnread, payload.MessageID, result)
}

func wsError(msg string) *model.WSEvent {
	return &model.WSEvent{Type: model.WSEventError, Payload: model.ErrorResponse{Error: msg}}
}

// wsErrorFrom hides internal errors the same way respondError does
func wsErrorFrom(err error) *model.WSEvent {
	if statusFor(err) == http.StatusInternalServerError {
		log.Printf("WebSocket event failed: %v", err)
		return wsError("internal error")
	}
	if errors.Is(err, model.ErrConcurrencyExhausted) {
		return &model.WSEvent{Type: model.WSEventError, Payload: model.ErrorResponse{Error: err.Error(), Message: "retry"}}
	}
	return wsError(err.Error())
}
