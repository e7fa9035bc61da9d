package model

// ========== Conversation DTOs ==========

type CreateConversationRequest struct {
	Subject      string    `json:"subject" binding:"required,max=255"`
	Participants []UserRef `json:"participants" binding:"required,min=1,dive"`
}

type CreateConversationResponse struct {
	ConversationID int64 `json:"conversation_id"`
}

type ConversationListRequest struct {
	Archived bool `form:"archived"`
}

type ConversationResponse struct {
	Conversation
	UnreadCount int  `json:"unread_count"`
	IsArchived  bool `json:"is_archived"`
}

type ParticipantRequest struct {
	UserRef
}

// ========== Message DTOs ==========

type SendMessageRequest struct {
	Body            string        `json:"body" form:"body"`
	Status          MessageStatus `json:"status" form:"status"`
	ParentMessageID *int64        `json:"parent_message_id" form:"parent_message_id"`
}

type SendMessageResponse struct {
	MessageID int64 `json:"message_id"`
}

type MessageListRequest struct {
	Before int64 `form:"before"` // cursor for pagination (message ID)
	Limit  int   `form:"limit,default=50"`
}

type NotificationListRequest struct {
	UnreadOnly bool `form:"unread_only"`
	Limit      int  `form:"limit,default=50"`
}

type RegisterDeviceRequest struct {
	FCMToken   string `json:"fcm_token" binding:"required"`
	DeviceType string `json:"device_type" binding:"required"`
}

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocket event types
const (
	WSEventNewMessage    = "new_message"
	WSEventTyping        = "typing"
	WSEventStopTyping    = "stop_typing"
	WSEventMarkRead      = "mark_read"
	WSEventMarkUnread    = "mark_unread"
	WSEventMessageRead   = "message_read"
	WSEventMessageUnread = "message_unread"
	WSEventError         = "error"
)

type NewMessageEvent struct {
	ConversationID int64         `json:"conversation_id"`
	MessageID      int64         `json:"message_id"`
	Sender         UserRef       `json:"sender"`
	Status         MessageStatus `json:"status"`
}

type TypingEvent struct {
	ConversationID int64   `json:"conversation_id"`
	User           UserRef `json:"user"`
}

type MessageReadEvent struct {
	ConversationID int64   `json:"conversation_id"`
	MessageID      int64   `json:"message_id"`
	User           UserRef `json:"user"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
