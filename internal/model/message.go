package model

import (
	"time"
)

// MessageStatus is the priority a sender attaches to a message
type MessageStatus string

const (
	MessageStatusNormal    MessageStatus = "normal"
	MessageStatusImportant MessageStatus = "important"
	MessageStatusUrgent    MessageStatus = "urgent"
	MessageStatusAnnonce   MessageStatus = "annonce" // broadcast, restricted to moderators
)

// Valid reports whether s is a known status
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusNormal, MessageStatusImportant, MessageStatusUrgent, MessageStatusAnnonce:
		return true
	}
	return false
}

// Message is an immutable chat message. IDs come from a sequence and are the
// only ordering used for read positions.
type Message struct {
	ID              int64         `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID  int64         `json:"conversation_id" gorm:"index;not null"`
	SenderID        int64         `json:"sender_id" gorm:"not null"`
	SenderType      UserType      `json:"sender_type" gorm:"type:varchar(20);not null"`
	Body            string        `json:"body" gorm:"type:text;not null"`
	Status          MessageStatus `json:"status" gorm:"type:varchar(20);not null;default:'normal'"`
	ParentMessageID *int64        `json:"parent_message_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`

	// Relations
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID"`
	Attachments  []Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`
}

// Sender returns the author of the message
func (m *Message) Sender() UserRef {
	return UserRef{UserID: m.SenderID, UserType: m.SenderType}
}

// NotificationTypeFor derives the notification a recipient gets for a message
// with the given status and parent
func NotificationTypeFor(status MessageStatus, parentMessageID *int64) NotificationType {
	switch {
	case status == MessageStatusAnnonce:
		return NotificationTypeBroadcast
	case status == MessageStatusImportant || status == MessageStatusUrgent:
		return NotificationTypeImportant
	case parentMessageID != nil:
		return NotificationTypeReply
	default:
		return NotificationTypeUnread
	}
}
