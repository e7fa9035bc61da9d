package model

import (
	"time"
)

// NotificationType classifies why a recipient is notified about a message
type NotificationType string

const (
	NotificationTypeUnread    NotificationType = "unread"
	NotificationTypeImportant NotificationType = "important"
	NotificationTypeReply     NotificationType = "reply"
	NotificationTypeBroadcast NotificationType = "broadcast"
)

// Notification is one row per (recipient, message)
type Notification struct {
	ID               int64            `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID           int64            `json:"user_id" gorm:"not null;uniqueIndex:ux_notifications_recipient_message"`
	UserType         UserType         `json:"user_type" gorm:"type:varchar(20);not null;uniqueIndex:ux_notifications_recipient_message"`
	MessageID        int64            `json:"message_id" gorm:"not null;uniqueIndex:ux_notifications_recipient_message"`
	ConversationID   int64            `json:"conversation_id" gorm:"not null"`
	NotificationType NotificationType `json:"notification_type" gorm:"type:varchar(20);not null"`
	IsRead           bool             `json:"is_read" gorm:"not null;default:false"`
	ReadAt           *time.Time       `json:"read_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Reader is a participant whose read position covers a message
type Reader struct {
	UserRef
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

// ReadStatus is the read-receipt aggregate of a message
type ReadStatus struct {
	MessageID         int64    `json:"message_id"`
	TotalParticipants int      `json:"total_participants"`
	ReadCount         int      `json:"read_count"`
	AllRead           bool     `json:"all_read"`
	Readers           []Reader `json:"readers"`
}

// UnreadSummary is the badge count over all of a user's conversations
type UnreadSummary struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}
