package model

import (
	"time"
)

// Conversation is a message thread between school users
type Conversation struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Subject   string    `json:"subject" gorm:"size:255;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:ConversationID"`
	LastMessage  *Message      `json:"last_message,omitempty" gorm:"-"` // populated manually
}

// ParticipantRole is derived from the participant flags
type ParticipantRole string

const (
	ParticipantRoleAdmin     ParticipantRole = "admin"
	ParticipantRoleModerator ParticipantRole = "moderator"
	ParticipantRoleOrdinary  ParticipantRole = "ordinary"
	ParticipantRoleLeft      ParticipantRole = "left"
)

// Participant is a user's membership in a conversation together with the
// user's read position. Version guards LastReadMessageID (see repository.CompareAndSwap).
type Participant struct {
	ID                int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID    int64      `json:"conversation_id" gorm:"not null;uniqueIndex:ux_participants_active,where:is_deleted = false"`
	UserID            int64      `json:"user_id" gorm:"not null;uniqueIndex:ux_participants_active;index:idx_participants_user"`
	UserType          UserType   `json:"user_type" gorm:"type:varchar(20);not null;uniqueIndex:ux_participants_active;index:idx_participants_user"`
	IsAdmin           bool       `json:"is_admin" gorm:"not null;default:false"`
	IsModerator       bool       `json:"is_moderator" gorm:"not null;default:false"`
	IsDeleted         bool       `json:"is_deleted" gorm:"not null;default:false"`
	IsArchived        bool       `json:"is_archived" gorm:"not null;default:false"`
	LastReadMessageID *int64     `json:"last_read_message_id"`
	UnreadCount       int        `json:"unread_count" gorm:"not null;default:0"`
	Version           int64      `json:"version" gorm:"not null;default:0"`
	JoinedAt          time.Time  `json:"joined_at" gorm:"not null"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`

	// Relations
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID"`
}

// Ref returns the user the row belongs to
func (p *Participant) Ref() UserRef {
	return UserRef{UserID: p.UserID, UserType: p.UserType}
}

// Role derives the moderation role from the flags
func (p *Participant) Role() ParticipantRole {
	switch {
	case p.IsDeleted:
		return ParticipantRoleLeft
	case p.IsAdmin:
		return ParticipantRoleAdmin
	case p.IsModerator:
		return ParticipantRoleModerator
	default:
		return ParticipantRoleOrdinary
	}
}

// CanModerate reports whether the participant may add/remove members
// and reply to announcements
func (p *Participant) CanModerate() bool {
	return !p.IsDeleted && (p.IsAdmin || p.IsModerator)
}

// HasRead reports whether the read position is at or past messageID
func (p *Participant) HasRead(messageID int64) bool {
	return p.LastReadMessageID != nil && *p.LastReadMessageID >= messageID
}

// RowID and RowVersion make Participant a versioned row
func (p *Participant) RowID() int64      { return p.ID }
func (p *Participant) RowVersion() int64 { return p.Version }

func (Participant) TableName() string { return "participants" }
