package repository

import (
	"context"
	"time"

	"github.com/quocanhngo/edumsg/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// recomputeUnreadSQL re-derives the cached unread counter from the read
// position and the message log. It is appended a WHERE clause by the callers.
const recomputeUnreadSQL = `UPDATE participants SET unread_count = (
	SELECT COUNT(*) FROM messages m
	WHERE m.conversation_id = participants.conversation_id
	  AND m.id > COALESCE(participants.last_read_message_id, 0)
	  AND NOT (m.sender_id = participants.user_id AND m.sender_type = participants.user_type)
)`

// ConversationRepository handles database operations for conversations and
// their participants
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *ConversationRepository) WithTx(tx *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

// Create inserts a conversation together with its participants
func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// FindByID finds a conversation with its active participants
func (r *ConversationRepository) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants", "is_deleted = ?", false).
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindActiveParticipant returns the user's active membership row
func (r *ConversationRepository) FindActiveParticipant(ctx context.Context, convID int64, user model.UserRef) (*model.Participant, error) {
	var p model.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND user_type = ? AND is_deleted = ?",
			convID, user.UserID, user.UserType, false).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindAnyParticipant returns the user's active row, or the most recently
// joined deleted row when the user has left
func (r *ConversationRepository) FindAnyParticipant(ctx context.Context, convID int64, user model.UserRef) (*model.Participant, error) {
	var p model.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND user_type = ?", convID, user.UserID, user.UserType).
		Order("is_deleted ASC, joined_at DESC, id DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LockConversation takes the conversation row lock. Sends hold it from before
// the message insert until commit, so message ids within a conversation are
// allocated in commit order.
func (r *ConversationRepository) LockConversation(ctx context.Context, convID int64) error {
	var conv model.Conversation
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", convID).
		First(&conv).Error
}

// LockActiveParticipant reads the user's active row with a row lock held until
// the surrounding transaction ends
func (r *ConversationRepository) LockActiveParticipant(ctx context.Context, convID int64, user model.UserRef) (*model.Participant, error) {
	var p model.Participant
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("conversation_id = ? AND user_id = ? AND user_type = ? AND is_deleted = ?",
			convID, user.UserID, user.UserType, false).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActiveParticipants returns every member who has not left
func (r *ConversationRepository) ListActiveParticipants(ctx context.Context, convID int64) ([]model.Participant, error) {
	participants := []model.Participant{}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", convID, false).
		Order("id ASC").
		Find(&participants).Error
	return participants, err
}

// GetUserConversations returns the user's memberships with their conversation,
// ordered by latest activity
func (r *ConversationRepository) GetUserConversations(ctx context.Context, user model.UserRef, archived bool) ([]model.Participant, error) {
	participants := []model.Participant{}
	err := r.db.WithContext(ctx).
		Joins("JOIN conversations ON conversations.id = participants.conversation_id").
		Where("participants.user_id = ? AND participants.user_type = ?", user.UserID, user.UserType).
		Where("participants.is_deleted = ? AND participants.is_archived = ?", false, archived).
		Preload("Conversation").
		Order("conversations.updated_at DESC").
		Find(&participants).Error
	return participants, err
}

// SumUnread returns how many conversations have unread messages for the user
// and the total of their cached counters. Archived conversations are ignored.
func (r *ConversationRepository) SumUnread(ctx context.Context, user model.UserRef) (model.UnreadSummary, error) {
	var summary model.UnreadSummary
	err := r.db.WithContext(ctx).Model(&model.Participant{}).
		Select("COUNT(*) FILTER (WHERE unread_count > 0) AS conversations, COALESCE(SUM(unread_count), 0) AS messages").
		Where("user_id = ? AND user_type = ? AND is_deleted = ? AND is_archived = ?",
			user.UserID, user.UserType, false, false).
		Scan(&summary).Error
	return summary, err
}

// SetArchived archives or unarchives a membership
func (r *ConversationRepository) SetArchived(ctx context.Context, participantID int64, archived bool) error {
	return r.db.WithContext(ctx).Model(&model.Participant{}).
		Where("id = ?", participantID).
		Update("is_archived", archived).Error
}

// SoftDelete marks the membership as left. Moderation rights are dropped,
// the read position is kept for a later restore.
func (r *ConversationRepository) SoftDelete(ctx context.Context, participantID int64) error {
	return r.db.WithContext(ctx).Model(&model.Participant{}).
		Where("id = ?", participantID).
		Updates(map[string]interface{}{
			"is_deleted":   true,
			"is_moderator": false,
		}).Error
}

// ReviveParticipant makes the user an active member again and guarantees a
// single row per (conversation, user) afterwards:
//   - an active row already exists: returned as is, revived=false
//   - only deleted rows exist: the most recent one is reactivated and unarchived,
//     the other stale rows are removed
//   - no row at all: a fresh ordinary participant is inserted
//
// It must run inside a transaction.
func (r *ConversationRepository) ReviveParticipant(ctx context.Context, convID int64, user model.UserRef) (*model.Participant, bool, error) {
	db := r.db.WithContext(ctx)

	var rows []model.Participant
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("conversation_id = ? AND user_id = ? AND user_type = ?", convID, user.UserID, user.UserType).
		Order("is_deleted ASC, joined_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, false, err
	}

	if len(rows) == 0 {
		p := &model.Participant{
			ConversationID: convID,
			UserID:         user.UserID,
			UserType:       user.UserType,
			JoinedAt:       time.Now(),
		}
		if err := db.Create(p).Error; err != nil {
			return nil, false, err
		}
		return p, true, nil
	}

	keep := rows[0]
	if !keep.IsDeleted {
		return &keep, false, nil
	}

	stale := make([]int64, 0, len(rows)-1)
	for _, row := range rows[1:] {
		stale = append(stale, row.ID)
	}
	if len(stale) > 0 {
		if err := db.Where("id IN ?", stale).Delete(&model.Participant{}).Error; err != nil {
			return nil, false, err
		}
	}

	if err := db.Model(&model.Participant{}).
		Where("id = ?", keep.ID).
		Updates(map[string]interface{}{
			"is_deleted":  false,
			"is_archived": false,
		}).Error; err != nil {
		return nil, false, err
	}
	keep.IsDeleted = false
	keep.IsArchived = false
	return &keep, true, nil
}

// DeleteUserRows hard-deletes every row the user has in the conversation
func (r *ConversationRepository) DeleteUserRows(ctx context.Context, convID int64, user model.UserRef) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND user_type = ?", convID, user.UserID, user.UserType).
		Delete(&model.Participant{})
	return result.RowsAffected, result.Error
}

// CountRows counts participant rows of a conversation, deleted ones included
func (r *ConversationRepository) CountRows(ctx context.Context, convID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Participant{}).
		Where("conversation_id = ?", convID).
		Count(&count).Error
	return count, err
}

// Delete removes a conversation. Messages, attachments and notifications
// follow through ON DELETE CASCADE.
func (r *ConversationRepository) Delete(ctx context.Context, convID int64) error {
	return r.db.WithContext(ctx).
		Where("id = ?", convID).
		Delete(&model.Conversation{}).Error
}

// SetModerator grants or revokes moderation rights
func (r *ConversationRepository) SetModerator(ctx context.Context, participantID int64, moderator bool) error {
	return r.db.WithContext(ctx).Model(&model.Participant{}).
		Where("id = ?", participantID).
		Update("is_moderator", moderator).Error
}

// IncrementUnread adds one unread message to each participant. Used only when
// a new message is created.
func (r *ConversationRepository) IncrementUnread(ctx context.Context, participantIDs []int64) error {
	if len(participantIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Participant{}).
		Where("id IN ?", participantIDs).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
}

// RecomputeUnread re-derives one participant's unread counter
func (r *ConversationRepository) RecomputeUnread(ctx context.Context, participantID int64) error {
	return r.db.WithContext(ctx).
		Exec(recomputeUnreadSQL+" WHERE id = ?", participantID).Error
}

// RecomputeUnreadForConversation re-derives the counters of every active
// participant of a conversation, or of all conversations when convID is 0
func (r *ConversationRepository) RecomputeUnreadForConversation(ctx context.Context, convID int64) (int64, error) {
	var result *gorm.DB
	if convID == 0 {
		result = r.db.WithContext(ctx).Exec(recomputeUnreadSQL + " WHERE is_deleted = FALSE")
	} else {
		result = r.db.WithContext(ctx).Exec(recomputeUnreadSQL+" WHERE is_deleted = FALSE AND conversation_id = ?", convID)
	}
	return result.RowsAffected, result.Error
}

// TouchUpdatedAt bumps the updated_at timestamp (to sort by latest activity)
func (r *ConversationRepository) TouchUpdatedAt(ctx context.Context, convID int64) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", convID).
		Update("updated_at", gorm.Expr("NOW()")).Error
}
