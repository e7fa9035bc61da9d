package repository

import (
	"context"
	"time"

	"github.com/quocanhngo/edumsg/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository handles the per-recipient notification rows
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *NotificationRepository) WithTx(tx *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: tx}
}

// CreateBatch inserts the fan-out rows of one message
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&notifications).Error
}

// MarkReadUpTo marks the recipient's notifications for messages <= messageID
// of the conversation as read
func (r *NotificationRepository) MarkReadUpTo(ctx context.Context, user model.UserRef, convID, messageID int64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND user_type = ? AND conversation_id = ? AND message_id <= ? AND is_read = ?",
			user.UserID, user.UserType, convID, messageID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	return result.RowsAffected, result.Error
}

// MarkUnread creates the recipient's notification for msg, or flips the
// existing one back to unread
func (r *NotificationRepository) MarkUnread(ctx context.Context, user model.UserRef, msg *model.Message) error {
	n := model.Notification{
		UserID:           user.UserID,
		UserType:         user.UserType,
		MessageID:        msg.ID,
		ConversationID:   msg.ConversationID,
		NotificationType: model.NotificationTypeUnread,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "user_type"}, {Name: "message_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_read": false,
			"read_at": nil,
		}),
	}).Create(&n).Error
}

// ListForUser returns the user's notifications, newest first
func (r *NotificationRepository) ListForUser(ctx context.Context, user model.UserRef, unreadOnly bool, limit int) ([]model.Notification, error) {
	notifications := []model.Notification{}
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND user_type = ?", user.UserID, user.UserType).
		Order("id DESC").
		Limit(limit)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	err := query.Find(&notifications).Error
	return notifications, err
}

// CountForMessage counts the notification rows created for a message
func (r *NotificationRepository) CountForMessage(ctx context.Context, messageID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	return count, err
}

// DeleteForUserInConversation drops the user's notifications of a conversation
func (r *NotificationRepository) DeleteForUserInConversation(ctx context.Context, user model.UserRef, convID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND user_type = ? AND conversation_id = ?", user.UserID, user.UserType, convID).
		Delete(&model.Notification{}).Error
}
