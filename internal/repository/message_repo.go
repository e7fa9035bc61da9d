package repository

import (
	"context"

	"github.com/quocanhngo/edumsg/internal/model"
	"gorm.io/gorm"
)

// MessageRepository handles database operations for Message
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

// Create inserts a new message; msg.ID is filled from the sequence
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Omit("Attachments").Create(msg).Error
}

// FindByID finds a message by ID
func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("id = ?", id).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindInConversation finds a message only if it belongs to the conversation
func (r *MessageRepository) FindInConversation(ctx context.Context, convID, id int64) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", id, convID).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetConversationMessages returns a page of messages, newest first.
// A non-zero before returns only messages older than that id.
func (r *MessageRepository) GetConversationMessages(ctx context.Context, convID, before int64, limit int) ([]model.Message, error) {
	messages := []model.Message{}
	query := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("conversation_id = ?", convID).
		Order("id DESC").
		Limit(limit)
	if before > 0 {
		query = query.Where("id < ?", before)
	}
	err := query.Find(&messages).Error
	return messages, err
}

// GetLastMessage returns the most recent message in a conversation
func (r *MessageRepository) GetLastMessage(ctx context.Context, convID int64) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("id DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// PredecessorID returns the id of the message immediately before id in the
// conversation, or nil when id is the first message
func (r *MessageRepository) PredecessorID(ctx context.Context, convID, id int64) (*int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND id < ?", convID, id).
		Order("id DESC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return &ids[0], nil
}

// CreateAttachments inserts the attachment rows of a message
func (r *MessageRepository) CreateAttachments(ctx context.Context, attachments []model.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Message").Create(&attachments).Error
}

// AttachmentPaths lists the stored file refs of every attachment in a conversation
func (r *MessageRepository) AttachmentPaths(ctx context.Context, convID int64) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Model(&model.Attachment{}).
		Joins("JOIN messages ON messages.id = attachments.message_id").
		Where("messages.conversation_id = ?", convID).
		Pluck("attachments.file_path", &paths).Error
	return paths, err
}
