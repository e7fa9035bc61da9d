package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quocanhngo/edumsg/internal/config"
	"github.com/quocanhngo/edumsg/internal/metrics"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/repository"
	"gorm.io/gorm"
)

// ReadTracker moves participants' read positions and keeps the unread
// counters and notification flags in step with them
type ReadTracker struct {
	db        *gorm.DB
	convRepo  *repository.ConversationRepository
	msgRepo   *repository.MessageRepository
	notifRepo *repository.NotificationRepository
	cfg       config.ReadConfig
	logger    *slog.Logger
}

func NewReadTracker(
	db *gorm.DB,
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	notifRepo *repository.NotificationRepository,
	cfg config.ReadConfig,
	logger *slog.Logger,
) *ReadTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadTracker{
		db:        db,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		notifRepo: notifRepo,
		cfg:       cfg,
		logger:    logger.With("component", "read_tracker"),
	}
}

// ReadResult is the caller's read position after a read or unread call
type ReadResult struct {
	ConversationID    int64  `json:"conversation_id"`
	LastReadMessageID *int64 `json:"last_read_message_id"`
	Changed           bool   `json:"changed"`
}

// MarkRead advances the caller's read position to messageID. A target at or
// behind the current position is a no-op.
func (t *ReadTracker) MarkRead(ctx context.Context, who model.Identity, convID, messageID int64) (*ReadResult, error) {
	var result *ReadResult
	err := transact(ctx, t.db, t.cfg, t.logger, "mark_read", func(tx *gorm.DB) error {
		p, err := t.convRepo.WithTx(tx).LockActiveParticipant(ctx, convID, who.Ref())
		if err != nil {
			return notParticipant(err)
		}
		if _, err := t.msgRepo.WithTx(tx).FindInConversation(ctx, convID, messageID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.Validationf("message %d is not part of conversation %d", messageID, convID)
			}
			return err
		}

		changed, err := t.advance(ctx, tx, p, messageID, time.Now())
		if err != nil {
			return err
		}
		result = &ReadResult{ConversationID: convID, LastReadMessageID: p.LastReadMessageID, Changed: changed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkMessageRead advances the caller's read position to messageID in the
// message's own conversation
func (t *ReadTracker) MarkMessageRead(ctx context.Context, who model.Identity, messageID int64) (*ReadResult, error) {
	msg, err := t.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, notParticipant(err)
	}
	return t.MarkRead(ctx, who, msg.ConversationID, messageID)
}

// MarkConversationRead advances the caller's read position to the latest
// message of the conversation
func (t *ReadTracker) MarkConversationRead(ctx context.Context, who model.Identity, convID int64) (*ReadResult, error) {
	var result *ReadResult
	err := transact(ctx, t.db, t.cfg, t.logger, "mark_read", func(tx *gorm.DB) error {
		p, err := t.convRepo.WithTx(tx).LockActiveParticipant(ctx, convID, who.Ref())
		if err != nil {
			return notParticipant(err)
		}
		result = &ReadResult{ConversationID: convID, LastReadMessageID: p.LastReadMessageID}

		last, err := t.msgRepo.WithTx(tx).GetLastMessage(ctx, convID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		changed, err := t.advance(ctx, tx, p, last.ID, time.Now())
		if err != nil {
			return err
		}
		result.LastReadMessageID = p.LastReadMessageID
		result.Changed = changed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkUnread moves the caller's read position back to just before messageID
// and flags the message as unread again. A position already before the
// boundary is never moved forward.
func (t *ReadTracker) MarkUnread(ctx context.Context, who model.Identity, messageID int64) (*ReadResult, error) {
	msg, err := t.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, notParticipant(err)
	}

	var result *ReadResult
	err = transact(ctx, t.db, t.cfg, t.logger, "mark_unread", func(tx *gorm.DB) error {
		convRepo := t.convRepo.WithTx(tx)
		p, err := convRepo.LockActiveParticipant(ctx, msg.ConversationID, who.Ref())
		if err != nil {
			return notParticipant(err)
		}
		result = &ReadResult{ConversationID: msg.ConversationID, LastReadMessageID: p.LastReadMessageID}

		if p.HasRead(msg.ID) {
			pred, err := t.msgRepo.WithTx(tx).PredecessorID(ctx, msg.ConversationID, msg.ID)
			if err != nil {
				return err
			}

			var lastRead interface{}
			if pred != nil {
				lastRead = *pred
			}
			ok, err := repository.CompareAndSwap(tx.WithContext(ctx), p, map[string]interface{}{
				"last_read_message_id": lastRead,
			})
			if err != nil {
				return err
			}
			if !ok {
				return errVersionConflict
			}
			result.LastReadMessageID = pred
			result.Changed = true
		}

		if msg.Sender() != who.Ref() {
			if err := t.notifRepo.WithTx(tx).MarkUnread(ctx, who.Ref(), msg); err != nil {
				return err
			}
		}
		return convRepo.RecomputeUnread(ctx, p.ID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reconcile re-derives the cached unread counters of every active participant
// of a conversation, or of every conversation when convID is 0
func (t *ReadTracker) Reconcile(ctx context.Context, convID int64) (int64, error) {
	rows, err := t.convRepo.RecomputeUnreadForConversation(ctx, convID)
	if err != nil {
		t.logger.Error("unread reconciliation failed", "conversation_id", convID, "error", err)
		return 0, err
	}
	metrics.UnreadReconciled.Add(float64(rows))
	t.logger.Info("unread counters reconciled", "conversation_id", convID, "rows", rows)
	return rows, nil
}

// RunReconciler calls Reconcile for all conversations every interval until ctx
// is done
func (t *ReadTracker) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = t.Reconcile(ctx, 0)
		}
	}
}

// advance moves a locked participant row forward to target with the version
// check, then settles the participant's notifications and unread counter.
// It reports whether the row changed and updates p in place.
func (t *ReadTracker) advance(ctx context.Context, tx *gorm.DB, p *model.Participant, target int64, now time.Time) (bool, error) {
	if p.HasRead(target) {
		return false, nil
	}

	ok, err := repository.CompareAndSwap(tx.WithContext(ctx), p, map[string]interface{}{
		"last_read_message_id": target,
		"last_read_at":         now,
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errVersionConflict
	}

	if _, err := t.notifRepo.WithTx(tx).MarkReadUpTo(ctx, p.Ref(), p.ConversationID, target, now); err != nil {
		return false, err
	}
	if err := t.convRepo.WithTx(tx).RecomputeUnread(ctx, p.ID); err != nil {
		return false, err
	}

	p.LastReadMessageID = &target
	p.LastReadAt = &now
	p.Version++
	return true, nil
}
