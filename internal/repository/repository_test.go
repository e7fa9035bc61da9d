package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

const casUpdate = `UPDATE "participants" SET .*"version"=version \+ 1 WHERE id = \$\d+ AND version = \$\d+`

func TestCompareAndSwap(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(sqlmock.Sqlmock)
		wantOK    bool
		wantErr   bool
	}{
		{
			name: "version matches",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(casUpdate).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			wantOK: true,
		},
		{
			name: "another writer won",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(casUpdate).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			},
			wantOK: false,
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(casUpdate).WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupTestDB(t)
			tt.mockSetup(mock)

			p := &model.Participant{ID: 4, Version: 2}
			ok, err := CompareAndSwap(db, p, map[string]interface{}{"last_read_message_id": int64(10)})

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantOK, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMessageRepository_PredecessorID(t *testing.T) {
	t.Run("has predecessor", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`SELECT "id" FROM "messages" WHERE conversation_id = \$1 AND id < \$2 ORDER BY id DESC`).
			WithArgs(int64(1), int64(9), 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

		pred, err := NewMessageRepository(db).PredecessorID(context.Background(), 1, 9)

		require.NoError(t, err)
		require.NotNil(t, pred)
		assert.Equal(t, int64(7), *pred)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first message", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`SELECT "id" FROM "messages"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		pred, err := NewMessageRepository(db).PredecessorID(context.Background(), 1, 1)

		require.NoError(t, err)
		assert.Nil(t, pred)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationRepository_MarkReadUpTo(t *testing.T) {
	db, mock := setupTestDB(t)
	at := time.Now()
	user := model.UserRef{UserID: 3, UserType: model.UserTypeParent}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "notifications" SET "is_read"=\$1,"read_at"=\$2 WHERE user_id = \$3 AND user_type = \$4 AND conversation_id = \$5 AND message_id <= \$6 AND is_read = \$7`).
		WithArgs(true, at, int64(3), model.UserTypeParent, int64(1), int64(12), false).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := NewNotificationRepository(db).MarkReadUpTo(context.Background(), user, 1, 12, at)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkUnreadUpserts(t *testing.T) {
	db, mock := setupTestDB(t)
	msg := &model.Message{ID: 12, ConversationID: 1}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "notifications" .* ON CONFLICT \("user_id","user_type","message_id"\) DO UPDATE SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(40)))
	mock.ExpectCommit()

	err := NewNotificationRepository(db).MarkUnread(context.Background(), model.UserRef{UserID: 3, UserType: model.UserTypeParent}, msg)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_IncrementUnread(t *testing.T) {
	t.Run("no recipients is a no-op", func(t *testing.T) {
		db, mock := setupTestDB(t)

		err := NewConversationRepository(db).IncrementUnread(context.Background(), nil)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bumps every recipient", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "participants" SET "unread_count"=unread_count \+ 1 WHERE id IN \(\$1,\$2\)`).
			WithArgs(int64(5), int64(6)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := NewConversationRepository(db).IncrementUnread(context.Background(), []int64{5, 6})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConversationRepository_RecomputeUnread(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(`(?s)UPDATE participants SET unread_count = \(.*\) WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewConversationRepository(db).RecomputeUnread(context.Background(), 5)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
