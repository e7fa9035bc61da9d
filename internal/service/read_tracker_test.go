package service

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	lockParticipant  = `SELECT \* FROM "participants" WHERE .* FOR UPDATE`
	findMessage      = `SELECT \* FROM "messages" WHERE id = \$1 AND conversation_id = \$2`
	casParticipant   = `UPDATE "participants" SET .*"version"=version \+ 1 WHERE id = \$\d+ AND version = \$\d+`
	settleNotifs     = `UPDATE "notifications" SET "is_read"=\$1,"read_at"=\$2`
	recomputeUnread  = `(?s)UPDATE participants SET unread_count = .* WHERE id = \$1`
	participantCols  = "id,conversation_id,user_id,user_type,is_admin,is_moderator,is_deleted,is_archived,last_read_message_id,unread_count,version"
	messageCols      = "id,conversation_id,sender_id,sender_type,body,status"
	trackerConvID    = int64(1)
	trackerPartRowID = int64(4)
)

var parent = model.Identity{UserID: 3, UserType: model.UserTypeParent, Role: model.RoleUser}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
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

func newTrackerWithMock(t *testing.T, attempts int) (*ReadTracker, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newMockDB(t)
	tracker := NewReadTracker(db,
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		repository.NewNotificationRepository(db),
		testReadConfig(attempts),
		discardLogger(),
	)
	return tracker, mock
}

func participantRow(lastRead interface{}, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(splitCols(participantCols)).
		AddRow(trackerPartRowID, trackerConvID, parent.UserID, string(parent.UserType), false, false, false, false, lastRead, 2, version)
}

func messageRow(id int64) *sqlmock.Rows {
	return sqlmock.NewRows(splitCols(messageCols)).
		AddRow(id, trackerConvID, int64(1), "teacher", "hello", "normal")
}

func splitCols(s string) []string {
	return strings.Split(s, ",")
}

func TestReadTracker_MarkRead_Advances(t *testing.T) {
	tracker, mock := newTrackerWithMock(t, 3)

	mock.ExpectBegin()
	mock.ExpectQuery(lockParticipant).WillReturnRows(participantRow(int64(5), 7))
	mock.ExpectQuery(findMessage).WithArgs(int64(9), trackerConvID, 1).WillReturnRows(messageRow(9))
	mock.ExpectExec(casParticipant).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(settleNotifs).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(recomputeUnread).WithArgs(trackerPartRowID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := tracker.MarkRead(context.Background(), parent, trackerConvID, 9)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	require.NotNil(t, result.LastReadMessageID)
	assert.Equal(t, int64(9), *result.LastReadMessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTracker_MarkRead_BehindCursorIsNoop(t *testing.T) {
	tracker, mock := newTrackerWithMock(t, 3)

	mock.ExpectBegin()
	mock.ExpectQuery(lockParticipant).WillReturnRows(participantRow(int64(12), 7))
	mock.ExpectQuery(findMessage).WillReturnRows(messageRow(9))
	mock.ExpectCommit()

	result, err := tracker.MarkRead(context.Background(), parent, trackerConvID, 9)

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, int64(12), *result.LastReadMessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTracker_MarkRead_RetriesLostRace(t *testing.T) {
	tracker, mock := newTrackerWithMock(t, 3)

	// First attempt: the version moved under us
	mock.ExpectBegin()
	mock.ExpectQuery(lockParticipant).WillReturnRows(participantRow(int64(5), 7))
	mock.ExpectQuery(findMessage).WillReturnRows(messageRow(9))
	mock.ExpectExec(casParticipant).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// Second attempt re-reads the row and wins
	mock.ExpectBegin()
	mock.ExpectQuery(lockParticipant).WillReturnRows(participantRow(int64(6), 8))
	mock.ExpectQuery(findMessage).WillReturnRows(messageRow(9))
	mock.ExpectExec(casParticipant).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(settleNotifs).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(recomputeUnread).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := tracker.MarkRead(context.Background(), parent, trackerConvID, 9)

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, int64(9), *result.LastReadMessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTracker_MarkRead_ExhaustsBudget(t *testing.T) {
	tracker, mock := newTrackerWithMock(t, 2)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(lockParticipant).WillReturnRows(participantRow(int64(5), int64(7+i)))
		mock.ExpectQuery(findMessage).WillReturnRows(messageRow(9))
		mock.ExpectExec(casParticipant).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()
	}

	result, err := tracker.MarkRead(context.Background(), parent, trackerConvID, 9)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, model.ErrConcurrencyExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTracker_MarkRead_NotParticipant(t *testing.T) {
	tracker, mock := newTrackerWithMock(t, 3)

	mock.ExpectBegin()
	mock.ExpectQuery(lockParticipant).WillReturnRows(sqlmock.NewRows(splitCols(participantCols)))
	mock.ExpectRollback()

	_, err := tracker.MarkRead(context.Background(), parent, trackerConvID, 9)

	assert.ErrorIs(t, err, model.ErrNotParticipant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadTracker_MarkRead_MessageFromOtherConversation(t *testing.T) {
	tracker, mock := newTrackerWithMock(t, 3)

	mock.ExpectBegin()
	mock.ExpectQuery(lockParticipant).WillReturnRows(participantRow(nil, 0))
	mock.ExpectQuery(findMessage).WillReturnRows(sqlmock.NewRows(splitCols(messageCols)))
	mock.ExpectRollback()

	_, err := tracker.MarkRead(context.Background(), parent, trackerConvID, 99)

	assert.ErrorIs(t, err, model.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
