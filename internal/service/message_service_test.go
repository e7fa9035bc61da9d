package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestValidateSend(t *testing.T) {
	file := model.AttachmentInput{FileName: "notes.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}

	tests := []struct {
		name    string
		req     model.SendMessageRequest
		files   []model.AttachmentInput
		wantErr bool
	}{
		{"plain body", model.SendMessageRequest{Body: "Bonjour", Status: model.MessageStatusNormal}, nil, false},
		{"attachment only", model.SendMessageRequest{Status: model.MessageStatusNormal}, []model.AttachmentInput{file}, false},
		{"blank body", model.SendMessageRequest{Body: "  \n", Status: model.MessageStatusNormal}, nil, true},
		{"unknown status", model.SendMessageRequest{Body: "hi", Status: "shouting"}, nil, true},
		{"body at limit", model.SendMessageRequest{Body: strings.Repeat("é", MaxBodyLength), Status: model.MessageStatusUrgent}, nil, false},
		{"body too long", model.SendMessageRequest{Body: strings.Repeat("a", MaxBodyLength+1), Status: model.MessageStatusNormal}, nil, true},
		{"empty attachment", model.SendMessageRequest{Body: "hi", Status: model.MessageStatusNormal}, []model.AttachmentInput{{FileName: "x.txt"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSend(tt.req, tt.files)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReadStatusOf(t *testing.T) {
	readAt := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	id := func(v int64) *int64 { return &v }

	msg := &model.Message{ID: 10, ConversationID: 1, SenderID: 1, SenderType: model.UserTypeTeacher}
	participants := []model.Participant{
		{ID: 1, UserID: 1, UserType: model.UserTypeTeacher, LastReadMessageID: id(10)},                      // sender
		{ID: 2, UserID: 1, UserType: model.UserTypeStudent, LastReadMessageID: id(12), LastReadAt: &readAt}, // past it
		{ID: 3, UserID: 2, UserType: model.UserTypeStudent, LastReadMessageID: id(9)},                       // behind
		{ID: 4, UserID: 1, UserType: model.UserTypeParent},                                                  // never read
		{ID: 5, UserID: 2, UserType: model.UserTypeParent, LastReadMessageID: id(10), IsDeleted: true},      // left
	}

	status := readStatusOf(msg, participants)

	assert.Equal(t, int64(10), status.MessageID)
	assert.Equal(t, 3, status.TotalParticipants)
	assert.Equal(t, 1, status.ReadCount)
	assert.False(t, status.AllRead)
	if assert.Len(t, status.Readers, 1) {
		assert.Equal(t, model.UserRef{UserID: 1, UserType: model.UserTypeStudent}, status.Readers[0].UserRef)
		assert.Equal(t, &readAt, status.Readers[0].LastReadAt)
	}
}

func TestReadStatusOf_SenderAlone(t *testing.T) {
	msg := &model.Message{ID: 3, SenderID: 7, SenderType: model.UserTypeStaff}
	participants := []model.Participant{{ID: 1, UserID: 7, UserType: model.UserTypeStaff}}

	status := readStatusOf(msg, participants)

	assert.Equal(t, 0, status.TotalParticipants)
	assert.True(t, status.AllRead)
	assert.NotNil(t, status.Readers)
}

func TestPushTitle(t *testing.T) {
	assert.Equal(t, "New announcement", pushTitle(model.MessageStatusAnnonce))
	assert.Equal(t, "Important message", pushTitle(model.MessageStatusUrgent))
	assert.Equal(t, "Important message", pushTitle(model.MessageStatusImportant))
	assert.Equal(t, "New message", pushTitle(model.MessageStatusNormal))
}

const (
	lockConversation = `SELECT .* FROM "conversations" WHERE id = \$1 .*FOR UPDATE`
	lastMessage      = `SELECT \* FROM "messages" WHERE conversation_id = \$1 ORDER BY id DESC`
)

func newMessageServiceWithMock(t *testing.T) (*MessageService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newMockDB(t)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	tracker := NewReadTracker(db, convRepo, msgRepo, notifRepo, testReadConfig(3), discardLogger())
	return NewMessageService(db, convRepo, msgRepo, notifRepo, tracker, nil, testReadConfig(3), discardLogger()), mock
}

func TestSend_LocksConversationBeforeSender(t *testing.T) {
	svc, mock := newMessageServiceWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockConversation).
		WithArgs(trackerConvID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(trackerConvID))
	mock.ExpectQuery(lockParticipant).WillReturnRows(sqlmock.NewRows(splitCols(participantCols)))
	mock.ExpectRollback()

	_, err := svc.Send(context.Background(), parent, trackerConvID, model.SendMessageRequest{Body: "Bonjour"}, nil)

	assert.ErrorIs(t, err, model.ErrNotParticipant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSend_UnknownConversation(t *testing.T) {
	svc, mock := newMessageServiceWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockConversation).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.Send(context.Background(), parent, 404, model.SendMessageRequest{Body: "Bonjour"}, nil)

	assert.ErrorIs(t, err, model.ErrNotParticipant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSend_AnnouncementNeedsModeratorEvenForStaff(t *testing.T) {
	svc, mock := newMessageServiceWithMock(t)
	staff := model.Identity{UserID: 8, UserType: model.UserTypeStaff, Role: model.RoleStaff}

	mock.ExpectBegin()
	mock.ExpectQuery(lockConversation).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(trackerConvID))
	mock.ExpectQuery(lockParticipant).WillReturnRows(sqlmock.NewRows(splitCols(participantCols)).
		AddRow(int64(9), trackerConvID, staff.UserID, string(staff.UserType), false, false, false, false, nil, 0, 0))
	mock.ExpectQuery(lastMessage).WillReturnRows(sqlmock.NewRows(splitCols(messageCols)))
	mock.ExpectRollback()

	_, err := svc.Send(context.Background(), staff, trackerConvID,
		model.SendMessageRequest{Body: "Sortie annulée", Status: model.MessageStatusAnnonce}, nil)

	assert.ErrorIs(t, err, model.ErrNotModerator)
	assert.NoError(t, mock.ExpectationsWereMet())
}
