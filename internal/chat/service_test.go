package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/apperr"
	"groupchat-service/internal/auth"
	"groupchat-service/internal/filestore"
	"groupchat-service/internal/mocks"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

type fixture struct {
	groups      *mocks.GroupRepositoryMock
	store       *mocks.MessageRepositoryMock
	files       *mocks.FileStoreMock
	broadcaster *mocks.BroadcasterMock
	service     *Service
}

func newFixture() *fixture {
	f := &fixture{
		groups:      new(mocks.GroupRepositoryMock),
		store:       new(mocks.MessageRepositoryMock),
		files:       new(mocks.FileStoreMock),
		broadcaster: new(mocks.BroadcasterMock),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewService(f.groups, f.store, f.files, f.broadcaster, logger, Options{PageSize: 50, MaxPageSize: 200})
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.groups.AssertExpectations(t)
	f.store.AssertExpectations(t)
	f.files.AssertExpectations(t)
	f.broadcaster.AssertExpectations(t)
}

var alice = auth.Identity{UserID: 1, Username: "alice"}

func TestSendMessageBroadcastsToRoom(t *testing.T) {
	f := newFixture()
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stored := models.Message{ID: 10, GroupID: 9, UserID: 1, Username: "alice", Content: "hello", CreatedAt: created, ExpiresAt: created.Add(10 * time.Minute)}

	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleMember, nil).Once()
	f.store.On("Insert", mock.Anything, models.Message{GroupID: 9, UserID: 1, Username: "alice", Content: "hello"}).Return(stored, nil).Once()
	f.broadcaster.On("Broadcast", "group_9", models.EventNewGroupMessage, models.NewMessageView(stored), "").Return(2).Once()

	msg, err := f.service.SendMessage(context.Background(), alice, 9, "  hello ", nil)
	require.NoError(t, err)
	require.Equal(t, 10, msg.ID)
	f.assertExpectations(t)
}

func TestSendMessageNonMemberIsForbidden(t *testing.T) {
	f := newFixture()
	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleNone, nil).Once()
	f.groups.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9, IsPrivate: true}, nil).Once()

	_, err := f.service.SendMessage(context.Background(), alice, 9, "hi", nil)
	require.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
	f.store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	f.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageUnknownGroupIsNotFound(t *testing.T) {
	f := newFixture()
	f.groups.On("Role", mock.Anything, 404, 1).Return(models.RoleNone, nil).Once()
	f.groups.On("GetGroup", mock.Anything, 404).Return(nil, repositories.ErrGroupNotFound).Once()

	_, err := f.service.SendMessage(context.Background(), alice, 404, "hi", nil)
	require.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestSendMessageEmptyIsInvalid(t *testing.T) {
	f := newFixture()
	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleMember, nil).Once()

	_, err := f.service.SendMessage(context.Background(), alice, 9, "   ", nil)
	require.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
	f.store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	f.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageImageOnly(t *testing.T) {
	f := newFixture()
	body := strings.NewReader("png")
	stored := models.Message{ID: 11, GroupID: 9, UserID: 1, Username: "alice", ImageURL: "group_9_images/a.png"}

	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleAdmin, nil).Once()
	f.files.On("Save", mock.Anything, body, "a.png", "group_9_images").Return("group_9_images/a.png", nil).Once()
	f.store.On("Insert", mock.Anything, models.Message{GroupID: 9, UserID: 1, Username: "alice", ImageURL: "group_9_images/a.png"}).Return(stored, nil).Once()
	f.broadcaster.On("Broadcast", "group_9", models.EventNewGroupMessage, mock.Anything, "").Return(1).Once()

	msg, err := f.service.SendMessage(context.Background(), alice, 9, "", &Upload{Reader: body, Filename: "a.png"})
	require.NoError(t, err)
	require.Equal(t, "group_9_images/a.png", msg.ImageURL)
	f.assertExpectations(t)
}

func TestSendMessageStoreFailureRemovesImage(t *testing.T) {
	f := newFixture()
	body := strings.NewReader("png")

	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleMember, nil).Once()
	f.files.On("Save", mock.Anything, body, "a.png", "group_9_images").Return("group_9_images/a.png", nil).Once()
	f.store.On("Insert", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()
	f.files.On("Delete", mock.Anything, "group_9_images/a.png", "group_9_images").Return(true, nil).Once()

	_, err := f.service.SendMessage(context.Background(), alice, 9, "caption", &Upload{Reader: body, Filename: "a.png"})
	require.Equal(t, apperr.CodeUnavailable, apperr.CodeOf(err))
	f.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestSendMessageUploadsDisabled(t *testing.T) {
	f := newFixture()
	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleMember, nil).Once()
	f.files.On("Save", mock.Anything, mock.Anything, "a.png", "group_9_images").Return("", filestore.ErrDisabled).Once()

	_, err := f.service.SendMessage(context.Background(), alice, 9, "", &Upload{Reader: strings.NewReader("x"), Filename: "a.png"})
	require.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestDeleteMessageByAuthor(t *testing.T) {
	f := newFixture()
	msg := models.Message{ID: 5, GroupID: 9, UserID: 1, ImageURL: "group_9_images/a.png"}

	f.store.On("Get", mock.Anything, 5).Return(msg, nil).Once()
	f.store.On("Delete", mock.Anything, 5).Return(msg, nil).Once()
	f.files.On("Delete", mock.Anything, "group_9_images/a.png", "group_9_images").Return(true, nil).Once()
	f.broadcaster.On("Broadcast", "group_9", models.EventDeleteGroupMessage, models.MessageDeletedPayload{MessageID: 5, GroupID: 9}, "").Return(3).Once()

	_, err := f.service.DeleteMessage(context.Background(), alice, 5)
	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestDeleteMessageByModerator(t *testing.T) {
	f := newFixture()
	msg := models.Message{ID: 5, GroupID: 9, UserID: 2}

	f.store.On("Get", mock.Anything, 5).Return(msg, nil).Once()
	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleAdmin, nil).Once()
	f.store.On("Delete", mock.Anything, 5).Return(msg, nil).Once()
	f.broadcaster.On("Broadcast", "group_9", models.EventDeleteGroupMessage, mock.Anything, "").Return(1).Once()

	_, err := f.service.DeleteMessage(context.Background(), alice, 5)
	require.NoError(t, err)
	f.files.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDeleteMessageByPlainMemberIsForbidden(t *testing.T) {
	f := newFixture()
	f.store.On("Get", mock.Anything, 5).Return(models.Message{ID: 5, GroupID: 9, UserID: 2}, nil).Once()
	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleMember, nil).Once()

	_, err := f.service.DeleteMessage(context.Background(), alice, 5)
	require.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteMessageRacingSweepIsNotFound(t *testing.T) {
	f := newFixture()
	f.store.On("Get", mock.Anything, 5).Return(models.Message{ID: 5, GroupID: 9, UserID: 1}, nil).Once()
	f.store.On("Delete", mock.Anything, 5).Return(nil, repositories.ErrMessageNotFound).Once()

	_, err := f.service.DeleteMessage(context.Background(), alice, 5)
	require.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	f.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesClampsLimit(t *testing.T) {
	f := newFixture()
	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleMember, nil).Twice()
	f.store.On("ListByGroup", mock.Anything, 9, 200, 0).Return([]models.Message{}, nil).Once()
	f.store.On("ListByGroup", mock.Anything, 9, 50, 30).Return([]models.Message{{ID: 29}}, nil).Once()

	_, err := f.service.ListMessages(context.Background(), alice, 9, 1000, 0)
	require.NoError(t, err)

	msgs, err := f.service.ListMessages(context.Background(), alice, 9, 0, 30)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	f.assertExpectations(t)
}

func TestListMessagesStoreFailureIsTransient(t *testing.T) {
	f := newFixture()
	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleMember, nil).Once()
	f.store.On("ListByGroup", mock.Anything, 9, 50, 0).Return(nil, errors.New("timeout")).Once()

	_, err := f.service.ListMessages(context.Background(), alice, 9, 0, 0)
	require.Equal(t, apperr.CodeUnavailable, apperr.CodeOf(err))
}

func TestGetMessageRequiresMembership(t *testing.T) {
	f := newFixture()
	f.store.On("Get", mock.Anything, 5).Return(models.Message{ID: 5, GroupID: 9, UserID: 2}, nil).Once()
	f.groups.On("Role", mock.Anything, 9, 1).Return(models.RoleNone, nil).Once()
	f.groups.On("GetGroup", mock.Anything, 9).Return(models.Group{ID: 9}, nil).Once()

	_, err := f.service.GetMessage(context.Background(), alice, 5)
	require.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
}
