package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"groupchat-service/internal/filestore"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, ownerID int, name, description string, isPrivate bool, inviteCode string) (models.Group, error) {
	args := m.Called(ctx, ownerID, name, description, isPrivate, inviteCode)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroupByInvite(ctx context.Context, inviteCode string) (models.Group, error) {
	args := m.Called(ctx, inviteCode)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	args := m.Called(ctx)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) UpdateGroup(ctx context.Context, groupID int, name, description string, isPrivate bool) (models.Group, error) {
	args := m.Called(ctx, groupID, name, description, isPrivate)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID int) ([]string, error) {
	args := m.Called(ctx, groupID)
	var images []string
	if val := args.Get(0); val != nil {
		images = val.([]string)
	}
	return images, args.Error(1)
}

func (m *GroupRepositoryMock) SetInviteCode(ctx context.Context, groupID int, inviteCode string) error {
	args := m.Called(ctx, groupID, inviteCode)
	return args.Error(0)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) Role(ctx context.Context, groupID int, userID int) (models.Role, error) {
	args := m.Called(ctx, groupID, userID)
	var role models.Role
	if val := args.Get(0); val != nil {
		role = val.(models.Role)
	}
	return role, args.Error(1)
}

func (m *GroupRepositoryMock) GroupsOf(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID int, userID int, role models.Role) (bool, error) {
	args := m.Called(ctx, groupID, userID, role)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID int, userID int) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) SetRole(ctx context.Context, groupID int, userID int, role models.Role) error {
	args := m.Called(ctx, groupID, userID, role)
	return args.Error(0)
}

func (m *GroupRepositoryMock) ListMembers(ctx context.Context, groupID int) ([]models.Member, error) {
	args := m.Called(ctx, groupID)
	var members []models.Member
	if val := args.Get(0); val != nil {
		members = val.([]models.Member)
	}
	return members, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Insert(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var stored models.Message
	if val := args.Get(0); val != nil {
		stored = val.(models.Message)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) ListByGroup(ctx context.Context, groupID int, limit int, beforeID int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, limit, beforeID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SweepExpired(ctx context.Context, now time.Time) ([]models.ExpiredMessage, error) {
	args := m.Called(ctx, now)
	var removed []models.ExpiredMessage
	if val := args.Get(0); val != nil {
		removed = val.([]models.ExpiredMessage)
	}
	return removed, args.Error(1)
}

type FileStoreMock struct {
	mock.Mock
}

func (m *FileStoreMock) Save(ctx context.Context, r io.Reader, filename, category string) (string, error) {
	args := m.Called(ctx, r, filename, category)
	return args.String(0), args.Error(1)
}

func (m *FileStoreMock) Delete(ctx context.Context, reference, category string) (bool, error) {
	args := m.Called(ctx, reference, category)
	return args.Bool(0), args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(room, event string, data interface{}, exclude string) int {
	args := m.Called(room, event, data, exclude)
	return args.Int(0)
}

func (m *BroadcasterMock) BroadcastAll(event string, data interface{}) int {
	args := m.Called(event, data)
	return args.Int(0)
}

func (m *BroadcasterMock) JoinUser(userID int, room string) int {
	args := m.Called(userID, room)
	return args.Int(0)
}

func (m *BroadcasterMock) EvictUser(userID int, room string) int {
	args := m.Called(userID, room)
	return args.Int(0)
}

func (m *BroadcasterMock) CloseRoom(room string) int {
	args := m.Called(room)
	return args.Int(0)
}

var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ filestore.Store = (*FileStoreMock)(nil)
