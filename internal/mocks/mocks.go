package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"waffle-chat/internal/models"
	"waffle-chat/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, name, creator string, members []string) (models.Room, error) {
	args := m.Called(ctx, name, creator, members)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) RoomExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, email string) ([]string, error) {
	args := m.Called(ctx, email)
	var rooms []string
	if val := args.Get(0); val != nil {
		rooms = val.([]string)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) IsMember(ctx context.Context, room, email string) (bool, error) {
	args := m.Called(ctx, room, email)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) ListMembers(ctx context.Context, room string) ([]string, error) {
	args := m.Called(ctx, room)
	var members []string
	if val := args.Get(0); val != nil {
		members = val.([]string)
	}
	return members, args.Error(1)
}

func (m *RoomRepositoryMock) ReplaceMembers(ctx context.Context, room string, members []string) error {
	args := m.Called(ctx, room, members)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var stored models.Message
	if val := args.Get(0); val != nil {
		stored = val.(models.Message)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, id string) (models.Message, error) {
	args := m.Called(ctx, id)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, room string) ([]models.Message, error) {
	args := m.Called(ctx, room)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ClearRoom(ctx context.Context, room string) (int64, error) {
	args := m.Called(ctx, room)
	return args.Get(0).(int64), args.Error(1)
}

var (
	_ repositories.RoomRepository    = (*RoomRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
)
