package handlers

import (
	"context"
	"errors"

	"waffle-chat/internal/models"
	"waffle-chat/internal/repositories"
)

var errNotMember = errors.New("not a member of this room")

// checkAccess allows everyone into the default room and members elsewhere.
// It returns repositories.ErrRoomNotFound or errNotMember on refusal.
func checkAccess(ctx context.Context, rooms repositories.RoomRepository, room, email string) error {
	if room == models.DefaultRoom {
		return nil
	}
	exists, err := rooms.RoomExists(ctx, room)
	if err != nil {
		return err
	}
	if !exists {
		return repositories.ErrRoomNotFound
	}
	member, err := rooms.IsMember(ctx, room, email)
	if err != nil {
		return err
	}
	if !member {
		return errNotMember
	}
	return nil
}
