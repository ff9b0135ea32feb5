package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"waffle-chat/internal/models"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, name, creator string, members []string) (models.Room, error)
	RoomExists(ctx context.Context, name string) (bool, error)
	ListRoomsForUser(ctx context.Context, email string) ([]string, error)
	IsMember(ctx context.Context, room, email string) (bool, error)
	ListMembers(ctx context.Context, room string) ([]string, error)
	ReplaceMembers(ctx context.Context, room string, members []string) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom creates a room and its members atomically. members must already
// include the creator.
func (r *RoomRepo) CreateRoom(ctx context.Context, name, creator string, members []string) (room models.Room, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.QueryRowxContext(ctx, `INSERT INTO rooms (name, creator_email) VALUES ($1, $2) RETURNING name, creator_email, created_at`, name, creator).
		Scan(&room.Name, &room.CreatorEmail, &room.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = ErrRoomExists
		}
		return models.Room{}, err
	}

	for _, email := range members {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_name, email) VALUES ($1, $2) ON CONFLICT DO NOTHING`, name, email); err != nil {
			return models.Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// RoomExists reports whether a room with that name exists.
func (r *RoomRepo) RoomExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM rooms WHERE name=$1)`, name)
	return exists, err
}

// ListRoomsForUser returns the names of rooms that include the user, oldest first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, email string) ([]string, error) {
	var names []string
	err := r.db.SelectContext(ctx, &names, `SELECT r.name FROM rooms r INNER JOIN room_members rm ON rm.room_name = r.name WHERE rm.email=$1 ORDER BY r.created_at ASC, r.name ASC`, email)
	return names, err
}

// IsMember checks membership.
func (r *RoomRepo) IsMember(ctx context.Context, room, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_name=$1 AND email=$2)`, room, email)
	return exists, err
}

// ListMembers returns the sorted member emails of a room.
func (r *RoomRepo) ListMembers(ctx context.Context, room string) ([]string, error) {
	exists, err := r.RoomExists(ctx, room)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRoomNotFound
	}

	members := []string{}
	err = r.db.SelectContext(ctx, &members, `SELECT email FROM room_members WHERE room_name=$1 ORDER BY email`, room)
	return members, err
}

// ReplaceMembers swaps the member list of a room in one transaction.
func (r *RoomRepo) ReplaceMembers(ctx context.Context, room string, members []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var name string
	if err = tx.GetContext(ctx, &name, `SELECT name FROM rooms WHERE name=$1 FOR UPDATE`, room); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrRoomNotFound
		}
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM room_members WHERE room_name=$1`, room); err != nil {
		return err
	}
	for _, email := range members {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_name, email) VALUES ($1, $2)`, room, email); err != nil {
			return err
		}
	}
	return tx.Commit()
}
