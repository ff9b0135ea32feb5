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
	ErrMessageNotFound  = errors.New("message not found")
	ErrDuplicateMessage = errors.New("message already stored")
)

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	ListMessages(ctx context.Context, room string) ([]models.Message, error)
	ClearRoom(ctx context.Context, room string) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_name, sender_id, content, avatar_url, created_at`

// CreateMessage stores a message. Content is stored exactly as received.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var out models.Message
	err := r.db.GetContext(ctx, &out, `INSERT INTO messages (id, room_name, sender_id, content, avatar_url, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.AvatarURL, msg.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505":
				return models.Message{}, ErrDuplicateMessage
			case "23503":
				return models.Message{}, ErrRoomNotFound
			}
		}
		return models.Message{}, err
	}
	out.Format = models.FormatStructured
	return out, nil
}

// GetMessage fetches a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, id string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns the messages of a room in insertion order.
func (r *MessageRepo) ListMessages(ctx context.Context, room string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE room_name=$1 ORDER BY seq ASC`, room)
	return msgs, err
}

// ClearRoom deletes every message of a room and returns how many were removed.
func (r *MessageRepo) ClearRoom(ctx context.Context, room string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE room_name=$1`, room)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
