// Package storage keeps a local SQLite copy of the last fetched messages so a
// client can render something before its first poll completes.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"waffle-chat/internal/models"
)

// DefaultFileName is the cache filename under the client data dir.
const DefaultFileName = "waffle-cache.db"

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS cached_messages (
  room_name  TEXT NOT NULL,
  position   INTEGER NOT NULL,
  id         TEXT NOT NULL,
  sender_id  TEXT NOT NULL,
  sender     TEXT NOT NULL DEFAULT '',
  content    TEXT NOT NULL,
  raw        TEXT NOT NULL DEFAULT '',
  avatar_url TEXT NOT NULL DEFAULT '',
  format     TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (room_name, position)
);
`,
	`
CREATE TABLE IF NOT EXISTS cached_rooms (
  position INTEGER PRIMARY KEY,
  name     TEXT NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS cache_meta (
  room_name  TEXT PRIMARY KEY,
  updated_at INTEGER NOT NULL
);
`,
}

// addedColumns are applied to cache files created before the column existed.
var addedColumns = []struct{ table, column, decl string }{
	{"cached_messages", "raw", "TEXT NOT NULL DEFAULT ''"},
}

// Cache is a SQLite-backed message cache.
type Cache struct {
	db        *sqlx.DB
	closeOnce sync.Once
}

type cachedMessage struct {
	RoomName  string `db:"room_name"`
	Position  int    `db:"position"`
	ID        string `db:"id"`
	SenderID  string `db:"sender_id"`
	Sender    string `db:"sender"`
	Content   string `db:"content"`
	Raw       string `db:"raw"`
	AvatarURL string `db:"avatar_url"`
	Format    string `db:"format"`
	CreatedAt int64  `db:"created_at"`
}

// Open opens (or creates) the cache under dataDir.
func Open(dataDir string) (*Cache, string, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create cache directory: %w", err)
	}
	path := filepath.Join(dataDir, DefaultFileName)
	c, err := OpenPath(path)
	if err != nil {
		return nil, "", err
	}
	return c, path, nil
}

// OpenPath opens SQLite at an explicit path and runs migrations.
func OpenPath(path string) (*Cache, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.ToSlash(path))
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite cache: %w", err)
	}
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply cache migration %d: %w", i+1, err)
		}
	}
	for _, col := range addedColumns {
		if err := ensureColumn(db, col.table, col.column, col.decl); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Cache{db: db}, nil
}

func ensureColumn(db *sqlx.DB, table, column, decl string) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

// Close closes the SQLite connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		err = c.db.Close()
	})
	return err
}

// SaveMessages replaces the cached messages of room with msgs.
func (c *Cache) SaveMessages(ctx context.Context, room string, msgs []models.Message) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_messages WHERE room_name = ?`, room); err != nil {
		return fmt.Errorf("clear cached room: %w", err)
	}

	for i, m := range msgs {
		row := cachedMessage{
			RoomName:  room,
			Position:  i,
			ID:        m.ID,
			SenderID:  m.SenderID,
			Sender:    m.SenderName,
			Content:   m.Content,
			Raw:       m.Raw,
			AvatarURL: m.AvatarURL,
			Format:    string(m.Format),
			CreatedAt: m.Timestamp.UnixMilli(),
		}
		if _, err := tx.NamedExecContext(ctx, `
INSERT INTO cached_messages (room_name, position, id, sender_id, sender, content, raw, avatar_url, format, created_at)
VALUES (:room_name, :position, :id, :sender_id, :sender, :content, :raw, :avatar_url, :format, :created_at)`, row); err != nil {
			return fmt.Errorf("insert cached message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO cache_meta (room_name, updated_at) VALUES (?, ?)
ON CONFLICT(room_name) DO UPDATE SET updated_at = excluded.updated_at`, room, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("touch cache meta: %w", err)
	}

	return tx.Commit()
}

// LoadMessages returns the cached messages of room in their stored order.
func (c *Cache) LoadMessages(ctx context.Context, room string) ([]models.Message, error) {
	var rows []cachedMessage
	if err := c.db.SelectContext(ctx, &rows, `
SELECT room_name, position, id, sender_id, sender, content, raw, avatar_url, format, created_at
FROM cached_messages WHERE room_name = ? ORDER BY position`, room); err != nil {
		return nil, fmt.Errorf("load cached messages: %w", err)
	}

	out := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Message{
			ID:         r.ID,
			RoomID:     r.RoomName,
			SenderID:   r.SenderID,
			SenderName: r.Sender,
			Content:    r.Content,
			Raw:        r.Raw,
			AvatarURL:  r.AvatarURL,
			Format:     models.MessageFormat(r.Format),
			Timestamp:  time.UnixMilli(r.CreatedAt),
		})
	}
	return out, nil
}

// SaveRooms replaces the cached room list.
func (c *Cache) SaveRooms(ctx context.Context, rooms []string) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_rooms`); err != nil {
		return fmt.Errorf("clear cached rooms: %w", err)
	}
	for i, name := range rooms {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cached_rooms (position, name) VALUES (?, ?)`, i, name); err != nil {
			return fmt.Errorf("insert cached room: %w", err)
		}
	}
	return tx.Commit()
}

// LoadRooms returns the cached room list.
func (c *Cache) LoadRooms(ctx context.Context) ([]string, error) {
	var rooms []string
	if err := c.db.SelectContext(ctx, &rooms, `SELECT name FROM cached_rooms ORDER BY position`); err != nil {
		return nil, fmt.Errorf("load cached rooms: %w", err)
	}
	return rooms, nil
}

// UpdatedAt reports when room was last written, or the zero time.
func (c *Cache) UpdatedAt(ctx context.Context, room string) (time.Time, error) {
	var ms int64
	err := c.db.GetContext(ctx, &ms, `SELECT updated_at FROM cache_meta WHERE room_name = ?`, room)
	if err != nil {
		if isNoRows(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read cache meta: %w", err)
	}
	return time.UnixMilli(ms), nil
}
