package models

import "time"

// PlaceholderUnsupported replaces content that looks encrypted but cannot be opened.
const PlaceholderUnsupported = "this message uses unsupported encryption"

// MessageFormat identifies which wire format a message was decoded from.
type MessageFormat string

const (
	FormatStructured   MessageFormat = "structured"
	FormatLegacy       MessageFormat = "legacy"
	FormatIntermediate MessageFormat = "intermediate"
)

// Message is the single internal representation of a chat message.
type Message struct {
	ID         string        `db:"id" json:"id" bson:"_id"`
	RoomID     string        `db:"room_name" json:"roomID" bson:"room_name"`
	SenderID   string        `db:"sender_id" json:"senderID" bson:"sender_id"`
	SenderName string        `db:"-" json:"senderName,omitempty" bson:"-"`
	Content    string        `db:"content" json:"content" bson:"content"`
	AvatarURL  string        `db:"avatar_url" json:"avatarURL,omitempty" bson:"avatar_url,omitempty"`
	Timestamp  time.Time     `db:"created_at" json:"timestamp" bson:"created_at"`
	Format     MessageFormat `db:"-" json:"-" bson:"-"`

	// Raw keeps the decrypted legacy string so sender matching can search it.
	Raw string `db:"-" json:"-" bson:"-"`

	IsFirstInGroup bool `db:"-" json:"-" bson:"-"`
	IsLastInGroup  bool `db:"-" json:"-" bson:"-"`
}

// AnnotateGroups recomputes the group-boundary flags over an ordered batch.
func AnnotateGroups(msgs []Message) {
	for i := range msgs {
		msgs[i].IsFirstInGroup = i == 0 || msgs[i-1].SenderID != msgs[i].SenderID
		msgs[i].IsLastInGroup = i == len(msgs)-1 || msgs[i+1].SenderID != msgs[i].SenderID
	}
}

// Identity describes the signed-in user of a client session.
type Identity struct {
	UserID    string `mapstructure:"user_id" json:"userId"`
	Email     string `mapstructure:"email" json:"email"`
	FirstName string `mapstructure:"first_name" json:"firstName"`
	AvatarURL string `mapstructure:"avatar_url" json:"avatarURL,omitempty"`
}
