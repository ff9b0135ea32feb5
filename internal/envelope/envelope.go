// Package envelope converts between backend message representations and
// models.Message.
//
// Three formats are read:
//
//	legacy        "<body> \n(Sent by <firstName> at <M/d/yy, h:mm a>)"
//	intermediate  "<body>||<avatarURL>||<annotation>"
//	structured    {"id","content","senderID","roomID","timestamp","avatarURL"}
//
// Only the structured format is written.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"waffle-chat/internal/cipher"
	"waffle-chat/internal/content"
	"waffle-chat/internal/models"
)

const legacySeparator = "||"

var ErrUnknownFormat = errors.New("unknown message format")

// Sealer encrypts message bodies.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
}

// Opener decrypts message bodies.
type Opener interface {
	Decrypt(token string) (string, error)
}

// Cipher is the pair of operations the envelope needs.
type Cipher interface {
	Sealer
	Opener
}

var _ Cipher = (*cipher.Cipher)(nil)

// Decode sniffs the JSON kind of raw and normalises it into a message that
// still carries its transport content. roomID fills in when the element has none.
func Decode(raw json.RawMessage, roomID string) (models.Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return models.Message{}, ErrUnknownFormat
	}

	switch raw[0] {
	case '{':
		var w Wire
		if err := json.Unmarshal(raw, &w); err != nil {
			return models.Message{}, fmt.Errorf("decode structured message: %w", err)
		}
		msg := FromWire(w)
		if msg.RoomID == "" {
			msg.RoomID = roomID
		}
		return msg, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Message{}, fmt.Errorf("decode legacy message: %w", err)
		}
		return models.Message{
			ID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(roomID+"\x00"+s)).String(),
			RoomID:  roomID,
			Content: s,
			Format:  models.FormatLegacy,
		}, nil
	}
	return models.Message{}, ErrUnknownFormat
}

// DecodeBatch decodes a JSON array of messages. Elements that fail to decode
// are logged and skipped.
func DecodeBatch(data []byte, roomID string) ([]models.Message, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode message list: %w", err)
	}

	out := make([]models.Message, 0, len(items))
	for i, item := range items {
		msg, err := Decode(item, roomID)
		if err != nil {
			log.Warn().Err(err).Str("room", roomID).Int("index", i).Msg("skipping undecodable message")
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// FromWire converts a structured wire object without touching its content.
func FromWire(w Wire) models.Message {
	return models.Message{
		ID:        w.ID,
		RoomID:    w.RoomID,
		SenderID:  w.SenderID,
		Content:   w.Content,
		AvatarURL: w.AvatarURL,
		Timestamp: w.Timestamp.Time,
		Format:    models.FormatStructured,
	}
}

// ToWire converts a message without touching its content.
func ToWire(msg models.Message) Wire {
	return Wire{
		ID:        msg.ID,
		Content:   msg.Content,
		SenderID:  msg.SenderID,
		RoomID:    msg.RoomID,
		Timestamp: Timestamp{msg.Timestamp},
		AvatarURL: msg.AvatarURL,
	}
}

// Seal encrypts msg.Content for sending. If encryption fails the content is
// sent as plaintext.
func Seal(c Sealer, msg models.Message) Wire {
	w := ToWire(msg)
	token, err := c.Encrypt(msg.Content)
	if err != nil {
		log.Warn().Err(err).Str("room", msg.RoomID).Msg("encryption failed, sending plaintext")
		return w
	}
	w.Content = token
	return w
}

// Open decrypts the content of a decoded message and, for legacy strings,
// recovers the avatar, sender name and timestamp embedded in the text.
// Content that looks encrypted but cannot be opened becomes
// models.PlaceholderUnsupported.
func Open(c Opener, msg models.Message) models.Message {
	if msg.Format == models.FormatStructured {
		msg.Content = openBody(c, msg.Content)
		if a, ok := content.ExtractAnnotation(msg.Content); ok {
			msg.Content = a.Body
			if msg.SenderName == "" {
				msg.SenderName = a.Sender
			}
		}
		return msg
	}
	return openLegacy(c, msg)
}

func openLegacy(c Opener, msg models.Message) models.Message {
	raw := msg.Content
	if cipher.LooksEncrypted(raw) {
		if plain, err := c.Decrypt(raw); err == nil {
			raw = plain
		}
	}
	msg.Raw = raw

	body, trailer := raw, ""
	if parts := strings.Split(raw, legacySeparator); len(parts) > 1 {
		msg.Format = models.FormatIntermediate
		body = parts[0]
		msg.AvatarURL = strings.TrimSpace(parts[1])
		if len(parts) > 2 {
			trailer = strings.Join(parts[2:], legacySeparator)
		}
	}

	found := false
	if trailer != "" {
		_, found = applyAnnotation(&msg, trailer)
	}
	if !found {
		if stripped, ok := applyAnnotation(&msg, body); ok {
			body, found = stripped, true
		}
	}

	body = openBody(c, strings.TrimSpace(body))
	if !found {
		if stripped, ok := applyAnnotation(&msg, body); ok {
			body = stripped
		}
	}
	msg.Content = body
	return msg
}

// applyAnnotation copies sender and time from a legacy annotation in s onto
// msg and returns s without it.
func applyAnnotation(msg *models.Message, s string) (string, bool) {
	a, ok := content.ExtractAnnotation(s)
	if !ok {
		return s, false
	}
	msg.SenderName = a.Sender
	msg.SenderID = a.Sender
	if ts, err := content.ParseAnnotationTime(a.Time, time.Local); err == nil {
		msg.Timestamp = ts
	}
	return a.Body, true
}

func openBody(c Opener, body string) string {
	if !cipher.LooksEncrypted(body) {
		return body
	}
	plain, err := c.Decrypt(body)
	if err != nil {
		return models.PlaceholderUnsupported
	}
	return plain
}

// FormatLegacy builds a legacy annotated message string.
func FormatLegacy(body, firstName string, t time.Time) string {
	return fmt.Sprintf("%s \n(Sent by %s at %s)", body, firstName, content.FormatAnnotationTime(t))
}

// IsMine reports whether msg was sent by id. Legacy messages only carry a first
// name, so two users sharing a first name both match. A legacy message whose
// raw text is gone is matched on its repaired sender name.
func IsMine(msg models.Message, id models.Identity) bool {
	if msg.Format == models.FormatStructured {
		return id.UserID != "" && msg.SenderID == id.UserID
	}
	if id.FirstName == "" {
		return false
	}
	if msg.Raw == "" && msg.SenderName == id.FirstName {
		return true
	}
	haystack := msg.Raw
	if haystack == "" {
		haystack = msg.Content
	}
	return strings.Contains(haystack, "Sent by "+id.FirstName+" at")
}
