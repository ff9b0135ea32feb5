package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Wire is the structured message object exchanged with the backend.
type Wire struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderID"`
	RoomID    string    `json:"roomID,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
	AvatarURL string    `json:"avatarURL,omitempty"`
}

// Timestamp decodes the time representations seen from different backends:
// RFC 3339 strings, unix seconds or milliseconds, and {_seconds,_nanoseconds}
// objects. It always encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

// msThreshold separates unix seconds from unix milliseconds.
const msThreshold = 1e12

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	case '{':
		var obj struct {
			Seconds     int64 `json:"_seconds"`
			Nanoseconds int64 `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		t.Time = time.Unix(obj.Seconds, obj.Nanoseconds).UTC()
		return nil
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("parse timestamp %s: %w", data, err)
		}
		if f > msThreshold {
			t.Time = time.UnixMilli(int64(f)).UTC()
		} else {
			sec := int64(f)
			t.Time = time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
		}
		return nil
	}
}
