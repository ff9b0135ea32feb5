// Package render prints room transcripts for the terminal client.
package render

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"waffle-chat/internal/content"
	"waffle-chat/internal/models"
	"waffle-chat/internal/youtube"
)

// VideoLookup resolves video titles. *youtube.Client satisfies it.
type VideoLookup interface {
	Enabled() bool
	VideoInfo(ctx context.Context, id string) (youtube.VideoInfo, error)
}

// Transcript writes messages grouped by sender: the sender label opens a
// group and the timestamp closes it.
type Transcript struct {
	w      io.Writer
	isMine func(models.Message) bool
	videos VideoLookup
	loc    *time.Location
}

func NewTranscript(w io.Writer, isMine func(models.Message) bool, videos VideoLookup) *Transcript {
	return &Transcript{w: w, isMine: isMine, videos: videos, loc: time.Local}
}

// WithLocation sets the zone timestamps are shown in.
func (t *Transcript) WithLocation(loc *time.Location) *Transcript {
	t.loc = loc
	return t
}

// Render writes msgs. The group flags must already be set.
func (t *Transcript) Render(ctx context.Context, msgs []models.Message) error {
	for _, msg := range msgs {
		if err := t.message(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transcript) message(ctx context.Context, msg models.Message) error {
	if msg.IsFirstInGroup {
		if _, err := fmt.Fprintf(t.w, "%s:\n", t.sender(msg)); err != nil {
			return err
		}
	}

	parsed := content.Parse(msg.Content)
	if parsed.Text != "" {
		if _, err := fmt.Fprintf(t.w, "  %s\n", parsed.Text); err != nil {
			return err
		}
	}
	if parsed.Media != nil {
		if _, err := fmt.Fprintf(t.w, "  [%s] %s\n", parsed.Media.Type, parsed.Media.URL); err != nil {
			return err
		}
	}
	if parsed.Video != nil {
		if _, err := fmt.Fprintf(t.w, "  [video] %s\n", t.videoLabel(ctx, parsed.Video)); err != nil {
			return err
		}
	}

	if msg.IsLastInGroup && !msg.Timestamp.IsZero() {
		if _, err := fmt.Fprintf(t.w, "  %s\n", msg.Timestamp.In(t.loc).Format(time.Kitchen)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transcript) sender(msg models.Message) string {
	if t.isMine != nil && t.isMine(msg) {
		return "you"
	}
	if msg.SenderName != "" {
		return msg.SenderName
	}
	if msg.SenderID != "" {
		return msg.SenderID
	}
	return "unknown"
}

func (t *Transcript) videoLabel(ctx context.Context, v *content.VideoRef) string {
	if t.videos == nil || !t.videos.Enabled() {
		return v.URL
	}
	info, err := t.videos.VideoInfo(ctx, v.ID)
	if err != nil {
		log.Debug().Err(err).Str("video", v.ID).Msg("video lookup failed")
		return v.URL
	}
	return fmt.Sprintf("%s <%s>", info.Title, v.URL)
}
