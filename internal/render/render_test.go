package render

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waffle-chat/internal/models"
	"waffle-chat/internal/youtube"
)

type stubVideos struct {
	titles map[string]string
}

func (s stubVideos) Enabled() bool { return true }

func (s stubVideos) VideoInfo(ctx context.Context, id string) (youtube.VideoInfo, error) {
	title, ok := s.titles[id]
	if !ok {
		return youtube.VideoInfo{}, youtube.ErrVideoNotFound
	}
	return youtube.VideoInfo{ID: id, Title: title}, nil
}

func TestRenderGroupsAndRefs(t *testing.T) {
	at := time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC)
	msgs := []models.Message{
		{SenderID: "u1", SenderName: "Ann", Content: "hi", Timestamp: at},
		{SenderID: "u1", SenderName: "Ann", Content: "look https://x.example/cat.gif", Timestamp: at},
		{SenderID: "u2", Content: "https://youtu.be/abc123", Timestamp: at.Add(time.Minute)},
		{SenderID: "me", Content: "https://youtu.be/zzz", Timestamp: at.Add(2 * time.Minute)},
	}
	models.AnnotateGroups(msgs)

	var buf bytes.Buffer
	isMine := func(m models.Message) bool { return m.SenderID == "me" }
	tr := NewTranscript(&buf, isMine, stubVideos{titles: map[string]string{"abc123": "Cats"}}).WithLocation(time.UTC)
	require.NoError(t, tr.Render(context.Background(), msgs))

	want := "Ann:\n" +
		"  hi\n" +
		"  look\n" +
		"  [gif] https://x.example/cat.gif\n" +
		"  3:04PM\n" +
		"u2:\n" +
		"  [video] Cats <https://youtu.be/abc123>\n" +
		"  3:05PM\n" +
		"you:\n" +
		"  [video] https://youtu.be/zzz\n" +
		"  3:06PM\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderWithoutVideoLookup(t *testing.T) {
	msgs := []models.Message{{SenderID: "u1", Content: "https://www.youtube.com/watch?v=abc"}}
	models.AnnotateGroups(msgs)

	var buf bytes.Buffer
	require.NoError(t, NewTranscript(&buf, nil, nil).Render(context.Background(), msgs))
	assert.Equal(t, "u1:\n  [video] https://www.youtube.com/watch?v=abc\n", buf.String())
}
