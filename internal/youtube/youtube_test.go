package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoInfo(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "snippet", r.URL.Query().Get("part"))
		assert.Equal(t, "key123", r.URL.Query().Get("key"))
		if r.URL.Query().Get("id") != "abc123" {
			_, _ = w.Write([]byte(`{"items":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"abc123","snippet":{"title":"A video","thumbnails":{"medium":{"url":"https://i.ytimg.com/vi/abc123/mqdefault.jpg"}}}}]}`))
	}))
	defer srv.Close()

	c := NewClient("key123", srv.URL)
	info, err := c.VideoInfo(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "A video", info.Title)
	assert.Equal(t, "https://i.ytimg.com/vi/abc123/mqdefault.jpg", info.ThumbnailURL)

	_, err = c.VideoInfo(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = c.VideoInfo(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}

func TestVideoInfoDisabled(t *testing.T) {
	c := NewClient("", "")
	assert.False(t, c.Enabled())
	_, err := c.VideoInfo(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestVideoInfoBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL).VideoInfo(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
