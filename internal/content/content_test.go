package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImage(t *testing.T) {
	p := Parse("hello https://example.com/x.png world")
	assert.Equal(t, "hello world", p.Text)
	require.NotNil(t, p.Media)
	assert.Equal(t, MediaImage, p.Media.Type)
	assert.Equal(t, "https://example.com/x.png", p.Media.URL)
	assert.Nil(t, p.Video)
}

func TestParseYouTube(t *testing.T) {
	p := Parse("check this https://youtu.be/abc123")
	assert.Equal(t, "", p.Text)
	require.NotNil(t, p.Video)
	assert.Equal(t, "abc123", p.Video.ID)
}

func TestParseYouTubeHosts(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtube.com/watch?v=abc&t=10s":       "abc",
		"https://m.youtube.com/watch?v=mobile":        "mobile",
		"https://music.youtube.com/watch?v=song":      "song",
		"http://youtu.be/short/extra":                 "short",
	}
	for in, want := range cases {
		p := Parse(in)
		require.NotNil(t, p.Video, in)
		assert.Equal(t, want, p.Video.ID, in)
	}
}

func TestParseYouTubeWithoutID(t *testing.T) {
	p := Parse("see https://www.youtube.com/feed/trending")
	assert.Nil(t, p.Video)
	assert.Equal(t, "see https://www.youtube.com/feed/trending", p.Text)
}

func TestParseMediaTypes(t *testing.T) {
	cases := map[string]MediaType{
		"https://a.io/p.PNG":         MediaImage,
		"https://a.io/p.jpg":         MediaImage,
		"https://a.io/p.jpeg?size=2": MediaImage,
		"https://a.io/anim.gif":      MediaGIF,
		"https://a.io/photo.heic":    MediaHEIC,
	}
	for in, want := range cases {
		p := Parse(in)
		require.NotNil(t, p.Media, in)
		assert.Equal(t, want, p.Media.Type, in)
		assert.Empty(t, p.Text, in)
	}
}

func TestParseLastRefWins(t *testing.T) {
	p := Parse("a https://x.io/1.png b https://x.io/2.gif")
	require.NotNil(t, p.Media)
	assert.Equal(t, MediaGIF, p.Media.Type)
	assert.Equal(t, "https://x.io/2.gif", p.Media.URL)
	assert.Equal(t, "a b", p.Text)
}

func TestParseKeepsOtherTokens(t *testing.T) {
	p := Parse("  visit   https://example.com/page \n ftp://x.io/a.png  example.com/a.png ")
	assert.Nil(t, p.Media)
	assert.Equal(t, "visit https://example.com/page ftp://x.io/a.png example.com/a.png", p.Text)
}

func TestExtractAnnotation(t *testing.T) {
	a, ok := ExtractAnnotation("hi \n(Sent by Jane at 3/4/24, 5:06 PM)")
	require.True(t, ok)
	assert.Equal(t, "hi", a.Body)
	assert.Equal(t, "Jane", a.Sender)
	assert.Equal(t, "3/4/24, 5:06 PM", a.Time)
}

func TestExtractAnnotationNarrowSpace(t *testing.T) {
	a, ok := ExtractAnnotation("multi\nline \n(Sent by Mary Ann at 12/31/23, 11:59\u202fPM)")
	require.True(t, ok)
	assert.Equal(t, "multi\nline", a.Body)
	assert.Equal(t, "Mary Ann", a.Sender)

	ts, err := ParseAnnotationTime(a.Time, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC), ts)
}

func TestExtractAnnotationMissing(t *testing.T) {
	a, ok := ExtractAnnotation("  just text (Sent by nobody)  ")
	assert.False(t, ok)
	assert.Equal(t, "just text (Sent by nobody)", a.Body)
}

func TestAnnotationTimeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 4, 17, 6, 0, 0, time.UTC)
	s := FormatAnnotationTime(ts)
	assert.Equal(t, "3/4/24, 5:06 PM", s)

	got, err := ParseAnnotationTime(s, time.UTC)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))

	got, err = ParseAnnotationTime("3/4/24, 5:06pm", time.UTC)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
}

func TestParseLegacy(t *testing.T) {
	p := ParseLegacy("look https://x.io/cat.gif \n(Sent by Jane at 3/4/24, 5:06 PM)")
	assert.Equal(t, "look", p.Text)
	require.NotNil(t, p.Media)
	assert.Equal(t, MediaGIF, p.Media.Type)

	p = ParseLegacy("already stripped")
	assert.Equal(t, "already stripped", p.Text)
}
