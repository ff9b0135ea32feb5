// Package content splits a message body into display text and embedded links.
package content

import (
	"net/url"
	"path"
	"strings"
)

// MediaType classifies a media link by its file extension.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaGIF   MediaType = "gif"
	MediaHEIC  MediaType = "heic"
)

var mediaExt = map[string]MediaType{
	".png":  MediaImage,
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".gif":  MediaGIF,
	".heic": MediaHEIC,
}

// MediaRef points at an image-like attachment.
type MediaRef struct {
	Type MediaType
	URL  string
}

// VideoRef identifies a YouTube video.
type VideoRef struct {
	ID  string
	URL string
}

// Parsed is a message body after link extraction.
type Parsed struct {
	Text  string
	Media *MediaRef
	Video *VideoRef
}

// Parse classifies every whitespace-separated token of raw. Media and video
// links are removed from the text; the last one of each kind wins. A message
// carrying a video renders as a video card, so its text is empty.
func Parse(raw string) Parsed {
	var (
		out  Parsed
		kept []string
	)

	for _, token := range strings.Fields(raw) {
		u, ok := parseURL(token)
		if !ok {
			kept = append(kept, token)
			continue
		}
		if id, ok := youtubeID(u); ok {
			out.Video = &VideoRef{ID: id, URL: token}
			continue
		}
		if mt, ok := mediaExt[strings.ToLower(path.Ext(u.Path))]; ok {
			out.Media = &MediaRef{Type: mt, URL: token}
			continue
		}
		kept = append(kept, token)
	}

	if out.Video == nil {
		out.Text = strings.TrimSpace(strings.Join(kept, " "))
	}
	return out
}

// ParseLegacy strips a trailing "(Sent by ...)" annotation before parsing.
func ParseLegacy(raw string) Parsed {
	if a, ok := ExtractAnnotation(raw); ok {
		raw = a.Body
	}
	return Parse(raw)
}

func parseURL(token string) (*url.URL, bool) {
	u, err := url.Parse(token)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

func youtubeID(u *url.URL) (string, bool) {
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "music."} {
		host = strings.TrimPrefix(host, prefix)
	}

	switch host {
	case "youtube.com":
		id := u.Query().Get("v")
		return id, id != ""
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		return id, id != ""
	}
	return "", false
}
