// Package youtube looks up video metadata for YouTube links found in messages.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultBaseURL = "https://www.googleapis.com/youtube/v3/videos"

var (
	ErrVideoNotFound = errors.New("video not found")
	ErrNoAPIKey      = errors.New("youtube api key not configured")
)

// VideoInfo is the part of a video's snippet the client renders.
type VideoInfo struct {
	ID           string
	Title        string
	ThumbnailURL string
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails struct {
				Medium struct {
					URL string `json:"url"`
				} `json:"medium"`
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// Client calls the YouTube Data API. Successful lookups are memoised.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]VideoInfo
}

// NewClient returns a client using apiKey. baseURL may be empty.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cache:      make(map[string]VideoInfo),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// VideoInfo fetches the title and thumbnail of video id.
func (c *Client) VideoInfo(ctx context.Context, id string) (VideoInfo, error) {
	if !c.Enabled() {
		return VideoInfo{}, ErrNoAPIKey
	}

	c.mu.Lock()
	info, ok := c.cache[id]
	c.mu.Unlock()
	if ok {
		return info, nil
	}

	ctx, span := otel.Tracer("waffle-chat/youtube").Start(ctx, "youtube.video_info")
	span.SetAttributes(attribute.String("youtube.video_id", id))
	defer span.End()

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", id)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return VideoInfo{}, fmt.Errorf("youtube returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return VideoInfo{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Items) == 0 {
		return VideoInfo{}, ErrVideoNotFound
	}

	item := out.Items[0]
	info = VideoInfo{
		ID:           item.ID,
		Title:        item.Snippet.Title,
		ThumbnailURL: item.Snippet.Thumbnails.Medium.URL,
	}
	if info.ThumbnailURL == "" {
		info.ThumbnailURL = item.Snippet.Thumbnails.Default.URL
	}

	c.mu.Lock()
	c.cache[id] = info
	c.mu.Unlock()
	return info, nil
}
