// Package api is an HTTP client for the chat backend's REST surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"waffle-chat/internal/envelope"
	"waffle-chat/internal/models"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Client talks to the chat backend on behalf of one user.
type Client struct {
	baseURL    string
	httpClient *http.Client
	identity   models.Identity
	tracer     trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a client for baseURL acting as id.
func NewClient(baseURL string, id models.Identity, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		identity: id,
		tracer:   otel.Tracer("waffle-chat/api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the user the client acts as.
func (c *Client) Identity() models.Identity {
	return c.identity
}

// Messages returns the raw, still encrypted messages of room in backend order.
func (c *Client) Messages(ctx context.Context, room string) ([]models.Message, error) {
	q := url.Values{}
	q.Set("room", room)
	q.Set("userEmail", c.identity.Email)
	q.Set("userId", c.identity.UserID)

	var body json.RawMessage
	if err := c.do(ctx, "messages", http.MethodGet, "/messages", q, nil, &body); err != nil {
		return nil, err
	}
	return envelope.DecodeBatch(body, room)
}

// Send posts a sealed message.
func (c *Client) Send(ctx context.Context, w envelope.Wire) error {
	q := url.Values{}
	q.Set("userEmail", c.identity.Email)
	return c.do(ctx, "send", http.MethodPost, "/send", q, w, nil)
}

// Rooms lists the rooms the user belongs to.
func (c *Client) Rooms(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("userEmail", c.identity.Email)

	var rooms []string
	if err := c.do(ctx, "rooms", http.MethodGet, "/rooms", q, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom creates a room with the given members.
func (c *Client) CreateRoom(ctx context.Context, req models.CreateRoomRequest) error {
	if req.CreatorEmail == "" {
		req.CreatorEmail = c.identity.Email
	}
	return c.do(ctx, "create room", http.MethodPost, "/create-room", nil, req, nil)
}

// EditRoomMembers replaces the member list of a room.
func (c *Client) EditRoomMembers(ctx context.Context, req models.EditMembersRequest) error {
	if req.UserEmail == "" {
		req.UserEmail = c.identity.Email
	}
	return c.do(ctx, "edit room members", http.MethodPost, "/edit-room-members", nil, req, nil)
}

// RoomMembers lists the member emails of room.
func (c *Client) RoomMembers(ctx context.Context, room string) ([]string, error) {
	q := url.Values{}
	q.Set("roomId", room)
	q.Set("userEmail", c.identity.Email)

	var members []string
	if err := c.do(ctx, "room members", http.MethodGet, "/room-members", q, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// Clear deletes every message of room.
func (c *Client) Clear(ctx context.Context, room string) error {
	q := url.Values{}
	q.Set("room", room)
	q.Set("userId", c.identity.UserID)
	q.Set("userEmail", c.identity.Email)
	return c.do(ctx, "clear", http.MethodGet, "/clear", q, nil, nil)
}

// NudgeURL is the websocket endpoint announcing changes to room.
func (c *Client) NudgeURL(room string) string {
	u := c.baseURL + "/ws/rooms/" + url.PathEscape(room) + "?userEmail=" + url.QueryEscape(c.identity.Email)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "api."+strings.ReplaceAll(op, " ", "_"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.identity.Email != "" {
		req.Header.Set("X-User-Email", c.identity.Email)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
