package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waffle-chat/internal/envelope"
	"waffle-chat/internal/models"
)

var me = models.Identity{UserID: "u1", Email: "me@x.com", FirstName: "Me"}

func TestMessagesSendsQueryAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "dev", r.URL.Query().Get("room"))
		assert.Equal(t, "me@x.com", r.URL.Query().Get("userEmail"))
		assert.Equal(t, "u1", r.URL.Query().Get("userId"))
		assert.Equal(t, "me@x.com", r.Header.Get("X-User-Email"))
		_, _ = w.Write([]byte(`[{"id":"a","content":"hi","senderID":"u2"},"old style"]`))
	}))
	defer srv.Close()

	msgs, err := NewClient(srv.URL, me).Messages(context.Background(), "dev")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.FormatStructured, msgs[0].Format)
	assert.Equal(t, "dev", msgs[0].RoomID)
	assert.Equal(t, models.FormatLegacy, msgs[1].Format)
}

func TestMessagesForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not a member"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, me).Messages(context.Background(), "secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.NotErrorIs(t, err, ErrNotFound)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, "messages", se.Op)
}

func TestSendPostsWire(t *testing.T) {
	var got envelope.Wire
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "me@x.com", r.URL.Query().Get("userEmail"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, me).Send(context.Background(), envelope.Wire{ID: "m1", Content: "tok", SenderID: "u1", RoomID: "General"})
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "General", got.RoomID)
}

func TestRoomsAndMembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rooms":
			_, _ = w.Write([]byte(`["General","dev"]`))
		case "/room-members":
			assert.Equal(t, "dev", r.URL.Query().Get("roomId"))
			_, _ = w.Write([]byte(`["a@x.com","me@x.com"]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, me)
	rooms, err := c.Rooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"General", "dev"}, rooms)

	members, err := c.RoomMembers(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "me@x.com"}, members)

	err = c.Clear(context.Background(), "dev")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAndEditFillCaller(t *testing.T) {
	var create models.CreateRoomRequest
	var edit models.EditMembersRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/create-room":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&create))
			w.WriteHeader(http.StatusCreated)
		case "/edit-room-members":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&edit))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, me)
	require.NoError(t, c.CreateRoom(context.Background(), models.CreateRoomRequest{RoomName: "X", MemberEmails: []string{"a@x.com"}}))
	assert.Equal(t, "me@x.com", create.CreatorEmail)
	assert.Equal(t, "X", create.RoomName)

	require.NoError(t, c.EditRoomMembers(context.Background(), models.EditMembersRequest{RoomID: "X", NewMemberEmails: []string{"b@x.com"}}))
	assert.Equal(t, "me@x.com", edit.UserEmail)
	assert.Equal(t, []string{"b@x.com"}, edit.NewMemberEmails)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, me).Rooms(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnexpectedStatus)
}

func TestNudgeURL(t *testing.T) {
	c := NewClient("https://chat.example.com/", me)
	assert.Equal(t, "wss://chat.example.com/ws/rooms/my%20room?userEmail=me%40x.com", c.NudgeURL("my room"))
	assert.Equal(t, "ws://localhost:8080/ws/rooms/General?userEmail=me%40x.com", NewClient("http://localhost:8080", me).NudgeURL("General"))
}
