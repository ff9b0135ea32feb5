package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waffle-chat/internal/middleware"
)

type fakeAccess struct {
	rooms   map[string][]string
	checked []string
}

func (f *fakeAccess) RoomExists(ctx context.Context, name string) (bool, error) {
	_, ok := f.rooms[name]
	return ok, nil
}

func (f *fakeAccess) IsMember(ctx context.Context, room, email string) (bool, error) {
	f.checked = append(f.checked, room+"/"+email)
	for _, m := range f.rooms[room] {
		if m == email {
			return true, nil
		}
	}
	return false, nil
}

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	hub.AddClient("General", nil, ConnInfo{ConnID: "c1"})
	assert.Equal(t, 1, hub.Subscribers("General"))

	hub.RemoveClient("General", nil)
	assert.Equal(t, 0, hub.Subscribers("General"))
	assert.Empty(t, hub.rooms)
}

func TestNilHubIsNoop(t *testing.T) {
	var hub *Hub
	hub.BroadcastNudge("General", NudgeMessage)
	assert.Equal(t, 0, hub.Subscribers("General"))
}

func newTestServer(t *testing.T, hub *Hub, access RoomAccess) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Identity())
	r.GET("/ws/rooms/:room", NewRoomWebSocketHandler(hub, access).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, room, email string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/" + room + "?userEmail=" + email
}

func waitForSubscribers(t *testing.T, hub *Hub, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(room) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastNudgeReachesSubscribers(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, &fakeAccess{rooms: map[string][]string{}})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "General", "a@x.com"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForSubscribers(t, hub, "General", 1)

	hub.BroadcastNudge("General", NudgeMessage)

	var n Nudge
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, Nudge{Type: NudgeMessage, Room: "General"}, n)
}

func TestCloseRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, &fakeAccess{rooms: map[string][]string{}})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "General", "a@x.com"), nil)
	require.NoError(t, err)
	waitForSubscribers(t, hub, "General", 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()
	waitForSubscribers(t, hub, "General", 0)
}

func TestHandshakeChecksMembership(t *testing.T) {
	hub := NewHub()
	access := &fakeAccess{rooms: map[string][]string{"dev": {"a@x.com"}}}
	srv := newTestServer(t, hub, access)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "dev", "b@x.com"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "missing", "a@x.com"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "dev", ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "dev", "a@x.com"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForSubscribers(t, hub, "dev", 1)
	assert.Contains(t, access.checked, "dev/a@x.com")
}
