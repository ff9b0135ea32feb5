package roomsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"waffle-chat/internal/models"
)

func TestNudgeTriggersFetch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connected := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connected <- conn
	}))
	defer srv.Close()

	f := newFakeAPI()
	s := newTestSync(t, f, Options{
		PollInterval: MaxPollInterval,
		NudgeURL: func(room string) string {
			return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/" + room
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.Wait()
	}()
	go func() { _ = s.Run(ctx) }()

	var conn *websocket.Conn
	select {
	case conn = <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never connected")
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return f.calls(models.DefaultRoom) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","room":"General"}`)))
	require.Eventually(t, func() bool { return f.calls(models.DefaultRoom) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRoomSwitchStopsNudgeReader(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","room":"General"}`)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 5; i++ {
		fetching := make(chan struct{})
		release := make(chan struct{})
		f := newFakeAPI()
		f.beforeFetch = func(room string, call int) {
			if call == 1 {
				close(fetching)
				<-release
			}
		}
		s := newTestSync(t, f, Options{
			NudgeURL: func(room string) string {
				return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/" + room
			},
		})

		returned := make(chan error, 1)
		go func() { returned <- s.watchRoom(ctx, models.DefaultRoom) }()

		select {
		case <-fetching:
		case <-time.After(3 * time.Second):
			t.Fatal("first nudge never fetched")
		}
		// let the reader pick up the second nudge while the fetch is blocked
		time.Sleep(50 * time.Millisecond)
		s.signalRoomChange()
		close(release)

		select {
		case err := <-returned:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("watcher did not return after the room changed")
		}
	}
}
