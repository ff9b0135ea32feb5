package roomsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// nudge is what the backend sends on /ws/rooms/:room after a change.
type nudge struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// watchNudges keeps one websocket open for the current room and fetches the
// room whenever the backend announces a change. It reconnects after errors
// and whenever the current room changes.
func (s *Synchronizer) watchNudges(ctx context.Context) {
	for ctx.Err() == nil {
		room := s.CurrentRoom()
		err := s.watchRoom(ctx, room)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			continue
		}

		log.Debug().Err(err).Str("room", room).Msg("nudge connection lost")
		select {
		case <-ctx.Done():
			return
		case <-s.roomChanged:
		case <-time.After(s.interval):
		}
	}
}

// watchRoom returns nil when the current room changed and an error when the
// connection failed. Its reader goroutine has exited by the time it returns.
func (s *Synchronizer) watchRoom(ctx context.Context, room string) error {
	conn, _, err := s.dialer.DialContext(ctx, s.nudgeURL(room), nil)
	if err != nil {
		return err
	}

	nudges := make(chan nudge)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	readerDone := make(chan struct{})
	defer func() {
		close(done)
		_ = conn.Close()
		<-readerDone
	}()

	go func() {
		defer close(readerDone)
		for {
			var n nudge
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if err := json.Unmarshal(data, &n); err != nil {
				log.Debug().Err(err).Str("room", room).Msg("ignoring malformed nudge")
				continue
			}
			select {
			case nudges <- n:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.roomChanged:
			return nil
		case err := <-readErr:
			return err
		case n := <-nudges:
			if n.Type != "message" && n.Type != "cleared" {
				continue
			}
			target := n.Room
			if target == "" {
				target = room
			}
			if _, err := s.FetchMessages(ctx, target); err != nil {
				log.Debug().Err(err).Str("room", target).Msg("nudged fetch failed")
			}
		}
	}
}
