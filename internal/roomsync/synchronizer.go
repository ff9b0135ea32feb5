// Package roomsync keeps a client's view of rooms and messages in step with
// the chat backend by polling.
package roomsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"waffle-chat/internal/api"
	"waffle-chat/internal/cipher"
	"waffle-chat/internal/envelope"
	"waffle-chat/internal/models"
	"waffle-chat/internal/observability"
)

const (
	DefaultPollInterval = 2 * time.Second
	MinPollInterval     = 200 * time.Millisecond
	MaxPollInterval     = 30 * time.Second
)

var (
	ErrNotMember     = errors.New("caller is not a member of the room")
	ErrEmptyRoomName = errors.New("room name is empty")
)

// API is the backend surface the synchronizer drives. *api.Client satisfies it.
type API interface {
	Messages(ctx context.Context, room string) ([]models.Message, error)
	Send(ctx context.Context, w envelope.Wire) error
	Rooms(ctx context.Context) ([]string, error)
	CreateRoom(ctx context.Context, req models.CreateRoomRequest) error
	EditRoomMembers(ctx context.Context, req models.EditMembersRequest) error
	RoomMembers(ctx context.Context, room string) ([]string, error)
	Clear(ctx context.Context, room string) error
}

// Cache persists decrypted batches between runs. *storage.Cache satisfies it.
type Cache interface {
	SaveMessages(ctx context.Context, room string, msgs []models.Message) error
	LoadMessages(ctx context.Context, room string) ([]models.Message, error)
	SaveRooms(ctx context.Context, rooms []string) error
	LoadRooms(ctx context.Context) ([]string, error)
}

// Options configure a Synchronizer. Zero values pick defaults.
type Options struct {
	Identity     models.Identity
	Cipher       envelope.Cipher
	PollInterval time.Duration
	DefaultRoom  string
	Cache        Cache

	// NudgeURL returns the websocket URL announcing changes to a room.
	// Nudges only trigger an ordinary fetch. Nil disables them.
	NudgeURL func(room string) string
	Dialer   *websocket.Dialer

	Now   func() time.Time
	NewID func() string
}

// Synchronizer is one signed-in session's view of the backend.
type Synchronizer struct {
	api      API
	identity models.Identity
	cipher   envelope.Cipher
	interval time.Duration
	def      string
	cache    Cache
	nudgeURL func(string) string
	dialer   *websocket.Dialer
	now      func() time.Time
	newID    func() string

	store       *store
	gen         atomic.Uint64
	events      chan Event
	roomChanged chan struct{}
	wg          sync.WaitGroup
}

// New builds a Synchronizer for client.
func New(client API, opts Options) *Synchronizer {
	s := &Synchronizer{
		api:         client,
		identity:    opts.Identity,
		cipher:      opts.Cipher,
		interval:    clampInterval(opts.PollInterval),
		def:         opts.DefaultRoom,
		cache:       opts.Cache,
		nudgeURL:    opts.NudgeURL,
		dialer:      opts.Dialer,
		now:         opts.Now,
		newID:       opts.NewID,
		events:      make(chan Event, eventBuffer),
		roomChanged: make(chan struct{}, 1),
	}
	if s.cipher == nil {
		s.cipher = cipher.Default()
	}
	if s.def == "" {
		s.def = models.DefaultRoom
	}
	if s.dialer == nil {
		s.dialer = websocket.DefaultDialer
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	s.store = newStore(s.def)
	return s
}

func clampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultPollInterval
	case d < MinPollInterval:
		return MinPollInterval
	case d > MaxPollInterval:
		return MaxPollInterval
	}
	return d
}

// PollInterval is the effective poll period after clamping.
func (s *Synchronizer) PollInterval() time.Duration { return s.interval }

// Events delivers change notifications. Events are dropped when the buffer is full.
func (s *Synchronizer) Events() <-chan Event { return s.events }

// Messages returns a copy of the current list of room.
func (s *Synchronizer) Messages(room string) []models.Message { return s.store.roomMessages(room) }

// Rooms returns a copy of the room list, default room first.
func (s *Synchronizer) Rooms() []string { return s.store.roomList() }

// CurrentRoom returns the active room.
func (s *Synchronizer) CurrentRoom() string { return s.store.currentRoom() }

// Members returns the last known member list of room.
func (s *Synchronizer) Members(room string) ([]string, bool) { return s.store.roomMembers(room) }

// IsMine reports whether msg was sent by this session's user.
func (s *Synchronizer) IsMine(msg models.Message) bool { return envelope.IsMine(msg, s.identity) }

func (s *Synchronizer) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Debug().Str("event", string(ev.Type)).Str("room", ev.Room).Msg("event buffer full, dropping")
	}
}

func (s *Synchronizer) switchRoom(room string) {
	if prev := s.store.setCurrent(room); prev != room {
		s.emit(Event{Type: EventRoomChanged, Room: room})
		s.signalRoomChange()
	}
}

func (s *Synchronizer) signalRoomChange() {
	select {
	case s.roomChanged <- struct{}{}:
	default:
	}
}

// FetchMessages loads room, opens every envelope and annotates group flags
// over the whole batch. A response older than one already applied for the
// room is discarded. When the backend denies access the room is emptied, an
// EventAccessDenied is emitted and a nil error is returned.
func (s *Synchronizer) FetchMessages(ctx context.Context, room string) ([]models.Message, error) {
	gen := s.gen.Add(1)

	raw, err := s.api.Messages(ctx, room)
	if err != nil {
		if errors.Is(err, api.ErrForbidden) {
			s.denied(room, gen, err)
			return nil, nil
		}
		observability.IncSyncFetch("error")
		log.Warn().Err(err).Str("room", room).Msg("fetch messages failed")
		return nil, fmt.Errorf("fetch messages %s: %w", room, err)
	}

	msgs := make([]models.Message, 0, len(raw))
	for _, m := range raw {
		m = envelope.Open(s.cipher, m)
		if m.RoomID == "" {
			m.RoomID = room
		}
		msgs = append(msgs, m)
	}
	models.AnnotateGroups(msgs)

	if !s.store.applyMessages(room, gen, msgs) {
		observability.IncSyncFetch("stale")
		log.Debug().Str("room", room).Uint64("gen", gen).Msg("discarding stale fetch")
		return s.store.roomMessages(room), nil
	}
	observability.IncSyncFetch("applied")

	if s.cache != nil {
		if err := s.cache.SaveMessages(ctx, room, msgs); err != nil {
			log.Warn().Err(err).Str("room", room).Msg("cache write failed")
		}
	}
	s.emit(Event{Type: EventMessagesUpdated, Room: room})
	return slices.Clone(msgs), nil
}

func (s *Synchronizer) denied(room string, gen uint64, cause error) {
	observability.IncSyncFetch("forbidden")
	log.Info().Str("room", room).Str("user", s.identity.Email).Msg("access denied, clearing room")

	s.store.applyMessages(room, gen, nil)
	s.store.forgetMembers(room)
	s.emit(Event{Type: EventAccessDenied, Room: room, Err: cause})

	if s.store.fallback(room, s.def) {
		s.emit(Event{Type: EventRoomChanged, Room: s.def})
		s.signalRoomChange()
	}
}

// SendMessage seals text and posts it in the background, returning the new
// message id at once. A successful send is followed by exactly one fetch of
// room; a failed one emits EventSendFailed.
func (s *Synchronizer) SendMessage(ctx context.Context, text, room string) string {
	if room == "" {
		room = s.CurrentRoom()
	}
	msg := models.Message{
		ID:         s.newID(),
		RoomID:     room,
		SenderID:   s.identity.UserID,
		SenderName: s.identity.FirstName,
		Content:    text,
		AvatarURL:  s.identity.AvatarURL,
		Timestamp:  s.now().UTC(),
		Format:     models.FormatStructured,
	}
	wire := envelope.Seal(s.cipher, msg)

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.api.Send(ctx, wire); err != nil {
			log.Warn().Err(err).Str("room", room).Str("id", msg.ID).Msg("send failed")
			s.emit(Event{Type: EventSendFailed, Room: room, MessageID: msg.ID, Err: err})
			return
		}
		if _, err := s.FetchMessages(ctx, room); err != nil {
			log.Debug().Err(err).Str("room", room).Msg("refresh after send failed")
		}
	}()
	return msg.ID
}

// Wait blocks until background sends and their follow-up fetches finish.
func (s *Synchronizer) Wait() { s.wg.Wait() }

// FetchRooms refreshes the membership-filtered room list.
func (s *Synchronizer) FetchRooms(ctx context.Context) ([]string, error) {
	names, err := s.api.Rooms(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("fetch rooms failed")
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}

	rooms := withDefault(s.def, names)
	if s.store.setRooms(rooms) {
		if s.cache != nil {
			if err := s.cache.SaveRooms(ctx, rooms); err != nil {
				log.Warn().Err(err).Msg("cache write failed")
			}
		}
		s.emit(Event{Type: EventRoomsUpdated})
	}
	return rooms, nil
}

func withDefault(def string, names []string) []string {
	if def == models.DefaultRoom {
		return models.WithDefaultRoom(names)
	}
	out := []string{def}
	for _, n := range models.WithDefaultRoom(names)[1:] {
		if n != def {
			out = append(out, n)
		}
	}
	return out
}

// JoinRoom switches to room before verifying access. When the backend denies
// access or does not know the room, the session falls back to the default
// room and no error is returned.
func (s *Synchronizer) JoinRoom(ctx context.Context, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return ErrEmptyRoomName
	}
	s.switchRoom(room)

	if room == s.def {
		_, err := s.FetchMessages(ctx, room)
		return err
	}

	if _, err := s.RoomMembers(ctx, room); err != nil {
		if errors.Is(err, api.ErrForbidden) || errors.Is(err, api.ErrNotFound) {
			s.denied(room, s.gen.Add(1), err)
			_, ferr := s.FetchMessages(ctx, s.def)
			return ferr
		}
		return err
	}

	_, err := s.FetchMessages(ctx, room)
	return err
}

// CreateRoom creates name with members plus the caller, then refreshes the
// room list. It returns the member set sent to the backend.
func (s *Synchronizer) CreateRoom(ctx context.Context, name string, members []string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyRoomName
	}

	set := models.MemberSet(s.identity.Email, members)
	err := s.api.CreateRoom(ctx, models.CreateRoomRequest{
		RoomName:     name,
		CreatorEmail: s.identity.Email,
		MemberEmails: set,
	})
	if err != nil {
		log.Warn().Err(err).Str("room", name).Msg("create room failed")
		return nil, fmt.Errorf("create room %s: %w", name, err)
	}
	s.store.setMembers(name, set)

	if _, err := s.FetchRooms(ctx); err != nil {
		log.Debug().Err(err).Msg("refresh rooms after create failed")
	}
	return set, nil
}

// EditMembers replaces the members of room. Only an existing member may edit
// and the caller always stays in the new set.
func (s *Synchronizer) EditMembers(ctx context.Context, room string, members []string) ([]string, error) {
	current, ok := s.store.roomMembers(room)
	if !ok {
		var err error
		if current, err = s.RoomMembers(ctx, room); err != nil {
			return nil, err
		}
	}

	me := models.NormalizeEmail(s.identity.Email)
	if !slices.Contains(current, me) {
		return nil, ErrNotMember
	}

	set := models.MemberSet(me, members)
	err := s.api.EditRoomMembers(ctx, models.EditMembersRequest{
		RoomID:          room,
		UserEmail:       me,
		NewMemberEmails: set,
	})
	if err != nil {
		log.Warn().Err(err).Str("room", room).Msg("edit members failed")
		return nil, fmt.Errorf("edit members %s: %w", room, err)
	}
	s.store.setMembers(room, set)
	return set, nil
}

// RoomMembers fetches and remembers the member list of room.
func (s *Synchronizer) RoomMembers(ctx context.Context, room string) ([]string, error) {
	members, err := s.api.RoomMembers(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("room members %s: %w", room, err)
	}
	set := models.MemberSet("", members)
	s.store.setMembers(room, set)
	return set, nil
}

// ClearRoom deletes the messages of room and refetches it.
func (s *Synchronizer) ClearRoom(ctx context.Context, room string) error {
	if err := s.api.Clear(ctx, room); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("clear room failed")
		return fmt.Errorf("clear room %s: %w", room, err)
	}
	_, err := s.FetchMessages(ctx, room)
	return err
}

// Run polls the current room and the room list until ctx is cancelled.
// Failures are logged and never stop the loop.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.loadCache(ctx)

	if s.nudgeURL != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watchNudges(ctx)
		}()
	}

	s.pollOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Synchronizer) pollOnce(ctx context.Context) {
	_, _ = s.FetchRooms(ctx)
	if ctx.Err() != nil {
		return
	}
	_, _ = s.FetchMessages(ctx, s.CurrentRoom())
}

func (s *Synchronizer) loadCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if rooms, err := s.cache.LoadRooms(ctx); err != nil {
		log.Warn().Err(err).Msg("cache read failed")
	} else if len(rooms) > 0 {
		s.store.setRooms(withDefault(s.def, rooms))
	}

	room := s.CurrentRoom()
	msgs, err := s.cache.LoadMessages(ctx, room)
	if err != nil {
		log.Warn().Err(err).Str("room", room).Msg("cache read failed")
		return
	}
	models.AnnotateGroups(msgs)
	if s.store.seed(room, msgs) {
		s.emit(Event{Type: EventMessagesUpdated, Room: room})
	}
}
