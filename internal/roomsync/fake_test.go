package roomsync

import (
	"context"
	"sync"

	"waffle-chat/internal/envelope"
	"waffle-chat/internal/models"
)

type fakeAPI struct {
	mu sync.Mutex

	messages    map[string][]models.Message
	messageErr  map[string]error
	beforeFetch func(room string, call int)
	rooms       []string
	roomsErr    error
	members     map[string][]string
	membersErr  map[string]error
	sendErr     error
	createErr   error
	editErr     error

	sent       []envelope.Wire
	created    []models.CreateRoomRequest
	edited     []models.EditMembersRequest
	cleared    []string
	fetchCalls map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages:   map[string][]models.Message{},
		messageErr: map[string]error{},
		members:    map[string][]string{},
		membersErr: map[string]error{},
		fetchCalls: map[string]int{},
	}
}

func (f *fakeAPI) Messages(ctx context.Context, room string) ([]models.Message, error) {
	f.mu.Lock()
	f.fetchCalls[room]++
	call := f.fetchCalls[room]
	hook := f.beforeFetch
	err := f.messageErr[room]
	batch := append([]models.Message(nil), f.messages[room]...)
	f.mu.Unlock()

	// The response is fixed before the hook runs so a blocked call returns
	// the data as it was when the request was made.
	if hook != nil {
		hook(room, call)
	}
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (f *fakeAPI) Send(ctx context.Context, w envelope.Wire) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, w)
	f.messages[w.RoomID] = append(f.messages[w.RoomID], envelope.FromWire(w))
	return nil
}

func (f *fakeAPI) Rooms(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rooms...), f.roomsErr
}

func (f *fakeAPI) CreateRoom(ctx context.Context, req models.CreateRoomRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, req)
	f.rooms = append(f.rooms, req.RoomName)
	f.members[req.RoomName] = req.MemberEmails
	return nil
}

func (f *fakeAPI) EditRoomMembers(ctx context.Context, req models.EditMembersRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edited = append(f.edited, req)
	f.members[req.RoomID] = req.NewMemberEmails
	return nil
}

func (f *fakeAPI) RoomMembers(ctx context.Context, room string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.membersErr[room]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.members[room]...), nil
}

func (f *fakeAPI) Clear(ctx context.Context, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, room)
	f.messages[room] = nil
	return nil
}

func (f *fakeAPI) calls(room string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[room]
}

type memCache struct {
	mu       sync.Mutex
	messages map[string][]models.Message
	rooms    []string
}

func newMemCache() *memCache {
	return &memCache{messages: map[string][]models.Message{}}
}

func (c *memCache) SaveMessages(ctx context.Context, room string, msgs []models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[room] = append([]models.Message(nil), msgs...)
	return nil
}

func (c *memCache) LoadMessages(ctx context.Context, room string) ([]models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages[room]...), nil
}

func (c *memCache) SaveRooms(ctx context.Context, rooms []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = append([]string(nil), rooms...)
	return nil
}

func (c *memCache) LoadRooms(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.rooms...), nil
}
