package roomsync

import (
	"slices"
	"sync"

	"waffle-chat/internal/models"
)

// store holds everything a UI renders. All mutation goes through its methods
// and readers always receive copies.
type store struct {
	mu       sync.RWMutex
	messages map[string][]models.Message
	applied  map[string]uint64
	members  map[string][]string
	rooms    []string
	current  string
}

func newStore(defaultRoom string) *store {
	return &store{
		messages: make(map[string][]models.Message),
		applied:  make(map[string]uint64),
		members:  make(map[string][]string),
		rooms:    []string{defaultRoom},
		current:  defaultRoom,
	}
}

// applyMessages replaces the list of room when gen is newer than the last
// applied generation for that room. It reports whether the batch was applied.
func (s *store) applyMessages(room string, gen uint64, msgs []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen <= s.applied[room] {
		return false
	}
	s.applied[room] = gen
	s.messages[room] = slices.Clone(msgs)
	if s.messages[room] == nil {
		s.messages[room] = []models.Message{}
	}
	return true
}

// seed fills room from a cache when nothing has been fetched for it yet.
func (s *store) seed(room string, msgs []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[room]; ok || len(msgs) == 0 {
		return false
	}
	s.messages[room] = slices.Clone(msgs)
	return true
}

func (s *store) roomMessages(room string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[room])
}

// setRooms replaces the room list and reports whether it changed.
func (s *store) setRooms(rooms []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Equal(s.rooms, rooms) {
		return false
	}
	s.rooms = slices.Clone(rooms)
	return true
}

func (s *store) roomList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rooms)
}

// setCurrent switches the current room and returns the previous one.
func (s *store) setCurrent(room string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	s.current = room
	return prev
}

// fallback moves the current room to def only when room is current.
func (s *store) fallback(room, def string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != room || room == def {
		return false
	}
	s.current = def
	return true
}

func (s *store) currentRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *store) setMembers(room string, members []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[room] = slices.Clone(members)
}

func (s *store) roomMembers(room string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[room]
	return slices.Clone(m), ok
}

func (s *store) forgetMembers(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, room)
}
