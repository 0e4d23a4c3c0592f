package realtime

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// RoomRegistry is the process-wide map from "namespace/lesson" to its live
// Room. Rooms come alive on first join and are destroyed on last leave.
type RoomRegistry struct {
	mu              sync.Mutex
	rooms           map[string]*Room
	maxChatMessages int
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(maxChatMessages int) *RoomRegistry {
	return &RoomRegistry{
		rooms:           make(map[string]*Room),
		maxChatMessages: maxChatMessages,
	}
}

// GetOrCreate returns the live room for a lesson, creating it on first join.
func (rr *RoomRegistry) GetOrCreate(name string) *Room {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if room, ok := rr.rooms[name]; ok {
		return room
	}
	room := NewRoom(name, rr.maxChatMessages)
	rr.rooms[name] = room
	logrus.Infof("room created: %s", name)
	return room
}

// Lookup returns a live room without creating one.
func (rr *RoomRegistry) Lookup(name string) (*Room, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	room, ok := rr.rooms[name]
	return room, ok
}

// Leave routes a member's departure through the room and collects the room
// when its last member is gone.
func (rr *RoomRegistry) Leave(room *Room, m *Member) {
	if room == nil {
		return
	}
	empty := room.Leave(m)
	if !empty {
		return
	}

	rr.mu.Lock()
	// Re-check under the registry lock: a join may have raced the leave.
	if current, ok := rr.rooms[room.Name()]; ok && current == room && room.MemberCount() == 0 {
		delete(rr.rooms, room.Name())
		room.markDestroyed()
		logrus.Infof("room destroyed: %s", room.Name())
	}
	rr.mu.Unlock()
}

// Count returns the number of live rooms.
func (rr *RoomRegistry) Count() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return len(rr.rooms)
}

// Names returns the identities of all live rooms.
func (rr *RoomRegistry) Names() []string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	out := make([]string, 0, len(rr.rooms))
	for name := range rr.rooms {
		out = append(out, name)
	}
	return out
}
