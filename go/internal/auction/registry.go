package auction

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns the live rooms of this process, keyed by league.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[uuid.UUID]*Room)}
}

// Get returns the room of a league, if one is live.
func (r *Registry) Get(leagueID uuid.UUID) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[leagueID]
	return room, ok
}

// putIfAbsent stores room unless another one is already registered, and
// returns whichever room ends up registered.
func (r *Registry) putIfAbsent(room *Room) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rooms[room.leagueID]; ok {
		return existing
	}
	r.rooms[room.leagueID] = room
	return room
}

// Delete removes a league's room. Deleting an absent room is a no-op.
func (r *Registry) Delete(leagueID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, leagueID)
}

// deleteRoom removes room only if it is still the registered instance.
func (r *Registry) deleteRoom(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.rooms[room.leagueID]; ok && current == room {
		delete(r.rooms, room.leagueID)
	}
}

// Rooms returns the live rooms at the time of the call.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
