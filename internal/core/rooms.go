package core

import (
	"sort"
	"strings"
	"sync"

	"github.com/axiomchronicles/drevoid-server/internal/auth"
	"github.com/axiomchronicles/drevoid-server/internal/proto"
)

// Rooms owns room lifecycle. The registry mutex guards only the room
// table; room contents are guarded by each room's own lock.
type Rooms struct {
	defaultRoom string
	capacity    int
	historyCap  int

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRooms builds the room registry with a default room that always
// exists. capacity bounds members of created rooms; historyCap bounds
// retained messages per room.
func NewRooms(defaultRoom string, defaultCapacity, capacity, historyCap int) *Rooms {
	r := &Rooms{
		defaultRoom: defaultRoom,
		capacity:    capacity,
		historyCap:  historyCap,
		rooms:       make(map[string]*Room),
	}
	r.rooms[defaultRoom] = newRoom(defaultRoom, VisibilityPublic, "", defaultCapacity, historyCap)
	return r
}

// DefaultRoom returns the name of the always-present room.
func (r *Rooms) DefaultRoom() string { return r.defaultRoom }

// Create registers a new room. Private rooms require a password, which
// is stored only as a bcrypt hash.
func (r *Rooms) Create(name string, visibility Visibility, password string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrBadRequest
	}
	var hash string
	if visibility == VisibilityPrivate {
		if password == "" {
			return nil, ErrBadRequest
		}
		var err error
		hash, err = auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[name]; exists {
		return nil, ErrNameTaken
	}
	room := newRoom(name, visibility, hash, r.capacity, r.historyCap)
	r.rooms[name] = room
	return room, nil
}

// Get returns the named room.
func (r *Rooms) Get(name string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Remove deletes a room outright, regardless of members. The default
// room cannot be removed.
func (r *Rooms) Remove(name string) error {
	if name == r.defaultRoom {
		return ErrBadRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[name]; !ok {
		return ErrRoomNotFound
	}
	delete(r.rooms, name)
	return nil
}

// Collect garbage-collects the named room if it is empty and not the
// default room.
func (r *Rooms) Collect(name string) bool {
	if name == r.defaultRoom {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok || !room.Empty() {
		return false
	}
	delete(r.rooms, name)
	return true
}

// List returns summaries of all rooms, sorted by name.
func (r *Rooms) List() []proto.RoomSummary {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	summaries := make([]proto.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries
}

// ActiveCount returns the number of rooms with at least one member.
func (r *Rooms) ActiveCount() int {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	active := 0
	for _, room := range rooms {
		if !room.Empty() {
			active++
		}
	}
	return active
}
