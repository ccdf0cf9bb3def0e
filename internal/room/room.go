package room

import (
	"sort"

	"github.com/manpreetbhatti/readtrail/internal/identity"
)

// Number of recent positions kept in a presence trail
const TrailCapacity = 50

// A connected reader's live state inside one room
type Presence struct {
	ID         string `json:"id"`
	Color      string `json:"color"`
	Instrument string `json:"instrument"`
	Position   int    `json:"position"`
	Trail      []int  `json:"trail"`
}

func (p *Presence) clone() Presence {
	c := *p
	c.Trail = append(make([]int, 0, len(p.Trail)), p.Trail...)
	return c
}

// Records a new position, evicting the oldest trail entry past capacity
func (p *Presence) moveTo(position int) {
	p.Position = position
	p.Trail = append(p.Trail, position)
	if over := len(p.Trail) - TrailCapacity; over > 0 {
		p.Trail = append(p.Trail[:0], p.Trail[over:]...)
	}
}

// A shared reading session keyed by document id
type Room struct {
	ID        string
	presences map[string]*Presence
}

// Creates a new room with the given ID
func NewRoom(id string) *Room {
	return &Room{
		ID:        id,
		presences: make(map[string]*Presence),
	}
}

// Number of readers currently in the room
func (r *Room) Len() int {
	return len(r.presences)
}

// Returns a copy of every presence except the excluded connection
func (r *Room) Snapshot(exclude string) map[string]Presence {
	out := make(map[string]Presence, len(r.presences))
	for id, p := range r.presences {
		if id == exclude {
			continue
		}
		out[id] = p.clone()
	}
	return out
}

// Outcome of a join
type JoinResult struct {
	RoomID   string
	Presence Presence
	// Everyone already in the room, keyed by connection id
	Others map[string]Presence
	// Set when the connection was moved out of a room to join this one
	Departed *Departure
}

// A presence removed from a room
type Departure struct {
	RoomID   string
	Presence Presence
	// The room was destroyed because this was its last reader
	Closed bool
}

// Registry tracks active rooms and which room each connection is in. Like
// the allocator it is owned by a single goroutine and takes no locks.
type Registry struct {
	rooms   map[string]*Room
	members map[string]string
	colors  *identity.Allocator
}

func NewRegistry(colors *identity.Allocator) *Registry {
	if colors == nil {
		colors = identity.NewAllocator(nil, nil)
	}
	return &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
		colors:  colors,
	}
}

// Colors exposes the allocator backing this registry
func (r *Registry) Colors() *identity.Allocator {
	return r.colors
}

// Join places the connection in a room with a fresh presence. Any presence
// the connection held before, in this room or another, is removed first.
func (r *Registry) Join(roomID, connID string) JoinResult {
	var departed *Departure
	if prev, ok := r.members[connID]; ok {
		if d, ok := r.Leave(prev, connID); ok {
			departed = &d
		}
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = NewRoom(roomID)
		r.rooms[roomID] = rm
	}

	color := r.colors.Allocate(roomID)
	p := &Presence{
		ID:         connID,
		Color:      color,
		Instrument: r.colors.InstrumentFor(color),
		Trail:      make([]int, 0, TrailCapacity),
	}

	others := rm.Snapshot(connID)
	rm.presences[connID] = p
	r.members[connID] = roomID

	return JoinResult{
		RoomID:   roomID,
		Presence: p.clone(),
		Others:   others,
		Departed: departed,
	}
}

// Move updates a reader's position. A move for a room or connection that no
// longer exists is ignored and reports false.
func (r *Registry) Move(roomID, connID string, position int) (Presence, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return Presence{}, false
	}
	p, ok := rm.presences[connID]
	if !ok {
		return Presence{}, false
	}

	p.moveTo(position)
	return p.clone(), true
}

// Leave removes the connection's presence and releases its color. When the
// room empties it is deleted along with its color bookkeeping.
func (r *Registry) Leave(roomID, connID string) (Departure, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return Departure{}, false
	}
	p, ok := rm.presences[connID]
	if !ok {
		return Departure{}, false
	}

	delete(rm.presences, connID)
	if r.members[connID] == roomID {
		delete(r.members, connID)
	}
	r.colors.Release(roomID, p.Color)

	d := Departure{RoomID: roomID, Presence: p.clone()}
	if rm.Len() == 0 {
		delete(r.rooms, roomID)
		r.colors.Forget(roomID)
		d.Closed = true
	}
	return d, true
}

// LeaveAll removes the connection from whatever room it is in
func (r *Registry) LeaveAll(connID string) (Departure, bool) {
	roomID, ok := r.members[connID]
	if !ok {
		return Departure{}, false
	}
	return r.Leave(roomID, connID)
}

// RoomOf returns the room the connection is currently joined to
func (r *Registry) RoomOf(connID string) (string, bool) {
	roomID, ok := r.members[connID]
	return roomID, ok
}

// Presence returns a copy of one reader's state
func (r *Registry) Presence(roomID, connID string) (Presence, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return Presence{}, false
	}
	p, ok := rm.presences[connID]
	if !ok {
		return Presence{}, false
	}
	return p.clone(), true
}

// Members returns the connection ids in a room, sorted
func (r *Registry) Members(roomID string) []string {
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, rm.Len())
	for id := range rm.presences {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) exists(roomID string) bool {
	_, ok := r.rooms[roomID]
	return ok
}

func (r *Registry) RoomCount() int {
	return len(r.rooms)
}

func (r *Registry) ParticipantCount() int {
	return len(r.members)
}

// Occupancy maps each active room to its reader count
func (r *Registry) Occupancy() map[string]int {
	out := make(map[string]int, len(r.rooms))
	for id, rm := range r.rooms {
		out[id] = rm.Len()
	}
	return out
}
