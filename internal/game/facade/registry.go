package facade

import "sync"

// Registry maps game session URNs to their open connections. It is safe for
// concurrent connect, disconnect and fanout.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn // gameSessionURN -> conn id -> conn
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]*Conn)}
}

// Add registers c under its game session.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[c.GameSessionURN()]
	if room == nil {
		room = make(map[string]*Conn)
		r.rooms[c.GameSessionURN()] = room
	}
	room[c.ID()] = c
}

// Remove unregisters c and reports whether it was registered.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[c.GameSessionURN()]
	if !ok {
		return false
	}
	if _, ok := room[c.ID()]; !ok {
		return false
	}
	delete(room, c.ID())
	if len(room) == 0 {
		delete(r.rooms, c.GameSessionURN())
	}
	return true
}

// Conns returns a snapshot of the connections of gameSessionURN. Pushing to
// the snapshot happens without the registry lock held.
func (r *Registry) Conns(gameSessionURN string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[gameSessionURN]
	out := make([]*Conn, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

// Count returns the number of connections of gameSessionURN.
func (r *Registry) Count(gameSessionURN string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[gameSessionURN])
}

// Len returns the total number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, room := range r.rooms {
		n += len(room)
	}
	return n
}

// CloseAll closes and unregisters every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[string]map[string]*Conn)
	r.mu.Unlock()

	for _, room := range rooms {
		for _, c := range room {
			_ = c.Close()
		}
	}
}
