package core

import "github.com/rs/zerolog"

// Room groups clients subscribed to the same group.
type Room struct {
	ID      string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

// Multiplexer routes events to the clients joined to each room.
// Like Presence it is owned by the hub goroutine.
type Multiplexer struct {
	logger *zerolog.Logger
	rooms  map[string]*Room
}

// NewMultiplexer creates a multiplexer with no rooms.
func NewMultiplexer(logger *zerolog.Logger) *Multiplexer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Multiplexer{logger: logger, rooms: make(map[string]*Room)}
}

// Join subscribes c to groupID. Returns true if newly joined.
func (m *Multiplexer) Join(c *Client, groupID string) bool {
	room, ok := m.rooms[groupID]
	if !ok {
		room = NewRoom(groupID)
		m.rooms[groupID] = room
	}
	c.Rooms[groupID] = struct{}{}
	return room.AddClient(c)
}

// Leave unsubscribes c from groupID. Returns true if c was a member.
func (m *Multiplexer) Leave(c *Client, groupID string) bool {
	delete(c.Rooms, groupID)
	room, ok := m.rooms[groupID]
	if !ok {
		return false
	}
	removed := room.RemoveClient(c)
	if room.Empty() {
		delete(m.rooms, groupID)
	}
	return removed
}

// LeaveAll unsubscribes c from every room it joined and returns those rooms.
func (m *Multiplexer) LeaveAll(c *Client) []string {
	groups := make([]string, 0, len(c.Rooms))
	for groupID := range c.Rooms {
		groups = append(groups, groupID)
	}
	for _, groupID := range groups {
		m.Leave(c, groupID)
	}
	return groups
}

// Broadcast delivers ev to every member of groupID except the given client, which may be nil.
// Unknown rooms deliver to nobody. Returns the number of clients that received the event.
func (m *Multiplexer) Broadcast(groupID string, ev *Event, except *Client) int {
	room, ok := m.rooms[groupID]
	if !ok {
		return 0
	}
	delivered := 0
	for client := range room.clients {
		if client == except {
			continue
		}
		if m.SendTo(client, ev) {
			delivered++
		}
	}
	return delivered
}

// SendTo delivers ev to one client without blocking. A full buffer drops the event.
func (m *Multiplexer) SendTo(c *Client, ev *Event) bool {
	if c.deliver(ev) {
		return true
	}
	if !c.closed {
		m.logger.Warn().
			Str("conn_id", c.ID).
			Int("event", int(ev.Kind)).
			Msg("client buffer full, dropping event")
	}
	return false
}

// Members returns how many clients are joined to groupID.
func (m *Multiplexer) Members(groupID string) int {
	room, ok := m.rooms[groupID]
	if !ok {
		return 0
	}
	return len(room.clients)
}
