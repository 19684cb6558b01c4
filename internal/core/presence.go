package core

import "sort"

// OnlineUser is one entry of a presence snapshot.
type OnlineUser struct {
	UserID      string
	DisplayName string
}

// OnlineSnapshot is the presence of one group at a point in time.
type OnlineSnapshot struct {
	GroupID string
	Count   int
	Users   []OnlineUser
}

type presenceEntry struct {
	userID      string
	displayName string
	seq         uint64
}

// Presence maps users to their connections and groups to the connections present in them.
// It is not safe for concurrent use; the hub goroutine is its only caller.
type Presence struct {
	// userID -> connection ids in announcement order, latest last
	active map[string][]string
	// connID -> userID
	identities map[string]string
	// groupID -> connID -> entry
	rooms map[string]map[string]presenceEntry
	seq   uint64
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		active:     make(map[string][]string),
		identities: make(map[string]string),
		rooms:      make(map[string]map[string]presenceEntry),
	}
}

// Register records connID as the active connection of userID. A later call for the
// same user supersedes earlier connections without evicting them.
func (p *Presence) Register(userID, connID string) {
	if prev, ok := p.identities[connID]; ok {
		p.dropConn(prev, connID)
	}
	p.identities[connID] = userID
	p.active[userID] = append(p.active[userID], connID)
}

// Lookup returns the most recently announced connection of userID that is still registered.
func (p *Presence) Lookup(userID string) (string, bool) {
	conns := p.active[userID]
	if len(conns) == 0 {
		return "", false
	}
	return conns[len(conns)-1], true
}

// Unregister forgets connID. It reports whether the connection was registered.
func (p *Presence) Unregister(connID string) bool {
	userID, ok := p.identities[connID]
	if !ok {
		return false
	}
	delete(p.identities, connID)
	p.dropConn(userID, connID)
	return true
}

func (p *Presence) dropConn(userID, connID string) {
	conns := p.active[userID]
	for i, id := range conns {
		if id == connID {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(p.active, userID)
		return
	}
	p.active[userID] = conns
}

// JoinRoom adds the (user, connection) tuple to groupID and returns the updated snapshot.
// Joining again with the same connection only refreshes the display name.
func (p *Presence) JoinRoom(groupID, userID, displayName, connID string) OnlineSnapshot {
	room, ok := p.rooms[groupID]
	if !ok {
		room = make(map[string]presenceEntry)
		p.rooms[groupID] = room
	}
	entry, exists := room[connID]
	if !exists {
		p.seq++
		entry.seq = p.seq
	}
	entry.userID = userID
	entry.displayName = displayName
	room[connID] = entry
	return p.Snapshot(groupID)
}

// Retag rewrites the identity of connID in every room it is present in and returns
// those groups, sorted.
func (p *Presence) Retag(connID, userID, displayName string) []string {
	var groups []string
	for groupID, room := range p.rooms {
		entry, ok := room[connID]
		if !ok {
			continue
		}
		entry.userID = userID
		entry.displayName = displayName
		room[connID] = entry
		groups = append(groups, groupID)
	}
	sort.Strings(groups)
	return groups
}

// LeaveRoom removes connID from groupID. Empty rooms are dropped.
func (p *Presence) LeaveRoom(groupID, connID string) bool {
	room, ok := p.rooms[groupID]
	if !ok {
		return false
	}
	if _, ok := room[connID]; !ok {
		return false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(p.rooms, groupID)
	}
	return true
}

// LeaveAll removes connID from every room and returns the affected groups, sorted.
func (p *Presence) LeaveAll(connID string) []string {
	var groups []string
	for groupID, room := range p.rooms {
		if _, ok := room[connID]; ok {
			groups = append(groups, groupID)
		}
	}
	sort.Strings(groups)
	for _, groupID := range groups {
		p.LeaveRoom(groupID, connID)
	}
	return groups
}

// Snapshot returns the users present in groupID, one entry per user in order of arrival.
func (p *Presence) Snapshot(groupID string) OnlineSnapshot {
	room := p.rooms[groupID]

	entries := make([]presenceEntry, 0, len(room))
	for _, e := range room {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	seen := make(map[string]struct{}, len(entries))
	users := make([]OnlineUser, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.userID]; dup {
			continue
		}
		seen[e.userID] = struct{}{}
		users = append(users, OnlineUser{UserID: e.userID, DisplayName: e.displayName})
	}
	return OnlineSnapshot{GroupID: groupID, Count: len(users), Users: users}
}

// Rooms returns the number of non-empty rooms.
func (p *Presence) Rooms() int {
	return len(p.rooms)
}
