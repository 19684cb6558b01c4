package core

import (
	"reflect"
	"testing"
)

func TestPresenceLatestAnnouncementWins(t *testing.T) {
	p := NewPresence()
	p.Register("u1", "c1")
	p.Register("u1", "c2")

	if conn, ok := p.Lookup("u1"); !ok || conn != "c2" {
		t.Fatalf("expected c2 to win lookup, got %q %v", conn, ok)
	}

	// The superseded connection is still open, so it takes over when the latest goes away.
	if !p.Unregister("c2") {
		t.Fatal("expected c2 to be registered")
	}
	if conn, ok := p.Lookup("u1"); !ok || conn != "c1" {
		t.Fatalf("expected fallback to c1, got %q %v", conn, ok)
	}

	p.Unregister("c1")
	if _, ok := p.Lookup("u1"); ok {
		t.Fatal("expected u1 to be absent after all connections left")
	}
	if p.Unregister("c1") {
		t.Fatal("second unregister must report false")
	}
}

func TestPresenceReannounceMovesConnection(t *testing.T) {
	p := NewPresence()
	p.Register("u1", "c1")
	p.Register("u2", "c1")

	if _, ok := p.Lookup("u1"); ok {
		t.Fatal("c1 now belongs to u2, u1 must be absent")
	}
	if conn, ok := p.Lookup("u2"); !ok || conn != "c1" {
		t.Fatalf("expected u2 on c1, got %q %v", conn, ok)
	}
}

func TestPresenceSnapshotDeduplicatesUsers(t *testing.T) {
	p := NewPresence()
	p.JoinRoom("g1", "alice", "Alice", "c1")
	p.JoinRoom("g1", "bob", "Bob", "c2")
	snap := p.JoinRoom("g1", "alice", "Alice", "c3")

	if snap.Count != 2 {
		t.Fatalf("expected 2 distinct users, got %d", snap.Count)
	}
	if got := onlineIDs(&snap); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Fatalf("expected arrival order [alice bob], got %v", got)
	}

	// Closing one of alice's tabs keeps her online.
	p.LeaveRoom("g1", "c1")
	snap = p.Snapshot("g1")
	if got := onlineIDs(&snap); !reflect.DeepEqual(got, []string{"bob", "alice"}) {
		t.Fatalf("expected [bob alice] after first tab left, got %v", got)
	}
}

func TestPresenceDropsEmptyRooms(t *testing.T) {
	p := NewPresence()
	p.JoinRoom("g1", "u1", "U1", "c1")
	p.JoinRoom("g2", "u1", "U1", "c1")
	p.JoinRoom("g2", "u2", "U2", "c2")

	groups := p.LeaveAll("c1")
	if !reflect.DeepEqual(groups, []string{"g1", "g2"}) {
		t.Fatalf("unexpected affected groups: %v", groups)
	}
	if p.Rooms() != 1 {
		t.Fatalf("expected only g2 to remain, got %d rooms", p.Rooms())
	}
	if snap := p.Snapshot("g1"); snap.Count != 0 || len(snap.Users) != 0 {
		t.Fatalf("expected empty snapshot for dropped room, got %+v", snap)
	}
	if p.LeaveRoom("g1", "c1") {
		t.Fatal("leaving a dropped room must report false")
	}
}

func TestPresenceLeaveAllMatchesExplicitLeaves(t *testing.T) {
	seed := func() *Presence {
		p := NewPresence()
		p.JoinRoom("g1", "c", "C", "conn-c")
		p.JoinRoom("g1", "d", "D", "conn-d")
		p.JoinRoom("g2", "c", "C", "conn-c")
		return p
	}

	viaDisconnect := seed()
	viaDisconnect.LeaveAll("conn-c")

	viaLeave := seed()
	viaLeave.LeaveRoom("g1", "conn-c")
	viaLeave.LeaveRoom("g2", "conn-c")

	for _, g := range []string{"g1", "g2"} {
		if a, b := viaDisconnect.Snapshot(g), viaLeave.Snapshot(g); !reflect.DeepEqual(a, b) {
			t.Fatalf("group %s diverged: %+v vs %+v", g, a, b)
		}
	}
	if viaDisconnect.Rooms() != viaLeave.Rooms() {
		t.Fatalf("room count diverged: %d vs %d", viaDisconnect.Rooms(), viaLeave.Rooms())
	}
}

func TestPresenceRetagRewritesRoomEntries(t *testing.T) {
	p := NewPresence()
	p.JoinRoom("g2", "old", "Old", "c1")
	p.JoinRoom("g1", "old", "Old", "c1")
	p.JoinRoom("g1", "bob", "Bob", "c2")

	groups := p.Retag("c1", "new", "New")
	if !reflect.DeepEqual(groups, []string{"g1", "g2"}) {
		t.Fatalf("expected [g1 g2], got %v", groups)
	}

	snap := p.Snapshot("g1")
	if got := onlineIDs(&snap); !reflect.DeepEqual(got, []string{"new", "bob"}) {
		t.Fatalf("expected retagged entry to keep its position, got %v", got)
	}
	if snap.Users[0].DisplayName != "New" {
		t.Fatalf("expected refreshed display name, got %+v", snap.Users[0])
	}
	if len(p.Retag("c9", "x", "X")) != 0 {
		t.Fatal("unknown connection must touch no rooms")
	}
}
