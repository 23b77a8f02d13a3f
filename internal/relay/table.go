package relay

import (
	"sort"
	"sync"
)

// Table is the authoritative mapping between rooms and their members.
// It owns room lifecycle: a room is created on first join and deleted
// the moment its member set empties.
//
// Both directions of the mapping live behind one mutex, so a
// connection's room and that room's member set can never be observed
// out of sync, and a join's implicit leave of the previous room is
// fully visible before the new membership appears.
type Table struct {
	mu      sync.Mutex
	members map[string]map[string]struct{} // room id -> member peer ids
	roomOf  map[string]string              // peer id -> room id
}

func NewTable() *Table {
	return &Table{
		members: make(map[string]map[string]struct{}),
		roomOf:  make(map[string]string),
	}
}

// Join moves connID into roomID, implicitly leaving any previous room.
//
// prev is the previous room ("" if none) and prevPeers the members
// remaining there after the leave. peers is a point-in-time snapshot of
// the target room's other members, taken before connID is inserted.
func (t *Table) Join(roomID, connID string) (prev string, prevPeers []string, peers []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev = t.leaveLocked(connID)
	if prev != "" {
		prevPeers = t.membersLocked(prev)
	}

	set := t.members[roomID]
	if set == nil {
		set = make(map[string]struct{})
		t.members[roomID] = set
	}
	peers = make([]string, 0, len(set))
	for id := range set {
		peers = append(peers, id)
	}
	sort.Strings(peers)

	set[connID] = struct{}{}
	t.roomOf[connID] = roomID
	return prev, prevPeers, peers
}

// Leave removes connID from its room, if any. remaining is the member
// snapshot after removal; ok reports whether a room was actually left.
func (t *Table) Leave(connID string) (room string, remaining []string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room = t.leaveLocked(connID)
	if room == "" {
		return "", nil, false
	}
	return room, t.membersLocked(room), true
}

// Members returns a snapshot of the room's member ids; empty when the
// room does not exist.
func (t *Table) Members(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.membersLocked(roomID)
}

// RoomOf returns the room connID currently belongs to.
func (t *Table) RoomOf(connID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.roomOf[connID]
	return room, ok
}

// Contains reports whether connID is a member of roomID. Used to
// resolve the target of a directed signal.
func (t *Table) Contains(roomID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.members[roomID][connID]
	return ok
}

// Len returns the number of live rooms.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.members)
}

func (t *Table) leaveLocked(connID string) string {
	room, ok := t.roomOf[connID]
	if !ok {
		return ""
	}
	delete(t.roomOf, connID)

	set := t.members[room]
	delete(set, connID)
	if len(set) == 0 {
		delete(t.members, room)
	}
	return room
}

func (t *Table) membersLocked(roomID string) []string {
	set := t.members[roomID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
