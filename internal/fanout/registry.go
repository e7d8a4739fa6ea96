package fanout

import (
	"sync"

	"github.com/samber/lo"
)

type connSet map[Conn]struct{}

// Registry is the live group -> connections index. A connection is in at most
// one group at a time and a group is present only while it has members.
type Registry struct {
	mu     sync.RWMutex
	groups map[ID]connSet
	conns  map[Conn]ID
}

func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[ID]connSet),
		conns:  make(map[Conn]ID),
	}
}

// Associate moves conn into groupID, leaving its previous group if any.
func (r *Registry) Associate(conn Conn, groupID ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[conn]; ok {
		if current == groupID {
			return
		}
		r.remove(conn, current)
	}

	members, ok := r.groups[groupID]
	if !ok {
		members = make(connSet)
		r.groups[groupID] = members
	}
	members[conn] = struct{}{}
	r.conns[conn] = groupID
}

// Disassociate drops conn from its group. Unknown connections are ignored.
func (r *Registry) Disassociate(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[conn]; ok {
		r.remove(conn, current)
	}
}

// remove must be called with mu held.
func (r *Registry) remove(conn Conn, groupID ID) {
	delete(r.conns, conn)
	members, ok := r.groups[groupID]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(r.groups, groupID)
	}
}

// MembersOf returns a snapshot of the connections associated with groupID.
func (r *Registry) MembersOf(groupID ID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groups[groupID]
	if !ok {
		return []Conn{}
	}
	return lo.Keys(members)
}

// GroupOf returns the group conn is currently associated with.
func (r *Registry) GroupOf(conn Conn) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groupID, ok := r.conns[conn]
	return groupID, ok
}

// Groups returns the ids of all groups with at least one member.
func (r *Registry) Groups() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.groups)
}

// Len returns the number of associated connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
