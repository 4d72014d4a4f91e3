package relay

// Room is the set of connections sharing a checklist id. It only exists
// while it has members.
type Room struct {
	ID      string
	members map[*Connection]struct{}
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[*Connection]struct{}),
	}
}

func (r *Room) add(c *Connection) bool {
	if _, exists := r.members[c]; exists {
		return false
	}
	r.members[c] = struct{}{}
	return true
}

func (r *Room) remove(c *Connection) bool {
	if _, exists := r.members[c]; !exists {
		return false
	}
	delete(r.members, c)
	return true
}

func (r *Room) has(c *Connection) bool {
	_, ok := r.members[c]
	return ok
}

func (r *Room) empty() bool {
	return len(r.members) == 0
}

// peersOf lists open members other than sender.
func (r *Room) peersOf(sender *Connection) []*Connection {
	peers := make([]*Connection, 0, len(r.members))
	for c := range r.members {
		if c == sender || !c.isOpen() {
			continue
		}
		peers = append(peers, c)
	}
	return peers
}
