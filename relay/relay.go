package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/azeasz/fobi-amaturalist-sub000/broker"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultWriteWait         = 5 * time.Second
	defaultMaxMessageSize    = 100 << 20
	publishTimeout           = 10 * time.Second
	eventBuffer              = 1024
)

// ConnectionSuccessType is the type of the confirmation sent to a newly
// admitted peer.
const ConnectionSuccessType = "CONNECTION_SUCCESS"

// ErrRelayClosed is returned when a connection arrives after Close.
var ErrRelayClosed = errors.New("relay is closed")

type Config struct {
	HeartbeatInterval time.Duration
	WriteWait         time.Duration
	MaxMessageSize    int64

	// Publisher receives presence events; nil disables them.
	Publisher broker.Publisher
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	return c
}

type connectionSuccess struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Relay owns every connection and the checklist rooms they belong to.
type Relay struct {
	cfg        Config
	instanceID string

	mu     sync.Mutex
	rooms  map[string]*Room
	conns  map[*Connection]struct{}
	closed bool

	// events is drained by a single goroutine so a connection's join is
	// always published before its leave. Close sets it to nil.
	events chan broker.Event
	wg     sync.WaitGroup
}

func New(cfg Config) *Relay {
	r := &Relay{
		cfg:        cfg.withDefaults(),
		instanceID: uuid.NewString(),
		rooms:      make(map[string]*Room),
		conns:      make(map[*Connection]struct{}),
	}
	if r.cfg.Publisher != nil {
		r.events = make(chan broker.Event, eventBuffer)
		go r.publishLoop(r.events)
	}
	return r
}

// InstanceID identifies this relay process in presence events.
func (r *Relay) InstanceID() string {
	return r.instanceID
}

// accept admits c to its room and sends the confirmation. Holding the
// connection's write lock across both steps keeps the confirmation ahead of
// any broadcast from peers.
func (r *Relay) accept(c *Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := r.admit(c); err != nil {
		return err
	}

	return c.writeJSONLocked(connectionSuccess{
		Type:    ConnectionSuccessType,
		Message: fmt.Sprintf("Connected to checklist %s", c.ChecklistID),
	})
}

// admit marks c open and adds it to its room. It refuses once the relay is
// closed.
func (r *Relay) admit(c *Connection) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRelayClosed
	}

	c.markAlive()
	c.setState(StateOpen)
	room, exists := r.rooms[c.ChecklistID]
	if !exists {
		room = newRoom(c.ChecklistID)
		r.rooms[c.ChecklistID] = room
	}
	room.add(c)
	r.conns[c] = struct{}{}
	size := len(room.members)
	r.publish(broker.EventClientJoined, c)
	r.mu.Unlock()

	log.Printf("Client %s joined checklist %s (connection %s, room size %d)", c.ClientID, c.ChecklistID, c.ID, size)
	return nil
}

// remove drops c from its room and prunes the room when it empties.
// It reports whether c was still tracked; repeated calls are no-ops.
func (r *Relay) remove(c *Connection) bool {
	r.mu.Lock()
	if _, tracked := r.conns[c]; !tracked {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, c)

	pruned := false
	if room, ok := r.rooms[c.ChecklistID]; ok {
		room.remove(c)
		if room.empty() {
			delete(r.rooms, c.ChecklistID)
			pruned = true
		}
	}
	r.publish(broker.EventClientLeft, c)
	r.mu.Unlock()

	if c.State() == StateOpen {
		c.setState(StateClosing)
	}
	log.Printf("Client %s left checklist %s (connection %s)", c.ClientID, c.ChecklistID, c.ID)
	if pruned {
		log.Printf("Checklist room %s removed (empty)", c.ChecklistID)
	}
	return true
}

// handleMessage validates an inbound frame and relays it. Frames that are
// not JSON are dropped. Payloads go out as text frames, so they must also be
// valid UTF-8.
func (r *Relay) handleMessage(from *Connection, raw []byte) {
	if !utf8.Valid(raw) {
		log.Printf("Dropping message with invalid UTF-8 from %s in checklist %s", from.ClientID, from.ChecklistID)
		return
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		log.Printf("Dropping malformed message from %s in checklist %s: %v", from.ClientID, from.ChecklistID, err)
		return
	}
	r.Broadcast(from, compact.Bytes())
}

// Broadcast sends payload to every other open member of from's room and
// returns how many writes succeeded. Failed writes are logged; the
// heartbeat evicts peers that are really gone.
func (r *Relay) Broadcast(from *Connection, payload []byte) int {
	r.mu.Lock()
	room, ok := r.rooms[from.ChecklistID]
	if !ok || !room.has(from) {
		r.mu.Unlock()
		return 0
	}
	peers := room.peersOf(from)
	r.mu.Unlock()

	delivered := 0
	for _, peer := range peers {
		if err := peer.send(payload); err != nil {
			log.Printf("Failed to relay message from %s to %s in checklist %s: %v", from.ClientID, peer.ClientID, from.ChecklistID, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Relay) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Relay) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// RoomSize reports the membership of a checklist room and whether it exists.
func (r *Relay) RoomSize(checklistID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[checklistID]
	if !ok {
		return 0, false
	}
	return len(room.members), true
}

func (r *Relay) connections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// CloseAll sends a going-away close to every connection and empties all rooms.
func (r *Relay) CloseAll(reason string) {
	for _, c := range r.connections() {
		log.Printf("Closing connection for client %s: %s", c.ClientID, reason)
		r.remove(c)
		_ = c.closeWith(websocket.CloseGoingAway, reason)
	}
}

// Close refuses further connections, sends a going-away close to every open
// one and stops the presence worker once the queued events are handed over.
// Repeated calls are no-ops.
func (r *Relay) Close(reason string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.CloseAll(reason)

	r.mu.Lock()
	if r.events != nil {
		close(r.events)
		r.events = nil
	}
	r.mu.Unlock()
}

// Wait blocks until pending presence events are published.
func (r *Relay) Wait() {
	r.wg.Wait()
}

// publish queues a presence event without blocking. Callers hold r.mu.
func (r *Relay) publish(eventType string, c *Connection) {
	if r.events == nil {
		return
	}

	event := broker.Event{
		Type:         eventType,
		ClientID:     c.ClientID,
		ChecklistID:  c.ChecklistID,
		ConnectionID: c.ID,
		InstanceID:   r.instanceID,
		At:           time.Now().UTC(),
	}

	r.wg.Add(1)
	select {
	case r.events <- event:
	default:
		r.wg.Done()
		log.Printf("Presence queue full, dropping %s event for client %s", eventType, c.ClientID)
	}
}

func (r *Relay) publishLoop(events <-chan broker.Event) {
	for event := range events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := r.cfg.Publisher.Publish(ctx, broker.PresenceChannel, event); err != nil {
			log.Printf("Failed to publish %s event for client %s: %v", event.Type, event.ClientID, err)
		}
		cancel()
		r.wg.Done()
	}
}
