package relay

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when writing to a connection that has
// left the Open state.
var ErrConnectionClosed = errors.New("connection is not open")

// Liveness tracks the ping/pong handshake of a connection.
type Liveness int32

const (
	// AwaitingPong means a ping is outstanding; the next sweep evicts.
	AwaitingPong Liveness = iota
	// Alive means the peer answered since the last sweep.
	Alive
)

func (l Liveness) String() string {
	switch l {
	case AwaitingPong:
		return "awaiting_pong"
	case Alive:
		return "alive"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one peer admitted to a checklist room.
type Connection struct {
	ID          string
	ClientID    string
	ChecklistID string

	conn      *websocket.Conn
	writeWait time.Duration
	liveness  atomic.Int32
	state     atomic.Int32

	// mu serializes data frames; gorilla allows a single concurrent writer.
	mu sync.Mutex
}

func newConnection(clientID, checklistID string, conn *websocket.Conn, writeWait time.Duration) *Connection {
	c := &Connection{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		ChecklistID: checklistID,
		conn:        conn,
		writeWait:   writeWait,
	}
	c.state.Store(int32(StateConnecting))
	c.liveness.Store(int32(AwaitingPong))
	return c
}

func (c *Connection) Liveness() Liveness {
	return Liveness(c.liveness.Load())
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) markAlive() {
	c.liveness.Store(int32(Alive))
}

// expectPong clears the liveness flag and reports its previous value.
func (c *Connection) expectPong() Liveness {
	return Liveness(c.liveness.Swap(int32(AwaitingPong)))
}

func (c *Connection) isOpen() bool {
	return c.State() == StateOpen
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// send writes a text frame. Caller must not hold c.mu.
func (c *Connection) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(websocket.TextMessage, payload)
}

func (c *Connection) writeLocked(messageType int, payload []byte) error {
	if !c.isOpen() {
		return ErrConnectionClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}

func (c *Connection) writeJSONLocked(v any) error {
	if !c.isOpen() {
		return ErrConnectionClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *Connection) ping() error {
	return c.conn.WriteControl(
		websocket.PingMessage,
		nil,
		time.Now().Add(c.writeWait),
	)
}

// closeWith sends a close frame before dropping the socket.
func (c *Connection) closeWith(code int, text string) error {
	c.setState(StateClosing)
	defer c.terminate()

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(c.writeWait),
	)
	if err != nil {
		log.Printf("Error sending close message to %s: %v", c.ClientID, err)
		return err
	}
	return nil
}

// terminate drops the socket without a close handshake. The read loop
// observes the error and runs the normal cleanup.
func (c *Connection) terminate() error {
	c.setState(StateClosed)
	return c.conn.Close()
}
