package relay

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// MissingParametersReason is the close reason sent when clientId or
// checklistId is absent.
const MissingParametersReason = "Missing required parameters"

// ErrMissingParameters marks a handshake without clientId or checklistId.
var ErrMissingParameters = errors.New(strings.ToLower(MissingParametersReason))

var upgrader = websocket.Upgrader{
	// Origin checks belong to the reverse proxy in front of the relay.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	relay *Relay
}

func NewHandler(relay *Relay) *Handler {
	return &Handler{relay: relay}
}

// handshakeParams extracts the room identity from the upgrade request.
func handshakeParams(r *http.Request) (clientID, checklistID string, err error) {
	query := r.URL.Query()
	clientID = strings.TrimSpace(query.Get("clientId"))
	checklistID = strings.TrimSpace(query.Get("checklistId"))
	if clientID == "" || checklistID == "" {
		return "", "", ErrMissingParameters
	}
	return clientID, checklistID, nil
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	clientID, checklistID, err := handshakeParams(r)
	if err != nil {
		log.Printf("Rejecting connection from %s: %v", r.RemoteAddr, err)
		rejectHandshake(conn, h.relay.cfg.WriteWait)
		return
	}

	c := newConnection(clientID, checklistID, conn, h.relay.cfg.WriteWait)
	defer func() {
		h.relay.remove(c)
		_ = c.terminate()
	}()

	conn.SetReadLimit(h.relay.cfg.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	if err := h.relay.accept(c); err != nil {
		if errors.Is(err, ErrRelayClosed) {
			log.Printf("Refusing client %s: %v", clientID, err)
			_ = c.closeWith(websocket.CloseGoingAway, "Server shutting down")
			return
		}
		log.Printf("Failed to confirm connection for client %s: %v", clientID, err)
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Printf("Client %s exceeded the %d byte message limit", clientID, h.relay.cfg.MaxMessageSize)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("Read error from client %s: %v", clientID, err)
			}
			break
		}

		h.relay.handleMessage(c, msg)
	}

	log.Printf("Cleaning up connection for client %s", clientID)
}

func rejectHandshake(conn *websocket.Conn, writeWait time.Duration) {
	defer conn.Close()

	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, MissingParametersReason),
		time.Now().Add(writeWait),
	)
	if err != nil {
		log.Printf("Error sending close message: %v", err)
	}
}
