package server

import (
	"context"
	"encoding/json"
	"errors"
	stdlog "log"
	"net/http"
	"time"

	"github.com/azeasz/fobi-amaturalist-sub000/broker"
	"github.com/azeasz/fobi-amaturalist-sub000/relay"
)

var log = stdlog.New(stdlog.Writer(), "[server] ", stdlog.LstdFlags)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	relay      *relay.Relay
	startedAt  time.Time
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Instance    string `json:"instance"`
	Uptime      string `json:"uptime"`
}

// NewServer mounts the relay on /ws and the liveness probe on /health.
func NewServer(addr string, rl *relay.Relay, wsHandler http.HandlerFunc) *Server {
	s := &Server{
		relay:     rl,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(healthResponse{
		Status:      "ok",
		Connections: s.relay.ConnectionCount(),
		Rooms:       s.relay.RoomCount(),
		Instance:    s.relay.InstanceID(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	})
	if err != nil {
		log.Printf("Failed to write health response: %v", err)
	}
}

// Start serves until Shutdown; it returns nil after a graceful stop.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and cleans up resources.
// messageBroker may be nil when presence events are disabled.
func (s *Server) Shutdown(timeout time.Duration, messageBroker broker.MessageBroker) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	// Step 1: Stop accepting new connections
	log.Println("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Step 2: Close the relay; hijacked WebSocket connections outlive
	// httpServer.Shutdown, and late handshakes must not be admitted.
	log.Println("Closing WebSocket connections...")
	s.relay.Close("Server shutting down")

	// Step 3: Wait for presence events to flush
	log.Println("Waiting for pending operations...")
	done := make(chan struct{})
	go func() {
		s.relay.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All operations completed")
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded, forcing exit")
	}

	// Step 4: Close message broker
	if messageBroker != nil {
		log.Println("Closing message broker...")
		if err := messageBroker.Close(); err != nil {
			log.Printf("Broker closure error: %v", err)
		}
	}

	log.Println("Shutdown complete")
}
