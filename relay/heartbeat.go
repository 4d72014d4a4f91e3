package relay

import (
	"context"
	"time"
)

// Sweep runs one heartbeat cycle. Connections that did not answer the
// previous ping are terminated; the rest are pinged and must pong before the
// next cycle.
func (r *Relay) Sweep() {
	for _, c := range r.connections() {
		if c.expectPong() == AwaitingPong {
			log.Printf("Heartbeat timeout for client %s in checklist %s", c.ClientID, c.ChecklistID)
			r.remove(c)
			_ = c.terminate()
			continue
		}

		if err := c.ping(); err != nil {
			log.Printf("Ping to client %s failed: %v", c.ClientID, err)
		}
	}
}

// RunHeartbeat sweeps on the configured interval until ctx is done.
func (r *Relay) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
