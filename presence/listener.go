package presence

import (
	"context"
	"fmt"
	stdlog "log"

	"github.com/azeasz/fobi-amaturalist-sub000/broker"
)

var log = stdlog.New(stdlog.Writer(), "[presence] ", stdlog.LstdFlags)

// Listen applies presence events to store until ctx is done or the
// subscription closes.
func Listen(ctx context.Context, subscriber broker.Subscriber, store *Store) error {
	events, err := subscriber.Subscribe(ctx, broker.PresenceChannel)
	if err != nil {
		return fmt.Errorf("subscribe to presence events: %w", err)
	}
	log.Printf("Subscribed to '%s' channel.", broker.PresenceChannel)

	for event := range events {
		if err := Apply(ctx, store, event); err != nil {
			log.Printf("ERROR: %v", err)
		}
	}
	return ctx.Err()
}

// Apply records a single event.
func Apply(ctx context.Context, store *Store, event broker.Event) error {
	switch event.Type {
	case broker.EventClientJoined:
		log.Printf("EVENT: Client %s joined checklist %s", event.ClientID, event.ChecklistID)
		return store.Join(ctx, event.ChecklistID, event.ConnectionID, event.ClientID)
	case broker.EventClientLeft:
		log.Printf("EVENT: Client %s left checklist %s", event.ClientID, event.ChecklistID)
		return store.Leave(ctx, event.ChecklistID, event.ConnectionID)
	default:
		log.Printf("WARNING: Unknown event type received: %s", event.Type)
		return nil
	}
}
