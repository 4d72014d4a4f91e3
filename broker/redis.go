package broker

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	connectTimeout = 5 * time.Second
)

var log = stdlog.New(stdlog.Writer(), "[broker] ", stdlog.LstdFlags)

// RedisBroker implements MessageBroker using Redis pub/sub
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to Redis, retrying the initial PING.
func NewRedisBroker(ctx context.Context, addr string) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	ping := func() error {
		return client.Ping(ctx).Err()
	}
	err := backoff.RetryNotify(ping, retryPolicy(ctx), func(err error, d time.Duration) {
		log.Printf("Redis at %s not ready: %v (next attempt in %s)", addr, err, d)
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisBroker{client: client}, nil
}

// Client exposes the underlying connection for stores sharing it.
func (b *RedisBroker) Client() *redis.Client {
	return b.client
}

// MarshalBinary implements encoding.BinaryMarshaler interface
func (e Event) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler interface
func (e *Event) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

// Publish sends an event to the specified channel with retry capability
func (b *RedisBroker) Publish(ctx context.Context, channel string, event Event) error {
	operation := func() error {
		return b.client.Publish(ctx, channel, event).Err()
	}

	return backoff.RetryNotify(operation, retryPolicy(ctx), func(err error, d time.Duration) {
		log.Printf("Retrying Redis publish of %s for %s: %v (next attempt in %s)", event.Type, event.ClientID, err, d)
	})
}

// Subscribe starts listening for events on the specified channel. The
// returned channel is closed when ctx is done or the subscription drops.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// Test subscription
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	events := make(chan Event)

	go func() {
		defer pubsub.Close()
		defer close(events)

		msgChan := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("Event decode error on %s: %v", channel, err)
					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Close cleans up resources
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func retryPolicy(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(initialBackoff),
				backoff.WithMaxInterval(maxBackoff),
			),
			maxRetries,
		),
		ctx,
	)
}
