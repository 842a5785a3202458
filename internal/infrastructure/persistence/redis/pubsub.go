package redis

import (
	"context"

	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// PubSubClient adapts Cache to the messaging.RedisClient interface so the
// bridged registry can fan broadcasts out across gateway instances.
type PubSubClient struct {
	cache *Cache
}

// NewPubSubClient creates a new PubSubClient.
func NewPubSubClient(cache *Cache) *PubSubClient {
	return &PubSubClient{cache: cache}
}

// Publish publishes a message to a channel.
func (c *PubSubClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.cache.Client().Publish(ctx, channel, message).Err()
}

// Subscribe subscribes to channels and converts messages to the messaging
// package's shape. The returned channel closes when ctx is cancelled.
func (c *PubSubClient) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	pubsub := c.cache.Client().Subscribe(ctx, channels...)

	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan messaging.RedisMessage, 64)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- messaging.RedisMessage{
					Channel: msg.Channel,
					Payload: msg.Payload,
				}
			}
		}
	}()

	return out, nil
}

// Close closes the underlying Redis connection.
func (c *PubSubClient) Close() error {
	return c.cache.Close()
}
