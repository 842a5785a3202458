package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS BRIDGE
// ══════════════════════════════════════════════════════════════════════════════

// BridgedRegistry wraps a local GroupRegistry with a Redis Pub/Sub fan-out so
// that broadcasts reach connections held by other gateway instances. Remote
// membership is never tracked; each instance re-broadcasts a remote envelope
// to its own local members of the group.
type BridgedRegistry struct {
	client      RedisClient
	local       *GroupRegistry
	channelName string
	instanceID  string
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// RedisClient defines the interface for Redis Pub/Sub operations.
// This allows for easy mocking and different Redis client implementations.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// BridgedRegistryConfig contains configuration for BridgedRegistry.
type BridgedRegistryConfig struct {
	// Client is the Redis client to use.
	Client RedisClient

	// Local is the in-process registry that holds this instance's connections.
	Local *GroupRegistry

	// ChannelName is the Redis channel for broadcasts (default: "lumena:broadcasts").
	ChannelName string

	// InstanceID uniquely identifies this instance (for filtering self-published broadcasts).
	InstanceID string

	// Logger for structured logging.
	Logger *slog.Logger
}

// NewBridgedRegistry creates a registry bridged across instances via Redis.
func NewBridgedRegistry(config BridgedRegistryConfig) (*BridgedRegistry, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Local == nil {
		return nil, errors.New("local registry is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "lumena:broadcasts"
	}
	if config.InstanceID == "" {
		config.InstanceID = generateInstanceID()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &BridgedRegistry{
		client:      config.Client,
		local:       config.Local,
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		logger:      config.Logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	if err := b.startSubscriber(); err != nil {
		cancel()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}

	return b, nil
}

// Join adds a subscriber to the local member set of a group.
func (b *BridgedRegistry) Join(group string, sub Subscriber) error {
	return b.local.Join(group, sub)
}

// Leave removes a subscriber from the local member set of a group.
func (b *BridgedRegistry) Leave(group, subID string) {
	b.local.Leave(group, subID)
}

// Broadcast delivers to local members and publishes the envelope to Redis for
// other instances. The return value counts local deliveries only.
func (b *BridgedRegistry) Broadcast(ctx context.Context, group string, data []byte) int {
	return b.broadcast(ctx, group, data, "")
}

// BroadcastExcept behaves like Broadcast but skips one local subscriber.
// Connection IDs are instance-scoped so the exclusion travels in the envelope.
func (b *BridgedRegistry) BroadcastExcept(ctx context.Context, group string, data []byte, exceptID string) int {
	return b.broadcast(ctx, group, data, exceptID)
}

func (b *BridgedRegistry) broadcast(ctx context.Context, group string, data []byte, exceptID string) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	b.mu.RUnlock()

	envelope := broadcastEnvelope{
		InstanceID: b.instanceID,
		Group:      group,
		ExceptID:   exceptID,
		Data:       data,
		SentAt:     time.Now().UTC(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		b.logger.Error("failed to marshal broadcast envelope", "group", group, "error", err)
	} else if err := b.client.Publish(ctx, b.channelName, string(payload)); err != nil {
		// Fall back to local-only delivery. Remote instances miss this
		// broadcast; the durable record is still intact.
		b.logger.Error("failed to publish broadcast to redis", "group", group, "error", err)
	}

	return b.local.BroadcastExcept(ctx, group, data, exceptID)
}

// MemberCount returns the local member count of a group.
func (b *BridgedRegistry) MemberCount(group string) int {
	return b.local.MemberCount(group)
}

// startSubscriber starts the Redis subscription listener.
func (b *BridgedRegistry) startSubscriber() error {
	messages, err := b.client.Subscribe(b.ctx, b.channelName)
	if err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.subscriptionLoop(messages)
	}()

	return nil
}

// subscriptionLoop processes broadcast envelopes from Redis.
func (b *BridgedRegistry) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", "error", msg.Err)
				continue
			}

			b.handleRedisMessage(msg)
		}
	}
}

// handleRedisMessage re-broadcasts a remote envelope to local group members.
func (b *BridgedRegistry) handleRedisMessage(msg RedisMessage) {
	var envelope broadcastEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
		b.logger.Error("failed to unmarshal broadcast envelope", "error", err)
		return
	}

	// Skip broadcasts from self (already delivered locally).
	if envelope.InstanceID == b.instanceID {
		return
	}

	b.local.BroadcastExcept(b.ctx, envelope.Group, envelope.Data, envelope.ExceptID)
}

// Close stops the subscription loop and closes the local registry.
func (b *BridgedRegistry) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if err := b.local.Close(); err != nil {
		b.logger.Error("failed to close local registry", "error", err)
	}

	b.logger.Info("bridged registry closed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST ENVELOPE (for serialization)
// ══════════════════════════════════════════════════════════════════════════════

type broadcastEnvelope struct {
	InstanceID string    `json:"instance_id"`
	Group      string    `json:"group"`
	ExceptID   string    `json:"except_id,omitempty"`
	Data       []byte    `json:"data"`
	SentAt     time.Time `json:"sent_at"`
}

// generateInstanceID generates a unique instance identifier.
func generateInstanceID() string {
	return fmt.Sprintf("instance-%d", time.Now().UnixNano())
}
