package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// fakeSubscriber collects deliveries; accept=false simulates a full buffer.
type fakeSubscriber struct {
	id     string
	accept bool
	mu     sync.Mutex
	got    [][]byte
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id, accept: true}
}

func (s *fakeSubscriber) ID() string { return s.id }

func (s *fakeSubscriber) TrySend(data []byte) bool {
	if !s.accept {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, data)
	return true
}

func (s *fakeSubscriber) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestGroupRegistry_JoinBroadcastLeave(t *testing.T) {
	r := NewGroupRegistry(DefaultGroupRegistryConfig())
	defer r.Close()

	a := newFakeSubscriber("conn-a")
	b := newFakeSubscriber("conn-b")

	require.NoError(t, r.Join("discussion:d1", a))
	require.NoError(t, r.Join("discussion:d1", b))
	assert.Equal(t, 2, r.MemberCount("discussion:d1"))

	n := r.Broadcast(context.Background(), "discussion:d1", []byte(`{"type":"chat_message"}`))
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, a.received())
	assert.Equal(t, 1, b.received())

	r.Leave("discussion:d1", a.id)
	n = r.Broadcast(context.Background(), "discussion:d1", []byte(`{"type":"chat_message"}`))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, a.received())
	assert.Equal(t, 2, b.received())
}

func TestGroupRegistry_BroadcastToEmptyGroup(t *testing.T) {
	r := NewGroupRegistry(DefaultGroupRegistryConfig())
	defer r.Close()

	n := r.Broadcast(context.Background(), "live-lesson:none", []byte("x"))
	assert.Equal(t, 0, n)
}

func TestGroupRegistry_BroadcastExceptSkipsSender(t *testing.T) {
	r := NewGroupRegistry(DefaultGroupRegistryConfig())
	defer r.Close()

	sender := newFakeSubscriber("conn-sender")
	other := newFakeSubscriber("conn-other")
	require.NoError(t, r.Join("discussion:d1", sender))
	require.NoError(t, r.Join("discussion:d1", other))

	n := r.BroadcastExcept(context.Background(), "discussion:d1", []byte(`{"type":"typing"}`), sender.id)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, sender.received())
	assert.Equal(t, 1, other.received())
}

func TestGroupRegistry_FullBufferIsDroppedNotFatal(t *testing.T) {
	r := NewGroupRegistry(DefaultGroupRegistryConfig())
	defer r.Close()

	slow := newFakeSubscriber("conn-slow")
	slow.accept = false
	fast := newFakeSubscriber("conn-fast")
	require.NoError(t, r.Join("personal", slow))
	require.NoError(t, r.Join("personal", fast))

	n := r.Broadcast(context.Background(), "personal", []byte("x"))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, fast.received())
	assert.Equal(t, 0, slow.received())

	snap := r.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.DropsTotal)
	assert.Equal(t, int64(1), snap.DeliveriesTotal)
}

func TestGroupRegistry_RejoinIsIdempotent(t *testing.T) {
	r := NewGroupRegistry(DefaultGroupRegistryConfig())
	defer r.Close()

	a := newFakeSubscriber("conn-a")
	require.NoError(t, r.Join("live-lesson:l1", a))
	require.NoError(t, r.Join("live-lesson:l1", a))
	assert.Equal(t, 1, r.MemberCount("live-lesson:l1"))

	n := r.Broadcast(context.Background(), "live-lesson:l1", []byte("x"))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, a.received())
}

func TestGroupRegistry_LeaveUnknownIsNoOp(t *testing.T) {
	r := NewGroupRegistry(DefaultGroupRegistryConfig())
	defer r.Close()

	r.Leave("discussion:d1", "conn-ghost")

	a := newFakeSubscriber("conn-a")
	require.NoError(t, r.Join("discussion:d1", a))
	r.Leave("discussion:d1", "conn-ghost")
	assert.Equal(t, 1, r.MemberCount("discussion:d1"))
}

func TestGroupRegistry_EmptyGroupsAreCollected(t *testing.T) {
	r := NewGroupRegistry(DefaultGroupRegistryConfig())
	defer r.Close()

	a := newFakeSubscriber("conn-a")
	require.NoError(t, r.Join("discussion:d1", a))
	assert.Equal(t, 1, r.GroupCount())

	r.Leave("discussion:d1", a.id)
	assert.Equal(t, 0, r.GroupCount())
}

func TestGroupRegistry_ClosedRegistryRejectsJoins(t *testing.T) {
	r := NewGroupRegistry(DefaultGroupRegistryConfig())
	require.NoError(t, r.Close())

	err := r.Join("personal", newFakeSubscriber("conn-a"))
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.Equal(t, 0, r.Broadcast(context.Background(), "personal", []byte("x")))
}

func TestGroupRegistry_ConcurrentChurnAndBroadcast(t *testing.T) {
	r := NewGroupRegistry(GroupRegistryConfig{EnableMetrics: false})
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sub := newFakeSubscriber(string(rune('a' + n)))
			for j := 0; j < 100; j++ {
				_ = r.Join("live-lesson:l1", sub)
				r.Broadcast(context.Background(), "live-lesson:l1", []byte("x"))
				r.Leave("live-lesson:l1", sub.id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.MemberCount("live-lesson:l1"))
}

// ══════════════════════════════════════════════════════════════════════════════
// BRIDGE TESTS
// ══════════════════════════════════════════════════════════════════════════════

// fakeRedisClient is an in-process stand-in for Redis Pub/Sub.
type fakeRedisClient struct {
	mu        sync.Mutex
	published []string
	subs      []chan RedisMessage
}

func (c *fakeRedisClient) Publish(_ context.Context, channel string, message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload := message.(string)
	c.published = append(c.published, payload)
	for _, ch := range c.subs {
		ch <- RedisMessage{Channel: channel, Payload: payload}
	}
	return nil
}

func (c *fakeRedisClient) Subscribe(_ context.Context, _ ...string) (<-chan RedisMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan RedisMessage, 16)
	c.subs = append(c.subs, ch)
	return ch, nil
}

func (c *fakeRedisClient) Close() error { return nil }

func TestBridgedRegistry_RemoteBroadcastReachesLocalMembers(t *testing.T) {
	client := &fakeRedisClient{}

	localA := NewGroupRegistry(DefaultGroupRegistryConfig())
	bridgeA, err := NewBridgedRegistry(BridgedRegistryConfig{
		Client:     client,
		Local:      localA,
		InstanceID: "instance-a",
	})
	require.NoError(t, err)
	defer bridgeA.Close()

	localB := NewGroupRegistry(DefaultGroupRegistryConfig())
	bridgeB, err := NewBridgedRegistry(BridgedRegistryConfig{
		Client:     client,
		Local:      localB,
		InstanceID: "instance-b",
	})
	require.NoError(t, err)
	defer bridgeB.Close()

	subA := newFakeSubscriber("conn-a")
	subB := newFakeSubscriber("conn-b")
	require.NoError(t, bridgeA.Join("discussion:d1", subA))
	require.NoError(t, bridgeB.Join("discussion:d1", subB))

	n := bridgeA.Broadcast(context.Background(), "discussion:d1", []byte(`{"type":"chat_message"}`))
	assert.Equal(t, 1, n)

	// The remote instance picks the envelope up from the fake pub/sub.
	assert.Eventually(t, func() bool { return subB.received() == 1 }, waitFor, tick)
	// The origin instance filters its own envelope; local delivery already happened.
	assert.Equal(t, 1, subA.received())
}

func TestBridgedRegistry_ExceptIDTravelsInEnvelope(t *testing.T) {
	client := &fakeRedisClient{}

	local := NewGroupRegistry(DefaultGroupRegistryConfig())
	bridge, err := NewBridgedRegistry(BridgedRegistryConfig{
		Client:     client,
		Local:      local,
		InstanceID: "instance-a",
	})
	require.NoError(t, err)
	defer bridge.Close()

	sender := newFakeSubscriber("conn-sender")
	other := newFakeSubscriber("conn-other")
	require.NoError(t, bridge.Join("discussion:d1", sender))
	require.NoError(t, bridge.Join("discussion:d1", other))

	n := bridge.BroadcastExcept(context.Background(), "discussion:d1", []byte(`{"type":"typing"}`), sender.id)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, sender.received())
	assert.Equal(t, 1, other.received())
}
