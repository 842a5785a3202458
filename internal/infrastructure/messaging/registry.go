// Package messaging implements the group registry, the pub/sub substrate of
// the real-time layer. A group is a named, dynamic set of live connections;
// delivery is at-most-once and best-effort, because every durable record is
// committed before a broadcast is attempted.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIBER CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// Subscriber is one live connection's receiving end. TrySend must never
// block: implementations push into a bounded outbound buffer and report false
// when the buffer is full or the connection is closed. A false return is a
// dropped delivery, not an error.
type Subscriber interface {
	// ID returns the connection's unique identifier.
	ID() string

	// TrySend attempts a non-blocking delivery of one serialized envelope.
	TrySend(data []byte) bool
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// Registry is the pub/sub contract every real-time component works against.
// Membership is owned exclusively by the registry; no component mutates the
// member sets directly.
type Registry interface {
	// Join adds a subscriber to a group, creating the group on first join.
	Join(group string, sub Subscriber) error

	// Leave removes a subscriber from a group. Empty groups are collected
	// implicitly. Leaving a group the subscriber is not in is a no-op.
	Leave(group, subID string)

	// Broadcast delivers data to every member of the group at the instant
	// of the call. Returns the number of successful delivery attempts.
	Broadcast(ctx context.Context, group string, data []byte) int

	// BroadcastExcept behaves like Broadcast but skips one subscriber,
	// used for typing relays that must not echo back to the sender.
	BroadcastExcept(ctx context.Context, group string, data []byte, exceptID string) int

	// MemberCount returns the current size of a group.
	MemberCount(group string) int

	// Close shuts the registry down; subsequent joins fail.
	Close() error
}

// ErrRegistryClosed is returned when operations are attempted on a closed registry.
var ErrRegistryClosed = errors.New("group registry is closed")

// ErrNilSubscriber is returned when a nil subscriber is joined.
var ErrNilSubscriber = errors.New("subscriber cannot be nil")

// ══════════════════════════════════════════════════════════════════════════════
// GROUP REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// GroupRegistry is the in-memory Registry implementation. It is safe for
// concurrent use by many connections; a broadcast snapshots the member set
// under a read lock and delivers outside of it, so joins and leaves racing a
// broadcast may or may not be included.
type GroupRegistry struct {
	mu      sync.RWMutex
	groups  map[string]map[string]Subscriber
	logger  *slog.Logger
	metrics *RegistryMetrics
	closed  bool
}

// GroupRegistryConfig contains configuration for GroupRegistry.
type GroupRegistryConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// EnableMetrics enables metrics collection.
	EnableMetrics bool
}

// DefaultGroupRegistryConfig returns sensible defaults.
func DefaultGroupRegistryConfig() GroupRegistryConfig {
	return GroupRegistryConfig{
		EnableMetrics: true,
	}
}

// NewGroupRegistry creates a new in-memory group registry.
func NewGroupRegistry(config GroupRegistryConfig) *GroupRegistry {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	r := &GroupRegistry{
		groups: make(map[string]map[string]Subscriber),
		logger: config.Logger,
	}

	if config.EnableMetrics {
		r.metrics = NewRegistryMetrics()
	}

	return r
}

// Join adds a subscriber to a group, creating the group on first join.
func (r *GroupRegistry) Join(group string, sub Subscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]Subscriber)
		r.groups[group] = members
	}
	members[sub.ID()] = sub

	r.logger.Debug("subscriber joined group", "group", group, "subscriber", sub.ID(), "size", len(members))
	return nil
}

// Leave removes a subscriber from a group and collects the group when empty.
func (r *GroupRegistry) Leave(group, subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return
	}
	if _, ok := members[subID]; !ok {
		return
	}

	delete(members, subID)
	if len(members) == 0 {
		delete(r.groups, group)
	}

	r.logger.Debug("subscriber left group", "group", group, "subscriber", subID, "size", len(members))
}

// Broadcast delivers data to every current member of the group.
func (r *GroupRegistry) Broadcast(ctx context.Context, group string, data []byte) int {
	return r.BroadcastExcept(ctx, group, data, "")
}

// BroadcastExcept delivers data to every current member except one.
func (r *GroupRegistry) BroadcastExcept(_ context.Context, group string, data []byte, exceptID string) int {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return 0
	}

	members := r.groups[group]
	targets := make([]Subscriber, 0, len(members))
	for id, sub := range members {
		if exceptID != "" && id == exceptID {
			continue
		}
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.RecordBroadcast(group)
	}

	delivered := 0
	for _, sub := range targets {
		if sub.TrySend(data) {
			delivered++
			continue
		}
		// Full or closed outbound buffer. The bus has no queueing or
		// retry; the durable record was written before we got here.
		if r.metrics != nil {
			r.metrics.RecordDrop(group)
		}
		r.logger.Warn("broadcast delivery dropped", "group", group, "subscriber", sub.ID())
	}

	if r.metrics != nil {
		r.metrics.RecordDeliveries(delivered)
	}

	return delivered
}

// MemberCount returns the current size of a group.
func (r *GroupRegistry) MemberCount(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// GroupCount returns the number of live groups.
func (r *GroupRegistry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Close shuts the registry down and drops all membership.
func (r *GroupRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.groups = make(map[string]map[string]Subscriber)

	r.logger.Info("group registry closed")
	return nil
}

// Metrics returns the current metrics (nil when disabled).
func (r *GroupRegistry) Metrics() *RegistryMetrics {
	return r.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// RegistryMetrics tracks broadcast and delivery counters.
type RegistryMetrics struct {
	mu sync.RWMutex

	BroadcastsTotal   int64
	DeliveriesTotal   int64
	DropsTotal        int64
	BroadcastsByGroup map[string]int64
	DropsByGroup      map[string]int64
	LastReset         time.Time
}

// NewRegistryMetrics creates a new metrics tracker.
func NewRegistryMetrics() *RegistryMetrics {
	return &RegistryMetrics{
		BroadcastsByGroup: make(map[string]int64),
		DropsByGroup:      make(map[string]int64),
		LastReset:         time.Now(),
	}
}

// RecordBroadcast records one broadcast call.
func (m *RegistryMetrics) RecordBroadcast(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BroadcastsTotal++
	m.BroadcastsByGroup[group]++
}

// RecordDeliveries records successful delivery attempts.
func (m *RegistryMetrics) RecordDeliveries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeliveriesTotal += int64(n)
}

// RecordDrop records one dropped delivery.
func (m *RegistryMetrics) RecordDrop(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DropsTotal++
	m.DropsByGroup[group]++
}

// Snapshot returns a point-in-time copy of the counters.
func (m *RegistryMetrics) Snapshot() RegistryMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return RegistryMetricsSnapshot{
		BroadcastsTotal: m.BroadcastsTotal,
		DeliveriesTotal: m.DeliveriesTotal,
		DropsTotal:      m.DropsTotal,
		LastReset:       m.LastReset,
	}
}

// RegistryMetricsSnapshot is a point-in-time snapshot of registry metrics.
type RegistryMetricsSnapshot struct {
	BroadcastsTotal int64
	DeliveriesTotal int64
	DropsTotal      int64
	LastReset       time.Time
}
