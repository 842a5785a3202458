package realtime

import (
	"context"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// Session is one authenticated connection bound to one resource. It is handed
// to the channel hooks; Send goes to this connection only, not the group.
type Session struct {
	conn     *Conn
	Identity identity.Identity
	Resource access.Resource
}

// ConnID returns the connection's unique identifier.
func (s *Session) ConnID() string {
	return s.conn.ID()
}

// Group returns the registry group this session is a member of.
func (s *Session) Group() string {
	return s.Resource.String()
}

// Send queues a frame to this connection only. Reports false when the
// outbound buffer is full or the connection is closed.
func (s *Session) Send(data []byte) bool {
	return s.conn.TrySend(data)
}

// Channel is one resource-kind's behavior behind the gateway. The gateway
// drives the lifecycle: OnOpen after the session joins its group, OnMessage
// per decoded envelope, OnClose exactly once during teardown.
type Channel interface {
	// Kind returns the resource kind this channel serves.
	Kind() access.ResourceKind

	// OnOpen runs after the session has joined its group. An error closes
	// the connection.
	OnOpen(ctx context.Context, sess *Session) error

	// OnMessage handles one client envelope. An error is reported to the
	// client as an error frame; it does not close the connection.
	OnMessage(ctx context.Context, sess *Session, env Envelope) error

	// OnClose runs exactly once when the session ends, after the session
	// has left its group.
	OnClose(ctx context.Context, sess *Session)
}
