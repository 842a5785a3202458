package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lumena-hub/lumena-platform/internal/application/notify"
	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/notification"
)

// PersonalChannel serves the per-user notification stream. Opening the
// channel replays the unread backlog; live notifications arrive through the
// group the gateway joined on behalf of the session.
type PersonalChannel struct {
	notify *notify.Service
	logger *slog.Logger
}

// NewPersonalChannel creates the personal channel.
func NewPersonalChannel(svc *notify.Service, logger *slog.Logger) (*PersonalChannel, error) {
	if svc == nil {
		return nil, errors.New("realtime: notify service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PersonalChannel{notify: svc, logger: logger}, nil
}

// Kind returns the resource kind this channel serves.
func (c *PersonalChannel) Kind() access.ResourceKind {
	return access.KindPersonal
}

// OnOpen replays the unread backlog to the new connection. The backlog goes
// to this connection only; other devices of the same user already saw it.
func (c *PersonalChannel) OnOpen(ctx context.Context, sess *Session) error {
	backlog, err := c.notify.Backlog(ctx, sess.Identity.ID)
	if err != nil {
		return err
	}

	for _, payload := range backlog {
		if !sess.Send(payload) {
			c.logger.Debug("backlog frame dropped", "conn", sess.ConnID())
			break
		}
	}

	return nil
}

// OnMessage handles mark-read requests from the client.
func (c *PersonalChannel) OnMessage(ctx context.Context, sess *Session, env Envelope) error {
	switch env.Type {
	case "mark_read":
		if env.NotificationID == "" {
			return WithCode("bad_request", errors.New("notification_id is required"))
		}
		id := notification.NotificationID(env.NotificationID)
		if err := c.notify.MarkRead(ctx, id, sess.Identity.ID); err != nil {
			return WithCode("mark_read_failed", err)
		}
		return nil

	case "mark_all_read":
		if _, err := c.notify.MarkAllRead(ctx, sess.Identity.ID); err != nil {
			return WithCode("mark_read_failed", err)
		}
		return nil

	default:
		c.logger.Debug("personal: ignoring envelope", "conn", sess.ConnID(), "type", env.Type)
		return nil
	}
}

// OnClose is a no-op; the personal channel keeps no per-session state.
func (c *PersonalChannel) OnClose(ctx context.Context, sess *Session) {}
