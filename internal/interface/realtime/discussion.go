package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lumena-hub/lumena-platform/internal/application/chat"
	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/discussion"
)

// DiscussionChannel serves course discussion chat: posted replies and
// transient typing signals.
type DiscussionChannel struct {
	chat   *chat.Service
	logger *slog.Logger
}

// NewDiscussionChannel creates the discussion channel.
func NewDiscussionChannel(svc *chat.Service, logger *slog.Logger) (*DiscussionChannel, error) {
	if svc == nil {
		return nil, errors.New("realtime: chat service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscussionChannel{chat: svc, logger: logger}, nil
}

// Kind returns the resource kind this channel serves.
func (c *DiscussionChannel) Kind() access.ResourceKind {
	return access.KindDiscussion
}

// OnOpen announces the arrival to the discussion group.
func (c *DiscussionChannel) OnOpen(ctx context.Context, sess *Session) error {
	c.chat.AnnounceJoin(ctx, c.discussionID(sess), sess.Identity)
	return nil
}

// OnMessage handles reply posts and typing signals.
func (c *DiscussionChannel) OnMessage(ctx context.Context, sess *Session, env Envelope) error {
	switch env.Type {
	case "message":
		_, err := c.chat.PostReply(ctx, chat.PostReplyParams{
			DiscussionID: c.discussionID(sess),
			Author:       sess.Identity,
			Content:      env.Content,
			ParentID:     discussion.ReplyID(env.ParentID),
		})
		if err != nil {
			switch {
			case errors.Is(err, discussion.ErrEmptyContent):
				return WithCode("bad_request", err)
			case errors.Is(err, discussion.ErrParentNotFound),
				errors.Is(err, discussion.ErrParentMismatch):
				return WithCode("invalid_parent", err)
			default:
				return WithCode("post_failed", err)
			}
		}
		return nil

	case "typing":
		return c.chat.Typing(ctx, c.discussionID(sess), sess.Identity, sess.ConnID(), env.IsTyping)

	default:
		c.logger.Debug("discussion: ignoring envelope", "conn", sess.ConnID(), "type", env.Type)
		return nil
	}
}

// OnClose announces the departure to the discussion group.
func (c *DiscussionChannel) OnClose(ctx context.Context, sess *Session) {
	c.chat.AnnounceLeave(ctx, c.discussionID(sess), sess.Identity)
}

func (c *DiscussionChannel) discussionID(sess *Session) discussion.DiscussionID {
	return discussion.DiscussionID(sess.Resource.ID)
}
