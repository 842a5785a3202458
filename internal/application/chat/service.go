// Package chat implements the discussion relay: replies are persisted and
// broadcast to the discussion group; typing signals are relayed without
// persistence and never echoed back to the sender.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/discussion"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE PAYLOADS
// ══════════════════════════════════════════════════════════════════════════════

// AuthorPayload is the author block embedded in chat payloads.
type AuthorPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role"`
}

// MessagePayload is the frame broadcast for a posted reply: the event type
// wraps the message object.
type MessagePayload struct {
	Type    string      `json:"type"`
	Message MessageBody `json:"message"`
}

// MessageBody is the message object inside a chat_message frame.
type MessageBody struct {
	ID           string        `json:"id"`
	DiscussionID string        `json:"discussion_id"`
	Content      string        `json:"content"`
	Author       AuthorPayload `json:"author"`
	ParentID     string        `json:"parent_id,omitempty"`
	IsInstructor bool          `json:"is_instructor"`
	CreatedAt    string        `json:"created_at"`
}

// TypingPayload is the transient user_typing signal. Only the sender's ID
// travels; clients already hold the member list.
type TypingPayload struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// JoinPayload announces a user joining the chat with their display block.
type JoinPayload struct {
	Type string        `json:"type"`
	User AuthorPayload `json:"user"`
}

// LeavePayload announces a user leaving. Departures carry only the ID.
type LeavePayload struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

func authorPayload(id identity.Identity) AuthorPayload {
	return AuthorPayload{
		ID:     id.ID.String(),
		Name:   id.Name,
		Avatar: id.AvatarURL,
		Role:   id.Role.Display(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service coordinates reply persistence and chat relay.
type Service struct {
	replies  discussion.ReplyRepository
	registry messaging.Registry
	logger   *slog.Logger
}

// Config contains the dependencies for Service.
type Config struct {
	Replies  discussion.ReplyRepository
	Registry messaging.Registry
	Logger   *slog.Logger
}

// NewService creates a chat service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Replies == nil {
		return nil, errors.New("chat: reply repository is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("chat: registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		replies:  cfg.Replies,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}, nil
}

// PostReplyParams contains the data for posting a reply.
type PostReplyParams struct {
	DiscussionID discussion.DiscussionID
	Author       identity.Identity
	Content      string
	ParentID     discussion.ReplyID
}

// PostReply persists a reply and broadcasts it to the discussion group,
// including the sender's own connection so every client renders the same
// stream. The write is the commit point; a failed broadcast only logs.
func (s *Service) PostReply(ctx context.Context, params PostReplyParams) (*discussion.Reply, error) {
	reply, err := discussion.NewReply(discussion.NewReplyParams{
		ID:           discussion.ReplyID(uuid.NewString()),
		DiscussionID: params.DiscussionID,
		Author:       params.Author,
		Content:      params.Content,
		ParentID:     params.ParentID,
	})
	if err != nil {
		return nil, err
	}

	if params.ParentID != "" {
		parent, err := s.replies.GetByID(ctx, params.ParentID)
		if err != nil {
			if errors.Is(err, discussion.ErrNotFound) {
				return nil, discussion.ErrParentNotFound
			}
			return nil, fmt.Errorf("chat: load parent reply: %w", err)
		}
		if err := reply.ValidateParent(parent); err != nil {
			return nil, err
		}
	}

	if err := s.replies.Create(ctx, reply); err != nil {
		return nil, fmt.Errorf("chat: store reply: %w", err)
	}

	data, err := json.Marshal(MessagePayload{
		Type: "chat_message",
		Message: MessageBody{
			ID:           reply.ID.String(),
			DiscussionID: reply.DiscussionID.String(),
			Content:      reply.Content,
			Author:       authorPayload(params.Author),
			ParentID:     reply.ParentID.String(),
			IsInstructor: reply.IsInstructorReply,
			CreatedAt:    reply.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		s.logger.Error("post reply: encode failed", "reply", reply.ID, "error", err)
		return reply, nil
	}

	group := access.Discussion(params.DiscussionID.String()).String()
	delivered := s.registry.Broadcast(ctx, group, data)
	s.logger.Debug("reply broadcast", "reply", reply.ID, "group", group, "delivered", delivered)

	return reply, nil
}

// Typing relays a typing signal to everyone in the discussion except the
// sender. Nothing is persisted.
func (s *Service) Typing(ctx context.Context, discussionID discussion.DiscussionID, sender identity.Identity, senderConnID string, isTyping bool) error {
	data, err := json.Marshal(TypingPayload{
		Type:     "user_typing",
		UserID:   sender.ID.String(),
		IsTyping: isTyping,
	})
	if err != nil {
		return fmt.Errorf("chat: encode typing: %w", err)
	}

	group := access.Discussion(discussionID.String()).String()
	s.registry.BroadcastExcept(ctx, group, data, senderConnID)
	return nil
}

// AnnounceJoin broadcasts a user_join event to the discussion group.
func (s *Service) AnnounceJoin(ctx context.Context, discussionID discussion.DiscussionID, user identity.Identity) {
	data, err := json.Marshal(JoinPayload{
		Type: "user_join",
		User: authorPayload(user),
	})
	if err != nil {
		return
	}

	s.registry.Broadcast(ctx, access.Discussion(discussionID.String()).String(), data)
}

// AnnounceLeave broadcasts a user_leave event to the discussion group.
func (s *Service) AnnounceLeave(ctx context.Context, discussionID discussion.DiscussionID, user identity.Identity) {
	data, err := json.Marshal(LeavePayload{
		Type:   "user_leave",
		UserID: user.ID.String(),
	})
	if err != nil {
		return
	}

	s.registry.Broadcast(ctx, access.Discussion(discussionID.String()).String(), data)
}

// History returns the recent replies of a discussion in creation order.
func (s *Service) History(ctx context.Context, discussionID discussion.DiscussionID, limit int) ([]*discussion.Reply, error) {
	return s.replies.ListByDiscussion(ctx, discussionID, limit)
}
