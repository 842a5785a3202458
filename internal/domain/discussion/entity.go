// Package discussion contains the reply tree model for course forum
// discussions. The discussion itself (title, forum, pinning) is owned by the
// CRUD layer; the real-time subsystem only appends replies and relays them.
package discussion

import (
	"errors"
	"fmt"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// DiscussionID represents the unique identifier of a discussion thread.
type DiscussionID string

// IsValid checks that the ID is non-empty.
func (id DiscussionID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the ID.
func (id DiscussionID) String() string {
	return string(id)
}

// ReplyID represents the unique identifier of a reply.
type ReplyID string

// IsValid checks that the ID is non-empty.
func (id ReplyID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the ID.
func (id ReplyID) String() string {
	return string(id)
}

// ══════════════════════════════════════════════════════════════════════════════
// REPLY ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Reply is a single message in a discussion's reply tree.
type Reply struct {
	// ID is the unique identifier.
	ID ReplyID

	// DiscussionID is the discussion this reply belongs to.
	DiscussionID DiscussionID

	// Author is the user who wrote the reply.
	Author identity.UserID

	// Content is the reply body.
	Content string

	// ParentID is the reply this one answers, empty for top-level replies.
	// A parent must belong to the same discussion as the reply itself.
	ParentID ReplyID

	// IsSolution marks the reply accepted as the discussion's solution.
	IsSolution bool

	// IsInstructorReply marks replies authored by instructor-level users.
	IsInstructorReply bool

	// Upvotes is the reply's upvote count.
	Upvotes int

	// CreatedAt is the creation time.
	CreatedAt time.Time

	// UpdatedAt is the last modification time.
	UpdatedAt time.Time

	// EditedAt is when the author last edited the content (nil if never).
	EditedAt *time.Time
}

// NewReplyParams contains the parameters for creating a reply.
type NewReplyParams struct {
	ID           ReplyID
	DiscussionID DiscussionID
	Author       identity.Identity
	Content      string
	ParentID     ReplyID
}

// NewReply creates a validated reply. The instructor tag is derived from the
// author's role, matching how the forum displays replies.
func NewReply(params NewReplyParams) (*Reply, error) {
	if !params.ID.IsValid() {
		return nil, ErrInvalidReplyID
	}
	if !params.DiscussionID.IsValid() {
		return nil, ErrInvalidDiscussionID
	}
	if !params.Author.IsValid() {
		return nil, ErrInvalidAuthor
	}
	if params.Content == "" {
		return nil, ErrEmptyContent
	}

	now := time.Now().UTC()

	return &Reply{
		ID:                params.ID,
		DiscussionID:      params.DiscussionID,
		Author:            params.Author.ID,
		Content:           params.Content,
		ParentID:          params.ParentID,
		IsInstructorReply: params.Author.IsInstructorLevel(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ValidateParent checks that a candidate parent reply may anchor this reply:
// it must exist in the same discussion. Cross-discussion parents are rejected
// so the reply tree stays acyclic and thread-local.
func (r *Reply) ValidateParent(parent *Reply) error {
	if parent == nil {
		return ErrParentNotFound
	}
	if parent.DiscussionID != r.DiscussionID {
		return fmt.Errorf("%w: parent %s is in discussion %s, reply targets %s",
			ErrParentMismatch, parent.ID, parent.DiscussionID, r.DiscussionID)
	}
	return nil
}

// String returns a compact representation for logging.
func (r *Reply) String() string {
	return fmt.Sprintf("Reply{ID: %s, Discussion: %s, Author: %s, Instructor: %t}",
		r.ID, r.DiscussionID, r.Author, r.IsInstructorReply)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidReplyID - the reply ID is empty.
	ErrInvalidReplyID = errors.New("invalid reply id: cannot be empty")

	// ErrInvalidDiscussionID - the discussion ID is empty.
	ErrInvalidDiscussionID = errors.New("invalid discussion id: cannot be empty")

	// ErrInvalidAuthor - the author identity is empty.
	ErrInvalidAuthor = errors.New("invalid author: identity required")

	// ErrEmptyContent - the reply body is empty.
	ErrEmptyContent = errors.New("reply content cannot be empty")

	// ErrParentNotFound - the referenced parent reply does not exist.
	ErrParentNotFound = errors.New("parent reply not found")

	// ErrParentMismatch - the parent reply belongs to another discussion.
	ErrParentMismatch = errors.New("parent reply belongs to another discussion")

	// ErrNotFound - the reply does not exist.
	ErrNotFound = errors.New("reply not found")
)
