package discussion

import "context"

// ReplyRepository defines the interface for reply persistence.
// Implemented by the infrastructure layer.
type ReplyRepository interface {
	// Create persists a new reply.
	Create(ctx context.Context, r *Reply) error

	// GetByID returns a reply by ID.
	GetByID(ctx context.Context, id ReplyID) (*Reply, error)

	// ListByDiscussion returns replies of a discussion in creation order,
	// up to limit rows (0 = no limit).
	ListByDiscussion(ctx context.Context, discussionID DiscussionID, limit int) ([]*Reply, error)
}
