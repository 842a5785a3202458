package postgres

import (
	"context"
	"fmt"

	"github.com/lumena-hub/lumena-platform/internal/domain/discussion"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPLY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ReplyRepository implements discussion.ReplyRepository for PostgreSQL.
type ReplyRepository struct {
	conn *Connection
}

// NewReplyRepository creates a new ReplyRepository.
func NewReplyRepository(conn *Connection) *ReplyRepository {
	return &ReplyRepository{conn: conn}
}

const replyColumns = `
	id, discussion_id, author_id, content, parent_id,
	is_solution, is_instructor_reply, upvotes, created_at, updated_at, edited_at
`

// Create persists a new reply.
func (r *ReplyRepository) Create(ctx context.Context, reply *discussion.Reply) error {
	query := `
		INSERT INTO replies (
			id, discussion_id, author_id, content, parent_id,
			is_solution, is_instructor_reply, upvotes, created_at, updated_at, edited_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		reply.ID.String(),
		reply.DiscussionID.String(),
		reply.Author.String(),
		reply.Content,
		nullIfEmpty(reply.ParentID.String()),
		reply.IsSolution,
		reply.IsInstructorReply,
		reply.Upvotes,
		reply.CreatedAt,
		reply.UpdatedAt,
		reply.EditedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return discussion.ErrParentNotFound
		}
		return fmt.Errorf("failed to create reply: %w", err)
	}

	return nil
}

// GetByID returns a reply by ID.
func (r *ReplyRepository) GetByID(ctx context.Context, id discussion.ReplyID) (*discussion.Reply, error) {
	query := `SELECT ` + replyColumns + ` FROM replies WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id.String())
	return r.scanReply(row)
}

// ListByDiscussion returns replies of a discussion in creation order.
func (r *ReplyRepository) ListByDiscussion(ctx context.Context, discussionID discussion.DiscussionID, limit int) ([]*discussion.Reply, error) {
	query := `
		SELECT ` + replyColumns + `
		FROM replies
		WHERE discussion_id = $1
		ORDER BY created_at ASC
	`
	args := []interface{}{discussionID.String()}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	defer rows.Close()

	var result []*discussion.Reply
	for rows.Next() {
		reply, err := r.scanReply(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, reply)
	}

	return result, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *ReplyRepository) scanReply(row pgx.Row) (*discussion.Reply, error) {
	var (
		reply        discussion.Reply
		id           string
		discussionID string
		author       string
		parentID     *string
	)

	err := row.Scan(
		&id,
		&discussionID,
		&author,
		&reply.Content,
		&parentID,
		&reply.IsSolution,
		&reply.IsInstructorReply,
		&reply.Upvotes,
		&reply.CreatedAt,
		&reply.UpdatedAt,
		&reply.EditedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, discussion.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan reply: %w", err)
	}

	reply.ID = discussion.ReplyID(id)
	reply.DiscussionID = discussion.DiscussionID(discussionID)
	reply.Author = identity.UserID(author)
	reply.ParentID = discussion.ReplyID(derefOrEmpty(parentID))

	return &reply, nil
}
