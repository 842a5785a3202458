package postgres

import (
	"context"
	"fmt"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// DirectoryRepository implements access.Directory for PostgreSQL. It also
// serves identity and enrollment lookups for the application services.
type DirectoryRepository struct {
	conn *Connection
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(conn *Connection) *DirectoryRepository {
	return &DirectoryRepository{conn: conn}
}

// CourseOfDiscussion resolves the course a discussion belongs to.
func (r *DirectoryRepository) CourseOfDiscussion(ctx context.Context, discussionID string) (string, error) {
	query := `SELECT course_id FROM discussions WHERE id = $1`

	var courseID string
	err := r.conn.QueryRow(ctx, query, discussionID).Scan(&courseID)
	if err != nil {
		if IsNoRows(err) {
			return "", access.ErrResourceUnknown
		}
		return "", fmt.Errorf("failed to resolve discussion course: %w", err)
	}

	return courseID, nil
}

// CourseOfLesson resolves the course a live lesson belongs to.
func (r *DirectoryRepository) CourseOfLesson(ctx context.Context, lessonID string) (string, error) {
	query := `SELECT course_id FROM live_lessons WHERE id = $1`

	var courseID string
	err := r.conn.QueryRow(ctx, query, lessonID).Scan(&courseID)
	if err != nil {
		if IsNoRows(err) {
			return "", access.ErrResourceUnknown
		}
		return "", fmt.Errorf("failed to resolve lesson course: %w", err)
	}

	return courseID, nil
}

// IsEnrolledActive reports whether the user has an active enrollment in the course.
func (r *DirectoryRepository) IsEnrolledActive(ctx context.Context, userID identity.UserID, courseID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM enrollments
			WHERE user_id = $1 AND course_id = $2 AND status = 'active'
		)
	`

	var enrolled bool
	err := r.conn.QueryRow(ctx, query, userID.String(), courseID).Scan(&enrolled)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}

	return enrolled, nil
}

// IsInstructor reports whether the user is the course instructor or a co-instructor.
func (r *DirectoryRepository) IsInstructor(ctx context.Context, userID identity.UserID, courseID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM courses WHERE id = $2 AND instructor_id = $1
			UNION
			SELECT 1 FROM course_instructors WHERE course_id = $2 AND user_id = $1
		)
	`

	var instructor bool
	err := r.conn.QueryRow(ctx, query, userID.String(), courseID).Scan(&instructor)
	if err != nil {
		return false, fmt.Errorf("failed to check instructor: %w", err)
	}

	return instructor, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Identity and enrollment lookups
// ─────────────────────────────────────────────────────────────────────────────

// GetIdentity returns the identity of a user.
func (r *DirectoryRepository) GetIdentity(ctx context.Context, userID identity.UserID) (identity.Identity, error) {
	query := `SELECT id, display_name, avatar_url, role, is_staff FROM users WHERE id = $1`

	var (
		id   identity.Identity
		uid  string
		role string
	)
	err := r.conn.QueryRow(ctx, query, userID.String()).Scan(&uid, &id.Name, &id.AvatarURL, &role, &id.IsStaff)
	if err != nil {
		if IsNoRows(err) {
			return identity.Identity{}, identity.ErrUserNotFound
		}
		return identity.Identity{}, fmt.Errorf("failed to get identity: %w", err)
	}

	id.ID = identity.UserID(uid)
	id.Role = identity.Role(role)

	return id, nil
}

// ListEnrolledActive returns the user IDs of every active enrollment in a
// course. Backs bulk notification fan-out.
func (r *DirectoryRepository) ListEnrolledActive(ctx context.Context, courseID string) ([]identity.UserID, error) {
	query := `SELECT user_id FROM enrollments WHERE course_id = $1 AND status = 'active'`

	rows, err := r.conn.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active enrollments: %w", err)
	}
	defer rows.Close()

	var result []identity.UserID
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		result = append(result, identity.UserID(uid))
	}

	return result, rows.Err()
}

// GetEmail returns the email address of a user. Backs the email channel.
func (r *DirectoryRepository) GetEmail(ctx context.Context, userID identity.UserID) (string, error) {
	query := `SELECT email FROM users WHERE id = $1`

	var email string
	err := r.conn.QueryRow(ctx, query, userID.String()).Scan(&email)
	if err != nil {
		if IsNoRows(err) {
			return "", identity.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to get email: %w", err)
	}

	return email, nil
}
