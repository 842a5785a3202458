// Package access implements the access control gate for real-time channels.
// The gate is a pure decision over membership facts supplied by a Directory;
// it holds no state of its own and never touches group membership.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESOURCES
// ══════════════════════════════════════════════════════════════════════════════

// ResourceKind classifies the channel a connection asks for.
type ResourceKind string

const (
	// KindPersonal is the caller's own notification channel.
	KindPersonal ResourceKind = "personal"

	// KindDiscussion is a per-discussion chat channel.
	KindDiscussion ResourceKind = "discussion"

	// KindLiveLesson is a per-live-lesson presence/Q&A channel.
	KindLiveLesson ResourceKind = "live-lesson"
)

// IsValid checks that the kind is one of the known values.
func (k ResourceKind) IsValid() bool {
	switch k {
	case KindPersonal, KindDiscussion, KindLiveLesson:
		return true
	default:
		return false
	}
}

// Resource identifies what a connection wants to join. ID carries the owner's
// user ID for personal channels and the discussion or lesson ID otherwise.
type Resource struct {
	Kind ResourceKind
	ID   string
}

// Personal returns the personal resource of a user.
func Personal(userID identity.UserID) Resource {
	return Resource{Kind: KindPersonal, ID: userID.String()}
}

// PersonalGroup returns the group name of a user's personal channel.
func PersonalGroup(userID identity.UserID) string {
	return Personal(userID).String()
}

// Discussion returns the resource for a discussion channel.
func Discussion(id string) Resource {
	return Resource{Kind: KindDiscussion, ID: id}
}

// LiveLesson returns the resource for a live-lesson channel.
func LiveLesson(id string) Resource {
	return Resource{Kind: KindLiveLesson, ID: id}
}

// String returns the canonical resource name, which doubles as the group name
// the registry uses for it.
func (r Resource) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// Directory supplies the membership facts the gate decides over. Implemented
// by the persistence layer; lookups go to the relational store.
type Directory interface {
	// CourseOfDiscussion resolves the course a discussion belongs to.
	// Returns ErrResourceUnknown when the discussion does not exist.
	CourseOfDiscussion(ctx context.Context, discussionID string) (string, error)

	// CourseOfLesson resolves the course a live lesson belongs to.
	// Returns ErrResourceUnknown when the lesson does not exist.
	CourseOfLesson(ctx context.Context, lessonID string) (string, error)

	// IsEnrolledActive reports whether the user has an active enrollment
	// in the course.
	IsEnrolledActive(ctx context.Context, userID identity.UserID, courseID string) (bool, error)

	// IsInstructor reports whether the user is the course instructor or a
	// co-instructor.
	IsInstructor(ctx context.Context, userID identity.UserID, courseID string) (bool, error)
}

// ErrResourceUnknown is returned by Directory lookups for resources that do
// not exist. The gate maps it to a plain denial so probing connections learn
// nothing about which IDs are real.
var ErrResourceUnknown = errors.New("resource unknown")

// ══════════════════════════════════════════════════════════════════════════════
// GATE
// ══════════════════════════════════════════════════════════════════════════════

// Gate decides whether an identity may join a resource's group.
type Gate struct {
	dir Directory
}

// NewGate creates a gate over the given directory.
func NewGate(dir Directory) *Gate {
	return &Gate{dir: dir}
}

// Allowed reports whether the identity may join the resource.
//
// A personal channel is allowed only to its owner. Discussion and live-lesson
// channels require an active
// enrollment in the owning course, instructor status on it, or staff.
// A denial never carries a reason; a non-nil error means the facts could not
// be read and the caller must treat the check as failed, not as denied.
func (g *Gate) Allowed(ctx context.Context, id identity.Identity, res Resource) (bool, error) {
	if !id.IsValid() {
		return false, nil
	}

	switch res.Kind {
	case KindPersonal:
		// Only the owner may join their personal channel.
		return res.ID == id.ID.String(), nil

	case KindDiscussion:
		courseID, err := g.dir.CourseOfDiscussion(ctx, res.ID)
		if err != nil {
			if errors.Is(err, ErrResourceUnknown) {
				return false, nil
			}
			return false, fmt.Errorf("access: resolve discussion %s: %w", res.ID, err)
		}
		return g.courseAccess(ctx, id, courseID)

	case KindLiveLesson:
		courseID, err := g.dir.CourseOfLesson(ctx, res.ID)
		if err != nil {
			if errors.Is(err, ErrResourceUnknown) {
				return false, nil
			}
			return false, fmt.Errorf("access: resolve lesson %s: %w", res.ID, err)
		}
		return g.courseAccess(ctx, id, courseID)

	default:
		return false, fmt.Errorf("access: unknown resource kind %q", res.Kind)
	}
}

// courseAccess applies the shared course-scoped rule: staff, instructor, or
// active enrollment.
func (g *Gate) courseAccess(ctx context.Context, id identity.Identity, courseID string) (bool, error) {
	if id.IsStaff {
		return true, nil
	}

	instructor, err := g.dir.IsInstructor(ctx, id.ID, courseID)
	if err != nil {
		return false, fmt.Errorf("access: instructor lookup: %w", err)
	}
	if instructor {
		return true, nil
	}

	enrolled, err := g.dir.IsEnrolledActive(ctx, id.ID, courseID)
	if err != nil {
		return false, fmt.Errorf("access: enrollment lookup: %w", err)
	}
	return enrolled, nil
}
