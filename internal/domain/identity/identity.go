// Package identity contains the resolved-user model the real-time layer works
// with. Session establishment and credential checks live outside this system;
// an Identity arrives at the gateway already resolved.
package identity

import (
	"errors"
	"strings"
)

// ErrUserNotFound - the user does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserID represents the unique identifier of a platform user.
type UserID string

// IsValid reports whether the ID is non-empty.
func (id UserID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the ID.
func (id UserID) String() string {
	return string(id)
}

// Role defines the platform role of a user.
type Role string

const (
	// RoleStudent is a regular learner.
	RoleStudent Role = "student"

	// RoleTeacher is a course instructor.
	RoleTeacher Role = "teacher"

	// RoleModerator moderates forums and discussions.
	RoleModerator Role = "moderator"

	// RoleManager manages courses and cohorts.
	RoleManager Role = "manager"

	// RoleAdmin is a platform administrator.
	RoleAdmin Role = "admin"
)

// IsValid checks that the role is one of the known values.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleModerator, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsInstructorLevel reports whether replies authored by this role are tagged
// as instructor replies in discussions.
func (r Role) IsInstructorLevel() bool {
	switch r {
	case RoleTeacher, RoleModerator, RoleManager:
		return true
	default:
		return false
	}
}

// Display returns a human-readable role name for broadcast payloads.
func (r Role) Display() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Identity is a resolved platform user as seen by the real-time layer.
type Identity struct {
	// ID is the user's unique identifier.
	ID UserID

	// Name is the user's display name.
	Name string

	// AvatarURL is the user's avatar, empty when none is set.
	AvatarURL string

	// Role is the user's platform role.
	Role Role

	// IsStaff marks platform staff, who pass every access check.
	IsStaff bool
}

// IsValid reports whether the identity carries a usable user ID.
func (i Identity) IsValid() bool {
	return i.ID.IsValid()
}

// IsInstructorLevel reports whether the identity posts instructor replies.
// Staff always count as instructor level.
func (i Identity) IsInstructorLevel() bool {
	return i.IsStaff || i.Role.IsInstructorLevel()
}
