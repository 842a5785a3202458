package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE CACHE
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrLessonIDEmpty is returned when the lesson ID is empty.
	ErrLessonIDEmpty = errors.New("presence: lesson ID cannot be empty")

	// ErrUserIDEmpty is returned when the user ID is empty.
	ErrUserIDEmpty = errors.New("presence: user ID cannot be empty")
)

// PresenceCache tracks who is currently in a live lesson. The authoritative
// attendance record lives in PostgreSQL; this roster is the fast read path for
// "who is here right now" and is shared by every gateway instance.
//
// Architecture:
//   - Each lesson has a set "presence:lesson:{lesson_id}" of user IDs
//   - The set carries a TTL refreshed on every join, bounding stale rosters
//     left behind by a crashed gateway
type PresenceCache struct {
	cache *Cache
}

// NewPresenceCache creates a new PresenceCache instance.
func NewPresenceCache(cache *Cache) *PresenceCache {
	return &PresenceCache{cache: cache}
}

// Add puts a user on the lesson roster.
func (p *PresenceCache) Add(ctx context.Context, lessonID, userID string) error {
	if lessonID == "" {
		return ErrLessonIDEmpty
	}
	if userID == "" {
		return ErrUserIDEmpty
	}

	key := PresenceKey(lessonID)

	pipe := p.cache.Client().Pipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, TTLPresence)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: failed to add to roster: %w", err)
	}

	return nil
}

// Remove takes a user off the lesson roster. Removing an absent user is a no-op.
func (p *PresenceCache) Remove(ctx context.Context, lessonID, userID string) error {
	if lessonID == "" {
		return ErrLessonIDEmpty
	}
	if userID == "" {
		return ErrUserIDEmpty
	}

	if err := p.cache.SRem(ctx, PresenceKey(lessonID), userID); err != nil {
		return fmt.Errorf("presence: failed to remove from roster: %w", err)
	}

	return nil
}

// Roster returns the user IDs currently on the lesson roster.
func (p *PresenceCache) Roster(ctx context.Context, lessonID string) ([]string, error) {
	if lessonID == "" {
		return nil, ErrLessonIDEmpty
	}

	members, err := p.cache.SMembers(ctx, PresenceKey(lessonID))
	if err != nil {
		return nil, fmt.Errorf("presence: failed to read roster: %w", err)
	}

	return members, nil
}

// Contains reports whether a user is on the lesson roster.
func (p *PresenceCache) Contains(ctx context.Context, lessonID, userID string) (bool, error) {
	if lessonID == "" {
		return false, ErrLessonIDEmpty
	}
	if userID == "" {
		return false, ErrUserIDEmpty
	}

	return p.cache.SIsMember(ctx, PresenceKey(lessonID), userID)
}

// Count returns the number of users on the lesson roster.
func (p *PresenceCache) Count(ctx context.Context, lessonID string) (int64, error) {
	if lessonID == "" {
		return 0, ErrLessonIDEmpty
	}

	return p.cache.SCard(ctx, PresenceKey(lessonID))
}

// Clear drops the entire roster of a lesson. Used when a lesson ends.
func (p *PresenceCache) Clear(ctx context.Context, lessonID string) error {
	if lessonID == "" {
		return ErrLessonIDEmpty
	}

	return p.cache.Delete(ctx, PresenceKey(lessonID))
}

// Refresh extends the roster TTL without membership changes.
func (p *PresenceCache) Refresh(ctx context.Context, lessonID string, ttl time.Duration) error {
	if lessonID == "" {
		return ErrLessonIDEmpty
	}
	if ttl <= 0 {
		ttl = TTLPresence
	}

	return p.cache.Expire(ctx, PresenceKey(lessonID), ttl)
}
