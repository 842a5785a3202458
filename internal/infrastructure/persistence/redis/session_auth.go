package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION AUTHENTICATOR
// ══════════════════════════════════════════════════════════════════════════════

// ErrSessionNotFound is returned when a token resolves to no session.
var ErrSessionNotFound = errors.New("session: not found or expired")

// sessionRecord is the stored shape of a session. Sessions are written by the
// platform's auth service; the real-time layer only reads them.
type sessionRecord struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role"`
	IsStaff   bool   `json:"is_staff,omitempty"`
}

// SessionAuthenticator resolves connection tokens against the shared session
// store. A missing or expired key means the credential is invalid.
type SessionAuthenticator struct {
	cache *Cache
}

// NewSessionAuthenticator creates a session authenticator over the cache.
func NewSessionAuthenticator(cache *Cache) *SessionAuthenticator {
	return &SessionAuthenticator{cache: cache}
}

// Authenticate resolves a token to the identity it was issued for.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, ErrSessionNotFound
	}

	var record sessionRecord
	if err := a.cache.Get(ctx, SessionKey(token), &record); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return identity.Identity{}, ErrSessionNotFound
		}
		return identity.Identity{}, fmt.Errorf("session: lookup: %w", err)
	}

	id := identity.Identity{
		ID:        identity.UserID(record.UserID),
		Name:      record.Name,
		AvatarURL: record.AvatarURL,
		Role:      identity.Role(record.Role),
		IsStaff:   record.IsStaff,
	}
	if !id.IsValid() {
		return identity.Identity{}, ErrSessionNotFound
	}

	return id, nil
}

// StoreSession writes a session record. The auth service owns issuance in
// production; this is used by integration setups and local development.
func (a *SessionAuthenticator) StoreSession(ctx context.Context, token string, id identity.Identity, ttl time.Duration) error {
	if token == "" {
		return errors.New("session: token cannot be empty")
	}
	if !id.IsValid() {
		return errors.New("session: identity must carry a user ID")
	}

	record := sessionRecord{
		UserID:    id.ID.String(),
		Name:      id.Name,
		AvatarURL: id.AvatarURL,
		Role:      id.Role.String(),
		IsStaff:   id.IsStaff,
	}

	return a.cache.Set(ctx, SessionKey(token), record, ttl)
}

// SessionKey builds the cache key of a session token.
func SessionKey(token string) string {
	return "session:" + token
}
