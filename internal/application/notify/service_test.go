package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/domain/notification"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/email"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRepo struct {
	mu        sync.Mutex
	items     map[notification.NotificationID]*notification.Notification
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[notification.NotificationID]*notification.Notification)}
}

func (r *fakeRepo) Create(_ context.Context, n *notification.Notification) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *n
	r.items[n.ID] = &clone
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id notification.NotificationID) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (r *fakeRepo) ListUnread(_ context.Context, recipient identity.UserID, limit int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var unread []*notification.Notification
	for _, n := range r.items {
		if n.Recipient == recipient && !n.IsRead {
			clone := *n
			unread = append(unread, &clone)
		}
	}
	sort.Slice(unread, func(i, j int) bool {
		return unread[i].CreatedAt.After(unread[j].CreatedAt)
	})
	if limit > 0 && len(unread) > limit {
		unread = unread[:limit]
	}
	return unread, nil
}

func (r *fakeRepo) CountUnread(_ context.Context, recipient identity.UserID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.items {
		if n.Recipient == recipient && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) MarkRead(_ context.Context, id notification.NotificationID, recipient identity.UserID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.Recipient != recipient || !n.MarkRead(at) {
		return 0, nil
	}
	return 1, nil
}

func (r *fakeRepo) MarkAllRead(_ context.Context, recipient identity.UserID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.items {
		if n.Recipient == recipient && n.MarkRead(at) {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) MarkEmailSent(_ context.Context, id notification.NotificationID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.MarkEmailSent(at)
	return nil
}

func (r *fakeRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, n := range r.items {
		if n.IsExpired(now) {
			delete(r.items, id)
			count++
		}
	}
	return count, nil
}

type fakeRegistry struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{frames: make(map[string][][]byte)}
}

func (r *fakeRegistry) Join(string, messaging.Subscriber) error { return nil }
func (r *fakeRegistry) Leave(string, string)                    {}

func (r *fakeRegistry) record(group string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[group] = append(r.frames[group], append([]byte(nil), data...))
}

func (r *fakeRegistry) groupFrames(group string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames[group]))
	copy(out, r.frames[group])
	return out
}

func (r *fakeRegistry) Broadcast(_ context.Context, group string, data []byte) int {
	r.record(group, data)
	return 1
}

func (r *fakeRegistry) BroadcastExcept(_ context.Context, group string, data []byte, _ string) int {
	r.record(group, data)
	return 1
}

func (r *fakeRegistry) MemberCount(string) int { return 1 }
func (r *fakeRegistry) Close() error           { return nil }

type fakeSender struct {
	mu      sync.Mutex
	sent    []email.Message
	sendErr error
}

func (s *fakeSender) Send(_ context.Context, msg email.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) messages() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]email.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeDirectory struct {
	enrolled []identity.UserID
	listErr  error
	emailErr error
}

func (d *fakeDirectory) GetIdentity(_ context.Context, userID identity.UserID) (identity.Identity, error) {
	return identity.Identity{ID: userID, Name: "Student " + userID.String()}, nil
}

func (d *fakeDirectory) ListEnrolledActive(_ context.Context, _ string) ([]identity.UserID, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.enrolled, nil
}

func (d *fakeDirectory) GetEmail(_ context.Context, userID identity.UserID) (string, error) {
	if d.emailErr != nil {
		return "", d.emailErr
	}
	return userID.String() + "@lumena.dev", nil
}

type fixture struct {
	service  *Service
	repo     *fakeRepo
	registry *fakeRegistry
	sender   *fakeSender
	dir      *fakeDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newFakeRepo()
	registry := newFakeRegistry()
	sender := &fakeSender{}
	dir := &fakeDirectory{}

	svc, err := NewService(Config{
		Repository: repo,
		Registry:   registry,
		Directory:  dir,
		Sender:     sender,
	})
	require.NoError(t, err)

	return &fixture{service: svc, repo: repo, registry: registry, sender: sender, dir: dir}
}

const recipient = identity.UserID("user-1")

func createParams() CreateParams {
	return CreateParams{
		Recipient: recipient,
		Type:      notification.TypeLessonAvailable,
		Title:     "New lesson",
		Message:   "Lesson 4 is now available",
		Related:   notification.RelatedRefs{CourseID: "course-1", LessonID: "lesson-4"},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

func TestService_CreateStoresThenPushes(t *testing.T) {
	f := newFixture(t)

	n, err := f.service.Create(context.Background(), createParams())
	require.NoError(t, err)

	stored, err := f.repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)

	frames := f.registry.groupFrames(access.PersonalGroup(recipient))
	require.Len(t, frames, 1)

	var payload NotificationPayload
	require.NoError(t, json.Unmarshal(frames[0], &payload))
	assert.Equal(t, "notification", payload.Type)
	assert.Equal(t, n.ID.String(), payload.Notification.ID)
	assert.Equal(t, "lesson_available", payload.Notification.Type)
	assert.Equal(t, "course-1", payload.Notification.CourseID)
	assert.Equal(t, "lesson-4", payload.Notification.LessonID)
}

func TestService_PushNestsNotificationObject(t *testing.T) {
	f := newFixture(t)

	n, err := f.service.Create(context.Background(), createParams())
	require.NoError(t, err)

	frames := f.registry.groupFrames(access.PersonalGroup(recipient))
	require.Len(t, frames, 1)

	// The frame is an event wrapper: the notification rides inside its own
	// object, whose "type" is the notification kind, not the event name.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frames[0], &raw))
	require.Contains(t, raw, "notification")

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw["notification"], &body))
	assert.Equal(t, n.ID.String(), body["id"])
	assert.Equal(t, "lesson_available", body["type"])
	assert.Equal(t, "New lesson", body["title"])
	assert.NotEmpty(t, body["created_at"])
}

func TestService_CreateFailedWriteBroadcastsNothing(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = errors.New("connection refused")

	_, err := f.service.Create(context.Background(), createParams())

	require.Error(t, err)
	assert.Empty(t, f.registry.groupFrames(access.PersonalGroup(recipient)))
}

func TestService_CreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	params := createParams()
	params.Message = ""
	_, err := f.service.Create(context.Background(), params)
	assert.ErrorIs(t, err, notification.ErrEmptyMessage)

	params = createParams()
	params.Type = "carrier_pigeon"
	_, err = f.service.Create(context.Background(), params)
	assert.ErrorIs(t, err, notification.ErrInvalidType)
}

func TestService_CreateWithEmailCopy(t *testing.T) {
	f := newFixture(t)

	params := createParams()
	params.SendEmail = true
	n, err := f.service.Create(context.Background(), params)
	require.NoError(t, err)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "user-1@lumena.dev", sent[0].ToAddress)
	assert.Equal(t, "New lesson", sent[0].Subject)

	stored, err := f.repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailSent)
}

func TestService_EmailFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.sender.sendErr = errors.New("smtp unavailable")

	params := createParams()
	params.SendEmail = true
	n, err := f.service.Create(context.Background(), params)

	require.NoError(t, err)
	stored, err := f.repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailSent)
}

// ─────────────────────────────────────────────────────────────────────────────
// BulkNotify
// ─────────────────────────────────────────────────────────────────────────────

func TestService_BulkNotifyReachesEveryEnrolledStudent(t *testing.T) {
	f := newFixture(t)
	f.dir.enrolled = []identity.UserID{"user-1", "user-2", "user-3"}

	result, err := f.service.BulkNotify(context.Background(), "course-1", CreateParams{
		Type:    notification.TypeAnnouncement,
		Title:   "Exam moved",
		Message: "The exam moved to Friday",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Recipients)
	assert.Equal(t, 3, result.Stored)

	for _, uid := range f.dir.enrolled {
		frames := f.registry.groupFrames(access.PersonalGroup(uid))
		assert.Len(t, frames, 1, "user %s", uid)

		var payload NotificationPayload
		require.NoError(t, json.Unmarshal(frames[0], &payload))
		assert.Equal(t, "course-1", payload.Notification.CourseID)
	}
}

func TestService_BulkNotifyFailsWhenEnrollmentLookupFails(t *testing.T) {
	f := newFixture(t)
	f.dir.listErr = errors.New("db down")

	_, err := f.service.BulkNotify(context.Background(), "course-1", createParams())
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Backlog and read state
// ─────────────────────────────────────────────────────────────────────────────

func TestService_BacklogIsNewestFirstAndCapped(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < BacklogLimit+3; i++ {
		_, err := f.service.Create(context.Background(), createParams())
		require.NoError(t, err)
	}

	backlog, err := f.service.Backlog(context.Background(), recipient)
	require.NoError(t, err)
	assert.Len(t, backlog, BacklogLimit)

	for _, data := range backlog {
		var payload NotificationPayload
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, "notification", payload.Type)
	}
}

func TestService_BacklogSkipsReadNotifications(t *testing.T) {
	f := newFixture(t)

	n1, err := f.service.Create(context.Background(), createParams())
	require.NoError(t, err)
	_, err = f.service.Create(context.Background(), createParams())
	require.NoError(t, err)

	require.NoError(t, f.service.MarkRead(context.Background(), n1.ID, recipient))

	backlog, err := f.service.Backlog(context.Background(), recipient)
	require.NoError(t, err)
	assert.Len(t, backlog, 1)
}

func TestService_MarkReadPushesFreshCount(t *testing.T) {
	f := newFixture(t)

	n, err := f.service.Create(context.Background(), createParams())
	require.NoError(t, err)

	require.NoError(t, f.service.MarkRead(context.Background(), n.ID, recipient))

	frames := f.registry.groupFrames(access.PersonalGroup(recipient))
	var found bool
	for _, data := range frames {
		var payload UnreadCountPayload
		if json.Unmarshal(data, &payload) == nil && payload.Type == "unread_count" {
			found = true
			assert.Equal(t, 0, payload.Count)
		}
	}
	assert.True(t, found, "expected an unread_count push")
}

func TestService_MarkReadUnknownIDIsNoOp(t *testing.T) {
	f := newFixture(t)

	err := f.service.MarkRead(context.Background(), "missing", recipient)
	assert.NoError(t, err)
}

func TestService_MarkReadScopedToRecipient(t *testing.T) {
	f := newFixture(t)

	n, err := f.service.Create(context.Background(), createParams())
	require.NoError(t, err)

	// Another user cannot mark this row.
	require.NoError(t, f.service.MarkRead(context.Background(), n.ID, "intruder"))

	count, err := f.repo.CountUnread(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_MarkAllRead(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.service.Create(context.Background(), createParams())
		require.NoError(t, err)
	}

	count, err := f.service.MarkAllRead(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	unread, err := f.repo.CountUnread(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}
