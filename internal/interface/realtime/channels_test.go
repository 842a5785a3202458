package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumena-hub/lumena-platform/internal/application/chat"
	"github.com/lumena-hub/lumena-platform/internal/application/notify"
	"github.com/lumena-hub/lumena-platform/internal/application/presence"
	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/attendance"
	"github.com/lumena-hub/lumena-platform/internal/domain/discussion"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/domain/notification"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory repositories
// ─────────────────────────────────────────────────────────────────────────────

type memNotificationRepo struct {
	mu    sync.Mutex
	items map[notification.NotificationID]*notification.Notification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{items: make(map[notification.NotificationID]*notification.Notification)}
}

func (r *memNotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *n
	r.items[n.ID] = &clone
	return nil
}

func (r *memNotificationRepo) GetByID(_ context.Context, id notification.NotificationID) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (r *memNotificationRepo) ListUnread(_ context.Context, recipient identity.UserID, limit int) ([]*notification.Notification, error) {
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

func (r *memNotificationRepo) CountUnread(_ context.Context, recipient identity.UserID) (int, error) {
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

func (r *memNotificationRepo) MarkRead(_ context.Context, id notification.NotificationID, recipient identity.UserID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.Recipient != recipient || !n.MarkRead(at) {
		return 0, nil
	}
	return 1, nil
}

func (r *memNotificationRepo) MarkAllRead(_ context.Context, recipient identity.UserID, at time.Time) (int64, error) {
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

func (r *memNotificationRepo) MarkEmailSent(_ context.Context, id notification.NotificationID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.MarkEmailSent(at)
	return nil
}

func (r *memNotificationRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
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

type memReplyRepo struct {
	mu    sync.Mutex
	items []*discussion.Reply
}

func (r *memReplyRepo) Create(_ context.Context, reply *discussion.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *reply
	r.items = append(r.items, &clone)
	return nil
}

func (r *memReplyRepo) GetByID(_ context.Context, id discussion.ReplyID) (*discussion.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reply := range r.items {
		if reply.ID == id {
			clone := *reply
			return &clone, nil
		}
	}
	return nil, discussion.ErrNotFound
}

func (r *memReplyRepo) ListByDiscussion(_ context.Context, discussionID discussion.DiscussionID, limit int) ([]*discussion.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*discussion.Reply
	for _, reply := range r.items {
		if reply.DiscussionID == discussionID {
			clone := *reply
			out = append(out, &clone)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memSpanRepo struct {
	mu    sync.Mutex
	items []*attendance.Span
}

func (r *memSpanRepo) Open(_ context.Context, s *attendance.Span) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.items = append(r.items, &clone)
	return nil
}

func (r *memSpanRepo) CloseOpen(_ context.Context, lessonID attendance.LessonID, userID identity.UserID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, s := range r.items {
		if s.LessonID == lessonID && s.UserID == userID && s.Close(at) {
			count++
		}
	}
	return count, nil
}

func (r *memSpanRepo) GetOpen(_ context.Context, lessonID attendance.LessonID, userID identity.UserID) (*attendance.Span, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.items {
		if s.LessonID == lessonID && s.UserID == userID && s.IsOpen() {
			clone := *s
			return &clone, nil
		}
	}
	return nil, attendance.ErrNotFound
}

func (r *memSpanRepo) ListByLesson(_ context.Context, lessonID attendance.LessonID) ([]*attendance.Span, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*attendance.Span
	for _, s := range r.items {
		if s.LessonID == lessonID {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memSpanRepo) CloseStale(_ context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, s := range r.items {
		if s.IsOpen() && now.Sub(s.JoinedAt) > maxAge && s.Close(now) {
			count++
		}
	}
	return count, nil
}

type memQuestionRepo struct {
	mu    sync.Mutex
	items []*attendance.Question
}

func (r *memQuestionRepo) Create(_ context.Context, q *attendance.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *q
	r.items = append(r.items, &clone)
	return nil
}

func (r *memQuestionRepo) ListByLesson(_ context.Context, lessonID attendance.LessonID) ([]*attendance.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*attendance.Question
	for _, q := range r.items {
		if q.LessonID == lessonID {
			clone := *q
			out = append(out, &clone)
		}
	}
	return out, nil
}

type stubNotifyDirectory struct{}

func (stubNotifyDirectory) GetIdentity(_ context.Context, userID identity.UserID) (identity.Identity, error) {
	return identity.Identity{ID: userID, Name: "User"}, nil
}

func (stubNotifyDirectory) ListEnrolledActive(_ context.Context, _ string) ([]identity.UserID, error) {
	return nil, nil
}

func (stubNotifyDirectory) GetEmail(_ context.Context, userID identity.UserID) (string, error) {
	return userID.String() + "@example.com", nil
}

// recordingSubscriber collects everything broadcast to it.
type recordingSubscriber struct {
	id string
	mu sync.Mutex

	frames [][]byte
}

func (s *recordingSubscriber) ID() string { return s.id }

func (s *recordingSubscriber) TrySend(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), data...))
	return true
}

func (s *recordingSubscriber) payloadTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, data := range s.frames {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &env) == nil {
			types = append(types, env.Type)
		}
	}
	return types
}

func (s *recordingSubscriber) hasType(kind string) bool {
	for _, t := range s.payloadTypes() {
		if t == kind {
			return true
		}
	}
	return false
}

// newSession builds a session over a fake transport for direct channel tests.
func newSession(t *testing.T, id identity.Identity, res access.Resource) (*Session, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	conn := NewConn(transport, 16, nil)
	t.Cleanup(conn.Close)
	return &Session{conn: conn, Identity: id, Resource: res}, transport
}

// ─────────────────────────────────────────────────────────────────────────────
// Personal channel
// ─────────────────────────────────────────────────────────────────────────────

type personalFixture struct {
	channel  *PersonalChannel
	service  *notify.Service
	repo     *memNotificationRepo
	registry *messaging.GroupRegistry
}

func newPersonalFixture(t *testing.T) *personalFixture {
	t.Helper()

	repo := newMemNotificationRepo()
	registry := messaging.NewGroupRegistry(messaging.DefaultGroupRegistryConfig())
	t.Cleanup(func() { _ = registry.Close() })

	svc, err := notify.NewService(notify.Config{
		Repository: repo,
		Registry:   registry,
		Directory:  stubNotifyDirectory{},
	})
	require.NoError(t, err)

	channel, err := NewPersonalChannel(svc, nil)
	require.NoError(t, err)

	return &personalFixture{channel: channel, service: svc, repo: repo, registry: registry}
}

func (f *personalFixture) seed(t *testing.T, recipient identity.UserID, count int) []*notification.Notification {
	t.Helper()
	var out []*notification.Notification
	for i := 0; i < count; i++ {
		n, err := f.service.Create(context.Background(), notify.CreateParams{
			Recipient: recipient,
			Type:      notification.TypeAnnouncement,
			Title:     "Update",
			Message:   "course update",
		})
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func TestPersonalChannel_OpenReplaysUnreadBacklog(t *testing.T) {
	f := newPersonalFixture(t)
	f.seed(t, student.ID, 3)

	sess, transport := newSession(t, student, access.Personal(student.ID))
	require.NoError(t, f.channel.OnOpen(context.Background(), sess))

	assert.Eventually(t, func() bool {
		return len(transport.frames()) == 3
	}, waitFor, tick)

	for _, frame := range transport.frames() {
		var payload notify.NotificationPayload
		require.NoError(t, json.Unmarshal(frame, &payload))
		assert.Equal(t, "notification", payload.Type)
		assert.Equal(t, "course update", payload.Notification.Message)
	}
}

func TestPersonalChannel_BacklogIsCapped(t *testing.T) {
	f := newPersonalFixture(t)
	f.seed(t, student.ID, notify.BacklogLimit+5)

	sess, transport := newSession(t, student, access.Personal(student.ID))
	require.NoError(t, f.channel.OnOpen(context.Background(), sess))

	assert.Eventually(t, func() bool {
		return len(transport.frames()) == notify.BacklogLimit
	}, waitFor, tick)
}

func TestPersonalChannel_MarkReadPushesUnreadCount(t *testing.T) {
	f := newPersonalFixture(t)
	created := f.seed(t, student.ID, 2)

	// A recording member in the personal group sees the fresh count.
	member := &recordingSubscriber{id: "other-device"}
	require.NoError(t, f.registry.Join(access.PersonalGroup(student.ID), member))

	sess, _ := newSession(t, student, access.Personal(student.ID))
	err := f.channel.OnMessage(context.Background(), sess, Envelope{
		Type:           "mark_read",
		NotificationID: created[0].ID.String(),
	})
	require.NoError(t, err)

	count, err := f.repo.CountUnread(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, member.hasType("unread_count"))
}

func TestPersonalChannel_MarkReadTwiceIsNoOp(t *testing.T) {
	f := newPersonalFixture(t)
	created := f.seed(t, student.ID, 1)

	sess, _ := newSession(t, student, access.Personal(student.ID))
	env := Envelope{Type: "mark_read", NotificationID: created[0].ID.String()}

	require.NoError(t, f.channel.OnMessage(context.Background(), sess, env))
	require.NoError(t, f.channel.OnMessage(context.Background(), sess, env))

	count, err := f.repo.CountUnread(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPersonalChannel_MarkAllRead(t *testing.T) {
	f := newPersonalFixture(t)
	f.seed(t, student.ID, 4)

	sess, _ := newSession(t, student, access.Personal(student.ID))
	require.NoError(t, f.channel.OnMessage(context.Background(), sess, Envelope{Type: "mark_all_read"}))

	count, err := f.repo.CountUnread(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPersonalChannel_MarkReadRequiresID(t *testing.T) {
	f := newPersonalFixture(t)
	sess, _ := newSession(t, student, access.Personal(student.ID))

	err := f.channel.OnMessage(context.Background(), sess, Envelope{Type: "mark_read"})

	require.Error(t, err)
	assert.Equal(t, "bad_request", errorCode(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Discussion channel
// ─────────────────────────────────────────────────────────────────────────────

type discussionFixture struct {
	channel  *DiscussionChannel
	repo     *memReplyRepo
	registry *messaging.GroupRegistry
}

func newDiscussionFixture(t *testing.T) *discussionFixture {
	t.Helper()

	repo := &memReplyRepo{}
	registry := messaging.NewGroupRegistry(messaging.DefaultGroupRegistryConfig())
	t.Cleanup(func() { _ = registry.Close() })

	svc, err := chat.NewService(chat.Config{Replies: repo, Registry: registry})
	require.NoError(t, err)

	channel, err := NewDiscussionChannel(svc, nil)
	require.NoError(t, err)

	return &discussionFixture{channel: channel, repo: repo, registry: registry}
}

func TestDiscussionChannel_MessageIsStoredAndBroadcastToAll(t *testing.T) {
	f := newDiscussionFixture(t)
	group := access.Discussion("disc-1").String()

	sender := &recordingSubscriber{id: "conn-sender"}
	peer := &recordingSubscriber{id: "conn-peer"}
	require.NoError(t, f.registry.Join(group, sender))
	require.NoError(t, f.registry.Join(group, peer))

	sess, _ := newSession(t, student, access.Discussion("disc-1"))
	err := f.channel.OnMessage(context.Background(), sess, Envelope{
		Type:    "message",
		Content: "does anyone understand recursion?",
	})
	require.NoError(t, err)

	replies, err := f.repo.ListByDiscussion(context.Background(), "disc-1", 0)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "does anyone understand recursion?", replies[0].Content)

	// The sender's own group member receives the message too.
	assert.True(t, sender.hasType("chat_message"))
	assert.True(t, peer.hasType("chat_message"))
}

func TestDiscussionChannel_InstructorReplyIsTagged(t *testing.T) {
	f := newDiscussionFixture(t)
	group := access.Discussion("disc-1").String()

	peer := &recordingSubscriber{id: "conn-peer"}
	require.NoError(t, f.registry.Join(group, peer))

	sess, _ := newSession(t, teacher, access.Discussion("disc-1"))
	err := f.channel.OnMessage(context.Background(), sess, Envelope{
		Type:    "message",
		Content: "recursion is a function calling itself",
	})
	require.NoError(t, err)

	peer.mu.Lock()
	defer peer.mu.Unlock()
	require.Len(t, peer.frames, 1)
	var payload chat.MessagePayload
	require.NoError(t, json.Unmarshal(peer.frames[0], &payload))
	assert.True(t, payload.Message.IsInstructor)
}

func TestDiscussionChannel_EmptyMessageIsRejected(t *testing.T) {
	f := newDiscussionFixture(t)
	sess, _ := newSession(t, student, access.Discussion("disc-1"))

	err := f.channel.OnMessage(context.Background(), sess, Envelope{Type: "message", Content: ""})

	require.Error(t, err)
	assert.Equal(t, "bad_request", errorCode(err))

	replies, listErr := f.repo.ListByDiscussion(context.Background(), "disc-1", 0)
	require.NoError(t, listErr)
	assert.Empty(t, replies)
}

func TestDiscussionChannel_UnknownParentIsRejected(t *testing.T) {
	f := newDiscussionFixture(t)
	sess, _ := newSession(t, student, access.Discussion("disc-1"))

	err := f.channel.OnMessage(context.Background(), sess, Envelope{
		Type:     "message",
		Content:  "replying to nothing",
		ParentID: "missing-reply",
	})

	require.Error(t, err)
	assert.Equal(t, "invalid_parent", errorCode(err))
}

func TestDiscussionChannel_CrossDiscussionParentIsRejected(t *testing.T) {
	f := newDiscussionFixture(t)

	// Seed a parent in another discussion.
	parent, err := discussion.NewReply(discussion.NewReplyParams{
		ID:           "reply-1",
		DiscussionID: "disc-other",
		Author:       student,
		Content:      "unrelated",
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(context.Background(), parent))

	sess, _ := newSession(t, student, access.Discussion("disc-1"))
	err = f.channel.OnMessage(context.Background(), sess, Envelope{
		Type:     "message",
		Content:  "answering across threads",
		ParentID: "reply-1",
	})

	require.Error(t, err)
	assert.Equal(t, "invalid_parent", errorCode(err))
}

func TestDiscussionChannel_TypingSkipsSender(t *testing.T) {
	f := newDiscussionFixture(t)
	group := access.Discussion("disc-1").String()

	sess, transport := newSession(t, student, access.Discussion("disc-1"))
	require.NoError(t, f.registry.Join(group, sess.conn))

	peer := &recordingSubscriber{id: "conn-peer"}
	require.NoError(t, f.registry.Join(group, peer))

	err := f.channel.OnMessage(context.Background(), sess, Envelope{Type: "typing", IsTyping: true})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return peer.hasType("user_typing")
	}, waitFor, tick)
	assert.Empty(t, transport.frames())
}

func TestDiscussionChannel_OpenAndCloseAnnounceMembership(t *testing.T) {
	f := newDiscussionFixture(t)
	group := access.Discussion("disc-1").String()

	peer := &recordingSubscriber{id: "conn-peer"}
	require.NoError(t, f.registry.Join(group, peer))

	sess, _ := newSession(t, student, access.Discussion("disc-1"))
	require.NoError(t, f.channel.OnOpen(context.Background(), sess))
	f.channel.OnClose(context.Background(), sess)

	assert.True(t, peer.hasType("user_join"))
	assert.True(t, peer.hasType("user_leave"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Live-lesson channel
// ─────────────────────────────────────────────────────────────────────────────

type lessonFixture struct {
	channel   *LiveLessonChannel
	spans     *memSpanRepo
	questions *memQuestionRepo
	registry  *messaging.GroupRegistry
}

func newLessonFixture(t *testing.T) *lessonFixture {
	t.Helper()

	spans := &memSpanRepo{}
	questions := &memQuestionRepo{}
	registry := messaging.NewGroupRegistry(messaging.DefaultGroupRegistryConfig())
	t.Cleanup(func() { _ = registry.Close() })

	svc, err := presence.NewService(presence.Config{
		Spans:     spans,
		Questions: questions,
		Registry:  registry,
	})
	require.NoError(t, err)

	channel, err := NewLiveLessonChannel(svc, nil)
	require.NoError(t, err)

	return &lessonFixture{channel: channel, spans: spans, questions: questions, registry: registry}
}

func TestLiveLessonChannel_JoinOpensSpanAndAnnounces(t *testing.T) {
	f := newLessonFixture(t)
	group := access.LiveLesson("lesson-1").String()

	peer := &recordingSubscriber{id: "conn-peer"}
	require.NoError(t, f.registry.Join(group, peer))

	sess, _ := newSession(t, student, access.LiveLesson("lesson-1"))
	require.NoError(t, f.channel.OnOpen(context.Background(), sess))

	span, err := f.spans.GetOpen(context.Background(), "lesson-1", student.ID)
	require.NoError(t, err)
	assert.True(t, span.IsOpen())
	assert.True(t, peer.hasType("attendee_join"))
}

func TestLiveLessonChannel_CloseClosesSpanOnce(t *testing.T) {
	f := newLessonFixture(t)
	group := access.LiveLesson("lesson-1").String()

	peer := &recordingSubscriber{id: "conn-peer"}
	require.NoError(t, f.registry.Join(group, peer))

	sess, _ := newSession(t, student, access.LiveLesson("lesson-1"))
	require.NoError(t, f.channel.OnOpen(context.Background(), sess))

	f.channel.OnClose(context.Background(), sess)
	f.channel.OnClose(context.Background(), sess)

	_, err := f.spans.GetOpen(context.Background(), "lesson-1", student.ID)
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	// The second close stays silent.
	leaves := 0
	for _, kind := range peer.payloadTypes() {
		if kind == "attendee_leave" {
			leaves++
		}
	}
	assert.Equal(t, 1, leaves)
}

func TestLiveLessonChannel_QuestionIsStoredAndBroadcast(t *testing.T) {
	f := newLessonFixture(t)
	group := access.LiveLesson("lesson-1").String()

	peer := &recordingSubscriber{id: "conn-peer"}
	require.NoError(t, f.registry.Join(group, peer))

	sess, _ := newSession(t, student, access.LiveLesson("lesson-1"))
	err := f.channel.OnMessage(context.Background(), sess, Envelope{
		Type: "question",
		Text: "will this be on the exam?",
	})
	require.NoError(t, err)

	stored, err := f.questions.ListByLesson(context.Background(), "lesson-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "will this be on the exam?", stored[0].Text)
	assert.True(t, peer.hasType("question"))
}

func TestLiveLessonChannel_LongQuestionIsTruncated(t *testing.T) {
	f := newLessonFixture(t)

	long := make([]byte, presence.MaxQuestionLen+200)
	for i := range long {
		long[i] = 'q'
	}

	sess, _ := newSession(t, student, access.LiveLesson("lesson-1"))
	err := f.channel.OnMessage(context.Background(), sess, Envelope{Type: "question", Text: string(long)})
	require.NoError(t, err)

	stored, err := f.questions.ListByLesson(context.Background(), "lesson-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Len(t, stored[0].Text, presence.MaxQuestionLen)
}

func TestLiveLessonChannel_EmptyQuestionIsRejected(t *testing.T) {
	f := newLessonFixture(t)
	sess, _ := newSession(t, student, access.LiveLesson("lesson-1"))

	err := f.channel.OnMessage(context.Background(), sess, Envelope{Type: "question", Text: ""})

	require.Error(t, err)
	assert.Equal(t, "question_failed", errorCode(err))
}

func TestLiveLessonChannel_PollResponseIsRelayedNotStored(t *testing.T) {
	f := newLessonFixture(t)
	group := access.LiveLesson("lesson-1").String()

	peer := &recordingSubscriber{id: "conn-peer"}
	require.NoError(t, f.registry.Join(group, peer))

	sess, _ := newSession(t, student, access.LiveLesson("lesson-1"))
	err := f.channel.OnMessage(context.Background(), sess, Envelope{
		Type:     "poll_response",
		PollID:   "poll-1",
		OptionID: "b",
	})
	require.NoError(t, err)

	assert.True(t, peer.hasType("poll_response"))
	stored, err := f.questions.ListByLesson(context.Background(), "lesson-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestLiveLessonChannel_PollResponseRequiresPollID(t *testing.T) {
	f := newLessonFixture(t)
	sess, _ := newSession(t, student, access.LiveLesson("lesson-1"))

	err := f.channel.OnMessage(context.Background(), sess, Envelope{Type: "poll_response"})

	require.Error(t, err)
	assert.Equal(t, "bad_request", errorCode(err))
}
