package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/discussion"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeReplyRepo struct {
	mu    sync.Mutex
	items []*discussion.Reply
}

func (r *fakeReplyRepo) Create(_ context.Context, reply *discussion.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *reply
	r.items = append(r.items, &clone)
	return nil
}

func (r *fakeReplyRepo) GetByID(_ context.Context, id discussion.ReplyID) (*discussion.Reply, error) {
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

func (r *fakeReplyRepo) ListByDiscussion(_ context.Context, discussionID discussion.DiscussionID, limit int) ([]*discussion.Reply, error) {
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

type broadcastCall struct {
	group    string
	data     []byte
	exceptID string
}

type fakeRegistry struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (r *fakeRegistry) Join(string, messaging.Subscriber) error { return nil }
func (r *fakeRegistry) Leave(string, string)                    {}
func (r *fakeRegistry) MemberCount(string) int                  { return 0 }
func (r *fakeRegistry) Close() error                            { return nil }

func (r *fakeRegistry) Broadcast(_ context.Context, group string, data []byte) int {
	return r.BroadcastExcept(context.Background(), group, data, "")
}

func (r *fakeRegistry) BroadcastExcept(_ context.Context, group string, data []byte, exceptID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{
		group:    group,
		data:     append([]byte(nil), data...),
		exceptID: exceptID,
	})
	return 1
}

func (r *fakeRegistry) broadcasts() []broadcastCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]broadcastCall, len(r.calls))
	copy(out, r.calls)
	return out
}

var (
	student = identity.Identity{ID: "user-1", Name: "Aruzhan", Role: identity.RoleStudent}
	teacher = identity.Identity{ID: "user-2", Name: "Daniyar", Role: identity.RoleTeacher}
)

func newService(t *testing.T) (*Service, *fakeReplyRepo, *fakeRegistry) {
	t.Helper()

	repo := &fakeReplyRepo{}
	registry := &fakeRegistry{}

	svc, err := NewService(Config{Replies: repo, Registry: registry})
	require.NoError(t, err)

	return svc, repo, registry
}

// ─────────────────────────────────────────────────────────────────────────────
// PostReply
// ─────────────────────────────────────────────────────────────────────────────

func TestService_PostReplyStoresAndBroadcasts(t *testing.T) {
	svc, repo, registry := newService(t)

	reply, err := svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-1",
		Author:       student,
		Content:      "what does the second loop do?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.ID)

	stored, err := repo.ListByDiscussion(context.Background(), "disc-1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	calls := registry.broadcasts()
	require.Len(t, calls, 1)
	assert.Equal(t, access.Discussion("disc-1").String(), calls[0].group)
	assert.Empty(t, calls[0].exceptID, "chat messages echo back to the sender")

	var payload MessagePayload
	require.NoError(t, json.Unmarshal(calls[0].data, &payload))
	assert.Equal(t, "chat_message", payload.Type)
	assert.Equal(t, reply.ID.String(), payload.Message.ID)
	assert.Equal(t, "Aruzhan", payload.Message.Author.Name)
	assert.False(t, payload.Message.IsInstructor)
	assert.NotEmpty(t, payload.Message.CreatedAt)
}

func TestService_PostReplyTagsInstructors(t *testing.T) {
	svc, _, registry := newService(t)

	_, err := svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-1",
		Author:       teacher,
		Content:      "it walks the inner array",
	})
	require.NoError(t, err)

	calls := registry.broadcasts()
	require.Len(t, calls, 1)

	var payload MessagePayload
	require.NoError(t, json.Unmarshal(calls[0].data, &payload))
	assert.True(t, payload.Message.IsInstructor)
}

func TestService_PostReplyWithValidParent(t *testing.T) {
	svc, _, _ := newService(t)

	parent, err := svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-1",
		Author:       student,
		Content:      "original question",
	})
	require.NoError(t, err)

	child, err := svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-1",
		Author:       teacher,
		Content:      "answer",
		ParentID:     parent.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, child.ParentID)
}

func TestService_PostReplyRejectsUnknownParent(t *testing.T) {
	svc, repo, registry := newService(t)

	_, err := svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-1",
		Author:       student,
		Content:      "answering a ghost",
		ParentID:     "missing",
	})

	assert.ErrorIs(t, err, discussion.ErrParentNotFound)
	stored, _ := repo.ListByDiscussion(context.Background(), "disc-1", 0)
	assert.Empty(t, stored)
	assert.Empty(t, registry.broadcasts())
}

func TestService_PostReplyRejectsCrossDiscussionParent(t *testing.T) {
	svc, _, _ := newService(t)

	parent, err := svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-other",
		Author:       student,
		Content:      "elsewhere",
	})
	require.NoError(t, err)

	_, err = svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-1",
		Author:       student,
		Content:      "crossing threads",
		ParentID:     parent.ID,
	})
	assert.ErrorIs(t, err, discussion.ErrParentMismatch)
}

func TestService_PostReplyRejectsEmptyContent(t *testing.T) {
	svc, _, registry := newService(t)

	_, err := svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-1",
		Author:       student,
		Content:      "",
	})

	assert.ErrorIs(t, err, discussion.ErrEmptyContent)
	assert.Empty(t, registry.broadcasts())
}

// ─────────────────────────────────────────────────────────────────────────────
// Typing and membership
// ─────────────────────────────────────────────────────────────────────────────

func TestService_TypingExcludesSenderConnection(t *testing.T) {
	svc, _, registry := newService(t)

	err := svc.Typing(context.Background(), "disc-1", student, "conn-42", true)
	require.NoError(t, err)

	calls := registry.broadcasts()
	require.Len(t, calls, 1)
	assert.Equal(t, "conn-42", calls[0].exceptID)

	var payload TypingPayload
	require.NoError(t, json.Unmarshal(calls[0].data, &payload))
	assert.Equal(t, "user_typing", payload.Type)
	assert.True(t, payload.IsTyping)
	assert.Equal(t, "user-1", payload.UserID)
}

func TestService_AnnouncementShapes(t *testing.T) {
	svc, _, registry := newService(t)

	svc.AnnounceJoin(context.Background(), "disc-1", student)
	svc.AnnounceLeave(context.Background(), "disc-1", student)

	calls := registry.broadcasts()
	require.Len(t, calls, 2)

	var join JoinPayload
	require.NoError(t, json.Unmarshal(calls[0].data, &join))
	assert.Equal(t, "user_join", join.Type)
	assert.Equal(t, "Aruzhan", join.User.Name)

	// Departures carry only the user ID, no display block.
	var leave map[string]any
	require.NoError(t, json.Unmarshal(calls[1].data, &leave))
	assert.Equal(t, "user_leave", leave["type"])
	assert.Equal(t, "user-1", leave["user_id"])
	assert.NotContains(t, leave, "user")
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

func TestService_HistoryReturnsDiscussionReplies(t *testing.T) {
	svc, _, _ := newService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.PostReply(context.Background(), PostReplyParams{
			DiscussionID: "disc-1",
			Author:       student,
			Content:      "msg",
		})
		require.NoError(t, err)
	}
	_, err := svc.PostReply(context.Background(), PostReplyParams{
		DiscussionID: "disc-2",
		Author:       student,
		Content:      "other thread",
	})
	require.NoError(t, err)

	history, err := svc.History(context.Background(), "disc-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}
