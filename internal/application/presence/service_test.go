package presence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/attendance"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeSpanRepo struct {
	mu      sync.Mutex
	items   []*attendance.Span
	openErr error
}

func (r *fakeSpanRepo) Open(_ context.Context, s *attendance.Span) error {
	if r.openErr != nil {
		return r.openErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.items = append(r.items, &clone)
	return nil
}

func (r *fakeSpanRepo) CloseOpen(_ context.Context, lessonID attendance.LessonID, userID identity.UserID, at time.Time) (int64, error) {
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

func (r *fakeSpanRepo) GetOpen(_ context.Context, lessonID attendance.LessonID, userID identity.UserID) (*attendance.Span, error) {
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

func (r *fakeSpanRepo) ListByLesson(_ context.Context, lessonID attendance.LessonID) ([]*attendance.Span, error) {
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

func (r *fakeSpanRepo) CloseStale(_ context.Context, maxAge time.Duration, now time.Time) (int64, error) {
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

type fakeQuestionRepo struct {
	mu    sync.Mutex
	items []*attendance.Question
}

func (r *fakeQuestionRepo) Create(_ context.Context, q *attendance.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *q
	r.items = append(r.items, &clone)
	return nil
}

func (r *fakeQuestionRepo) ListByLesson(_ context.Context, lessonID attendance.LessonID) ([]*attendance.Question, error) {
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

type fakeRoster struct {
	mu      sync.Mutex
	members map[string][]string
	addErr  error
	listErr error
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{members: make(map[string][]string)}
}

func (r *fakeRoster) Add(_ context.Context, lessonID, userID string) error {
	if r.addErr != nil {
		return r.addErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[lessonID] = append(r.members[lessonID], userID)
	return nil
}

func (r *fakeRoster) Remove(_ context.Context, lessonID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.members[lessonID][:0]
	for _, id := range r.members[lessonID] {
		if id != userID {
			kept = append(kept, id)
		}
	}
	r.members[lessonID] = kept
	return nil
}

func (r *fakeRoster) Roster(_ context.Context, lessonID string) ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.members[lessonID]))
	copy(out, r.members[lessonID])
	return out, nil
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
func (r *fakeRegistry) MemberCount(string) int                  { return 0 }
func (r *fakeRegistry) Close() error                            { return nil }

func (r *fakeRegistry) Broadcast(_ context.Context, group string, data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[group] = append(r.frames[group], append([]byte(nil), data...))
	return 1
}

func (r *fakeRegistry) BroadcastExcept(ctx context.Context, group string, data []byte, _ string) int {
	return r.Broadcast(ctx, group, data)
}

func (r *fakeRegistry) payloadTypes(group string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, data := range r.frames[group] {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &env) == nil {
			types = append(types, env.Type)
		}
	}
	return types
}

var attendee = identity.Identity{ID: "user-1", Name: "Aruzhan", Role: identity.RoleStudent}

const lessonID = attendance.LessonID("lesson-1")

var lessonGroupName = access.LiveLesson("lesson-1").String()

type fixture struct {
	service   *Service
	spans     *fakeSpanRepo
	questions *fakeQuestionRepo
	roster    *fakeRoster
	registry  *fakeRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	spans := &fakeSpanRepo{}
	questions := &fakeQuestionRepo{}
	roster := newFakeRoster()
	registry := newFakeRegistry()

	svc, err := NewService(Config{
		Spans:     spans,
		Questions: questions,
		Roster:    roster,
		Registry:  registry,
	})
	require.NoError(t, err)

	return &fixture{service: svc, spans: spans, questions: questions, roster: roster, registry: registry}
}

// ─────────────────────────────────────────────────────────────────────────────
// Join and Leave
// ─────────────────────────────────────────────────────────────────────────────

func TestService_JoinOpensSpanRosterAndAnnounces(t *testing.T) {
	f := newFixture(t)

	span, err := f.service.Join(context.Background(), lessonID, attendee)
	require.NoError(t, err)
	assert.True(t, span.IsOpen())

	ids, err := f.roster.Roster(context.Background(), "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, ids)

	assert.Contains(t, f.registry.payloadTypes(lessonGroupName), "attendee_join")
}

func TestService_JoinFailsWhenSpanWriteFails(t *testing.T) {
	f := newFixture(t)
	f.spans.openErr = errors.New("db down")

	_, err := f.service.Join(context.Background(), lessonID, attendee)

	require.Error(t, err)
	assert.Empty(t, f.registry.payloadTypes(lessonGroupName))
}

func TestService_JoinSurvivesRosterFailure(t *testing.T) {
	f := newFixture(t)
	f.roster.addErr = errors.New("redis down")

	_, err := f.service.Join(context.Background(), lessonID, attendee)

	require.NoError(t, err)
	assert.Contains(t, f.registry.payloadTypes(lessonGroupName), "attendee_join")
}

func TestService_LeaveClosesSpanAndAnnouncesOnce(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Join(context.Background(), lessonID, attendee)
	require.NoError(t, err)

	require.NoError(t, f.service.Leave(context.Background(), lessonID, attendee))
	require.NoError(t, f.service.Leave(context.Background(), lessonID, attendee))

	leaves := 0
	for _, kind := range f.registry.payloadTypes(lessonGroupName) {
		if kind == "attendee_leave" {
			leaves++
		}
	}
	assert.Equal(t, 1, leaves)

	_, err = f.spans.GetOpen(context.Background(), lessonID, attendee.ID)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

// ─────────────────────────────────────────────────────────────────────────────
// Questions and polls
// ─────────────────────────────────────────────────────────────────────────────

func TestService_QuestionPersistsThenBroadcasts(t *testing.T) {
	f := newFixture(t)

	q, err := f.service.Question(context.Background(), lessonID, attendee, "is the recording shared afterwards?")
	require.NoError(t, err)
	assert.NotEmpty(t, q.ID)

	stored, err := f.questions.ListByLesson(context.Background(), lessonID)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assert.Contains(t, f.registry.payloadTypes(lessonGroupName), "question")
}

func TestService_QuestionTruncatesLongText(t *testing.T) {
	f := newFixture(t)

	long := strings.Repeat("a", MaxQuestionLen*2)

	q, err := f.service.Question(context.Background(), lessonID, attendee, long)
	require.NoError(t, err)
	assert.Len(t, q.Text, MaxQuestionLen)
}

func TestService_QuestionTruncationKeepsRunesWhole(t *testing.T) {
	f := newFixture(t)

	// "ұ" is two bytes; an odd byte of padding puts the cut point in the
	// middle of a rune, which truncation must back out of.
	long := "q" + strings.Repeat("ұ", MaxQuestionLen)

	q, err := f.service.Question(context.Background(), lessonID, attendee, long)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(q.Text))
	assert.Equal(t, MaxQuestionLen-1, len(q.Text))
}

func TestService_QuestionRejectsEmptyText(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Question(context.Background(), lessonID, attendee, "")

	assert.Error(t, err)
	stored, _ := f.questions.ListByLesson(context.Background(), lessonID)
	assert.Empty(t, stored)
}

func TestService_PollResponseRelaysWithoutStoring(t *testing.T) {
	f := newFixture(t)

	err := f.service.PollResponse(context.Background(), lessonID, attendee, "poll-1", "option-b")
	require.NoError(t, err)

	assert.Contains(t, f.registry.payloadTypes(lessonGroupName), "poll_response")
	stored, _ := f.questions.ListByLesson(context.Background(), lessonID)
	assert.Empty(t, stored)
}

func TestService_PollResponseRequiresPollID(t *testing.T) {
	f := newFixture(t)

	err := f.service.PollResponse(context.Background(), lessonID, attendee, "", "option-b")
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Roster
// ─────────────────────────────────────────────────────────────────────────────

func TestService_RosterPrefersCache(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Join(context.Background(), lessonID, attendee)
	require.NoError(t, err)

	ids, err := f.service.RosterIDs(context.Background(), lessonID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, ids)
}

func TestService_RosterFallsBackToOpenSpans(t *testing.T) {
	f := newFixture(t)

	other := identity.Identity{ID: "user-2", Name: "Dana", Role: identity.RoleStudent}
	_, err := f.service.Join(context.Background(), lessonID, attendee)
	require.NoError(t, err)
	_, err = f.service.Join(context.Background(), lessonID, other)
	require.NoError(t, err)
	require.NoError(t, f.service.Leave(context.Background(), lessonID, other))

	f.roster.listErr = errors.New("redis down")

	ids, err := f.service.RosterIDs(context.Background(), lessonID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, ids)
}

func TestService_RosterFallbackDeduplicatesSpans(t *testing.T) {
	f := newFixture(t)

	// Two open spans for the same user, as with two devices.
	_, err := f.service.Join(context.Background(), lessonID, attendee)
	require.NoError(t, err)
	_, err = f.service.Join(context.Background(), lessonID, attendee)
	require.NoError(t, err)

	f.roster.listErr = errors.New("redis down")

	ids, err := f.service.RosterIDs(context.Background(), lessonID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, ids)
}
