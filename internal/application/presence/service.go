// Package presence implements live-lesson attendance: durable join/leave
// spans, a shared roster cache, and the in-lesson question and poll relay.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/attendance"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// MaxQuestionLen caps the stored question text in bytes. Longer input is
// truncated, not rejected, matching how the lesson UI renders questions.
const MaxQuestionLen = 1000

// truncateQuestion trims text to MaxQuestionLen without splitting a rune.
func truncateQuestion(text string) string {
	if len(text) <= MaxQuestionLen {
		return text
	}
	cut := MaxQuestionLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE PAYLOADS
// ══════════════════════════════════════════════════════════════════════════════

// AttendeePayload is the user block embedded in presence payloads.
type AttendeePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// PresencePayload announces an attendee joining or leaving a lesson.
type PresencePayload struct {
	Type string          `json:"type"`
	User AttendeePayload `json:"user"`
}

// QuestionPayload is the serialized form of a raised question.
type QuestionPayload struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	LessonID  string          `json:"lesson_id"`
	Text      string          `json:"text"`
	Author    AttendeePayload `json:"author"`
	CreatedAt string          `json:"created_at"`
}

// PollResponsePayload relays a poll answer without persistence.
type PollResponsePayload struct {
	Type     string          `json:"type"`
	PollID   string          `json:"poll_id"`
	OptionID string          `json:"option_id"`
	User     AttendeePayload `json:"user"`
}

func attendeePayload(id identity.Identity) AttendeePayload {
	return AttendeePayload{
		ID:   id.ID.String(),
		Name: id.Name,
		Role: id.Role.Display(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Roster is the fast shared view of who is in a lesson. Backed by Redis so
// every gateway instance sees the same membership.
type Roster interface {
	Add(ctx context.Context, lessonID, userID string) error
	Remove(ctx context.Context, lessonID, userID string) error
	Roster(ctx context.Context, lessonID string) ([]string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service coordinates attendance persistence and the live-lesson relay.
type Service struct {
	spans     attendance.Repository
	questions attendance.QuestionRepository
	roster    Roster
	registry  messaging.Registry
	logger    *slog.Logger
}

// Config contains the dependencies for Service.
type Config struct {
	Spans     attendance.Repository
	Questions attendance.QuestionRepository

	// Roster is optional; nil disables the shared roster cache.
	Roster Roster

	Registry messaging.Registry
	Logger   *slog.Logger
}

// NewService creates a presence service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Spans == nil {
		return nil, errors.New("presence: attendance repository is required")
	}
	if cfg.Questions == nil {
		return nil, errors.New("presence: question repository is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("presence: registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		spans:     cfg.Spans,
		questions: cfg.Questions,
		roster:    cfg.Roster,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
	}, nil
}

// Join opens an attendance span, adds the user to the shared roster, and
// announces the arrival to the lesson group. The span write is the commit
// point; roster and announce failures only log.
func (s *Service) Join(ctx context.Context, lessonID attendance.LessonID, user identity.Identity) (*attendance.Span, error) {
	span, err := attendance.NewSpan(
		attendance.SpanID(uuid.NewString()),
		lessonID,
		user.ID,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	if err := s.spans.Open(ctx, span); err != nil {
		return nil, fmt.Errorf("presence: open span: %w", err)
	}

	if s.roster != nil {
		if err := s.roster.Add(ctx, lessonID.String(), user.ID.String()); err != nil {
			s.logger.Error("join: roster add failed", "lesson", lessonID, "user", user.ID, "error", err)
		}
	}

	s.announce(ctx, lessonID, "attendee_join", user)
	return span, nil
}

// Leave closes the user's open span, removes them from the roster, and
// announces the departure. Leaving twice is a no-op: abrupt transports can
// signal disconnect more than once.
func (s *Service) Leave(ctx context.Context, lessonID attendance.LessonID, user identity.Identity) error {
	closed, err := s.spans.CloseOpen(ctx, lessonID, user.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("presence: close span: %w", err)
	}

	if s.roster != nil {
		if err := s.roster.Remove(ctx, lessonID.String(), user.ID.String()); err != nil {
			s.logger.Error("leave: roster remove failed", "lesson", lessonID, "user", user.ID, "error", err)
		}
	}

	// Announce only the first close so repeated disconnects stay silent.
	if closed > 0 {
		s.announce(ctx, lessonID, "attendee_leave", user)
	}

	return nil
}

// Question persists an audience question and broadcasts it to the lesson
// group. Text beyond MaxQuestionLen is truncated before storage.
func (s *Service) Question(ctx context.Context, lessonID attendance.LessonID, author identity.Identity, text string) (*attendance.Question, error) {
	if text == "" {
		return nil, errors.New("presence: question text cannot be empty")
	}
	text = truncateQuestion(text)

	q := &attendance.Question{
		ID:        uuid.NewString(),
		LessonID:  lessonID,
		Author:    author.ID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("presence: store question: %w", err)
	}

	data, err := json.Marshal(QuestionPayload{
		Type:      "question",
		ID:        q.ID,
		LessonID:  lessonID.String(),
		Text:      q.Text,
		Author:    attendeePayload(author),
		CreatedAt: q.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("question: encode failed", "question", q.ID, "error", err)
		return q, nil
	}

	s.registry.Broadcast(ctx, lessonGroup(lessonID), data)
	return q, nil
}

// PollResponse relays a poll answer to the lesson group. Poll answers are
// ephemeral: the presenter's client aggregates them live and nothing is
// stored.
func (s *Service) PollResponse(ctx context.Context, lessonID attendance.LessonID, user identity.Identity, pollID, optionID string) error {
	if pollID == "" {
		return errors.New("presence: poll id cannot be empty")
	}

	data, err := json.Marshal(PollResponsePayload{
		Type:     "poll_response",
		PollID:   pollID,
		OptionID: optionID,
		User:     attendeePayload(user),
	})
	if err != nil {
		return fmt.Errorf("presence: encode poll response: %w", err)
	}

	s.registry.Broadcast(ctx, lessonGroup(lessonID), data)
	return nil
}

// RosterIDs returns the user IDs currently in the lesson, from the shared
// roster when available, otherwise from open spans.
func (s *Service) RosterIDs(ctx context.Context, lessonID attendance.LessonID) ([]string, error) {
	if s.roster != nil {
		ids, err := s.roster.Roster(ctx, lessonID.String())
		if err == nil {
			return ids, nil
		}
		s.logger.Error("roster: cache read failed, falling back to spans", "lesson", lessonID, "error", err)
	}

	spans, err := s.spans.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("presence: list spans: %w", err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, span := range spans {
		if !span.IsOpen() {
			continue
		}
		uid := span.UserID.String()
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		ids = append(ids, uid)
	}

	return ids, nil
}

func (s *Service) announce(ctx context.Context, lessonID attendance.LessonID, kind string, user identity.Identity) {
	data, err := json.Marshal(PresencePayload{
		Type: kind,
		User: attendeePayload(user),
	})
	if err != nil {
		return
	}

	s.registry.Broadcast(ctx, lessonGroup(lessonID), data)
}

func lessonGroup(lessonID attendance.LessonID) string {
	return access.LiveLesson(lessonID.String()).String()
}
