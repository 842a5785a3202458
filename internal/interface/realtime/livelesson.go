package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lumena-hub/lumena-platform/internal/application/presence"
	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/attendance"
)

// LiveLessonChannel serves a live lesson: attendance spans on open and close,
// audience questions, and poll response relay.
type LiveLessonChannel struct {
	presence *presence.Service
	logger   *slog.Logger
}

// NewLiveLessonChannel creates the live-lesson channel.
func NewLiveLessonChannel(svc *presence.Service, logger *slog.Logger) (*LiveLessonChannel, error) {
	if svc == nil {
		return nil, errors.New("realtime: presence service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveLessonChannel{presence: svc, logger: logger}, nil
}

// Kind returns the resource kind this channel serves.
func (c *LiveLessonChannel) Kind() access.ResourceKind {
	return access.KindLiveLesson
}

// OnOpen records the attendance join. A failed span write refuses the
// connection: attendance is the durable record of the lesson.
func (c *LiveLessonChannel) OnOpen(ctx context.Context, sess *Session) error {
	_, err := c.presence.Join(ctx, c.lessonID(sess), sess.Identity)
	return err
}

// OnMessage handles questions and poll responses.
func (c *LiveLessonChannel) OnMessage(ctx context.Context, sess *Session, env Envelope) error {
	switch env.Type {
	case "question":
		if _, err := c.presence.Question(ctx, c.lessonID(sess), sess.Identity, env.Text); err != nil {
			return WithCode("question_failed", err)
		}
		return nil

	case "poll_response":
		if err := c.presence.PollResponse(ctx, c.lessonID(sess), sess.Identity, env.PollID, env.OptionID); err != nil {
			return WithCode("bad_request", err)
		}
		return nil

	default:
		c.logger.Debug("live lesson: ignoring envelope", "conn", sess.ConnID(), "type", env.Type)
		return nil
	}
}

// OnClose records the attendance leave. Close failures only log; the stale
// span sweeper picks up anything missed here.
func (c *LiveLessonChannel) OnClose(ctx context.Context, sess *Session) {
	if err := c.presence.Leave(ctx, c.lessonID(sess), sess.Identity); err != nil {
		c.logger.Error("live lesson: leave failed",
			"conn", sess.ConnID(), "lesson", sess.Resource.ID, "error", err)
	}
}

func (c *LiveLessonChannel) lessonID(sess *Session) attendance.LessonID {
	return attendance.LessonID(sess.Resource.ID)
}
