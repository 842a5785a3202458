package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/application/notify"
	"github.com/lumena-hub/lumena-platform/internal/domain/attendance"
	"github.com/lumena-hub/lumena-platform/internal/domain/discussion"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/domain/notification"
	"github.com/lumena-hub/lumena-platform/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROOT & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot handles the root endpoint.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "The requested resource was not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "lumena-realtime",
		"version": "v1",
		"status":  "running",
		"uptime":  s.Uptime().Round(time.Second).String(),
	})
}

// handleHealth returns the full health status of the service.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"message": "No health checker configured",
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, status)
}

// handleReady returns readiness status for load balancers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}

// handleLive returns liveness status. Answering at all means the process is
// alive, so this never consults dependency checks.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"alive": true})
}

// handleMetrics returns a snapshot of the delivery counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.RegistryMetrics == nil {
		writeJSONError(w, http.StatusNotFound, "metrics_disabled", "Metrics collection is not enabled")
		return
	}

	writeJSON(w, http.StatusOK, s.deps.RegistryMetrics.Snapshot())
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// createNotificationRequest is the request body for notification creation.
type createNotificationRequest struct {
	RecipientID  string `json:"recipient_id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	CourseID     string `json:"course_id,omitempty"`
	LessonID     string `json:"lesson_id,omitempty"`
	DiscussionID string `json:"discussion_id,omitempty"`
	ActionURL    string `json:"action_url,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	SendEmail    bool   `json:"send_email,omitempty"`
}

// toParams converts the request body into service-layer parameters.
func (req createNotificationRequest) toParams() (notify.CreateParams, error) {
	params := notify.CreateParams{
		Recipient: identity.UserID(req.RecipientID),
		Type:      notification.Type(req.Type),
		Title:     req.Title,
		Message:   req.Message,
		Related: notification.RelatedRefs{
			CourseID:     req.CourseID,
			LessonID:     req.LessonID,
			DiscussionID: req.DiscussionID,
			ActionURL:    req.ActionURL,
		},
		SendEmail: req.SendEmail,
	}

	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return notify.CreateParams{}, errors.New("expires_at must be RFC 3339")
		}
		params.ExpiresAt = &t
	}

	return params, nil
}

// notificationResponse is the wire representation of a stored notification.
type notificationResponse struct {
	ID           string `json:"id"`
	RecipientID  string `json:"recipient_id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	CourseID     string `json:"course_id,omitempty"`
	LessonID     string `json:"lesson_id,omitempty"`
	DiscussionID string `json:"discussion_id,omitempty"`
	ActionURL    string `json:"action_url,omitempty"`
	IsRead       bool   `json:"is_read"`
	EmailSent    bool   `json:"email_sent"`
	CreatedAt    string `json:"created_at"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

func toNotificationResponse(n *notification.Notification) notificationResponse {
	resp := notificationResponse{
		ID:           n.ID.String(),
		RecipientID:  n.Recipient.String(),
		Type:         string(n.Type),
		Title:        n.Title,
		Message:      n.Message,
		CourseID:     n.Related.CourseID,
		LessonID:     n.Related.LessonID,
		DiscussionID: n.Related.DiscussionID,
		ActionURL:    n.Related.ActionURL,
		IsRead:       n.IsRead,
		EmailSent:    n.EmailSent,
		CreatedAt:    n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if n.ExpiresAt != nil {
		resp.ExpiresAt = n.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// handleCreateNotification stores a notification and pushes it to the
// recipient's personal group.
func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notify == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Notification service is not configured")
		return
	}

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	params, err := req.toParams()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	n, err := s.deps.Notify.Create(r.Context(), params)
	if err != nil {
		if isValidationError(err) {
			writeJSONError(w, http.StatusBadRequest, "invalid_notification", err.Error())
			return
		}
		s.logger.Error("create notification failed",
			logger.UserID(req.RecipientID),
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "create_failed", "Failed to create notification")
		return
	}

	writeJSON(w, http.StatusCreated, toNotificationResponse(n))
}

// handleBulkNotify fans a notification out to every actively enrolled student
// of a course.
func (s *Server) handleBulkNotify(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notify == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Notification service is not configured")
		return
	}

	courseID := r.PathValue("id")
	if courseID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_course_id", "Course ID is required")
		return
	}

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	params, err := req.toParams()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.Notify.BulkNotify(r.Context(), courseID, params)
	if err != nil {
		s.logger.Error("bulk notify failed",
			logger.CourseID(courseID),
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "bulk_notify_failed", "Failed to notify course")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"course_id":  courseID,
		"recipients": result.Recipients,
		"stored":     result.Stored,
		"delivered":  result.Delivered,
	})
}

// handleListUnread returns a user's unread notifications, newest first.
func (s *Server) handleListUnread(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notify == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Notification service is not configured")
		return
	}

	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_user_id", "User ID is required")
		return
	}

	limit := getQueryParamInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	unread, err := s.deps.Notify.ListUnread(r.Context(), identity.UserID(userID), limit)
	if err != nil {
		s.logger.Error("list unread failed",
			logger.UserID(userID),
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "list_failed", "Failed to list notifications")
		return
	}

	items := make([]notificationResponse, 0, len(unread))
	for _, n := range unread {
		items = append(items, toNotificationResponse(n))
	}

	writeJSONWithMeta(w, r, http.StatusOK, items, &ResponseMeta{TotalCount: len(items)})
}

// ══════════════════════════════════════════════════════════════════════════════
// DISCUSSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// replyResponse is the wire representation of a discussion reply.
type replyResponse struct {
	ID                string `json:"id"`
	DiscussionID      string `json:"discussion_id"`
	AuthorID          string `json:"author_id"`
	Content           string `json:"content"`
	ParentID          string `json:"parent_id,omitempty"`
	IsSolution        bool   `json:"is_solution"`
	IsInstructorReply bool   `json:"is_instructor_reply"`
	Upvotes           int    `json:"upvotes"`
	CreatedAt         string `json:"created_at"`
}

func toReplyResponse(reply *discussion.Reply) replyResponse {
	return replyResponse{
		ID:                reply.ID.String(),
		DiscussionID:      reply.DiscussionID.String(),
		AuthorID:          reply.Author.String(),
		Content:           reply.Content,
		ParentID:          reply.ParentID.String(),
		IsSolution:        reply.IsSolution,
		IsInstructorReply: reply.IsInstructorReply,
		Upvotes:           reply.Upvotes,
		CreatedAt:         reply.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleListReplies returns a discussion's reply history in chronological
// order, the same view a client rebuilds before attaching to the live stream.
func (s *Server) handleListReplies(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Chat service is not configured")
		return
	}

	discussionID := r.PathValue("id")
	if discussionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_discussion_id", "Discussion ID is required")
		return
	}

	limit := getQueryParamInt(r, "limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	replies, err := s.deps.Chat.History(r.Context(), discussion.DiscussionID(discussionID), limit)
	if err != nil {
		s.logger.Error("list replies failed",
			logger.DiscussionID(discussionID),
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "list_failed", "Failed to list replies")
		return
	}

	items := make([]replyResponse, 0, len(replies))
	for _, reply := range replies {
		items = append(items, toReplyResponse(reply))
	}

	writeJSONWithMeta(w, r, http.StatusOK, items, &ResponseMeta{TotalCount: len(items)})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIVE LESSON HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleLessonRoster returns the user IDs currently present in a live lesson.
func (s *Server) handleLessonRoster(w http.ResponseWriter, r *http.Request) {
	if s.deps.Presence == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Presence service is not configured")
		return
	}

	lessonID := r.PathValue("id")
	if lessonID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_lesson_id", "Lesson ID is required")
		return
	}

	roster, err := s.deps.Presence.RosterIDs(r.Context(), attendance.LessonID(lessonID))
	if err != nil {
		s.logger.Error("lesson roster failed",
			logger.LessonID(lessonID),
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "roster_failed", "Failed to load roster")
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, map[string]interface{}{
		"lesson_id": lessonID,
		"user_ids":  roster,
	}, &ResponseMeta{TotalCount: len(roster)})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// isValidationError reports whether an error from the notification service
// describes bad input rather than a failed dependency.
func isValidationError(err error) bool {
	return errors.Is(err, notification.ErrInvalidID) ||
		errors.Is(err, notification.ErrInvalidRecipient) ||
		errors.Is(err, notification.ErrInvalidType) ||
		errors.Is(err, notification.ErrEmptyMessage)
}
