// Package realtime implements the connection gateway: the long-lived
// connection lifecycle, channel routing, and the client-facing message
// protocol. The gateway owns connections; group membership lives in the
// registry and durable state in the application services.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// INBOUND ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// Envelope is the frame every client message arrives in. The operation is
// selected by "type" or, on personal and live-lesson channels, by "action"
// (mark_read, mark_all_read, question, poll_response); the remaining fields
// are operation-specific and ignored by operations that do not use them.
type Envelope struct {
	Type string `json:"type"`

	// Action is the discriminator personal and live-lesson clients send.
	// ParseEnvelope folds it into Type.
	Action string `json:"action,omitempty"`

	// Notification operations.
	NotificationID string `json:"notification_id,omitempty"`

	// Chat operations.
	Content  string `json:"content,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`

	// Live-lesson operations.
	Text     string `json:"text,omitempty"`
	PollID   string `json:"poll_id,omitempty"`
	OptionID string `json:"option_id,omitempty"`
}

// ParseEnvelope decodes one inbound frame.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("realtime: malformed envelope: %w", err)
	}
	if env.Type == "" {
		env.Type = env.Action
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("realtime: envelope has no type or action")
	}
	return env, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOUND FRAMES
// ══════════════════════════════════════════════════════════════════════════════

// ErrorPayload is sent to a client whose request failed.
type ErrorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeError serializes an error frame.
func EncodeError(code, message string) []byte {
	data, err := json.Marshal(ErrorPayload{Type: "error", Code: code, Message: message})
	if err != nil {
		return []byte(`{"type":"error","code":"internal","message":"internal error"}`)
	}
	return data
}

// pongFrame answers a client ping.
var pongFrame = []byte(`{"type":"pong"}`)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTES
// ══════════════════════════════════════════════════════════════════════════════

// ParseRoute maps a connection path to the resource kind and ID it targets.
// Accepted forms: "personal", "discussion/{id}", "live-lesson/{id}".
// Leading and trailing slashes are tolerated.
func ParseRoute(path string) (kind, id string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "personal":
		return "personal", "", nil
	case len(parts) == 2 && parts[0] == "discussion" && parts[1] != "":
		return "discussion", parts[1], nil
	case len(parts) == 2 && parts[0] == "live-lesson" && parts[1] != "":
		return "live-lesson", parts[1], nil
	default:
		return "", "", fmt.Errorf("realtime: unknown route %q", path)
	}
}
