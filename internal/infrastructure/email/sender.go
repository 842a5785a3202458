// Package email implements the email channel for notifications. Email is a
// secondary, best-effort delivery path: the durable notification row and the
// real-time push never depend on it.
package email

import (
	"context"
	"fmt"
	"log/slog"
)

// Message is one outbound email.
type Message struct {
	// ToName is the recipient's display name.
	ToName string

	// ToAddress is the recipient's email address.
	ToAddress string

	// Subject is the email subject, without the app prefix.
	Subject string

	// TextBody is the plain-text body.
	TextBody string

	// HTMLBody is the optional HTML body.
	HTMLBody string
}

// Sender delivers email messages. Implementations must be safe for concurrent
// use; failures are reported to the caller, which decides whether to swallow
// them.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSOLE SENDER
// ══════════════════════════════════════════════════════════════════════════════

// ConsoleSender logs messages instead of delivering them. Used in development
// and as the fallback when no provider is configured.
type ConsoleSender struct {
	subjPrefix string
	logger     *slog.Logger
}

// NewConsoleSender creates a sender that writes to the log.
func NewConsoleSender(appName string, logger *slog.Logger) *ConsoleSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSender{
		subjPrefix: "[" + appName + "] ",
		logger:     logger,
	}
}

// Send logs the message.
func (s *ConsoleSender) Send(_ context.Context, msg Message) error {
	if msg.ToAddress == "" {
		return fmt.Errorf("email: message has no recipient")
	}

	s.logger.Info("email (console)",
		"to", fmt.Sprintf("%s <%s>", msg.ToName, msg.ToAddress),
		"subject", s.subjPrefix+msg.Subject,
		"body", msg.TextBody,
	)
	return nil
}
