package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lumena-hub/lumena-platform/pkg/circuitbreaker"
	"github.com/lumena-hub/lumena-platform/pkg/retry"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// ══════════════════════════════════════════════════════════════════════════════
// SENDGRID SENDER
// ══════════════════════════════════════════════════════════════════════════════

// SendGridSender delivers email through the SendGrid API, wrapped in a circuit
// breaker so a provider outage cannot pile up goroutines in the notify path.
type SendGridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// SendGridConfig contains configuration for SendGridSender.
type SendGridConfig struct {
	// APIKey is the SendGrid API key.
	APIKey string

	// FromName is the sender display name.
	FromName string

	// FromAddress is the sender address.
	FromAddress string

	// AppName prefixes every subject line.
	AppName string

	// Logger for structured logging.
	Logger *slog.Logger
}

// NewSendGridSender creates a new SendGridSender.
func NewSendGridSender(cfg SendGridConfig) (*SendGridSender, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("email: sendgrid API key is required")
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("email: sender address is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &SendGridSender{
		key:        cfg.APIKey,
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		subjPrefix: "[" + cfg.AppName + "] ",
		breaker:    circuitbreaker.New("sendgrid"),
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithRetryIf(retry.IsRetryable),
		),
		logger: cfg.Logger,
	}, nil
}

// Send delivers one message through SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if msg.ToAddress == "" {
		return fmt.Errorf("email: message has no recipient")
	}

	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return s.send(msg)
		})
	})
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextBody))
	if msg.HTMLBody != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLBody))
	}

	return m
}

func (s *SendGridSender) send(msg Message) error {
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("email: sendgrid request: %w", err))
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return retry.Retryable(fmt.Errorf("email: sendgrid status %d: %s", res.StatusCode, res.Body))
	}
	if res.StatusCode >= http.StatusBadRequest {
		// Client errors will not heal on retry.
		return retry.Permanent(fmt.Errorf("email: sendgrid status %d: %s", res.StatusCode, res.Body))
	}

	return nil
}
