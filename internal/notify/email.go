package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/caliudata/benchmark-platform/pkg/logging"
)

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SendGrid, SES, stub) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To         string
	ToName     string
	ReplyTo    string
	Subject    string
	Body       string // Plain text body
	HTML       string // Optional HTML body
	Categories []string
}

// ProviderError reports a non-success answer from an email API. Its message
// carries the remote status and body so operators can diagnose rejections.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Body))
}

const sendGridMailEndpoint = "/v3/mail/send"

// SendGridSender sends emails via SendGrid API.
// Each Send builds its own request; sendgrid.Client stores the body on
// the shared request, so a client must not be reused across goroutines.
type SendGridSender struct {
	apiKey    string
	host      string
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides https://api.sendgrid.com, mainly for tests.
	Host string
}

// NewSendGridSender creates a new SendGrid email sender.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}

	return &SendGridSender{
		apiKey:    cfg.APIKey,
		host:      strings.TrimRight(cfg.Host, "/"),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.apiKey == "" {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)
	if msg.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if len(msg.Categories) > 0 {
		message.AddCategories(msg.Categories...)
	}

	response, err := s.newClient().SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return &ProviderError{Provider: "SendGrid", StatusCode: response.StatusCode, Body: response.Body}
	}

	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

func (s *SendGridSender) newClient() *sendgrid.Client {
	request := sendgrid.GetRequest(s.apiKey, sendGridMailEndpoint, s.host)
	request.Method = "POST"
	return &sendgrid.Client{Request: request}
}

// StubEmailSender is a no-op sender for local development.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send logs the email but doesn't actually send it.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject, "html_bytes", len(msg.HTML))
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
