package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/caliudata/benchmark-platform/internal/leads"
	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

var notifyTracer = otel.Tracer("caliu.internal.notify")

// Sender identity defaults.
const (
	DefaultFromName  = "Caliu Benchmark"
	DefaultFromEmail = "info@caliudata.com"
	LeadSubject      = "New Lead Capture - Caliu Benchmark Platform"
	leadCategory     = "lead-capture"
)

// LeadNotifierConfig configures lead notification emails.
type LeadNotifierConfig struct {
	Recipient string
	Provider  string // metrics label, e.g. "sendgrid"
	Timeout   time.Duration
	Location  *time.Location
}

// LeadNotifier emails each captured lead to the operator. It makes exactly
// one send attempt per lead.
type LeadNotifier struct {
	email     EmailSender
	recipient string
	provider  string
	timeout   time.Duration
	renderer  *leadRenderer
	metrics   *metrics.LeadMetrics
	logger    *logging.Logger
}

// NewLeadNotifier creates the lead email dispatcher.
func NewLeadNotifier(email EmailSender, cfg LeadNotifierConfig, m *metrics.LeadMetrics, logger *logging.Logger) *LeadNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Provider == "" {
		cfg.Provider = "unknown"
	}
	return &LeadNotifier{
		email:     email,
		recipient: strings.TrimSpace(cfg.Recipient),
		provider:  cfg.Provider,
		timeout:   cfg.Timeout,
		renderer:  newLeadRenderer(cfg.Location),
		metrics:   m,
		logger:    logger,
	}
}

var _ leads.Dispatcher = (*LeadNotifier)(nil)

// Dispatch renders the lead email and sends it. Every failure is returned as
// a leads dispatch error.
func (n *LeadNotifier) Dispatch(ctx context.Context, sub *leads.Submission) error {
	if n.email == nil {
		return leads.NewError(leads.KindDispatch, "Email delivery is not configured", errors.New("notify: email sender missing"))
	}
	if n.recipient == "" {
		return leads.NewError(leads.KindDispatch, "Email delivery is not configured", errors.New("notify: recipient missing"))
	}

	ctx, span := notifyTracer.Start(ctx, "notify.lead.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("caliu.submission_id", sub.ID),
		attribute.String("caliu.email.provider", n.provider),
	)

	html, text, err := n.renderer.render(sub)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return leads.NewError(leads.KindDispatch, leads.MsgDispatchFailed, fmt.Errorf("notify: render lead email: %w", err))
	}

	msg := EmailMessage{
		To:         n.recipient,
		Subject:    LeadSubject,
		Body:       text,
		HTML:       html,
		Categories: []string{leadCategory},
	}
	// Reply-To lets the operator answer the lead directly; skip it when the
	// submitted address would not survive header encoding.
	if addr, err := mail.ParseAddress(sub.Email); err == nil {
		msg.ReplyTo = addr.Address
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	err = n.email.Send(sendCtx, msg)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		n.metrics.ObserveDispatch(n.provider, "failed", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		n.logger.Error("notify: failed to send lead email", "error", err, "submission_id", sub.ID, "provider", n.provider)

		message := leads.MsgDispatchFailed
		var perr *ProviderError
		if errors.As(err, &perr) {
			message = perr.Error()
		} else if errors.Is(err, context.DeadlineExceeded) {
			message = "Email delivery timed out"
		}
		return leads.NewError(leads.KindDispatch, message, err)
	}

	n.metrics.ObserveDispatch(n.provider, "sent", elapsed)
	n.logger.Info("notify: lead email sent", "submission_id", sub.ID, "provider", n.provider)
	return nil
}
