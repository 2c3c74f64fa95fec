// Package captcha verifies client-issued anti-bot tokens against the
// Cloudflare Turnstile and Google reCAPTCHA siteverify endpoints.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

var tracer = otel.Tracer("caliu.internal.captcha")

// Provider names used in errors, logs and metric labels.
const (
	ProviderTurnstile = "turnstile"
	ProviderRecaptcha = "recaptcha"
)

const (
	defaultTimeout   = 5 * time.Second
	maxResponseBytes = 64 << 10
)

var (
	// ErrBotCheckFailed is returned when a provider rejects the token or score.
	ErrBotCheckFailed = errors.New("captcha: bot check failed")

	// ErrVerifierUnavailable is returned when a provider cannot be reached or
	// answers with something that is not a siteverify response.
	ErrVerifierUnavailable = errors.New("captcha: verifier unavailable")
)

// Verifier checks a single token with one provider.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*Result, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token, remoteIP string) (*Result, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	return f(ctx, token, remoteIP)
}

// Result is the decoded siteverify response.
type Result struct {
	Success     bool     `json:"success"`
	Score       *float64 `json:"score,omitempty"`
	Action      string   `json:"action,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// VerificationError describes a failed verification. Kind is one of
// ErrBotCheckFailed or ErrVerifierUnavailable.
type VerificationError struct {
	Provider string
	Kind     error
	Message  string
	Codes    []string
	Cause    error
}

func (e *VerificationError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *VerificationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Config configures a siteverify-backed verifier.
type Config struct {
	Secret     string
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	Metrics    *metrics.LeadMetrics
}

// siteVerifyClient posts tokens to a siteverify endpoint. Turnstile and
// reCAPTCHA share the same request shape.
type siteVerifyClient struct {
	provider   string
	label      string
	endpoint   string
	secret     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.LeadMetrics
}

func newSiteVerifyClient(provider, label, defaultEndpoint string, cfg Config) *siteVerifyClient {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &siteVerifyClient{
		provider:   provider,
		label:      label,
		endpoint:   endpoint,
		secret:     cfg.Secret,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// siteVerifyResponse mirrors Result but keeps success nullable so a body
// without it is treated as malformed instead of as a rejection.
type siteVerifyResponse struct {
	Success     *bool    `json:"success"`
	Score       *float64 `json:"score"`
	Action      string   `json:"action"`
	Hostname    string   `json:"hostname"`
	ChallengeTS string   `json:"challenge_ts"`
	ErrorCodes  []string `json:"error-codes"`
}

func (c *siteVerifyClient) post(ctx context.Context, token, remoteIP string) (*Result, error) {
	if strings.TrimSpace(c.secret) == "" {
		return nil, c.unavailable(errors.New("secret not configured"))
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, c.unavailable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.unavailable(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.unavailable(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.unavailable(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var decoded siteVerifyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, c.unavailable(fmt.Errorf("decode response: %w", err))
	}
	if decoded.Success == nil {
		return nil, c.unavailable(errors.New("response missing success field"))
	}

	return &Result{
		Success:     *decoded.Success,
		Score:       decoded.Score,
		Action:      decoded.Action,
		Hostname:    decoded.Hostname,
		ChallengeTS: decoded.ChallengeTS,
		ErrorCodes:  decoded.ErrorCodes,
	}, nil
}

func (c *siteVerifyClient) unavailable(cause error) *VerificationError {
	return &VerificationError{
		Provider: c.provider,
		Kind:     ErrVerifierUnavailable,
		Message:  c.label + " verification is temporarily unavailable",
		Cause:    cause,
	}
}

func (c *siteVerifyClient) rejected(message string, codes []string) *VerificationError {
	return &VerificationError{
		Provider: c.provider,
		Kind:     ErrBotCheckFailed,
		Message:  message,
		Codes:    codes,
	}
}

// record logs and counts a finished verification.
func (c *siteVerifyClient) record(start time.Time, result *Result, err error) {
	outcome := Outcome(err)
	c.metrics.ObserveVerification(c.provider, outcome, time.Since(start).Seconds())

	switch {
	case err == nil:
		c.logger.Debug("captcha verification passed", "provider", c.provider, "hostname", result.Hostname)
	case errors.Is(err, ErrVerifierUnavailable):
		cause := err
		var verr *VerificationError
		if errors.As(err, &verr) && verr.Cause != nil {
			cause = verr.Cause
		}
		c.logger.Error("captcha verifier unavailable", "provider", c.provider, "error", cause)
	default:
		var verr *VerificationError
		if errors.As(err, &verr) {
			c.logger.Warn("captcha verification rejected", "provider", c.provider, "error_codes", verr.Codes, "reason", verr.Message)
		}
	}
}

// Outcome classifies a verification error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "passed"
	case errors.Is(err, ErrBotCheckFailed):
		return "rejected"
	default:
		return "unavailable"
	}
}

func joinCodes(prefix string, codes []string) string {
	if len(codes) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(codes, ", ")
}
