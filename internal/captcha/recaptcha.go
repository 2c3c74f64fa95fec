package captcha

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RecaptchaEndpoint is Google's siteverify URL.
const RecaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// MinRecaptchaScore is the lowest score accepted. Scores strictly below it
// are treated as automated traffic.
const MinRecaptchaScore = 0.5

// SuspiciousActivityMessage is reported when the token is valid but scored low.
const SuspiciousActivityMessage = "Invalid reCAPTCHA token or suspicious activity"

// RecaptchaVerifier is the risk-scored check.
type RecaptchaVerifier struct {
	client *siteVerifyClient
}

// NewRecaptchaVerifier builds a verifier bound to the server-side secret.
func NewRecaptchaVerifier(cfg Config) *RecaptchaVerifier {
	return &RecaptchaVerifier{
		client: newSiteVerifyClient(ProviderRecaptcha, "reCAPTCHA", RecaptchaEndpoint, cfg),
	}
}

var _ Verifier = (*RecaptchaVerifier)(nil)

// Verify fails with ErrBotCheckFailed when Google reports success=false or
// the score is below MinRecaptchaScore. A missing score fails closed.
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "captcha.recaptcha.verify")
	defer span.End()

	start := time.Now()
	result, err := v.verify(ctx, token, remoteIP)
	v.client.record(start, result, err)

	span.SetAttributes(attribute.String("caliu.captcha.outcome", Outcome(err)))
	if result != nil && result.Score != nil {
		span.SetAttributes(attribute.Float64("caliu.captcha.score", *result.Score))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (v *RecaptchaVerifier) verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	result, err := v.client.post(ctx, token, remoteIP)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, v.client.rejected(joinCodes("reCAPTCHA validation failed", result.ErrorCodes), result.ErrorCodes)
	}
	if result.Score == nil || *result.Score < MinRecaptchaScore {
		return result, v.client.rejected(SuspiciousActivityMessage, result.ErrorCodes)
	}
	return result, nil
}
