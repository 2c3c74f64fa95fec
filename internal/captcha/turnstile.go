package captcha

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TurnstileEndpoint is Cloudflare's siteverify URL.
const TurnstileEndpoint = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// TurnstileVerifier is the binary pass/fail challenge check.
type TurnstileVerifier struct {
	client *siteVerifyClient
}

// NewTurnstileVerifier builds a verifier bound to the server-side secret.
func NewTurnstileVerifier(cfg Config) *TurnstileVerifier {
	return &TurnstileVerifier{
		client: newSiteVerifyClient(ProviderTurnstile, "Turnstile", TurnstileEndpoint, cfg),
	}
}

var _ Verifier = (*TurnstileVerifier)(nil)

// Verify fails with ErrBotCheckFailed when Cloudflare reports success=false.
func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "captcha.turnstile.verify")
	defer span.End()

	start := time.Now()
	result, err := v.verify(ctx, token, remoteIP)
	v.client.record(start, result, err)

	span.SetAttributes(attribute.String("caliu.captcha.outcome", Outcome(err)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (v *TurnstileVerifier) verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	result, err := v.client.post(ctx, token, remoteIP)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, v.client.rejected(joinCodes("Turnstile validation failed", result.ErrorCodes), result.ErrorCodes)
	}
	return result, nil
}
