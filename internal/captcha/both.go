package captcha

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcomes carries the per-provider results of VerifyBoth. A result may be
// nil when its provider was unavailable.
type Outcomes struct {
	Challenge *Result
	Risk      *Result
}

// VerifyBoth runs the challenge and risk verifiers concurrently and waits
// for both. Neither call is cancelled by the other failing. When both fail
// the challenge error wins, so callers see what a sequential
// challenge-then-risk check would have reported.
func VerifyBoth(ctx context.Context, challenge Verifier, challengeToken string, risk Verifier, riskToken string, remoteIP string) (Outcomes, error) {
	var (
		out                   Outcomes
		challengeErr, riskErr error
		g                     errgroup.Group
	)

	g.Go(func() error {
		out.Challenge, challengeErr = challenge.Verify(ctx, challengeToken, remoteIP)
		return challengeErr
	})
	g.Go(func() error {
		out.Risk, riskErr = risk.Verify(ctx, riskToken, remoteIP)
		return riskErr
	})
	// Wait reports whichever failure finished first; precedence is
	// decided below once both calls are done.
	if err := g.Wait(); err == nil {
		return out, nil
	}

	if challengeErr != nil {
		return out, challengeErr
	}
	return out, riskErr
}
