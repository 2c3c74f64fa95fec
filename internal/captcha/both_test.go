package captcha

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() Verifier {
	return VerifierFunc(func(context.Context, string, string) (*Result, error) {
		return &Result{Success: true}, nil
	})
}

func failing(kind error, msg string) Verifier {
	return VerifierFunc(func(context.Context, string, string) (*Result, error) {
		return &Result{Success: false}, &VerificationError{Kind: kind, Message: msg}
	})
}

func TestVerifyBoth_AllPass(t *testing.T) {
	out, err := VerifyBoth(context.Background(), passing(), "a", passing(), "b", "")
	require.NoError(t, err)
	assert.True(t, out.Challenge.Success)
	assert.True(t, out.Risk.Success)
}

func TestVerifyBoth_ChallengeErrorTakesPrecedence(t *testing.T) {
	_, err := VerifyBoth(context.Background(),
		failing(ErrBotCheckFailed, "challenge"), "a",
		failing(ErrBotCheckFailed, "risk"), "b", "")
	require.Error(t, err)
	assert.Equal(t, "challenge", err.Error())
}

func TestVerifyBoth_SlowChallengeErrorStillWins(t *testing.T) {
	riskDone := make(chan struct{})
	slowChallenge := VerifierFunc(func(context.Context, string, string) (*Result, error) {
		<-riskDone
		time.Sleep(10 * time.Millisecond)
		return nil, &VerificationError{Kind: ErrBotCheckFailed, Message: "challenge"}
	})
	fastRisk := VerifierFunc(func(context.Context, string, string) (*Result, error) {
		defer close(riskDone)
		return nil, &VerificationError{Kind: ErrVerifierUnavailable, Message: "risk"}
	})

	_, err := VerifyBoth(context.Background(), slowChallenge, "a", fastRisk, "b", "")
	require.Error(t, err)
	assert.Equal(t, "challenge", err.Error())
	assert.True(t, errors.Is(err, ErrBotCheckFailed))
}

func TestVerifyBoth_RiskFailure(t *testing.T) {
	_, err := VerifyBoth(context.Background(), passing(), "a", failing(ErrVerifierUnavailable, "risk down"), "b", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVerifierUnavailable))
}

func TestVerifyBoth_InvokesBothEvenWhenChallengeFails(t *testing.T) {
	var mu sync.Mutex
	var tokens []string
	record := func(ok bool) Verifier {
		return VerifierFunc(func(_ context.Context, token, _ string) (*Result, error) {
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
			if !ok {
				return nil, &VerificationError{Kind: ErrBotCheckFailed, Message: "no"}
			}
			return &Result{Success: true}, nil
		})
	}

	_, err := VerifyBoth(context.Background(), record(false), "challenge-token", record(true), "risk-token", "")
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"challenge-token", "risk-token"}, tokens)
}

func TestVerifyBoth_RunsConcurrently(t *testing.T) {
	barrier := make(chan struct{})
	var once sync.Once
	var arrived sync.WaitGroup
	arrived.Add(2)
	go func() {
		arrived.Wait()
		once.Do(func() { close(barrier) })
	}()

	wait := VerifierFunc(func(ctx context.Context, _, _ string) (*Result, error) {
		arrived.Done()
		select {
		case <-barrier:
			return &Result{Success: true}, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("verifiers did not overlap")
		}
	})

	_, err := VerifyBoth(context.Background(), wait, "a", wait, "b", "")
	require.NoError(t, err)
}
