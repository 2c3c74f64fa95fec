package mainconfig

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/caliudata/benchmark-platform/internal/config"
	httpmiddleware "github.com/caliudata/benchmark-platform/internal/http/middleware"
	"github.com/caliudata/benchmark-platform/internal/notify"
	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                "development",
		TurnstileSecretKey: "ts",
		RecaptchaSecretKey: "rc",
		EmailProvider:      appconfig.EmailProviderStub,
		FromEmail:          "info@caliudata.com",
		ToEmail:            "ops@caliudata.com",
		AWSRegion:          "us-east-1",
		CORSAllowedOrigins: appconfig.DefaultAllowedOrigins,
		CORSFallbackOrigin: appconfig.DefaultFallbackOrigin,
		RateLimitBurst:     2,
	}
}

func TestNewEmailSender(t *testing.T) {
	ctx := context.Background()
	logger := logging.New("error")
	cfg := testConfig()

	sender, err := NewEmailSender(ctx, cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.StubEmailSender{}, sender)

	cfg.EmailProvider = appconfig.EmailProviderSendGrid
	cfg.SendGridAPIKey = "SG.key"
	sender, err = NewEmailSender(ctx, cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.SendGridSender{}, sender)

	cfg.SendGridAPIKey = ""
	_, err = NewEmailSender(ctx, cfg, logger)
	assert.Error(t, err)

	cfg.EmailProvider = "carrier-pigeon"
	_, err = NewEmailSender(ctx, cfg, logger)
	assert.Error(t, err)
}

func TestNewEmailSender_SES(t *testing.T) {
	cfg := testConfig()
	cfg.EmailProvider = appconfig.EmailProviderSES
	cfg.AWSAccessKeyID = "test"
	cfg.AWSSecretAccessKey = "test"
	cfg.AWSEndpointOverride = "http://localhost:4566"

	sender, err := NewEmailSender(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	assert.IsType(t, &notify.SESSender{}, sender)
}

func TestNewPipeline(t *testing.T) {
	m := metrics.NewLeadMetrics(prometheus.NewRegistry())
	p, err := NewPipeline(context.Background(), testConfig(), m, logging.New("error"))
	require.NoError(t, err)
	require.NotNil(t, p.Handler)
	assert.Equal(t, "https://app.caliudata.com", p.Security.AllowOrigin("https://app.caliudata.com"))
	assert.Equal(t, appconfig.DefaultFallbackOrigin, p.Security.AllowOrigin("https://evil.example"))
}

func TestNewLimiter(t *testing.T) {
	ctx := context.Background()
	logger := logging.New("error")
	cfg := testConfig()

	limiter, closeFn, err := NewLimiter(ctx, cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, limiter)
	closeFn()

	cfg.RateLimitRPS = 1
	limiter, closeFn, err = NewLimiter(ctx, cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &httpmiddleware.RateLimiter{}, limiter)
	closeFn()

	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	limiter, closeFn, err = NewLimiter(ctx, cfg, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &httpmiddleware.RedisRateLimiter{}, limiter)

	allowed, err := limiter.Allow(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNewLimiter_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 1
	cfg.RedisAddr = "127.0.0.1:1"

	_, closeFn, err := NewLimiter(context.Background(), cfg, logging.New("error"))
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
