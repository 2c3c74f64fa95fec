// Package mainconfig holds the wiring shared by the HTTP server and the
// Lambda entrypoint so both build the lead pipeline identically.
package mainconfig

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	"github.com/caliudata/benchmark-platform/internal/captcha"
	appconfig "github.com/caliudata/benchmark-platform/internal/config"
	httpmiddleware "github.com/caliudata/benchmark-platform/internal/http/middleware"
	"github.com/caliudata/benchmark-platform/internal/leads"
	"github.com/caliudata/benchmark-platform/internal/notify"
	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so both binaries share the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sesv2.ServiceID:
					return aws.Endpoint{
						URL:           endpoint,
						PartitionID:   "aws",
						SigningRegion: cfg.AWSRegion,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *appconfig.Config) *logging.Logger {
	return logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

// NewEmailSender returns the sender selected by EMAIL_PROVIDER.
func NewEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, error) {
	switch cfg.EmailProvider {
	case appconfig.EmailProviderSendGrid:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
			Host:      cfg.SendGridHost,
		}, logger)
		if sender == nil {
			return nil, fmt.Errorf("sendgrid: api key missing")
		}
		return sender, nil
	case appconfig.EmailProviderSES:
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ses: load aws config: %w", err)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger), nil
	case appconfig.EmailProviderStub:
		return notify.NewStubEmailSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
}

// Pipeline is the assembled lead-capture pipeline.
type Pipeline struct {
	Handler  *leads.Handler
	Security *httpmiddleware.SecurityHeaders
}

// NewPipeline wires verifiers, the email dispatcher and the handler.
func NewPipeline(ctx context.Context, cfg *appconfig.Config, m *metrics.LeadMetrics, logger *logging.Logger) (*Pipeline, error) {
	sender, err := NewEmailSender(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	security := httpmiddleware.NewSecurityHeaders(cfg.CORSAllowedOrigins, cfg.CORSFallbackOrigin)
	notifier := notify.NewLeadNotifier(sender, notify.LeadNotifierConfig{
		Recipient: cfg.ToEmail,
		Provider:  cfg.EmailProvider,
		Timeout:   cfg.EmailTimeout,
	}, m, logger)

	handler := leads.NewHandler(leads.HandlerConfig{
		Challenge: captcha.NewTurnstileVerifier(captcha.Config{
			Secret:   cfg.TurnstileSecretKey,
			Endpoint: cfg.TurnstileVerifyURL,
			Timeout:  cfg.VerifierTimeout,
			Logger:   logger,
			Metrics:  m,
		}),
		Risk: captcha.NewRecaptchaVerifier(captcha.Config{
			Secret:   cfg.RecaptchaSecretKey,
			Endpoint: cfg.RecaptchaVerifyURL,
			Timeout:  cfg.VerifierTimeout,
			Logger:   logger,
			Metrics:  m,
		}),
		Dispatcher:        notifier,
		Security:          security,
		StrictStatusCodes: cfg.StrictStatusCodes,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		Metrics:           m,
		Logger:            logger,
	})

	return &Pipeline{Handler: handler, Security: security}, nil
}

// NewLimiter returns the per-IP limiter, or nil when RATE_LIMIT_RPS is not
// positive. REDIS_ADDR selects the shared Redis limiter. The returned close
// func is never nil.
func NewLimiter(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (httpmiddleware.Limiter, func(), error) {
	if cfg.RateLimitRPS <= 0 {
		return nil, func() {}, nil
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		opts := &redis.Options{Addr: addr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, func() {}, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("rate limiting via redis", "addr", addr, "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
		return httpmiddleware.NewRedisRateLimiter(client, cfg.RateLimitRPS, cfg.RateLimitBurst), func() { _ = client.Close() }, nil
	}

	logger.Info("rate limiting in memory", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	return limiter, limiter.Stop, nil
}
