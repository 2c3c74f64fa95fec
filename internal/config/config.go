package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Email provider identifiers accepted by EMAIL_PROVIDER.
const (
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"
	EmailProviderStub     = "stub"
)

// DefaultAllowedOrigins is the closed CORS allow-list for the dashboard
// deployments.
var DefaultAllowedOrigins = []string{
	"https://stream-benchmark.pages.dev",
	"https://benchmark.caliudata.com",
	"https://app.caliudata.com",
	"https://caliudata.com",
}

// DefaultFallbackOrigin is returned for absent or unlisted origins.
const DefaultFallbackOrigin = "https://benchmark.caliudata.com"

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Bot verification
	TurnstileSecretKey string
	TurnstileVerifyURL string
	RecaptchaSecretKey string
	RecaptchaVerifyURL string
	VerifierTimeout    time.Duration

	// Lead email delivery
	EmailProvider  string
	SendGridAPIKey string
	SendGridHost   string
	FromEmail      string
	FromName       string
	ToEmail        string
	EmailTimeout   time.Duration

	// AWS (SES provider)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// HTTP surface
	CORSAllowedOrigins []string
	CORSFallbackOrigin string
	StrictStatusCodes  bool
	MaxBodyBytes       int64
	MetricsEnabled     bool

	// Optional per-IP rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		TurnstileSecretKey: getEnv("TURNSTILE_SECRET_KEY", ""),
		TurnstileVerifyURL: getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		RecaptchaSecretKey: getEnv("RECAPTCHA_SECRET_KEY", ""),
		RecaptchaVerifyURL: getEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
		VerifierTimeout:    getEnvAsDuration("VERIFIER_TIMEOUT", 5*time.Second),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", EmailProviderSendGrid))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		SendGridHost:   getEnv("SENDGRID_HOST", ""),
		FromEmail:      getEnv("FROM_EMAIL", "info@caliudata.com"),
		FromName:       getEnv("FROM_NAME", "Caliu Benchmark"),
		ToEmail:        getEnv("TO_EMAIL", ""),
		EmailTimeout:   getEnvAsDuration("EMAIL_TIMEOUT", 10*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", DefaultAllowedOrigins),
		CORSFallbackOrigin: getEnv("CORS_FALLBACK_ORIGIN", DefaultFallbackOrigin),
		StrictStatusCodes:  getEnvAsBool("STRICT_STATUS_CODES", false),
		MaxBodyBytes:       int64(getEnvAsInt("MAX_BODY_BYTES", 64<<10)),
		MetricsEnabled:     getEnvAsBool("METRICS_ENABLED", true),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 5),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
	}
}

// Validate reports every missing required setting at once so a misconfigured
// deployment fails at startup rather than on the first submission.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TurnstileSecretKey) == "" {
		errs = append(errs, errors.New("TURNSTILE_SECRET_KEY is required"))
	}
	if strings.TrimSpace(c.RecaptchaSecretKey) == "" {
		errs = append(errs, errors.New("RECAPTCHA_SECRET_KEY is required"))
	}
	if strings.TrimSpace(c.ToEmail) == "" {
		errs = append(errs, errors.New("TO_EMAIL is required"))
	}
	if strings.TrimSpace(c.FromEmail) == "" {
		errs = append(errs, errors.New("FROM_EMAIL must not be empty"))
	}

	switch c.EmailProvider {
	case EmailProviderSendGrid:
		if strings.TrimSpace(c.SendGridAPIKey) == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required when EMAIL_PROVIDER=sendgrid"))
		}
	case EmailProviderSES:
		if strings.TrimSpace(c.AWSRegion) == "" {
			errs = append(errs, errors.New("AWS_REGION is required when EMAIL_PROVIDER=ses"))
		}
	case EmailProviderStub:
		if c.Env != "development" {
			errs = append(errs, fmt.Errorf("EMAIL_PROVIDER=stub is only allowed in development (ENV=%s)", c.Env))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}

	if c.VerifierTimeout <= 0 {
		errs = append(errs, errors.New("VERIFIER_TIMEOUT must be positive"))
	}
	if c.EmailTimeout <= 0 {
		errs = append(errs, errors.New("EMAIL_TIMEOUT must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	if strings.TrimSpace(c.CORSFallbackOrigin) == "" {
		errs = append(errs, errors.New("CORS_FALLBACK_ORIGIN must not be empty"))
	}

	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
