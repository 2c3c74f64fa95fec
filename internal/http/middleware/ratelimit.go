package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

// Limiter decides whether a request from key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimiter provides per-IP rate limiting using a token bucket algorithm.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // max tokens
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewRateLimiter creates a rate limiter allowing rate requests/sec with the
// given burst size per IP.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether the request from ip is within the rate limit.
func (rl *RateLimiter) Allow(_ context.Context, ip string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), lastTime: now}
		rl.buckets[ip] = b
	}

	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Stop ends the background eviction loop.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-10 * time.Minute)
			for ip, b := range rl.buckets {
				if b.lastTime.Before(cutoff) {
					delete(rl.buckets, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RedisRateLimiter shares a fixed-window counter across instances. Each
// window admits burst requests and lasts burst/rate seconds.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisRateLimiter builds a limiter equivalent in average throughput to
// NewRateLimiter(rate, burst).
func NewRedisRateLimiter(client *redis.Client, rate float64, burst int) *RedisRateLimiter {
	if burst < 1 {
		burst = 1
	}
	window := time.Second
	if rate > 0 {
		window = time.Duration(math.Ceil(float64(burst)/rate*1000)) * time.Millisecond
	}
	return &RedisRateLimiter{
		client: client,
		prefix: "caliu:leads:ratelimit",
		limit:  int64(burst),
		window: window,
		now:    time.Now,
	}
}

// Allow increments the caller's counter for the current window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	slot := rl.now().UnixMilli() / rl.window.Milliseconds()
	key := fmt.Sprintf("%s:%s:%d", rl.prefix, ip, slot)

	var incr *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.window)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("ratelimit: redis: %w", err)
	}
	return incr.Val() <= rl.limit, nil
}

// RateLimit returns an HTTP middleware that rejects requests exceeding the
// limiter with 429 Too Many Requests. Limiter errors fail open.
func RateLimit(limiter Limiter, m *metrics.LeadMetrics, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			ip := ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", "error", err)
			}
			if !allowed {
				m.ObserveRateLimited()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": "Too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller address without port. chi's RealIP middleware
// has already replaced RemoteAddr with X-Real-Ip / X-Forwarded-For when set.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
