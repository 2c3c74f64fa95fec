package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliudata/benchmark-platform/internal/captcha"
	httpmiddleware "github.com/caliudata/benchmark-platform/internal/http/middleware"
	"github.com/caliudata/benchmark-platform/internal/leads"
	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

const testOrigin = "https://benchmark.caliudata.com"

type captureDispatcher struct {
	mu   sync.Mutex
	subs []*leads.Submission
}

func (d *captureDispatcher) Dispatch(ctx context.Context, sub *leads.Submission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, sub)
	return nil
}

func pass() captcha.Verifier {
	return captcha.VerifierFunc(func(ctx context.Context, token, remoteIP string) (*captcha.Result, error) {
		return &captcha.Result{Success: true}, nil
	})
}

type routerFixture struct {
	handler    http.Handler
	dispatcher *captureDispatcher
}

func newTestRouter(t *testing.T, limiter httpmiddleware.Limiter) routerFixture {
	t.Helper()

	logger := logging.New("error")
	reg := prometheus.NewRegistry()
	m := metrics.NewLeadMetrics(reg)
	security := httpmiddleware.NewSecurityHeaders([]string{testOrigin}, testOrigin)
	d := &captureDispatcher{}

	leadsHandler := leads.NewHandler(leads.HandlerConfig{
		Challenge:  pass(),
		Risk:       pass(),
		Dispatcher: d,
		Security:   security,
		Metrics:    m,
		Logger:     logger,
	})

	return routerFixture{
		handler: New(&Config{
			Logger:       logger,
			LeadsHandler: leadsHandler,
			Security:     security,
			Limiter:      limiter,
			Metrics:      m,
			Gatherer:     reg,
		}),
		dispatcher: d,
	}
}

func submitBody() []byte {
	return []byte(`{"email":"a@b.com","turnstileToken":"t","recaptchaToken":"r"}`)
}

func TestRouterHealthEndpoint(t *testing.T) {
	f := newTestRouter(t, nil)

	for _, path := range []string{"/", "/health"} {
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, rr.Code, path)
		var resp map[string]string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "ok", resp["status"], path)
		assert.Equal(t, "Worker is running", resp["message"], path)
	}
}

func TestRouterSubmit(t *testing.T) {
	f := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(submitBody()))
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"Lead captured successfully"}`, rr.Body.String())
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"Origin"}, rr.Header().Values("Vary"))
	require.Len(t, f.dispatcher.subs, 1)
	assert.Equal(t, "198.51.100.9", f.dispatcher.subs[0].RemoteIP)
}

func TestRouterPreflight(t *testing.T) {
	f := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestRouterMethodNotAllowed(t *testing.T) {
	f := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.JSONEq(t, `{"success":false,"message":"Method not allowed"}`, rr.Body.String())
}

func TestRouterMetricsAndStatus(t *testing.T) {
	f := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(submitBody())))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.True(t, strings.Contains(string(body), `caliu_leads_submissions_total{outcome="captured"} 1`))

	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var status statusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 1.0, status.Submissions.Total)
	assert.Equal(t, []string{"captured"}, status.Submissions.Outcomes)
}

func TestRouterRateLimit(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	defer limiter.Stop()
	f := newTestRouter(t, limiter)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(submitBody()))
		req.RemoteAddr = "203.0.113.50:1000"
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
	assert.Len(t, f.dispatcher.subs, 1)

	// Status and metrics stay reachable when the lead route is throttled.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "203.0.113.50:1000"
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterLeadsPath(t *testing.T) {
	f := newTestRouter(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/leads", bytes.NewReader(submitBody())).WithContext(ctx)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
