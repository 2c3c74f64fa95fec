package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpmiddleware "github.com/caliudata/benchmark-platform/internal/http/middleware"
	"github.com/caliudata/benchmark-platform/internal/leads"
	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger       *logging.Logger
	LeadsHandler *leads.Handler
	Security     *httpmiddleware.SecurityHeaders

	// Limiter is optional; nil disables per-IP rate limiting.
	Limiter httpmiddleware.Limiter
	Metrics *metrics.LeadMetrics

	// Gatherer backs /metrics and /status. Nil hides both.
	Gatherer prometheus.Gatherer
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Security == nil {
		cfg.Security = httpmiddleware.NewSecurityHeaders(nil, "")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(httpmiddleware.Secure(cfg.Security))

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
		r.Get("/status", statusHandler(cfg.Gatherer, cfg.Logger))
	}

	// The lead endpoint answers every verb itself: OPTIONS preflight, GET
	// health, POST submit, 405 otherwise.
	r.Group(func(leadRoutes chi.Router) {
		if cfg.Limiter != nil {
			leadRoutes.Use(httpmiddleware.RateLimit(cfg.Limiter, cfg.Metrics, cfg.Logger))
		}
		leadRoutes.Handle("/", cfg.LeadsHandler)
		leadRoutes.Handle("/leads", cfg.LeadsHandler)
	})
	r.Get("/health", cfg.LeadsHandler.ServeHTTP)

	return r
}

type statusResponse struct {
	Status      string                     `json:"status"`
	Timestamp   string                     `json:"timestamp"`
	Submissions metrics.SubmissionSnapshot `json:"submissions"`
}

func statusHandler(gatherer prometheus.Gatherer, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := metrics.SnapshotSubmissions(gatherer)
		if err != nil {
			logger.Error("failed to gather submission metrics", "error", err)
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Submissions: snap,
		})
	}
}
