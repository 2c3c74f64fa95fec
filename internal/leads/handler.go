package leads

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caliudata/benchmark-platform/internal/captcha"
	httpmiddleware "github.com/caliudata/benchmark-platform/internal/http/middleware"
	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

const defaultMaxBodyBytes = 64 << 10

// outcomeCaptured labels successful submissions in metrics.
const outcomeCaptured = "captured"

// Dispatcher delivers a verified submission to the operator.
type Dispatcher interface {
	Dispatch(ctx context.Context, sub *Submission) error
}

// Request is the transport-neutral view of an inbound call.
type Request struct {
	Method   string
	Origin   string
	RemoteIP string
	Body     []byte
}

// Response is the transport-neutral reply. Body is nil for preflight.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// HandlerConfig wires the handler's collaborators.
type HandlerConfig struct {
	Challenge         captcha.Verifier
	Risk              captcha.Verifier
	Dispatcher        Dispatcher
	Security          *httpmiddleware.SecurityHeaders
	StrictStatusCodes bool
	MaxBodyBytes      int64
	Metrics           *metrics.LeadMetrics
	Logger            *logging.Logger
	Now               func() time.Time
}

// Handler runs the lead-capture pipeline: validate, verify both tokens,
// dispatch the notification, respond.
type Handler struct {
	challenge    captcha.Verifier
	risk         captcha.Verifier
	dispatcher   Dispatcher
	security     *httpmiddleware.SecurityHeaders
	strict       bool
	maxBodyBytes int64
	metrics      *metrics.LeadMetrics
	logger       *logging.Logger
	now          func() time.Time
}

// NewHandler creates a new leads handler
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Challenge == nil || cfg.Risk == nil || cfg.Dispatcher == nil {
		panic("leads: verifiers and dispatcher required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Security == nil {
		cfg.Security = httpmiddleware.NewSecurityHeaders(nil, "")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		challenge:    cfg.Challenge,
		risk:         cfg.Risk,
		dispatcher:   cfg.Dispatcher,
		security:     cfg.Security,
		strict:       cfg.StrictStatusCodes,
		maxBodyBytes: cfg.MaxBodyBytes,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Handle processes one request to completion. Every response carries the
// security header set.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	headers := h.security.Headers(req.Origin)

	switch strings.ToUpper(strings.TrimSpace(req.Method)) {
	case http.MethodOptions:
		return Response{Status: http.StatusOK, Headers: headers}
	case http.MethodGet:
		return h.json(http.StatusOK, headers, healthResponse{
			Status:    "ok",
			Message:   "Worker is running",
			Timestamp: h.now().UTC().Format(timestampLayout),
		})
	case http.MethodPost:
	default:
		h.metrics.ObserveSubmission(string(KindMethodNotAllowed))
		return h.json(http.StatusMethodNotAllowed, headers, submitResponse{Success: false, Message: MsgMethodNotAllowed})
	}

	if err := h.submit(ctx, req); err != nil {
		return h.failure(headers, err)
	}

	h.metrics.ObserveSubmission(outcomeCaptured)
	return h.json(http.StatusOK, headers, submitResponse{Success: true, Message: MsgLeadCaptured})
}

func (h *Handler) submit(ctx context.Context, req Request) error {
	if int64(len(req.Body)) > h.maxBodyBytes {
		return NewError(KindValidation, MsgBodyTooLarge, nil)
	}

	sub, err := Parse(req.Body, h.now)
	if err != nil {
		return err
	}
	sub.ID = uuid.NewString()
	sub.RemoteIP = req.RemoteIP

	logger := h.logger.With("submission_id", sub.ID)
	logger.Info("lead submission received",
		"email", logging.MaskEmail(sub.Email),
		"technologies", len(sub.Technologies),
		"use_cases", len(sub.UseCases),
		"has_utm", sub.UTM != nil,
	)

	if _, err := captcha.VerifyBoth(ctx, h.challenge, sub.TurnstileToken, h.risk, sub.RecaptchaToken, sub.RemoteIP); err != nil {
		return classifyVerification(err)
	}

	if err := h.dispatcher.Dispatch(ctx, sub); err != nil {
		var perr *Error
		if errors.As(err, &perr) && perr.Kind == KindDispatch {
			return perr
		}
		return NewError(KindDispatch, MsgDispatchFailed, err)
	}

	logger.Info("lead captured", "email", logging.MaskEmail(sub.Email))
	return nil
}

func classifyVerification(err error) *Error {
	var verr *captcha.VerificationError
	message := err.Error()
	if errors.As(err, &verr) {
		message = verr.Message
	}
	if errors.Is(err, captcha.ErrBotCheckFailed) {
		return NewError(KindBotCheck, message, err)
	}
	return NewError(KindVerifierUnavailable, message, err)
}

func (h *Handler) failure(headers http.Header, err error) Response {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = NewError(KindDispatch, MsgDispatchFailed, err)
	}

	h.metrics.ObserveSubmission(string(perr.Kind))
	attrs := []any{"kind", perr.Kind, "reason", perr.Message}
	if perr.Err != nil {
		attrs = append(attrs, "error", perr.Err)
	}
	switch perr.Kind {
	case KindValidation, KindBotCheck:
		h.logger.Warn("lead submission rejected", attrs...)
	default:
		h.logger.Error("lead submission failed", attrs...)
	}

	status := http.StatusInternalServerError
	if h.strict {
		status = perr.Kind.strictStatus()
	}
	return h.json(status, headers, submitResponse{Success: false, Message: perr.Message})
}

func (h *Handler) json(status int, headers http.Header, payload any) Response {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"message":"Internal server error"}`)
	}
	headers.Set("Content-Type", "application/json")
	return Response{Status: status, Headers: headers, Body: body}
}

// ServeHTTP adapts Handle to net/http.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
		if err != nil {
			h.logger.Error("failed to read request body", "error", err)
			body = nil
		}
	}

	resp := h.Handle(r.Context(), Request{
		Method:   r.Method,
		Origin:   r.Header.Get("Origin"),
		RemoteIP: httpmiddleware.ClientIP(r),
		Body:     body,
	})
	WriteResponse(w, resp)
}

// WriteResponse copies a Response onto an http.ResponseWriter.
func WriteResponse(w http.ResponseWriter, resp Response) {
	for key, values := range resp.Headers {
		w.Header().Del(key)
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
