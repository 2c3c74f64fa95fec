package leads

import (
	"errors"
	"net/http"
)

// Kind classifies pipeline failures. Values double as metric labels.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindBotCheck            Kind = "bot_check_failed"
	KindVerifierUnavailable Kind = "verifier_unavailable"
	KindDispatch            Kind = "dispatch_error"
	KindMethodNotAllowed    Kind = "method_not_allowed"
)

var (
	// ErrValidation matches malformed or incomplete submissions.
	ErrValidation = errors.New("leads: validation error")

	// ErrBotCheckFailed matches rejections from either anti-bot verifier.
	ErrBotCheckFailed = errors.New("leads: bot check failed")

	// ErrVerifierUnavailable matches verifier outages and malformed answers.
	ErrVerifierUnavailable = errors.New("leads: verifier unavailable")

	// ErrDispatch matches failures to deliver the notification email.
	ErrDispatch = errors.New("leads: dispatch failed")

	// ErrMethodNotAllowed matches requests with an unsupported verb.
	ErrMethodNotAllowed = errors.New("leads: method not allowed")
)

// Client-facing messages.
const (
	MsgEmailRequired         = "Email is required"
	MsgTurnstileTokenMissing = "Turnstile token missing"
	MsgRecaptchaTokenMissing = "reCAPTCHA token missing"
	MsgBodyTooLarge          = "Request body too large"
	MsgMethodNotAllowed      = "Method not allowed"
	MsgDispatchFailed        = "Failed to send lead notification"
	MsgLeadCaptured          = "Lead captured successfully"
)

// Error is a classified pipeline failure. Message is safe to return to the
// client; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError builds a classified error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindBotCheck:
		return ErrBotCheckFailed
	case KindVerifierUnavailable:
		return ErrVerifierUnavailable
	case KindDispatch:
		return ErrDispatch
	case KindMethodNotAllowed:
		return ErrMethodNotAllowed
	default:
		return nil
	}
}

// strictStatus is the status used when STRICT_STATUS_CODES is enabled.
func (k Kind) strictStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindBotCheck:
		return http.StatusForbidden
	case KindVerifierUnavailable:
		return http.StatusServiceUnavailable
	case KindDispatch:
		return http.StatusBadGateway
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}
