package leads

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// rawSubmission keeps every optional field nullable so absent, null and
// present values are distinguishable during normalization.
type rawSubmission struct {
	Email            *string           `json:"email"`
	UseCases         []string          `json:"useCases"`
	Technologies     []string          `json:"technologies"`
	RequestedFeature *RequestedFeature `json:"requestedFeature"`
	UTM              *UTM              `json:"utm"`
	Timestamp        *string           `json:"timestamp"`
	TurnstileToken   *string           `json:"turnstileToken"`
	RecaptchaToken   *string           `json:"recaptchaToken"`
}

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Parse decodes and validates a raw submission body and applies defaults.
// It performs no I/O.
func Parse(body []byte, now func() time.Time) (*Submission, error) {
	if now == nil {
		now = time.Now
	}

	var raw rawSubmission
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewError(KindValidation, "Invalid JSON: "+decodeMessage(err), err)
	}

	email := trimmed(raw.Email)
	if email == "" {
		return nil, NewError(KindValidation, MsgEmailRequired, nil)
	}
	turnstileToken := trimmed(raw.TurnstileToken)
	if turnstileToken == "" {
		return nil, NewError(KindValidation, MsgTurnstileTokenMissing, nil)
	}
	recaptchaToken := trimmed(raw.RecaptchaToken)
	if recaptchaToken == "" {
		return nil, NewError(KindValidation, MsgRecaptchaTokenMissing, nil)
	}

	sub := &Submission{
		Email:          email,
		UseCases:       nonNil(raw.UseCases),
		Technologies:   nonNil(raw.Technologies),
		TurnstileToken: turnstileToken,
		RecaptchaToken: recaptchaToken,
		Timestamp:      trimmed(raw.Timestamp),
	}
	if raw.RequestedFeature != nil && (raw.RequestedFeature.Type != "" || raw.RequestedFeature.Value != "") {
		feature := *raw.RequestedFeature
		sub.RequestedFeature = &feature
	}
	if !raw.UTM.IsEmpty() {
		utm := *raw.UTM
		sub.UTM = &utm
	}
	if sub.Timestamp == "" {
		sub.Timestamp = now().UTC().Format(timestampLayout)
	}
	return sub, nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// decodeMessage describes a decode failure in terms of the payload's field
// names. Type mismatches would otherwise expose Go struct names.
func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		return err.Error()
	}
	field, _, _ := strings.Cut(typeErr.Field, ".")
	switch field {
	case "":
		return "request body must be a JSON object"
	case "useCases", "technologies":
		return field + " must be an array of strings"
	case "requestedFeature":
		return "requestedFeature must be an object with string type and value"
	case "utm":
		return "utm must be an object of strings"
	default:
		return field + " must be a string"
	}
}
