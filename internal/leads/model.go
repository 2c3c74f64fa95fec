package leads

import "strings"

// RequestedFeature identifies the gated dashboard control that prompted the
// submission, e.g. {Type: "viewMode", Value: "cost"}.
type RequestedFeature struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UTM holds campaign attribution parameters. Every field is optional.
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Content  string `json:"content,omitempty"`
	Term     string `json:"term,omitempty"`
}

// IsEmpty reports whether no UTM field carries a value.
func (u *UTM) IsEmpty() bool {
	if u == nil {
		return true
	}
	return strings.TrimSpace(u.Source) == "" &&
		strings.TrimSpace(u.Medium) == "" &&
		strings.TrimSpace(u.Campaign) == "" &&
		strings.TrimSpace(u.Content) == "" &&
		strings.TrimSpace(u.Term) == ""
}

// Submission is a normalized lead-capture form submission. It is consumed
// once by the handler and never stored.
type Submission struct {
	ID               string            `json:"-"`
	Email            string            `json:"email"`
	UseCases         []string          `json:"useCases"`
	Technologies     []string          `json:"technologies"`
	RequestedFeature *RequestedFeature `json:"requestedFeature"`
	UTM              *UTM              `json:"utm"`
	Timestamp        string            `json:"timestamp"`

	TurnstileToken string `json:"-"`
	RecaptchaToken string `json:"-"`
	RemoteIP       string `json:"-"`
}
