package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/caliudata/benchmark-platform/internal/leads"
)

const leadHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; border-radius: 5px; }
    .content { background: #f9fafb; padding: 20px; margin-top: 20px; border-radius: 5px; }
    .section { margin-bottom: 20px; }
    .label { font-weight: bold; color: #4b5563; }
    .value { color: #1f2937; margin-left: 10px; }
    .list-item { background: #e5e7eb; padding: 8px; margin: 5px 0; border-radius: 3px; }
    .utm-section { background: #dbeafe; padding: 15px; border-radius: 5px; margin-top: 20px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h2>🎯 New Lead Captured - Caliu Benchmark Platform</h2>
    </div>
    <div class="content">
      <div class="section">
        <span class="label">📧 Email:</span>
        <span class="value">{{.Email}}</span>
      </div>
{{- if .Technologies}}
      <div class="section">
        <div class="label">🔧 Interested Technologies:</div>
{{- range .Technologies}}
        <div class="list-item">{{.}}</div>
{{- end}}
      </div>
{{- end}}
{{- if .UseCases}}
      <div class="section">
        <div class="label">💼 Interested Use Cases:</div>
{{- range .UseCases}}
        <div class="list-item">{{.}}</div>
{{- end}}
      </div>
{{- end}}
{{- with .RequestedFeature}}
      <div class="section">
        <span class="label">🎯 Requested Feature:</span>
        <span class="value">{{.Type}}: {{.Value}}</span>
      </div>
{{- end}}
      <div class="section">
        <span class="label">📅 Timestamp:</span>
        <span class="value">{{.Timestamp}}</span>
      </div>
{{- if .UTM}}
      <div class="utm-section">
        <div class="label">📊 Campaign Tracking (UTM):</div>
        <div style="margin-top: 10px;">
{{- range .UTM}}
          <div><span class="label">{{.Label}}:</span> <span class="value">{{.Value}}</span></div>
{{- end}}
        </div>
      </div>
{{- end}}
    </div>
  </div>
</body>
</html>
`

const leadTextTemplate = `New Lead Captured - Caliu Benchmark Platform

Email: {{.Email}}
{{- if .Technologies}}
Interested Technologies: {{join .Technologies ", "}}
{{- end}}
{{- if .UseCases}}
Interested Use Cases: {{join .UseCases ", "}}
{{- end}}
{{- with .RequestedFeature}}
Requested Feature: {{.Type}}: {{.Value}}
{{- end}}
Timestamp: {{.Timestamp}}
{{- if .UTM}}

Campaign Tracking (UTM):
{{- range .UTM}}
  {{.Label}}: {{.Value}}
{{- end}}
{{- end}}
`

type utmField struct {
	Label string
	Value string
}

type leadView struct {
	Email            string
	Technologies     []string
	UseCases         []string
	RequestedFeature *leads.RequestedFeature
	Timestamp        string
	UTM              []utmField
}

type leadRenderer struct {
	html     *htmltemplate.Template
	text     *texttemplate.Template
	location *time.Location
}

func newLeadRenderer(loc *time.Location) *leadRenderer {
	if loc == nil {
		loc = time.UTC
	}
	funcs := texttemplate.FuncMap{"join": strings.Join}
	return &leadRenderer{
		html:     htmltemplate.Must(htmltemplate.New("lead.html").Option("missingkey=error").Parse(leadHTMLTemplate)),
		text:     texttemplate.Must(texttemplate.New("lead.txt").Option("missingkey=error").Funcs(funcs).Parse(leadTextTemplate)),
		location: loc,
	}
}

func (r *leadRenderer) render(sub *leads.Submission) (string, string, error) {
	view := leadView{
		Email:            sub.Email,
		Technologies:     sub.Technologies,
		UseCases:         sub.UseCases,
		RequestedFeature: sub.RequestedFeature,
		Timestamp:        formatTimestamp(sub.Timestamp, r.location),
		UTM:              utmFields(sub.UTM),
	}

	var html bytes.Buffer
	if err := r.html.Execute(&html, view); err != nil {
		return "", "", fmt.Errorf("html: %w", err)
	}
	var text bytes.Buffer
	if err := r.text.Execute(&text, view); err != nil {
		return "", "", fmt.Errorf("text: %w", err)
	}
	return html.String(), text.String(), nil
}

// formatTimestamp renders ISO-8601 timestamps for humans and leaves
// anything unparseable as submitted.
func formatTimestamp(raw string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}
	return t.In(loc).Format("Jan 2, 2006, 3:04:05 PM MST")
}

func utmFields(utm *leads.UTM) []utmField {
	if utm == nil {
		return nil
	}
	var fields []utmField
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fields = append(fields, utmField{Label: label, Value: value})
		}
	}
	add("Source", utm.Source)
	add("Medium", utm.Medium)
	add("Campaign", utm.Campaign)
	add("Content", utm.Content)
	add("Term", utm.Term)
	return fields
}
