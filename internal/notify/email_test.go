package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "test@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "test@example.com",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != DefaultFromName {
		t.Errorf("expected default from name %q, got %q", DefaultFromName, sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}

	err := sender.Send(context.Background(), EmailMessage{To: "ops@example.com", Subject: "Test", Body: "Test body"})
	if err == nil {
		t.Error("expected error with nil client")
	}
}

type sendGridPayload struct {
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	ReplyTo *struct {
		Email string `json:"email"`
	} `json:"reply_to"`
	Subject          string   `json:"subject"`
	Categories       []string `json:"categories"`
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func TestSendGridSender_Send_PostsMessage(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		payload sendGridPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		FromEmail: "info@caliudata.com",
		Host:      srv.URL,
	}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:         "ops@example.com",
		ReplyTo:    "lead@example.com",
		Subject:    LeadSubject,
		Body:       "plain",
		HTML:       "<p>html</p>",
		Categories: []string{"lead-capture"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v3/mail/send" {
		t.Errorf("expected /v3/mail/send, got %q", gotPath)
	}
	if gotAuth != "Bearer SG.test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if payload.From.Email != "info@caliudata.com" || payload.From.Name != DefaultFromName {
		t.Errorf("unexpected from: %+v", payload.From)
	}
	if payload.ReplyTo == nil || payload.ReplyTo.Email != "lead@example.com" {
		t.Errorf("expected reply-to lead@example.com, got %+v", payload.ReplyTo)
	}
	if payload.Subject != LeadSubject {
		t.Errorf("unexpected subject %q", payload.Subject)
	}
	if len(payload.Categories) != 1 || payload.Categories[0] != "lead-capture" {
		t.Errorf("unexpected categories %v", payload.Categories)
	}
	if len(payload.Personalizations) != 1 || len(payload.Personalizations[0].To) != 1 ||
		payload.Personalizations[0].To[0].Email != "ops@example.com" {
		t.Errorf("unexpected recipients %+v", payload.Personalizations)
	}
	if len(payload.Content) != 2 || payload.Content[1].Value != "<p>html</p>" {
		t.Errorf("unexpected content %+v", payload.Content)
	}
}

func TestSendGridSender_Send_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"errors":[{"message":"forbidden"}]}`)
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.test", FromEmail: "info@caliudata.com", Host: srv.URL}, nil)
	err := sender.Send(context.Background(), EmailMessage{To: "ops@example.com", Subject: "s", Body: "b"})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", perr.StatusCode)
	}
	want := `SendGrid API error: 403 - {"errors":[{"message":"forbidden"}]}`
	if perr.Error() != want {
		t.Errorf("expected %q, got %q", want, perr.Error())
	}
}

func TestSendGridSender_Send_ConcurrentCallsKeepTheirOwnBody(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload sendGridPayload
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		if payload.ReplyTo != nil {
			mu.Lock()
			got = append(got, payload.ReplyTo.Email)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.test", FromEmail: "info@caliudata.com", Host: srv.URL}, nil)

	const n = 50
	want := make([]string, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		want[i] = fmt.Sprintf("lead%02d@example.com", i)
		wg.Add(1)
		go func(replyTo string) {
			defer wg.Done()
			errs <- sender.Send(context.Background(), EmailMessage{
				To:      "ops@example.com",
				ReplyTo: replyTo,
				Subject: LeadSubject,
				Body:    replyTo,
			})
		}(want[i])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	sort.Strings(got)
	if len(got) != n {
		t.Fatalf("expected %d requests, got %d", n, len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected every lead delivered exactly once, got %v", got)
		}
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "ops@example.com", Subject: "Test"}); err != nil {
		t.Errorf("stub sender should not return error: %v", err)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNewSESSender_NilClient(t *testing.T) {
	if NewSESSender(nil, SESConfig{FromEmail: "info@caliudata.com"}, nil) != nil {
		t.Error("expected nil sender without client")
	}
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "info@caliudata.com"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:         "ops@example.com",
		ReplyTo:    "lead@example.com",
		Subject:    "Subject",
		Body:       "plain",
		HTML:       "<p>html</p>",
		Categories: []string{"lead-capture"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := client.input
	if got := aws.ToString(in.FromEmailAddress); got != "Caliu Benchmark <info@caliudata.com>" {
		t.Errorf("unexpected from %q", got)
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "ops@example.com" {
		t.Errorf("unexpected to %v", in.Destination.ToAddresses)
	}
	if len(in.ReplyToAddresses) != 1 || in.ReplyToAddresses[0] != "lead@example.com" {
		t.Errorf("unexpected reply-to %v", in.ReplyToAddresses)
	}
	if len(in.EmailTags) != 1 || aws.ToString(in.EmailTags[0].Value) != "lead-capture" {
		t.Errorf("unexpected tags %v", in.EmailTags)
	}
	body := in.Content.Simple.Body
	if aws.ToString(body.Text.Data) != "plain" || aws.ToString(body.Html.Data) != "<p>html</p>" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestSESSender_SendError(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	sender := NewSESSender(client, SESConfig{FromEmail: "info@caliudata.com"}, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "ops@example.com"}); err == nil {
		t.Fatal("expected error")
	}
}
