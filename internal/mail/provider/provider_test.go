package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"recruitment_backend/internal/mail/domain"

	"github.com/aws/smithy-go"
	gomail "github.com/wneessen/go-mail"
)

var testFrom = From{Email: "noreply@acme.test", Name: "Acme Hiring"}

func testMessage() domain.Message {
	return domain.Message{
		To:        []string{"a@x.com", "b@x.com"},
		Subject:   "New candidate",
		HTML:      "<p>Hello</p>",
		Text:      "Hello",
		DedupeKey: "entity:automation:1",
	}
}

func TestSendGridSend(t *testing.T) {
	var got sendGridPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sg-key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	res, err := NewSendGrid("sg-key", srv.URL, testFrom, srv.Client()).Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.MessageID != "sg-123" || res.Provider != domain.ProviderSendGrid {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(got.Personalizations) != 1 || len(got.Personalizations[0].To) != 2 {
		t.Fatalf("expected one personalization with both recipients, got %+v", got.Personalizations)
	}
	if got.Content[0].Type != "text/plain" || got.Content[1].Type != "text/html" {
		t.Fatalf("unexpected content order %+v", got.Content)
	}
	if got.Personalizations[0].CustomArgs["dedupe_key"] != "entity:automation:1" {
		t.Fatalf("dedupe key not forwarded")
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, `{"errors":[{"message":"nope"}]}`)
		}))
		_, err := NewSendGrid("k", srv.URL, testFrom, srv.Client()).Send(context.Background(), testMessage())
		srv.Close()

		var te *domain.TransportError
		if !errors.As(err, &te) {
			t.Fatalf("status %d: expected TransportError, got %v", tc.status, err)
		}
		if te.Transient != tc.transient {
			t.Fatalf("status %d: transient=%v, want %v", tc.status, te.Transient, tc.transient)
		}
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	_, err := NewSendGrid("k", base, testFrom, http.DefaultClient).Send(context.Background(), testMessage())
	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error for refused connection, got %v", err)
	}
}

func TestMailgunSend(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mg.acme.test/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api" || pass != "mg-key" {
			t.Errorf("unexpected basic auth %q %q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.PostForm
		_, _ = io.WriteString(w, `{"id":"<mg-1@mg.acme.test>","message":"Queued"}`)
	}))
	defer srv.Close()

	res, err := NewMailgun("mg-key", "mg.acme.test", srv.URL, testFrom, srv.Client()).Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.MessageID != "mg-1@mg.acme.test" {
		t.Fatalf("unexpected message id %q", res.MessageID)
	}
	if form.Get("from") != "Acme Hiring <noreply@acme.test>" {
		t.Fatalf("unexpected from %q", form.Get("from"))
	}
	if len(form["to"]) != 2 {
		t.Fatalf("expected two recipients, got %v", form["to"])
	}
	if !strings.HasSuffix(form.Get("h:Message-Id"), "@acme.test>") {
		t.Fatalf("unexpected message id header %q", form.Get("h:Message-Id"))
	}
}

func TestMailgunBaseURL(t *testing.T) {
	if MailgunBaseURL("EU") != "https://api.eu.mailgun.net/v3" {
		t.Fatal("eu region should use the eu host")
	}
	if MailgunBaseURL("") != "https://api.mailgun.net/v3" {
		t.Fatal("default region should use the us host")
	}
}

func TestSupabaseSend(t *testing.T) {
	var got supabasePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != supabaseFunctionPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer service-key" {
			t.Errorf("missing service key")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"id":"sb-9"}`)
	}))
	defer srv.Close()

	res, err := NewSupabase(srv.URL+"/", "service-key", testFrom, srv.Client()).Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.MessageID != "sb-9" {
		t.Fatalf("unexpected message id %q", res.MessageID)
	}
	if got.From != testFrom.Email || got.FromName != testFrom.Name || len(got.To) != 2 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestSMTPMessageIDIsDeterministic(t *testing.T) {
	s := NewSMTP(SMTPSettings{Host: "smtp.acme.test", Port: 587}, testFrom)

	first, err := s.buildMessage(testMessage())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := s.buildMessage(testMessage())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	a := first.GetGenHeader(gomail.HeaderMessageID)
	b := second.GetGenHeader(gomail.HeaderMessageID)
	if len(a) != 1 || len(b) != 1 || a[0] != b[0] {
		t.Fatalf("message ids differ: %v vs %v", a, b)
	}
	if !strings.Contains(a[0], "@acme.test") {
		t.Fatalf("message id should use the sender domain, got %q", a[0])
	}
}

func TestSMTPRejectsBadRecipient(t *testing.T) {
	s := NewSMTP(SMTPSettings{Host: "smtp.acme.test", Port: 587}, testFrom)
	msg := testMessage()
	msg.To = []string{"not an address"}

	_, err := s.Send(context.Background(), msg)
	var te *domain.TransportError
	if !errors.As(err, &te) || te.Transient {
		t.Fatalf("expected permanent error for invalid recipient, got %v", err)
	}
}

func TestClassifySES(t *testing.T) {
	cases := []struct {
		err       error
		transient bool
	}{
		{&smithy.GenericAPIError{Code: "TooManyRequestsException"}, true},
		{&smithy.GenericAPIError{Code: "InternalFailure", Fault: smithy.FaultServer}, true},
		{&smithy.GenericAPIError{Code: "MessageRejected", Fault: smithy.FaultClient}, false},
		{&smithy.GenericAPIError{Code: "AccountSuspendedException"}, false},
		{fmt.Errorf("dial tcp: %w", errors.New("connection reset")), true},
		{context.Canceled, false},
	}
	for _, tc := range cases {
		if got := domain.IsTransient(classifySES(tc.err)); got != tc.transient {
			t.Fatalf("%v: transient=%v, want %v", tc.err, got, tc.transient)
		}
	}
}

func TestClassifySMTPDialFailureIsTransient(t *testing.T) {
	if !domain.IsTransient(classifySMTP(errors.New("dial tcp 10.0.0.1:587: i/o timeout"))) {
		t.Fatal("dial failures should be retried")
	}
}

func TestNewValidatesConfiguration(t *testing.T) {
	host := "smtp.acme.test"
	cases := []struct {
		cfg   domain.Configuration
		creds domain.Credentials
		ok    bool
	}{
		{domain.Configuration{ProviderType: domain.ProviderSMTP, SMTPHost: &host}, domain.Credentials{}, true},
		{domain.Configuration{ProviderType: domain.ProviderSMTP}, domain.Credentials{}, false},
		{domain.Configuration{ProviderType: domain.ProviderSendGrid}, domain.Credentials{APIKey: "k"}, true},
		{domain.Configuration{ProviderType: domain.ProviderSendGrid}, domain.Credentials{}, false},
		{domain.Configuration{ProviderType: domain.ProviderMailgun}, domain.Credentials{APIKey: "k"}, false},
		{domain.Configuration{ProviderType: domain.ProviderSupabase}, domain.Credentials{APIKey: "k"}, false},
		{domain.Configuration{ProviderType: domain.ProviderSES}, domain.Credentials{APIKey: "k"}, false},
		{domain.Configuration{ProviderType: "pigeon"}, domain.Credentials{}, false},
	}
	for _, tc := range cases {
		_, err := New(context.Background(), tc.cfg, tc.creds, nil)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: ok=%v, err=%v", tc.cfg.ProviderType, tc.ok, err)
		}
	}
}
