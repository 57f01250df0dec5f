package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"recruitment_backend/internal/mail/domain"
)

// MailgunBaseURL selects the API host for a Mailgun region.
func MailgunBaseURL(region string) string {
	if strings.EqualFold(strings.TrimSpace(region), "eu") {
		return "https://api.eu.mailgun.net/v3"
	}
	return "https://api.mailgun.net/v3"
}

// Mailgun sends through the Messages API.
type Mailgun struct {
	apiKey  string
	domain  string
	baseURL string
	from    From
	client  *http.Client
}

// NewMailgun creates a Mailgun adapter for a sending domain.
func NewMailgun(apiKey, sendingDomain, baseURL string, from From, client *http.Client) *Mailgun {
	return &Mailgun{apiKey: apiKey, domain: sendingDomain, baseURL: baseURL, from: from, client: client}
}

func (m *Mailgun) Provider() domain.ProviderType { return domain.ProviderMailgun }

// Send implements Sender.
func (m *Mailgun) Send(ctx context.Context, msg domain.Message) (domain.Result, error) {
	form := url.Values{}
	form.Add("from", m.from.header())
	for _, addr := range msg.To {
		form.Add("to", addr)
	}
	form.Add("subject", msg.Subject)
	if msg.HTML != "" {
		form.Add("html", msg.HTML)
	}
	if msg.Text != "" {
		form.Add("text", msg.Text)
	}
	if msg.DedupeKey != "" {
		form.Add("h:Message-Id", messageID(msg.DedupeKey, m.from.Email))
		form.Add("v:dedupe_key", msg.DedupeKey)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", m.baseURL, m.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Result{}, domain.Permanent(domain.ProviderMailgun, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.apiKey)

	_, body, err := doRequest(m.client, domain.ProviderMailgun, req)
	if err != nil {
		return domain.Result{}, err
	}

	var result struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &result)
	return domain.Result{Provider: domain.ProviderMailgun, MessageID: strings.Trim(result.ID, "<>")}, nil
}
