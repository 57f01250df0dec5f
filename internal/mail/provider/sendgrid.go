package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"recruitment_backend/internal/mail/domain"
)

const sendGridDefaultBaseURL = "https://api.sendgrid.com/v3"

// SendGrid sends through the v3 Mail Send API.
type SendGrid struct {
	apiKey  string
	baseURL string
	from    From
	client  *http.Client
}

// NewSendGrid creates a SendGrid adapter. An empty baseURL selects the
// public API.
func NewSendGrid(apiKey, baseURL string, from From, client *http.Client) *SendGrid {
	if baseURL == "" {
		baseURL = sendGridDefaultBaseURL
	}
	return &SendGrid{apiKey: apiKey, baseURL: baseURL, from: from, client: client}
}

func (s *SendGrid) Provider() domain.ProviderType { return domain.ProviderSendGrid }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To         []sendGridAddress `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// Send implements Sender.
func (s *SendGrid) Send(ctx context.Context, msg domain.Message) (domain.Result, error) {
	to := make([]sendGridAddress, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, sendGridAddress{Email: addr})
	}

	// text/plain must precede text/html.
	content := make([]sendGridContent, 0, 2)
	if msg.Text != "" {
		content = append(content, sendGridContent{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		content = append(content, sendGridContent{Type: "text/html", Value: msg.HTML})
	}

	payload := sendGridPayload{
		Personalizations: []sendGridPersonalization{{To: to}},
		From:             sendGridAddress{Email: s.from.Email, Name: s.from.Name},
		Subject:          msg.Subject,
		Content:          content,
	}
	if msg.DedupeKey != "" {
		payload.Personalizations[0].CustomArgs = map[string]string{"dedupe_key": msg.DedupeKey}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Result{}, domain.Permanent(domain.ProviderSendGrid, fmt.Errorf("marshal: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return domain.Result{}, domain.Permanent(domain.ProviderSendGrid, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, _, err := doRequest(s.client, domain.ProviderSendGrid, req)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{Provider: domain.ProviderSendGrid, MessageID: resp.Header.Get("X-Message-Id")}, nil
}
