package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"recruitment_backend/internal/mail/domain"
)

const supabaseFunctionPath = "/functions/v1/send-email"

// Supabase sends through the project's send-email edge function.
type Supabase struct {
	projectURL string
	serviceKey string
	from       From
	client     *http.Client
}

// NewSupabase creates an adapter for the project at projectURL.
func NewSupabase(projectURL, serviceKey string, from From, client *http.Client) *Supabase {
	return &Supabase{
		projectURL: strings.TrimRight(projectURL, "/"),
		serviceKey: serviceKey,
		from:       from,
		client:     client,
	}
}

func (s *Supabase) Provider() domain.ProviderType { return domain.ProviderSupabase }

type supabasePayload struct {
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	HTML      string   `json:"html,omitempty"`
	Text      string   `json:"text,omitempty"`
	From      string   `json:"from"`
	FromName  string   `json:"from_name,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
}

// Send implements Sender.
func (s *Supabase) Send(ctx context.Context, msg domain.Message) (domain.Result, error) {
	payload := supabasePayload{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
		From:     s.from.Email,
		FromName: s.from.Name,
	}
	if msg.DedupeKey != "" {
		payload.MessageID = messageID(msg.DedupeKey, s.from.Email)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Result{}, domain.Permanent(domain.ProviderSupabase, fmt.Errorf("marshal: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.projectURL+supabaseFunctionPath, bytes.NewReader(body))
	if err != nil {
		return domain.Result{}, domain.Permanent(domain.ProviderSupabase, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	_, respBody, err := doRequest(s.client, domain.ProviderSupabase, req)
	if err != nil {
		return domain.Result{}, err
	}

	var result struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(respBody, &result)
	if result.ID == "" {
		result.ID = payload.MessageID
	}
	return domain.Result{Provider: domain.ProviderSupabase, MessageID: result.ID}, nil
}
