package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"recruitment_backend/internal/mail/domain"
)

const maxErrorBody = 2 << 10

// doRequest executes req and classifies the outcome. On success the body is
// returned; the caller extracts the provider's message id from it.
func doRequest(client *http.Client, provider domain.ProviderType, req *http.Request) (*http.Response, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, domain.Permanent(provider, err)
		}
		return nil, nil, domain.Transient(provider, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, domain.Transient(provider, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return nil, nil, classifyStatus(provider, resp.StatusCode, body)
	}
	return resp, body, nil
}

// classifyStatus treats throttling, timeouts and server errors as transient.
func classifyStatus(provider domain.ProviderType, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	err := fmt.Errorf("status %d: %s", status, string(body))
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return domain.Transient(provider, err)
	default:
		return domain.Permanent(provider, err)
	}
}
