package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultResendURL = "https://api.resend.com/emails"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resend delivers mail through the Resend HTTP API.
type Resend struct {
	client   HTTPClient
	apiKey   string
	endpoint string
}

// NewResend creates a Resend transport.
func NewResend(client HTTPClient, apiKey string) *Resend {
	return &Resend{client: client, apiKey: apiKey, endpoint: defaultResendURL}
}

// Deliver implements Transport.
func (r *Resend) Deliver(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	detail := apiErr.Message
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}

	if resp.StatusCode == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(detail), "too many requests") ||
		apiErr.Name == "rate_limit_exceeded" {
		return fmt.Errorf("resend: %s: %w", detail, ErrRateLimited)
	}
	return fmt.Errorf("resend: status %d: %s", resp.StatusCode, detail)
}
