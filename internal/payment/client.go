package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is an HTTP Gateway implementation for hosted-checkout providers
// that expose a "create session" endpoint and call back with a webhook.
type Client struct {
	provider string
	baseURL  string
	apiKey   string
	hc       *http.Client
}

func NewClient(provider, baseURL, apiKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		provider: provider,
		baseURL:  baseURL,
		apiKey:   apiKey,
		hc:       hc,
	}
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	const op = "payment.Client.CreateSession"

	payload, err := json.Marshal(req)
	if err != nil {
		return Session{}, fmt.Errorf("%s:%w", op, err)
	}

	url := fmt.Sprintf("%s/v1/sessions", c.baseURL)

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return Session{}, fmt.Errorf("%s:%w", op, err)
	}

	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	hr.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.hc.Do(hr)
	if err != nil {
		return Session{}, fmt.Errorf("%s:%w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Session{}, fmt.Errorf("%s:%w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Session{}, fmt.Errorf("%s: provider returned status %d: %s", op, resp.StatusCode, string(body))
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return Session{}, fmt.Errorf("%s:%w", op, err)
	}

	return session, nil
}
