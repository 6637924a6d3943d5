// Package gateway реализует клиент платежного шлюза: создание checkout-сессий,
// отмену подписок, проверку подписи и разбор событий webhook.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rivve/boarding-house/internal/config"
)

// SessionRequest параметры checkout-сессии.
type SessionRequest struct {
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	Metadata   map[string]string `json:"metadata"`
	SuccessURL string            `json:"success_url,omitempty"`
	CancelURL  string            `json:"cancel_url,omitempty"`
}

// Session созданная checkout-сессия.
type Session struct {
	ID          string `json:"id"`
	RedirectURL string `json:"url"`
}

// Client HTTP-клиент шлюза.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	successURL string
	cancelURL  string
	httpClient *http.Client
}

// NewClient создаёт клиент шлюза.
func NewClient(cfg config.Gateway) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		httpClient: &http.Client{},
	}
}

// CreateSession создает checkout-сессию. Вызов ограничен таймаутом клиента.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	const op = "gateway.CreateSession"
	if req.SuccessURL == "" {
		req.SuccessURL = c.successURL
	}
	if req.CancelURL == "" {
		req.CancelURL = c.cancelURL
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", req, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if session.ID == "" || session.RedirectURL == "" {
		return nil, fmt.Errorf("%s: incomplete session in response", op)
	}
	return &session, nil
}

// CancelSubscription отменяет подписку на стороне шлюза.
func (c *Client) CancelSubscription(ctx context.Context, externalSubscriptionID string) error {
	const op = "gateway.CancelSubscription"
	path := "/v1/subscriptions/" + url.PathEscape(externalSubscriptionID) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
