// Package paystack provides a minimal client for the Paystack card gateway:
// charge initialization, transaction verification, and webhook decoding.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/terramint/mintpay/internal/circuitbreaker"
)

// DefaultBaseURL is the production Paystack API endpoint.
const DefaultBaseURL = "https://api.paystack.co"

// Config holds Paystack client settings.
type Config struct {
	BaseURL   string
	SecretKey string
}

const upstreamPaystack = "paystack"

// Client talks to the Paystack REST API.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// New creates a Paystack client. An empty BaseURL falls back to production.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
	}
}

// ChargeRequest initializes a hosted card charge. Reference carries the
// order id so the webhook can be matched back to the order.
type ChargeRequest struct {
	Reference   string
	Email       string
	AmountMinor int64 // kobo
	Currency    string
}

// Charge is the initialized transaction returned by Paystack.
type Charge struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// TransactionStatus is the verified state of a charge.
type TransactionStatus struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeCharge creates a hosted payment page for the given reference.
func (c *Client) InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	body := map[string]any{
		"reference": req.Reference,
		"email":     req.Email,
		"amount":    req.AmountMinor,
	}
	if req.Currency != "" {
		body["currency"] = req.Currency
	}

	var charge Charge
	if err := c.post(ctx, "/transaction/initialize", body, &charge); err != nil {
		return nil, fmt.Errorf("initialize charge %s: %w", req.Reference, err)
	}
	return &charge, nil
}

// VerifyTransaction fetches the authoritative state of a charge. Used to
// recover settlements when a webhook delivery was missed.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*TransactionStatus, error) {
	var status TransactionStatus
	if err := c.get(ctx, "/transaction/verify/"+reference, &status); err != nil {
		return nil, fmt.Errorf("verify transaction %s: %w", reference, err)
	}
	return &status, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if !c.breaker.Allow(upstreamPaystack) {
		return fmt.Errorf("paystack: %w", circuitbreaker.ErrOpen)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure(upstreamPaystack)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure(upstreamPaystack)
	} else {
		c.breaker.RecordSuccess(upstreamPaystack)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !env.Status {
		return fmt.Errorf("paystack error (status %d): %s", resp.StatusCode, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
