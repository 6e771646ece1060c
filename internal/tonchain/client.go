// Package tonchain looks up incoming payments on the TON blockchain.
//
// Confirmation is a read-only scan of the treasury address's recent
// transactions through the tonapi HTTP API: a transfer matches an order
// when its value meets the expected amount and its comment equals the
// order id. Nothing is consumed, so a crashed confirmation can always
// be retried.
package tonchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/terramint/mintpay/internal/circuitbreaker"
)

// Config for the chain client
type Config struct {
	APIURL       string // tonapi base URL, e.g. https://testnet.tonapi.io
	APIKey       string
	RPCURL       string // JSON-RPC endpoint for runGetMethod
	JettonMaster string // USDT jetton master address
	WindowLimit  int    // how many recent transactions to scan
}

// TransferRef identifies a matched on-chain transfer.
type TransferRef struct {
	TxHash  string
	Amount  *big.Int // nanoton for native, jetton units for jetton
	Comment string
}

// Breaker upstream keys.
const (
	upstreamTonAPI = "tonapi"
	upstreamTonRPC = "tonrpc"
)

// Client scans the chain through tonapi and a JSON-RPC endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// New creates a new chain client
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.WindowLimit <= 0 {
		cfg.WindowLimit = 20
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
	}
}

// tonapi transaction feed shapes (the fields we read)

type txPage struct {
	Transactions []tx `json:"transactions"`
}

type tx struct {
	Hash  string `json:"hash"`
	InMsg *inMsg `json:"in_msg"`
}

type inMsg struct {
	Value       int64  `json:"value"` // nanoton
	DecodedOp   string `json:"decoded_op_name"`
	DecodedBody struct {
		Text string `json:"text"`
	} `json:"decoded_body"`
}

// FindIncomingTransfer scans the treasury's recent incoming transfers for
// one whose value is >= minAmount (nanoton) and whose comment equals memo.
// Returns nil when nothing in the window matches; the caller retries later.
func (c *Client) FindIncomingTransfer(ctx context.Context, treasury string, minAmount *big.Int, memo string) (*TransferRef, error) {
	endpoint := fmt.Sprintf("%s/v2/blockchain/accounts/%s/transactions?limit=%d",
		c.cfg.APIURL, url.PathEscape(treasury), c.cfg.WindowLimit)

	var page txPage
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return nil, fmt.Errorf("transaction feed: %w", err)
	}

	for _, t := range page.Transactions {
		// incoming only
		if t.InMsg == nil {
			continue
		}

		value := big.NewInt(t.InMsg.Value)
		comment := t.InMsg.DecodedBody.Text

		if value.Cmp(minAmount) >= 0 && comment == memo {
			return &TransferRef{
				TxHash:  t.Hash,
				Amount:  value,
				Comment: comment,
			}, nil
		}
	}

	return nil, nil
}

// tonapi event feed shapes for jetton transfers

type eventPage struct {
	Events []event `json:"events"`
}

type event struct {
	EventID    string   `json:"event_id"`
	InProgress bool     `json:"in_progress"`
	Actions    []action `json:"actions"`
}

type action struct {
	Type           string          `json:"type"`
	JettonTransfer *jettonTransfer `json:"JettonTransfer"`
}

type jettonTransfer struct {
	Amount    string `json:"amount"` // jetton units, decimal string
	Comment   string `json:"comment"`
	Recipient struct {
		Address string `json:"address"`
	} `json:"recipient"`
	Jetton struct {
		Address string `json:"address"`
	} `json:"jetton"`
}

// FindIncomingJettonTransfer scans the treasury's recent events for a USDT
// jetton transfer of at least minAmount (jetton units) carrying memo as
// comment. Same window semantics as FindIncomingTransfer.
func (c *Client) FindIncomingJettonTransfer(ctx context.Context, treasury string, minAmount *big.Int, memo string) (*TransferRef, error) {
	endpoint := fmt.Sprintf("%s/v2/accounts/%s/events?limit=%d",
		c.cfg.APIURL, url.PathEscape(treasury), c.cfg.WindowLimit)

	var page eventPage
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return nil, fmt.Errorf("event feed: %w", err)
	}

	master, err := normalizeAddress(c.cfg.JettonMaster)
	if err != nil {
		return nil, fmt.Errorf("jetton master address: %w", err)
	}
	target, err := normalizeAddress(treasury)
	if err != nil {
		return nil, fmt.Errorf("treasury address: %w", err)
	}

	for _, ev := range page.Events {
		if ev.InProgress {
			continue
		}
		for _, act := range ev.Actions {
			jt := act.JettonTransfer
			if act.Type != "JettonTransfer" || jt == nil {
				continue
			}

			recipient, err := normalizeAddress(jt.Recipient.Address)
			if err != nil || recipient != target {
				continue
			}
			if jetton, err := normalizeAddress(jt.Jetton.Address); err != nil || jetton != master {
				continue
			}

			amount, ok := new(big.Int).SetString(jt.Amount, 10)
			if !ok {
				continue
			}

			if amount.Cmp(minAmount) >= 0 && jt.Comment == memo {
				return &TransferRef{
					TxHash:  ev.EventID,
					Amount:  amount,
					Comment: jt.Comment,
				}, nil
			}
		}
	}

	return nil, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if !c.breaker.Allow(upstreamTonAPI) {
		return fmt.Errorf("tonapi: %w", circuitbreaker.ErrOpen)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure(upstreamTonAPI)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			c.breaker.RecordFailure(upstreamTonAPI)
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tonapi status %d: %s", resp.StatusCode, body)
	}

	c.breaker.RecordSuccess(upstreamTonAPI)
	return json.NewDecoder(resp.Body).Decode(out)
}
