// Package payments is the reconciliation engine: it creates payment
// orders, matches external payments (on-chain transfers, gateway
// webhooks) against them, and settles them into the ledger exactly once.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/terramint/mintpay/internal/idgen"
	"github.com/terramint/mintpay/internal/ledger"
	"github.com/terramint/mintpay/internal/metrics"
	"github.com/terramint/mintpay/internal/money"
	"github.com/terramint/mintpay/internal/paystack"
	"github.com/terramint/mintpay/internal/tonchain"
	"github.com/terramint/mintpay/internal/traces"
)

var (
	ErrOrderNotConfirmed = errors.New("order is not confirmed yet")
	ErrWrongMethod       = errors.New("operation does not apply to this payment method")
	ErrInvalidRequest    = errors.New("invalid order request")
)

// ChainScanner is the on-chain lookup surface the engine needs.
type ChainScanner interface {
	FindIncomingTransfer(ctx context.Context, treasury string, minAmount *big.Int, memo string) (*tonchain.TransferRef, error)
	FindIncomingJettonTransfer(ctx context.Context, treasury string, minAmount *big.Int, memo string) (*tonchain.TransferRef, error)
	ResolveJettonWallet(ctx context.Context, ownerWallet string) (string, error)
	TransferPayload(amount *big.Int, destination, responseTo string) (string, error)
}

// CardGateway initializes hosted card charges.
type CardGateway interface {
	InitializeCharge(ctx context.Context, req paystack.ChargeRequest) (*paystack.Charge, error)
}

// Config holds the engine's fixed settings.
type Config struct {
	TreasuryAddress string
	TonRateUSDT     string // USDT per 1 TON
	NgnRateUSDT     string // NGN per 1 USDT
	ConfirmTimeout  time.Duration
	WebhookSecret   string // Paystack secret key, signs webhook bodies
}

// Service matches external payments to orders and settles them.
type Service struct {
	store  ledger.Store
	chain  ChainScanner
	cards  CardGateway
	cfg    Config
	logger *slog.Logger
}

// NewService creates a new payments engine.
func NewService(store ledger.Store, chain ChainScanner, cards CardGateway, cfg Config, logger *slog.Logger) *Service {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 10 * time.Second
	}
	return &Service{
		store:  store,
		chain:  chain,
		cards:  cards,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateOrderRequest is the input for a new payment order. Amount is a
// decimal string in the method's display unit: TON for on_chain_native,
// USDT for on_chain_jetton, NGN for gateway.
type CreateOrderRequest struct {
	Wallet string `json:"wallet"`
	Amount string `json:"amount" binding:"required"`
	Method string `json:"method" binding:"required"`
	Email  string `json:"email"` // gateway only
}

// CreateOrderResponse carries everything the client needs to pay.
type CreateOrderResponse struct {
	OrderID        string `json:"order_id"`
	Method         string `json:"method"`
	Status         string `json:"status"`
	ExpectedAmount string `json:"expected_amount"`
	CreditAmount   string `json:"credit_amount"` // internal units on settlement

	// On-chain targets: send ExpectedAmount to Treasury with Memo as comment.
	Treasury string `json:"treasury,omitempty"`
	Memo     string `json:"memo,omitempty"`

	// Jetton extras: the sender's jetton wallet and the prepared
	// TonConnect transfer payload.
	JettonWallet    string `json:"jetton_wallet,omitempty"`
	TransferPayload string `json:"transfer_payload,omitempty"`

	// Gateway extras: hosted checkout.
	CheckoutURL string `json:"checkout_url,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// CreateOrder validates the request, computes the settlement credit at
// the fixed configured rate, prepares method-specific payment targets
// and persists the pending order.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	method := ledger.Method(req.Method)
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidRequest, req.Method)
	}

	ctx, span := traces.StartSpan(ctx, "payments.CreateOrder",
		traces.Method(string(method)), traces.Amount(req.Amount))
	defer span.End()

	orderID := idgen.OrderID()

	var expected, credit *big.Int
	switch method {
	case ledger.MethodOnChainNative:
		nanoton, ok := money.ParseTON(req.Amount)
		if !ok || nanoton.Sign() <= 0 {
			return nil, fmt.Errorf("%w: bad amount", ErrInvalidRequest)
		}
		usdt, ok := money.MulRate(nanoton, s.cfg.TonRateUSDT, money.TONDecimals, money.USDTDecimals, money.USDTDecimals)
		if !ok {
			return nil, fmt.Errorf("%w: bad TON rate", ErrInvalidRequest)
		}
		expected, credit = nanoton, usdt

	case ledger.MethodOnChainJetton:
		if req.Wallet == "" {
			return nil, fmt.Errorf("%w: wallet required for jetton orders", ErrInvalidRequest)
		}
		units, ok := money.ParseUSDT(req.Amount)
		if !ok || units.Sign() <= 0 {
			return nil, fmt.Errorf("%w: bad amount", ErrInvalidRequest)
		}
		expected, credit = units, units // jetton is the internal unit

	case ledger.MethodGateway:
		if req.Email == "" {
			return nil, fmt.Errorf("%w: email required for gateway orders", ErrInvalidRequest)
		}
		kobo, ok := money.Parse(req.Amount, money.MinorDecimals)
		if !ok || kobo.Sign() <= 0 {
			return nil, fmt.Errorf("%w: bad amount", ErrInvalidRequest)
		}
		usdt, ok := money.DivRate(kobo, s.cfg.NgnRateUSDT, money.MinorDecimals, money.USDTDecimals, money.USDTDecimals)
		if !ok {
			return nil, fmt.Errorf("%w: bad NGN rate", ErrInvalidRequest)
		}
		expected, credit = kobo, usdt
	}

	order := &ledger.Order{
		ID:             orderID,
		Wallet:         req.Wallet,
		Method:         method,
		ExpectedAmount: formatExpected(method, expected),
		CreditedAmount: money.FormatUSDT(credit),
		Status:         ledger.StatusPending,
		CreatedAt:      time.Now(),
	}

	resp := &CreateOrderResponse{
		OrderID:        order.ID,
		Method:         string(method),
		Status:         string(order.Status),
		ExpectedAmount: order.ExpectedAmount,
		CreditAmount:   order.CreditedAmount,
	}

	// Jetton targets are resolved before persisting: a payload we cannot
	// build means an order nobody can pay.
	if method == ledger.MethodOnChainJetton {
		jettonWallet, err := s.chain.ResolveJettonWallet(ctx, req.Wallet)
		if err != nil {
			return nil, fmt.Errorf("resolve jetton wallet: %w", err)
		}
		payload, err := s.chain.TransferPayload(expected, s.cfg.TreasuryAddress, req.Wallet)
		if err != nil {
			return nil, fmt.Errorf("build transfer payload: %w", err)
		}
		resp.JettonWallet = jettonWallet
		resp.TransferPayload = payload
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	switch method {
	case ledger.MethodOnChainNative, ledger.MethodOnChainJetton:
		resp.Treasury = s.cfg.TreasuryAddress
		resp.Memo = order.ID

	case ledger.MethodGateway:
		// Order id travels as the charge reference so the webhook keys
		// straight back to the order.
		charge, err := s.cards.InitializeCharge(ctx, paystack.ChargeRequest{
			Reference:   order.ID,
			Email:       req.Email,
			AmountMinor: expected.Int64(),
			Currency:    "NGN",
		})
		if err != nil {
			return nil, fmt.Errorf("initialize gateway charge: %w", err)
		}
		resp.CheckoutURL = charge.AuthorizationURL
		resp.Reference = charge.Reference
	}

	metrics.OrdersCreatedTotal.WithLabelValues(string(method)).Inc()
	s.logger.Info("order created",
		"order_id", order.ID,
		"method", method,
		"expected", order.ExpectedAmount,
		"credit", order.CreditedAmount)

	return resp, nil
}

// ConfirmState is the outcome of a confirmation attempt.
type ConfirmState string

const (
	ConfirmPaid             ConfirmState = "paid"
	ConfirmPending          ConfirmState = "pending"
	ConfirmAlreadyConfirmed ConfirmState = "already_confirmed"
)

// ConfirmResult reports what a confirm call found.
type ConfirmResult struct {
	State    ConfirmState `json:"status"`
	TxHash   string       `json:"tx_hash,omitempty"`
	Credited bool         `json:"credited"`
}

// ConfirmOnChain checks the chain for a transfer matching the order and
// settles it when found. Safe to call repeatedly: a paid order reports
// already_confirmed with no side effects, an unmatched or upstream-failed
// lookup reports pending so the client retries.
func (s *Service) ConfirmOnChain(ctx context.Context, orderID string) (*ConfirmResult, error) {
	ctx, span := traces.StartSpan(ctx, "payments.ConfirmOnChain", traces.OrderID(orderID))
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Method == ledger.MethodGateway {
		return nil, ErrWrongMethod
	}
	if order.Status == ledger.StatusPaid {
		metrics.ConfirmChecksTotal.WithLabelValues("already_paid").Inc()
		return &ConfirmResult{State: ConfirmAlreadyConfirmed, Credited: order.CreditApplied}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	var ref *tonchain.TransferRef
	switch order.Method {
	case ledger.MethodOnChainNative:
		min, ok := money.ParseTON(order.ExpectedAmount)
		if !ok {
			return nil, fmt.Errorf("order %s has malformed expected amount", orderID)
		}
		ref, err = s.chain.FindIncomingTransfer(lookupCtx, s.cfg.TreasuryAddress, min, orderID)
	case ledger.MethodOnChainJetton:
		min, ok := money.ParseUSDT(order.ExpectedAmount)
		if !ok {
			return nil, fmt.Errorf("order %s has malformed expected amount", orderID)
		}
		ref, err = s.chain.FindIncomingJettonTransfer(lookupCtx, s.cfg.TreasuryAddress, min, orderID)
	}
	if err != nil {
		// Upstream trouble is not a verdict. The order stays pending and
		// the client retries once the feed is reachable again.
		metrics.ConfirmChecksTotal.WithLabelValues("upstream_error").Inc()
		s.logger.Warn("chain lookup failed", "order_id", orderID, "error", err)
		return &ConfirmResult{State: ConfirmPending}, nil
	}
	if ref == nil {
		metrics.ConfirmChecksTotal.WithLabelValues("no_match").Inc()
		return &ConfirmResult{State: ConfirmPending}, nil
	}

	res, err := s.store.SettleOrder(ctx, orderID, order.CreditedAmount)
	if err != nil {
		return nil, fmt.Errorf("settle order %s: %w", orderID, err)
	}
	if !res.Applied {
		// Lost the race against a concurrent confirm. Same answer either way.
		metrics.ConfirmChecksTotal.WithLabelValues("already_paid").Inc()
		return &ConfirmResult{State: ConfirmAlreadyConfirmed, Credited: true}, nil
	}

	metrics.ConfirmChecksTotal.WithLabelValues("matched").Inc()
	metrics.OrdersSettledTotal.WithLabelValues(string(order.Method)).Inc()
	if res.Credited {
		metrics.CreditsAppliedTotal.Inc()
	}
	s.logger.Info("order settled on-chain",
		"order_id", orderID,
		"tx", ref.TxHash,
		"credited", res.Credited,
		"wallet", res.Wallet)

	return &ConfirmResult{State: ConfirmPaid, TxHash: ref.TxHash, Credited: res.Credited}, nil
}

// GatewayOutcome labels what happened to a webhook delivery. Every
// outcome is acknowledged upstream; retries of handled events land on
// the idempotent settle and change nothing.
type GatewayOutcome string

const (
	GatewaySettled      GatewayOutcome = "settled"
	GatewayDuplicate    GatewayOutcome = "duplicate"
	GatewayIgnored      GatewayOutcome = "ignored"
	GatewayUnknownRef   GatewayOutcome = "unknown_reference"
	GatewayBadSignature GatewayOutcome = "bad_signature"
)

// ReceiveGatewayEvent verifies and applies a Paystack webhook delivery.
// The credited amount is derived from the authoritative settled amount in
// the event, not from what the order asked for.
func (s *Service) ReceiveGatewayEvent(ctx context.Context, body []byte, signature string) (GatewayOutcome, error) {
	evt, err := paystack.ParseEvent(body, signature, s.cfg.WebhookSecret)
	if err != nil {
		if errors.Is(err, paystack.ErrBadSignature) {
			metrics.GatewayEventsTotal.WithLabelValues(string(GatewayBadSignature)).Inc()
			s.logger.Warn("webhook signature rejected")
			return GatewayBadSignature, nil
		}
		metrics.GatewayEventsTotal.WithLabelValues(string(GatewayIgnored)).Inc()
		return GatewayIgnored, nil
	}

	if evt.Event != paystack.EventChargeSuccess || evt.Data.Status != "success" {
		metrics.GatewayEventsTotal.WithLabelValues(string(GatewayIgnored)).Inc()
		return GatewayIgnored, nil
	}

	order, err := s.store.GetOrder(ctx, evt.Data.Reference)
	if err != nil {
		if errors.Is(err, ledger.ErrOrderNotFound) {
			metrics.GatewayEventsTotal.WithLabelValues(string(GatewayUnknownRef)).Inc()
			s.logger.Warn("webhook for unknown reference", "reference", evt.Data.Reference)
			return GatewayUnknownRef, nil
		}
		return "", err
	}
	if order.Method != ledger.MethodGateway {
		metrics.GatewayEventsTotal.WithLabelValues(string(GatewayIgnored)).Inc()
		return GatewayIgnored, nil
	}

	credit, ok := money.DivRate(big.NewInt(evt.Data.AmountMinor), s.cfg.NgnRateUSDT,
		money.MinorDecimals, money.USDTDecimals, money.USDTDecimals)
	if !ok {
		return "", fmt.Errorf("bad NGN rate %q", s.cfg.NgnRateUSDT)
	}

	res, err := s.store.SettleOrder(ctx, order.ID, money.FormatUSDT(credit))
	if err != nil {
		return "", fmt.Errorf("settle order %s: %w", order.ID, err)
	}
	if !res.Applied {
		metrics.GatewayEventsTotal.WithLabelValues(string(GatewayDuplicate)).Inc()
		return GatewayDuplicate, nil
	}

	metrics.GatewayEventsTotal.WithLabelValues(string(GatewaySettled)).Inc()
	metrics.OrdersSettledTotal.WithLabelValues(string(ledger.MethodGateway)).Inc()
	if res.Credited {
		metrics.CreditsAppliedTotal.Inc()
	}
	s.logger.Info("gateway order settled",
		"order_id", order.ID,
		"amount_minor", evt.Data.AmountMinor,
		"credited", res.Credited)

	return GatewaySettled, nil
}

// LinkWallet attaches a wallet to a paid order and applies its deferred
// credit. The credit runs at most once; re-linking a credited order is
// an idempotent success.
func (s *Service) LinkWallet(ctx context.Context, orderID, wallet string) (credited bool, err error) {
	ctx, span := traces.StartSpan(ctx, "payments.LinkWallet",
		traces.OrderID(orderID), traces.Wallet(wallet))
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.Status != ledger.StatusPaid {
		return false, ErrOrderNotConfirmed
	}

	claimed, err := s.store.ClaimOrderCredit(ctx, orderID, wallet)
	if err != nil {
		return false, err
	}
	if claimed {
		metrics.CreditsAppliedTotal.Inc()
		s.logger.Info("deferred credit applied",
			"order_id", orderID,
			"wallet", wallet,
			"amount", order.CreditedAmount)
	}
	return claimed, nil
}

// GetOrder returns an order by id.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*ledger.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func formatExpected(method ledger.Method, amount *big.Int) string {
	switch method {
	case ledger.MethodOnChainNative:
		return money.FormatTON(amount)
	case ledger.MethodGateway:
		return money.Format(amount, money.MinorDecimals)
	default:
		return money.FormatUSDT(amount)
	}
}
