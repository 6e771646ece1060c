// Package ledger tracks account balances and payment orders.
//
// Flow:
//  1. An order is created for a chosen payment method
//  2. The reconciliation engine matches an external payment to the order
//  3. The order settles (pending -> paid) and the wallet balance is
//     credited in the internal USDT-equivalent unit, exactly once
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/terramint/mintpay/internal/pagination"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order id already exists")
	ErrOrderNotPaid   = errors.New("order is not paid")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidCursor  = errors.New("invalid pagination cursor")
)

// Method identifies how an order is paid.
type Method string

const (
	MethodOnChainNative Method = "on_chain_native"
	MethodOnChainJetton Method = "on_chain_jetton"
	MethodGateway       Method = "gateway"
)

// Valid reports whether m is a known payment method.
func (m Method) Valid() bool {
	switch m {
	case MethodOnChainNative, MethodOnChainJetton, MethodGateway:
		return true
	}
	return false
}

// Status of an order. The only transition is pending -> paid.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Account holds a wallet's internal balance.
type Account struct {
	Wallet    string    `json:"wallet"`
	Balance   string    `json:"balance"` // internal USDT-equivalent units
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Order is a pending or settled payment intake.
type Order struct {
	ID             string    `json:"id"`
	Wallet         string    `json:"wallet,omitempty"` // empty until linked for gateway orders
	Method         Method    `json:"method"`
	ExpectedAmount string    `json:"expectedAmount"` // denominated per method
	CreditedAmount string    `json:"creditedAmount"` // internal units applied on settlement
	CreditApplied  bool      `json:"creditApplied"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SettleResult reports the outcome of a settle attempt.
type SettleResult struct {
	// Applied is true when this call performed the pending -> paid
	// transition. False means the order was already paid (idempotent no-op).
	Applied bool
	// Credited is true when the balance credit ran in the same unit of
	// work (the order had a wallet attached). When false and Applied is
	// true, the credit is deferred to wallet linking.
	Credited bool
	// Wallet is the order's wallet at settlement time, if any.
	Wallet string
}

// Store persists accounts and orders.
//
// SettleOrder and ClaimOrderCredit must use atomic conditional updates,
// not read-then-write: concurrent settles of the same order must yield
// exactly one Applied=true, and concurrent credit claims exactly one
// claimed=true.
type Store interface {
	GetAccount(ctx context.Context, wallet string) (*Account, error)
	EnsureAccount(ctx context.Context, wallet string) error
	CreditAccount(ctx context.Context, wallet, amount string) error

	GetOrder(ctx context.Context, orderID string) (*Order, error)
	CreateOrder(ctx context.Context, order *Order) error

	// SettleOrder transitions the order to paid, records creditedAmount
	// and, when the order already has a wallet, credits that wallet's
	// balance and marks the credit applied in the same unit of work.
	SettleOrder(ctx context.Context, orderID, creditedAmount string) (SettleResult, error)

	// ClaimOrderCredit claims the per-order credit side effect for a paid
	// order: it flips credit_applied false -> true, ensures the account,
	// credits the order's credited amount and attaches the wallet.
	// Returns claimed=false when the credit already ran; the wallet is
	// still attached if the order had none.
	ClaimOrderCredit(ctx context.Context, orderID, wallet string) (claimed bool, err error)

	// ListOrders returns up to limit of the wallet's orders ordered by
	// (created_at, id) descending, starting strictly after the cursor
	// position when after is non-nil.
	ListOrders(ctx context.Context, wallet string, limit int, after *pagination.Cursor) ([]*Order, error)
}

// Ledger exposes read operations over the store for the HTTP surface.
type Ledger struct {
	store Store
}

// New creates a new ledger
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetBalance returns a wallet's current account (zero balance if untouched).
func (l *Ledger) GetBalance(ctx context.Context, wallet string) (*Account, error) {
	return l.store.GetAccount(ctx, wallet)
}

// GetHistory returns a page of the wallet's orders, most recent first.
// cursor is an opaque position from a previous page ("" for the first
// page); the returned cursor is empty on the last page.
func (l *Ledger) GetHistory(ctx context.Context, wallet string, limit int, cursor string) ([]*Order, string, error) {
	if limit <= 0 {
		limit = 50
	}

	after, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", ErrInvalidCursor
	}

	// Fetch one extra row to learn whether another page exists.
	orders, err := l.store.ListOrders(ctx, wallet, limit+1, after)
	if err != nil {
		return nil, "", err
	}

	orders, next, _ := pagination.ComputePage(orders, limit, func(o *Order) (time.Time, string) {
		return o.CreatedAt, o.ID
	})
	return orders, next, nil
}
