package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/terramint/mintpay/internal/money"
	"github.com/terramint/mintpay/internal/pagination"
)

// MemoryStore is an in-memory store for demo/development mode.
type MemoryStore struct {
	accounts map[string]*Account
	orders   map[string]*Order
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		orders:   make(map[string]*Order),
	}
}

func (m *MemoryStore) GetAccount(ctx context.Context, wallet string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acc, ok := m.accounts[wallet]; ok {
		cp := *acc
		return &cp, nil
	}
	now := time.Now()
	return &Account{
		Wallet:    wallet,
		Balance:   "0.000000",
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (m *MemoryStore) EnsureAccount(ctx context.Context, wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLocked(wallet)
	return nil
}

func (m *MemoryStore) ensureLocked(wallet string) *Account {
	acc, ok := m.accounts[wallet]
	if !ok {
		now := time.Now()
		acc = &Account{
			Wallet:    wallet,
			Balance:   "0.000000",
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.accounts[wallet] = acc
	}
	return acc
}

func (m *MemoryStore) CreditAccount(ctx context.Context, wallet, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(wallet, amount)
}

func (m *MemoryStore) creditLocked(wallet, amount string) error {
	add, ok := money.ParseUSDT(amount)
	if !ok || add.Sign() < 0 {
		return ErrInvalidAmount
	}

	acc := m.ensureLocked(wallet)
	bal, _ := money.ParseUSDT(acc.Balance)
	bal.Add(bal, add)
	acc.Balance = money.FormatUSDT(bal)
	acc.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.ID]; exists {
		return ErrDuplicateOrder
	}

	cp := *order
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.orders[order.ID] = &cp
	return nil
}

func (m *MemoryStore) SettleOrder(ctx context.Context, orderID, creditedAmount string) (SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return SettleResult{}, ErrOrderNotFound
	}

	// The status check and transition happen under one lock, mirroring
	// the single conditional UPDATE of the Postgres store.
	if order.Status != StatusPending {
		return SettleResult{Applied: false, Wallet: order.Wallet}, nil
	}

	order.Status = StatusPaid
	order.CreditedAmount = creditedAmount

	res := SettleResult{Applied: true, Wallet: order.Wallet}
	if order.Wallet != "" {
		if err := m.creditLocked(order.Wallet, creditedAmount); err != nil {
			// Roll the transition back so a retry can settle cleanly.
			order.Status = StatusPending
			order.CreditedAmount = ""
			return SettleResult{}, err
		}
		order.CreditApplied = true
		res.Credited = true
	}
	return res, nil
}

func (m *MemoryStore) ClaimOrderCredit(ctx context.Context, orderID, wallet string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status != StatusPaid {
		return false, ErrOrderNotPaid
	}

	if order.CreditApplied {
		// Credit already ran; attach the wallet if the order has none.
		if order.Wallet == "" {
			order.Wallet = wallet
		}
		return false, nil
	}

	if err := m.creditLocked(wallet, order.CreditedAmount); err != nil {
		return false, err
	}
	order.CreditApplied = true
	order.Wallet = wallet
	return true, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, wallet string, limit int, after *pagination.Cursor) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, order := range m.orders {
		if order.Wallet != wallet {
			continue
		}
		if after != nil && !beforeCursor(order, after) {
			continue
		}
		cp := *order
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// beforeCursor reports whether the order sorts strictly after the cursor
// position in (created_at, id) descending order.
func beforeCursor(o *Order, c *pagination.Cursor) bool {
	if !o.CreatedAt.Equal(c.CreatedAt) {
		return o.CreatedAt.Before(c.CreatedAt)
	}
	return o.ID < c.ID
}
