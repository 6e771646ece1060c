package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/terramint/mintpay/internal/pagination"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the accounts and orders tables
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			wallet      VARCHAR(128) PRIMARY KEY,
			balance     NUMERIC(20,6) NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT chk_balance_nonneg CHECK (balance >= 0)
		);

		CREATE TABLE IF NOT EXISTS orders (
			order_id        VARCHAR(64) PRIMARY KEY,
			wallet          VARCHAR(128),
			method          VARCHAR(20) NOT NULL,
			expected_amount NUMERIC(30,9) NOT NULL,
			credited_amount NUMERIC(20,6) NOT NULL DEFAULT 0,
			credit_applied  BOOLEAN NOT NULL DEFAULT FALSE,
			status          VARCHAR(10) NOT NULL DEFAULT 'pending',
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_orders_wallet ON orders(wallet, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	`)
	return err
}

// GetAccount retrieves a wallet's account, zero-balance when absent
func (p *PostgresStore) GetAccount(ctx context.Context, wallet string) (*Account, error) {
	acc := &Account{Wallet: wallet}

	err := p.db.QueryRowContext(ctx, `
		SELECT balance, created_at, updated_at
		FROM accounts WHERE wallet = $1
	`, wallet).Scan(&acc.Balance, &acc.CreatedAt, &acc.UpdatedAt)

	if err == sql.ErrNoRows {
		now := time.Now()
		return &Account{
			Wallet:    wallet,
			Balance:   "0.000000",
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// EnsureAccount creates a zero-balance account if absent, idempotent
func (p *PostgresStore) EnsureAccount(ctx context.Context, wallet string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (wallet, balance, created_at, updated_at)
		VALUES ($1, 0, NOW(), NOW())
		ON CONFLICT (wallet) DO NOTHING
	`, wallet)
	return err
}

// CreditAccount adds a non-negative amount to a wallet's balance
func (p *PostgresStore) CreditAccount(ctx context.Context, wallet, amount string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (wallet, balance, created_at, updated_at)
		VALUES ($1, $2::NUMERIC(20,6), NOW(), NOW())
		ON CONFLICT (wallet) DO UPDATE SET
			balance    = accounts.balance + $2::NUMERIC(20,6),
			updated_at = NOW()
	`, wallet, amount)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by id
func (p *PostgresStore) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	order := &Order{}
	var wallet sql.NullString

	err := p.db.QueryRowContext(ctx, `
		SELECT order_id, wallet, method, expected_amount, credited_amount, credit_applied, status, created_at
		FROM orders WHERE order_id = $1
	`, orderID).Scan(&order.ID, &wallet, &order.Method, &order.ExpectedAmount,
		&order.CreditedAmount, &order.CreditApplied, &order.Status, &order.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	order.Wallet = wallet.String
	return order, nil
}

// CreateOrder inserts a new pending order
func (p *PostgresStore) CreateOrder(ctx context.Context, order *Order) error {
	status := order.Status
	if status == "" {
		status = StatusPending
	}

	var wallet any
	if order.Wallet != "" {
		wallet = order.Wallet
	}

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, wallet, method, expected_amount, credited_amount, credit_applied, status, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(30,9), $5::NUMERIC(20,6), FALSE, $6, $7)
	`, order.ID, wallet, order.Method, order.ExpectedAmount, zeroIfEmpty(order.CreditedAmount), status, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// SettleOrder performs the pending -> paid transition and, when a wallet
// is attached, the balance credit, as one transaction. The conditional
// UPDATE is the compare-and-swap that makes settlement exactly-once:
// two concurrent callers cannot both see rows affected.
func (p *PostgresStore) SettleOrder(ctx context.Context, orderID, creditedAmount string) (SettleResult, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return SettleResult{}, err
	}
	defer tx.Rollback()

	var wallet sql.NullString
	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET
			status          = 'paid',
			credited_amount = $2::NUMERIC(20,6),
			credit_applied  = (wallet IS NOT NULL)
		WHERE order_id = $1 AND status = 'pending'
		RETURNING wallet
	`, orderID, creditedAmount).Scan(&wallet)

	if err == sql.ErrNoRows {
		// Lost the CAS: the order is already paid, or it never existed.
		var existingWallet sql.NullString
		err = p.db.QueryRowContext(ctx, `
			SELECT wallet FROM orders WHERE order_id = $1
		`, orderID).Scan(&existingWallet)
		if err == sql.ErrNoRows {
			return SettleResult{}, ErrOrderNotFound
		}
		if err != nil {
			return SettleResult{}, err
		}
		return SettleResult{Applied: false, Wallet: existingWallet.String}, nil
	}
	if err != nil {
		return SettleResult{}, fmt.Errorf("failed to settle order: %w", err)
	}

	res := SettleResult{Applied: true, Wallet: wallet.String}
	if wallet.Valid && wallet.String != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO accounts (wallet, balance, created_at, updated_at)
			VALUES ($1, $2::NUMERIC(20,6), NOW(), NOW())
			ON CONFLICT (wallet) DO UPDATE SET
				balance    = accounts.balance + $2::NUMERIC(20,6),
				updated_at = NOW()
		`, wallet.String, creditedAmount)
		if err != nil {
			return SettleResult{}, fmt.Errorf("failed to credit account: %w", err)
		}
		res.Credited = true
	}

	if err := tx.Commit(); err != nil {
		return SettleResult{}, err
	}
	return res, nil
}

// ClaimOrderCredit claims the deferred credit for a paid order. The flag
// flip and the balance credit share one transaction so the credit runs
// at most once no matter how many linkers race.
func (p *PostgresStore) ClaimOrderCredit(ctx context.Context, orderID, wallet string) (bool, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var credited string
	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET
			credit_applied = TRUE,
			wallet         = $2
		WHERE order_id = $1 AND status = 'paid' AND credit_applied = FALSE
		RETURNING credited_amount
	`, orderID, wallet).Scan(&credited)

	if err == sql.ErrNoRows {
		// Distinguish missing / unpaid / already-claimed.
		var status Status
		var applied bool
		err = tx.QueryRowContext(ctx, `
			SELECT status, credit_applied FROM orders WHERE order_id = $1
		`, orderID).Scan(&status, &applied)
		if err == sql.ErrNoRows {
			return false, ErrOrderNotFound
		}
		if err != nil {
			return false, err
		}
		if status != StatusPaid {
			return false, ErrOrderNotPaid
		}
		// Credit already ran; keep wallet attachment idempotent.
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET wallet = COALESCE(wallet, $2) WHERE order_id = $1
		`, orderID, wallet)
		if err != nil {
			return false, err
		}
		return false, tx.Commit()
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim credit: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (wallet, balance, created_at, updated_at)
		VALUES ($1, $2::NUMERIC(20,6), NOW(), NOW())
		ON CONFLICT (wallet) DO UPDATE SET
			balance    = accounts.balance + $2::NUMERIC(20,6),
			updated_at = NOW()
	`, wallet, credited)
	if err != nil {
		return false, fmt.Errorf("failed to credit account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListOrders returns a wallet's orders, most recent first
func (p *PostgresStore) ListOrders(ctx context.Context, wallet string, limit int, after *pagination.Cursor) ([]*Order, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT order_id, wallet, method, expected_amount, credited_amount, credit_applied, status, created_at
			FROM orders
			WHERE wallet = $1 AND (created_at, order_id) < ($2, $3)
			ORDER BY created_at DESC, order_id DESC
			LIMIT $4
		`, wallet, after.CreatedAt, after.ID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT order_id, wallet, method, expected_amount, credited_amount, credit_applied, status, created_at
			FROM orders WHERE wallet = $1
			ORDER BY created_at DESC, order_id DESC
			LIMIT $2
		`, wallet, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order := &Order{}
		var w sql.NullString
		if err := rows.Scan(&order.ID, &w, &order.Method, &order.ExpectedAmount,
			&order.CreditedAmount, &order.CreditApplied, &order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Wallet = w.String
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// isUniqueViolation checks for a Postgres unique constraint error (23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
