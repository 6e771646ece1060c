package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terramint/mintpay/internal/ledger"
	"github.com/terramint/mintpay/internal/paystack"
	"github.com/terramint/mintpay/internal/tonchain"
)

const (
	testTreasury = "EQAvDfWFG0oYX3zdfPUvqgbGO6CnDGB8gdyXkNNjhmGfWJ9r"
	testWallet   = "UQBFz01R2CU7YA8pevUaNIYEzi1mRo4hd6sGLkZg22kpBJcY"
	testSecret   = "sk_test_secret"
)

type fakeChain struct {
	transfer       *tonchain.TransferRef
	jettonTransfer *tonchain.TransferRef
	err            error

	lastMemo string
	lastMin  *big.Int
}

func (f *fakeChain) FindIncomingTransfer(_ context.Context, _ string, minAmount *big.Int, memo string) (*tonchain.TransferRef, error) {
	f.lastMemo, f.lastMin = memo, minAmount
	return f.transfer, f.err
}

func (f *fakeChain) FindIncomingJettonTransfer(_ context.Context, _ string, minAmount *big.Int, memo string) (*tonchain.TransferRef, error) {
	f.lastMemo, f.lastMin = memo, minAmount
	return f.jettonTransfer, f.err
}

func (f *fakeChain) ResolveJettonWallet(_ context.Context, _ string) (string, error) {
	return "EQC-jetton-wallet-ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", nil
}

func (f *fakeChain) TransferPayload(_ *big.Int, _, _ string) (string, error) {
	return "te6ccgEBAQEAAgAAAA==", nil
}

type fakeCards struct {
	lastReq paystack.ChargeRequest
	err     error
}

func (f *fakeCards) InitializeCharge(_ context.Context, req paystack.ChargeRequest) (*paystack.Charge, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &paystack.Charge{
		AuthorizationURL: "https://checkout.paystack.com/xyz",
		AccessCode:       "xyz",
		Reference:        req.Reference,
	}, nil
}

func newTestService(chain *fakeChain, cards *fakeCards) (*Service, *ledger.MemoryStore) {
	store := ledger.NewMemoryStore()
	svc := NewService(store, chain, cards, Config{
		TreasuryAddress: testTreasury,
		TonRateUSDT:     "5.00",
		NgnRateUSDT:     "1500.00",
		ConfirmTimeout:  2 * time.Second,
		WebhookSecret:   testSecret,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

func TestCreateOrder_Native(t *testing.T) {
	svc, store := newTestService(&fakeChain{}, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet,
		Amount: "1.5",
		Method: "on_chain_native",
	})
	require.NoError(t, err)

	assert.Equal(t, "1.500000000", resp.ExpectedAmount)
	assert.Equal(t, "7.500000", resp.CreditAmount) // 1.5 TON * 5.00
	assert.Equal(t, testTreasury, resp.Treasury)
	assert.Equal(t, resp.OrderID, resp.Memo)
	assert.Equal(t, "pending", resp.Status)

	order, err := store.GetOrder(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, order.Status)
	assert.Equal(t, testWallet, order.Wallet)
}

func TestCreateOrder_Jetton(t *testing.T) {
	svc, _ := newTestService(&fakeChain{}, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet,
		Amount: "10",
		Method: "on_chain_jetton",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.000000", resp.ExpectedAmount)
	assert.Equal(t, "10.000000", resp.CreditAmount) // jetton is the internal unit
	assert.NotEmpty(t, resp.JettonWallet)
	assert.NotEmpty(t, resp.TransferPayload)
}

func TestCreateOrder_JettonRequiresWallet(t *testing.T) {
	svc, _ := newTestService(&fakeChain{}, &fakeCards{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: "10",
		Method: "on_chain_jetton",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateOrder_Gateway(t *testing.T) {
	cards := &fakeCards{}
	svc, _ := newTestService(&fakeChain{}, cards)

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: "7500.00",
		Method: "gateway",
		Email:  "buyer@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "7500.00", resp.ExpectedAmount)
	assert.Equal(t, "5.000000", resp.CreditAmount) // 7500 NGN / 1500
	assert.Equal(t, "https://checkout.paystack.com/xyz", resp.CheckoutURL)

	// The order id is the charge reference: webhooks key back to the order.
	assert.Equal(t, resp.OrderID, cards.lastReq.Reference)
	assert.Equal(t, int64(750000), cards.lastReq.AmountMinor)
}

func TestCreateOrder_GatewayRequiresEmail(t *testing.T) {
	svc, _ := newTestService(&fakeChain{}, &fakeCards{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: "7500.00",
		Method: "gateway",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateOrder_InvalidInput(t *testing.T) {
	svc, _ := newTestService(&fakeChain{}, &fakeCards{})

	for _, req := range []CreateOrderRequest{
		{Amount: "1", Method: "card"},
		{Amount: "0", Method: "on_chain_native"},
		{Amount: "-5", Method: "on_chain_native"},
		{Amount: "abc.def.gh", Method: "on_chain_native"},
	} {
		_, err := svc.CreateOrder(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "req %+v", req)
	}
}

func TestConfirmOnChain_NoMatchStaysPending(t *testing.T) {
	chain := &fakeChain{}
	svc, _ := newTestService(chain, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet, Amount: "1", Method: "on_chain_native",
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result, err := svc.ConfirmOnChain(context.Background(), resp.OrderID)
		require.NoError(t, err)
		assert.Equal(t, ConfirmPending, result.State)
	}

	// Lookup used the order id as memo and the expected amount as floor.
	assert.Equal(t, resp.OrderID, chain.lastMemo)
	assert.Equal(t, big.NewInt(1_000_000_000), chain.lastMin)
}

func TestConfirmOnChain_MatchSettlesAndCredits(t *testing.T) {
	chain := &fakeChain{
		transfer: &tonchain.TransferRef{TxHash: "abc123", Amount: big.NewInt(2_000_000_000)},
	}
	svc, store := newTestService(chain, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet, Amount: "2", Method: "on_chain_native",
	})
	require.NoError(t, err)

	result, err := svc.ConfirmOnChain(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ConfirmPaid, result.State)
	assert.Equal(t, "abc123", result.TxHash)
	assert.True(t, result.Credited)

	account, err := store.GetAccount(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "10.000000", account.Balance) // 2 TON * 5.00

	// Repeat confirm: idempotent, no second credit.
	result, err = svc.ConfirmOnChain(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ConfirmAlreadyConfirmed, result.State)

	account, err = store.GetAccount(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "10.000000", account.Balance)
}

func TestConfirmOnChain_JettonMatch(t *testing.T) {
	chain := &fakeChain{
		jettonTransfer: &tonchain.TransferRef{TxHash: "ev1", Amount: big.NewInt(10_000_000)},
	}
	svc, store := newTestService(chain, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet, Amount: "10", Method: "on_chain_jetton",
	})
	require.NoError(t, err)

	result, err := svc.ConfirmOnChain(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ConfirmPaid, result.State)

	account, err := store.GetAccount(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "10.000000", account.Balance)
}

func TestConfirmOnChain_UpstreamFailureIsPending(t *testing.T) {
	chain := &fakeChain{err: errors.New("tonapi status 503")}
	svc, store := newTestService(chain, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet, Amount: "1", Method: "on_chain_native",
	})
	require.NoError(t, err)

	result, err := svc.ConfirmOnChain(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ConfirmPending, result.State)

	order, err := store.GetOrder(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, order.Status)
}

func TestConfirmOnChain_UnknownOrder(t *testing.T) {
	svc, _ := newTestService(&fakeChain{}, &fakeCards{})

	_, err := svc.ConfirmOnChain(context.Background(), "ord_missing")
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
}

func TestConfirmOnChain_GatewayOrderRejected(t *testing.T) {
	svc, _ := newTestService(&fakeChain{}, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: "7500.00", Method: "gateway", Email: "a@b.c",
	})
	require.NoError(t, err)

	_, err = svc.ConfirmOnChain(context.Background(), resp.OrderID)
	assert.ErrorIs(t, err, ErrWrongMethod)
}

func signedWebhook(t *testing.T, reference string, amountMinor int64) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(paystack.Event{
		Event: paystack.EventChargeSuccess,
		Data: paystack.ChargeData{
			Reference:   reference,
			Status:      "success",
			AmountMinor: amountMinor,
			Currency:    "NGN",
		},
	})
	require.NoError(t, err)
	return body, paystack.Sign(body, testSecret)
}

func TestReceiveGatewayEvent_Settles(t *testing.T) {
	svc, store := newTestService(&fakeChain{}, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet, Amount: "7500.00", Method: "gateway", Email: "a@b.c",
	})
	require.NoError(t, err)

	// The settled amount in the event is authoritative, not the order's ask.
	body, sig := signedWebhook(t, resp.OrderID, 900000) // 9000 NGN
	outcome, err := svc.ReceiveGatewayEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, GatewaySettled, outcome)

	account, err := store.GetAccount(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "6.000000", account.Balance) // 9000 / 1500

	// Redelivery of the same event is a no-op.
	outcome, err = svc.ReceiveGatewayEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, GatewayDuplicate, outcome)

	account, err = store.GetAccount(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "6.000000", account.Balance)
}

func TestReceiveGatewayEvent_BadSignature(t *testing.T) {
	svc, store := newTestService(&fakeChain{}, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet, Amount: "7500.00", Method: "gateway", Email: "a@b.c",
	})
	require.NoError(t, err)

	body, _ := signedWebhook(t, resp.OrderID, 750000)
	outcome, err := svc.ReceiveGatewayEvent(context.Background(), body, "forged")
	require.NoError(t, err)
	assert.Equal(t, GatewayBadSignature, outcome)

	order, err := store.GetOrder(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, order.Status)
}

func TestReceiveGatewayEvent_UnknownReference(t *testing.T) {
	svc, _ := newTestService(&fakeChain{}, &fakeCards{})

	body, sig := signedWebhook(t, "ord_who", 750000)
	outcome, err := svc.ReceiveGatewayEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, GatewayUnknownRef, outcome)
}

func TestReceiveGatewayEvent_NonSuccessIgnored(t *testing.T) {
	svc, store := newTestService(&fakeChain{}, &fakeCards{})

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: "7500.00", Method: "gateway", Email: "a@b.c",
	})
	require.NoError(t, err)

	body, err := json.Marshal(paystack.Event{
		Event: "charge.failed",
		Data:  paystack.ChargeData{Reference: resp.OrderID, Status: "failed"},
	})
	require.NoError(t, err)

	outcome, err := svc.ReceiveGatewayEvent(context.Background(), body, paystack.Sign(body, testSecret))
	require.NoError(t, err)
	assert.Equal(t, GatewayIgnored, outcome)

	order, err := store.GetOrder(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, order.Status)
}

func TestLinkWallet_DeferredCreditOnce(t *testing.T) {
	svc, store := newTestService(&fakeChain{}, &fakeCards{})

	// Gateway order without a wallet: credit is deferred past settlement.
	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: "7500.00", Method: "gateway", Email: "a@b.c",
	})
	require.NoError(t, err)

	// Linking before settlement is refused.
	_, err = svc.LinkWallet(context.Background(), resp.OrderID, testWallet)
	assert.ErrorIs(t, err, ErrOrderNotConfirmed)

	body, sig := signedWebhook(t, resp.OrderID, 750000)
	outcome, err := svc.ReceiveGatewayEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, GatewaySettled, outcome)

	// Settlement without a wallet applied no credit.
	account, err := store.GetAccount(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "0.000000", account.Balance)

	credited, err := svc.LinkWallet(context.Background(), resp.OrderID, testWallet)
	require.NoError(t, err)
	assert.True(t, credited)

	account, err = store.GetAccount(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "5.000000", account.Balance)

	// Re-linking is idempotent: no second credit.
	credited, err = svc.LinkWallet(context.Background(), resp.OrderID, testWallet)
	require.NoError(t, err)
	assert.False(t, credited)

	account, err = store.GetAccount(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, "5.000000", account.Balance)
}

func TestLinkWallet_UnknownOrder(t *testing.T) {
	svc, _ := newTestService(&fakeChain{}, &fakeCards{})

	_, err := svc.LinkWallet(context.Background(), "ord_missing", testWallet)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
}
