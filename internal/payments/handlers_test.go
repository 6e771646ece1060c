package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terramint/mintpay/internal/paystack"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, _ := newTestService(&fakeChain{}, &fakeCards{})
	h := NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := gin.New()
	h.RegisterRoutes(r.Group("/v1"))
	return r, svc
}

func postJSON(r *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCreateOrderEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/v1/orders", gin.H{
		"wallet": testWallet,
		"amount": "1.5",
		"method": "on_chain_native",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp CreateOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, testTreasury, resp.Treasury)
	assert.Equal(t, resp.OrderID, resp.Memo)
}

func TestCreateOrderEndpoint_Validation(t *testing.T) {
	r, _ := newTestRouter(t)

	// Unknown method
	w := postJSON(r, "/v1/orders", gin.H{"amount": "1", "method": "card"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad wallet format
	w = postJSON(r, "/v1/orders", gin.H{
		"wallet": "not-a-wallet", "amount": "1", "method": "on_chain_native",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing body fields
	w = postJSON(r, "/v1/orders", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmEndpoint(t *testing.T) {
	r, svc := newTestRouter(t)

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet, Amount: "1", Method: "on_chain_native",
	})
	require.NoError(t, err)

	w := postJSON(r, "/v1/orders/"+resp.OrderID+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result ConfirmResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, ConfirmPending, result.State)

	w = postJSON(r, "/v1/orders/ord_missing/confirm", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookEndpointAlways200(t *testing.T) {
	r, svc := newTestRouter(t)

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Wallet: testWallet, Amount: "7500.00", Method: "gateway", Email: "a@b.c",
	})
	require.NoError(t, err)

	body, sig := signedWebhook(t, resp.OrderID, 750000)

	// Valid delivery
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/paystack/webhook", bytes.NewReader(body))
	req.Header.Set(paystack.SignatureHeader, sig)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "settled")

	// Forged signature is still acknowledged, never retried.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/paystack/webhook", bytes.NewReader(body))
	req.Header.Set(paystack.SignatureHeader, "forged")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bad_signature")

	// Garbage body too.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/paystack/webhook", bytes.NewReader([]byte("{")))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLinkWalletEndpoint(t *testing.T) {
	r, svc := newTestRouter(t)

	resp, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: "7500.00", Method: "gateway", Email: "a@b.c",
	})
	require.NoError(t, err)

	// Pending order: linking refused.
	w := postJSON(r, "/v1/orders/"+resp.OrderID+"/wallet", gin.H{"wallet": testWallet})
	assert.Equal(t, http.StatusConflict, w.Code)

	body, sig := signedWebhook(t, resp.OrderID, 750000)
	_, err = svc.ReceiveGatewayEvent(context.Background(), body, sig)
	require.NoError(t, err)

	w = postJSON(r, "/v1/orders/"+resp.OrderID+"/wallet", gin.H{"wallet": testWallet})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"credited":true`)

	// Bad wallet format.
	w = postJSON(r, "/v1/orders/"+resp.OrderID+"/wallet", gin.H{"wallet": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown order.
	w = postJSON(r, "/v1/orders/ord_missing/wallet", gin.H{"wallet": testWallet})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
