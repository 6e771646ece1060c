package payments

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terramint/mintpay/internal/ledger"
	"github.com/terramint/mintpay/internal/paystack"
	"github.com/terramint/mintpay/internal/validation"
)

// Handler provides the HTTP surface of the payments engine.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new payments handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up payment order routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.CreateOrder)
	r.POST("/orders/:id/confirm", h.ConfirmOrder)
	r.POST("/orders/:id/wallet", h.LinkWallet)
	r.POST("/paystack/webhook", h.PaystackWebhook)
}

// CreateOrder handles POST /v1/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if req.Wallet != "" && !validation.IsValidWallet(req.Wallet) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_wallet",
			"message": "Wallet is not a valid TON address",
		})
		return
	}

	resp, err := h.service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
		case errors.Is(err, ledger.ErrDuplicateOrder):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate_order",
				"message": "Order id already exists",
			})
		default:
			h.logger.Error("create order failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "order_failed",
				"message": "Could not prepare the payment order",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ConfirmOrder handles POST /v1/orders/:id/confirm
func (h *Handler) ConfirmOrder(c *gin.Context) {
	orderID := c.Param("id")

	result, err := h.service.ConfirmOnChain(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Order not found",
			})
		case errors.Is(err, ErrWrongMethod):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "wrong_method",
				"message": "Gateway orders are confirmed by webhook, not polling",
			})
		default:
			h.logger.Error("confirm failed", "order_id", orderID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "confirm_failed",
				"message": "Could not confirm the order",
			})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// LinkWallet handles POST /v1/orders/:id/wallet
func (h *Handler) LinkWallet(c *gin.Context) {
	orderID := c.Param("id")

	var req struct {
		Wallet string `json:"wallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidWallet(req.Wallet) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_wallet",
			"message": "Wallet is not a valid TON address",
		})
		return
	}

	credited, err := h.service.LinkWallet(c.Request.Context(), orderID, req.Wallet)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Order not found",
			})
		case errors.Is(err, ErrOrderNotConfirmed):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "order_not_confirmed",
				"message": "Order must be paid before a wallet can be linked",
			})
		default:
			h.logger.Error("link wallet failed", "order_id", orderID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "link_failed",
				"message": "Could not link the wallet",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "wallet_linked",
		"credited": credited,
	})
}

// PaystackWebhook handles POST /v1/paystack/webhook.
// Always answers 200: Paystack retries non-2xx deliveries, and every
// outcome here is final on our side.
func (h *Handler) PaystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	outcome, err := h.service.ReceiveGatewayEvent(
		c.Request.Context(), body, c.GetHeader(paystack.SignatureHeader))
	if err != nil {
		h.logger.Error("webhook processing failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}
