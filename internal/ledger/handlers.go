package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/terramint/mintpay/internal/validation"
)

// Handler provides HTTP endpoints for balance and history queries
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up ledger routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	accounts := r.Group("/accounts", validation.WalletParamMiddleware())
	accounts.GET("/:wallet/balance", h.GetBalance)
	accounts.GET("/:wallet/orders", h.GetHistory)
}

// GetBalance handles GET /accounts/:wallet/balance
func (h *Handler) GetBalance(c *gin.Context) {
	wallet := c.Param("wallet")

	account, err := h.ledger.GetBalance(c.Request.Context(), wallet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet":  account.Wallet,
		"balance": account.Balance,
	})
}

// GetHistory handles GET /accounts/:wallet/orders
func (h *Handler) GetHistory(c *gin.Context) {
	wallet := c.Param("wallet")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	orders, next, err := h.ledger.GetHistory(c.Request.Context(), wallet, limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_cursor",
				"message": "cursor is not a valid page position",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history_error",
			"message": "Failed to retrieve order history",
		})
		return
	}

	resp := gin.H{
		"orders": orders,
		"count":  len(orders),
	}
	if next != "" {
		resp["next_cursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}
