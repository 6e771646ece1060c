// Package validation provides input validation middleware for the API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

var (
	// friendlyAddrRegex matches user-friendly base64url TON addresses
	friendlyAddrRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{48}$`)
	// rawAddrRegex matches raw workchain:hex TON addresses
	rawAddrRegex = regexp.MustCompile(`^-?[0-9]+:[a-fA-F0-9]{64}$`)
	// amountRegex matches positive decimal amounts
	amountRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidWallet checks whether a string is structurally a TON address,
// in either the friendly or the raw form. Full parsing happens in the
// chain adapter; this is the cheap gate at the HTTP edge.
func IsValidWallet(addr string) bool {
	return friendlyAddrRegex.MatchString(addr) || rawAddrRegex.MatchString(addr)
}

// IsValidAmount checks that amount is a positive decimal number
func IsValidAmount(amount string) bool {
	amount = strings.TrimSpace(amount)
	if !amountRegex.MatchString(amount) {
		return false
	}
	return strings.Trim(amount, "0.") != ""
}

// WalletParamMiddleware validates the :wallet URL parameter on routes
// that use it. Routes without the parameter pass through untouched.
func WalletParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.Param("wallet")
		if wallet != "" && !IsValidWallet(wallet) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_wallet",
				"message": "wallet must be a valid TON address",
			})
			return
		}
		c.Next()
	}
}
