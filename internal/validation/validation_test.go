package validation

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidWallet(t *testing.T) {
	valid := []string{
		"EQAvDfWFG0oYX3zdfPUvqgbGO6CnDGB8gdyXkNNjhmGfWJ9r",
		"UQBFz01R2CU7YA8pevUaNIYEzi1mRo4hd6sGLkZg22kpBJcY",
		"0:3333333333333333333333333333333333333333333333333333333333333333",
		"-1:3333333333333333333333333333333333333333333333333333333333333333",
	}
	for _, addr := range valid {
		if !IsValidWallet(addr) {
			t.Errorf("IsValidWallet(%q) = false, want true", addr)
		}
	}

	invalid := []string{
		"",
		"short",
		"0x1234567890123456789012345678901234567890",
		"0:xyz",
		"EQAvDfWFG0oYX3zdfPUvqgbGO6CnDGB8gdyXkNNjhmGf!!!!",
	}
	for _, addr := range invalid {
		if IsValidWallet(addr) {
			t.Errorf("IsValidWallet(%q) = true, want false", addr)
		}
	}
}

func TestIsValidAmount(t *testing.T) {
	valid := []string{"1", "0.5", "10.25", " 3 "}
	for _, a := range valid {
		if !IsValidAmount(a) {
			t.Errorf("IsValidAmount(%q) = false, want true", a)
		}
	}

	invalid := []string{"", "0", "0.000", "-1", "1.2.3", "abc", "1e5"}
	for _, a := range invalid {
		if IsValidAmount(a) {
			t.Errorf("IsValidAmount(%q) = true, want false", a)
		}
	}
}

func TestWalletParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WalletParamMiddleware())
	r.GET("/accounts/:wallet/balance", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/accounts/EQAvDfWFG0oYX3zdfPUvqgbGO6CnDGB8gdyXkNNjhmGfWJ9r/balance", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid wallet rejected: %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/accounts/not-a-wallet/balance", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid wallet accepted: %d", w.Code)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(8))
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too_large"})
			return
		}
		c.JSON(http.StatusOK, body)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/echo", nil)
	req.Body = http.NoBody
	r.ServeHTTP(w, req)
	// Empty body fails JSON binding, but not because of size
	if w.Code == http.StatusOK {
		t.Error("empty body should not bind")
	}
}
