// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port           string
	Env            string // "development", "staging", "production"
	LogLevel       string
	AllowedOrigins []string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// TON settings
	TonAPIURL        string // tonapi base URL (network-specific)
	TonAPIKey        string
	TonRPCURL        string // JSON-RPC endpoint for runGetMethod calls
	TreasuryAddress  string // deposits land here
	USDTJettonMaster string
	ChainWindowLimit int // recent-transaction window scanned per confirm

	// Paystack settings
	PaystackBaseURL   string
	PaystackSecretKey string

	// Fixed conversion rates into the internal USDT-equivalent unit
	TonRateUSDT string // USDT per 1 TON
	NgnRateUSDT string // NGN per 1 USDT

	// Timeouts
	ConfirmTimeout time.Duration // upper bound on a single chain lookup

	// Rate limiting
	RateLimitRPM int

	// Tracing
	OTLPEndpoint string
}

// Defaults (TON testnet)
const (
	DefaultTonAPIURL       = "https://testnet.tonapi.io"
	DefaultTonRPCURL       = "https://testnet.toncenter.com/api/v2/jsonRPC"
	DefaultPaystackBaseURL = "https://api.paystack.co"
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultWindowLimit     = 20
	DefaultConfirmTimeout  = 10 * time.Second
	DefaultRateLimit       = 60
	DefaultTonRate         = "5.00"
	DefaultNgnRate         = "1500.00"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		TonAPIURL:         getEnv("TONAPI_URL", DefaultTonAPIURL),
		TonAPIKey:         os.Getenv("TONAPI_KEY"),
		TonRPCURL:         getEnv("TON_RPC_URL", DefaultTonRPCURL),
		TreasuryAddress:   os.Getenv("TREASURY_ADDRESS"), // Required, no default
		USDTJettonMaster:  os.Getenv("USDT_JETTON_MASTER"),
		ChainWindowLimit:  int(getEnvInt64("CHAIN_WINDOW_LIMIT", DefaultWindowLimit)),
		PaystackBaseURL:   getEnv("PAYSTACK_BASE_URL", DefaultPaystackBaseURL),
		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		TonRateUSDT:       getEnv("TON_RATE_USDT", DefaultTonRate),
		NgnRateUSDT:       getEnv("NGN_RATE_USDT", DefaultNgnRate),
		ConfirmTimeout:    getEnvDuration("CONFIRM_TIMEOUT", DefaultConfirmTimeout),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.TreasuryAddress == "" {
		return fmt.Errorf("TREASURY_ADDRESS is required")
	}

	if c.ChainWindowLimit <= 0 || c.ChainWindowLimit > 100 {
		return fmt.Errorf("CHAIN_WINDOW_LIMIT must be between 1 and 100")
	}

	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("CONFIRM_TIMEOUT must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
