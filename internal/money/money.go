// Package money provides decimal amount parsing and formatting.
//
// Balances are kept in the internal unit (USDT-equivalent, 6 decimals)
// as big.Int in the smallest unit (1 USDT = 1,000,000 units). On-chain
// native amounts use nanoton (9 decimals) and gateway amounts use minor
// currency units (kobo, 2 decimals).
package money

import (
	"math/big"
	"strings"
)

const (
	// USDTDecimals is the precision of the internal balance unit.
	USDTDecimals = 6
	// TONDecimals is the precision of native TON amounts (nanoton).
	TONDecimals = 9
	// MinorDecimals is the precision of gateway fiat amounts (kobo).
	MinorDecimals = 2
)

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation at the given precision. Returns (nil, false)
// on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to the precision
func Parse(s string, decimals int) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < decimals {
		frac += "0"
	}
	frac = frac[:decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a decimal string with
// exactly the given number of decimal places (e.g. "1.500000").
func Format(amount *big.Int, decimals int) string {
	if amount == nil {
		return zeroString(decimals)
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// ParseUSDT parses an internal-unit amount string.
func ParseUSDT(s string) (*big.Int, bool) { return Parse(s, USDTDecimals) }

// FormatUSDT formats an internal-unit amount.
func FormatUSDT(amount *big.Int) string { return Format(amount, USDTDecimals) }

// ParseTON parses a TON amount string to nanoton.
func ParseTON(s string) (*big.Int, bool) { return Parse(s, TONDecimals) }

// FormatTON formats a nanoton amount as TON.
func FormatTON(amount *big.Int) string { return Format(amount, TONDecimals) }

// ConvertDecimals rescales a smallest-unit amount between precisions,
// truncating toward zero when dropping digits.
func ConvertDecimals(amount *big.Int, from, to int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(amount)
	switch {
	case to > from:
		out.Mul(out, pow10(to-from))
	case from > to:
		out.Quo(out, pow10(from-to))
	}
	return out
}

// MulRate multiplies a smallest-unit amount by a decimal rate string
// (e.g. nanoton * TON_RATE_USDT), producing a result at outDecimals.
// Returns (nil, false) when the rate is not a valid decimal.
func MulRate(amount *big.Int, rate string, amountDecimals, rateDecimals, outDecimals int) (*big.Int, bool) {
	r, ok := Parse(rate, rateDecimals)
	if !ok {
		return nil, false
	}
	out := new(big.Int).Mul(amount, r)
	return ConvertDecimals(out, amountDecimals+rateDecimals, outDecimals), true
}

// DivRate divides a smallest-unit amount by a decimal rate string
// (e.g. kobo / NGN_RATE_USDT), producing a result at outDecimals.
// Returns (nil, false) when the rate is invalid or zero.
func DivRate(amount *big.Int, rate string, amountDecimals, rateDecimals, outDecimals int) (*big.Int, bool) {
	r, ok := Parse(rate, rateDecimals)
	if !ok || r.Sign() == 0 {
		return nil, false
	}
	// Scale the numerator up before dividing so precision survives.
	scaled := new(big.Int).Mul(amount, pow10(rateDecimals+outDecimals))
	scaled.Quo(scaled, r)
	return ConvertDecimals(scaled, amountDecimals+outDecimals, outDecimals), true
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func zeroString(decimals int) string {
	return "0." + strings.Repeat("0", decimals)
}
