// Package idgen provides cryptographically random ID generation.
//
// Order ids double as on-chain transfer memos and gateway charge
// references, so they must be unguessable: a predictable id would let
// anyone pre-pay (or claim) someone else's order.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// OrderID generates a payment order id ("ord_" + 24 hex chars).
func OrderID() string {
	return WithPrefix("ord_")
}

// WithPrefix generates a random ID with a prefix (e.g. "ord_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
