package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// SignatureHeader is the HTTP header carrying the webhook HMAC.
const SignatureHeader = "X-Paystack-Signature"

// EventChargeSuccess is the event name for a settled card charge.
const EventChargeSuccess = "charge.success"

var (
	ErrBadSignature = errors.New("paystack: invalid webhook signature")
	ErrBadPayload   = errors.New("paystack: malformed webhook payload")
)

// Event is the webhook envelope Paystack posts to our callback URL.
type Event struct {
	Event string     `json:"event"`
	Data  ChargeData `json:"data"`
}

// ChargeData is the charge detail inside a webhook event.
type ChargeData struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// VerifySignature checks the HMAC-SHA512 of the raw body against the
// X-Paystack-Signature header value.
func VerifySignature(body []byte, signature, secretKey string) bool {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseEvent verifies the signature and decodes the webhook body.
func ParseEvent(body []byte, signature, secretKey string) (*Event, error) {
	if !VerifySignature(body, signature, secretKey) {
		return nil, ErrBadSignature
	}
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, ErrBadPayload
	}
	if evt.Event == "" {
		return nil, ErrBadPayload
	}
	return &evt, nil
}

// Sign computes the webhook signature for a body. Used by tests and by
// outbound webhook simulation tooling.
func Sign(body []byte, secretKey string) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
