package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns hex(HMAC-SHA256(message, secret)).
func Sign(message []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(message)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the digest and compares the full value in constant time.
// A candidate that is not valid hex, or has the wrong length, never matches.
func Verify(message []byte, secret, candidate string) bool {
	if secret == "" || candidate == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(candidate))
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(message)
	return hmac.Equal(h.Sum(nil), got)
}

// PaymentMessage is the signed payload of a client checkout callback.
func PaymentMessage(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// Verifier binds the two gateway secrets: the API key secret signs checkout
// callbacks, the webhook secret signs pushed event bodies.
type Verifier struct {
	paymentSecret string
	webhookSecret string
}

func NewVerifier(paymentSecret, webhookSecret string) *Verifier {
	return &Verifier{paymentSecret: paymentSecret, webhookSecret: webhookSecret}
}

func (v *Verifier) VerifyPayment(orderID, paymentID, signature string) bool {
	return Verify(PaymentMessage(orderID, paymentID), v.paymentSecret, signature)
}

// VerifyWebhook must be given the raw request body exactly as received.
func (v *Verifier) VerifyWebhook(rawBody []byte, signature string) bool {
	return Verify(rawBody, v.webhookSecret, signature)
}
