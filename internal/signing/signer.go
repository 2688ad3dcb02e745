// Package signing computes and verifies the message authentication code
// attached to every outbound card and required on every inbound action
// callback. Signatures prove payload integrity between the engine and the
// collaboration platform.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Header carries the payload signature on outbound webhooks and inbound
// action callbacks.
const Header = "X-Beacon-Signature"

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches payload under secret. The
// comparison is constant-time; a decode failure is treated as a mismatch.
func Verify(secret string, payload []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}

// PayloadHash returns the hex-encoded SHA-256 of payload. Delivery attempts
// record it so audit rows reference the exact bytes sent without storing
// duplicates per retry.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
