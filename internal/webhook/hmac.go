package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the body signature on every delivery.
const SignatureHeader = "X-Hype-Signature-256"

var errBadSignature = errors.New("webhook verification failed")

// Sign returns the signature of body in "sha256=<hex>" form.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time. Plain hex
// without the prefix is also accepted. Every failure returns the same error.
func Verify(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errBadSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return errBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), got) != 1 {
		return errBadSignature
	}
	return nil
}
