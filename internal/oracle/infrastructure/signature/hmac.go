// Package signature verifies meter payload signatures.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// HMACVerifier checks hex-encoded HMAC-SHA256 signatures made with a secret
// shared with the meter gateway.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier constructs a verifier.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("hmac verifier: empty secret")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Verify reports whether signature is the HMAC of payload.
func (v *HMACVerifier) Verify(ctx context.Context, meterID string, payload, signature []byte) (bool, error) {
	_ = ctx
	_ = meterID
	got, err := hex.DecodeString(strings.TrimSpace(string(signature)))
	if err != nil {
		return false, nil
	}
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil)), nil
}

// Sign returns the hex signature of payload. Gateways and tests use it.
func (v *HMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
