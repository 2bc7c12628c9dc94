package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	apperrors "cinepay/internal/errors"
)

// SignatureHeader carries the hex HMAC of the raw request body
const SignatureHeader = "X-Rapikom-Signature"

// Verifier checks delivery signatures against the shared webhook secret
type Verifier struct {
	secret  []byte
	algo    string
	newHash func() hash.Hash
}

// NewVerifier accepts "sha256" (default) or "sha512"
func NewVerifier(secret, algo string) (*Verifier, error) {
	algo = strings.ToLower(strings.TrimSpace(algo))
	v := &Verifier{secret: []byte(secret), algo: algo}
	switch algo {
	case "", "sha256":
		v.algo, v.newHash = "sha256", sha256.New
	case "sha512":
		v.newHash = sha512.New
	default:
		return nil, fmt.Errorf("unsupported webhook signature algorithm %q", algo)
	}
	return v, nil
}

func (v *Verifier) Algorithm() string { return v.algo }

// Sign returns the hex signature of body
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(v.newHash, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify fails closed: a missing secret, a missing header or a mismatch
// all return *errors.SignatureError. An "sha256=" style prefix is accepted.
func (v *Verifier) Verify(body []byte, signature string) error {
	if len(v.secret) == 0 {
		return &apperrors.SignatureError{Reason: "no webhook secret configured"}
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return &apperrors.SignatureError{Reason: "missing " + SignatureHeader + " header"}
	}
	signature = strings.TrimPrefix(signature, v.algo+"=")

	got, err := hex.DecodeString(signature)
	if err != nil {
		return &apperrors.SignatureError{Reason: "malformed signature"}
	}
	mac := hmac.New(v.newHash, v.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return &apperrors.SignatureError{Reason: "signature mismatch"}
	}
	return nil
}
