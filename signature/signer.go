// Package signature signs outbound webhook bodies with HMAC-SHA256.
//
// Signing is optional. When a secret is configured each delivery carries
// X-Resthook-Timestamp and X-Resthook-Signature; receivers recompute
// "v1=" + hex(HMAC(secret, "<timestamp>.<body>")) and compare.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Header names carried on signed deliveries.
const (
	HeaderSignature = "X-Resthook-Signature"
	HeaderTimestamp = "X-Resthook-Timestamp"
)

// Signer signs payloads with one shared secret.
type Signer struct {
	secret []byte
}

// NewSigner returns a Signer for secret. An empty secret yields nil, which
// callers treat as "signing disabled".
func NewSigner(secret string) *Signer {
	if secret == "" {
		return nil
	}
	return &Signer{secret: []byte(secret)}
}

// Sign returns the versioned signature of payload at timestamp (unix seconds).
func (s *Signer) Sign(payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the signature of payload at timestamp.
func (s *Signer) Verify(payload []byte, timestamp int64, sig string) bool {
	return hmac.Equal([]byte(s.Sign(payload, timestamp)), []byte(sig))
}

// VerifyFresh is Verify plus a replay window: timestamps further than
// tolerance from now are rejected.
func (s *Signer) VerifyFresh(payload []byte, timestamp int64, sig string, now time.Time, tolerance time.Duration) bool {
	skew := now.Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return false
	}
	return s.Verify(payload, timestamp, sig)
}
