package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/resthook/signature"
)

func TestNewSignerEmptySecretDisables(t *testing.T) {
	if signature.NewSigner("") != nil {
		t.Fatal("expected nil signer for empty secret")
	}
}

func TestSignKnownVector(t *testing.T) {
	secret := "whsec_testsecret123"
	payload := []byte(`{"event":"booking.created"}`)
	timestamp := int64(1700000000)

	got := signature.NewSigner(secret).Sign(payload, timestamp)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))
	want := "v1=" + hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
	if len(got) != 67 {
		t.Errorf("expected signature length 67, got %d", len(got))
	}
}

func TestVerify(t *testing.T) {
	s := signature.NewSigner("whsec_roundtrip")
	payload := []byte(`{"bookingId":"bk_1"}`)
	ts := int64(1700000001)
	sig := s.Sign(payload, ts)

	cases := []struct {
		name    string
		signer  *signature.Signer
		payload []byte
		ts      int64
		want    bool
	}{
		{"round trip", s, payload, ts, true},
		{"tampered payload", s, []byte(`{"bookingId":"bk_2"}`), ts, false},
		{"wrong secret", signature.NewSigner("whsec_other"), payload, ts, false},
		{"wrong timestamp", s, payload, ts + 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.signer.Verify(tc.payload, tc.ts, sig); got != tc.want {
				t.Fatalf("Verify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVerifyFresh(t *testing.T) {
	s := signature.NewSigner("whsec_fresh")
	payload := []byte(`{}`)
	now := time.Unix(1700000100, 0)

	recent := now.Add(-30 * time.Second).Unix()
	if !s.VerifyFresh(payload, recent, s.Sign(payload, recent), now, 5*time.Minute) {
		t.Fatal("expected recent signature to verify")
	}

	stale := now.Add(-10 * time.Minute).Unix()
	if s.VerifyFresh(payload, stale, s.Sign(payload, stale), now, 5*time.Minute) {
		t.Fatal("expected stale signature to be rejected")
	}
}
