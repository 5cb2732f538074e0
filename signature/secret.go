package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// SecretPrefix marks webhook signing secrets.
const SecretPrefix = "whsec_"

// RandomHex returns n random bytes from crypto/rand, hex encoded.
func RandomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("resthook: read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// GenerateSecret returns a fresh signing secret: "whsec_" followed by 64 hex
// characters.
func GenerateSecret() string {
	return SecretPrefix + RandomHex(32)
}
