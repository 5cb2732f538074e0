package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/xraph/resthook/signature"
)

const (
	secretScheme = "zap"
	prefixLen    = 16
)

var envPattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// newSecret returns "zap_<env>_" followed by 32 random bytes in hex.
func newSecret(env string) string {
	return secretScheme + "_" + env + "_" + signature.RandomHex(32)
}

// HashSecret returns the hex SHA-256 digest under which a secret is stored.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the part of a secret that may be shown after issue.
func DisplayPrefix(secret string) string {
	if len(secret) <= prefixLen {
		return secret
	}
	return secret[:prefixLen]
}
