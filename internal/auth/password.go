package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// HashPassword computes base64(SHA-256(salt ‖ password)), the stored form
// of account passwords. The salt is fixed per deployment and comes from
// configuration.
func HashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// CheckPassword compares the stored hash against the recomputed hash of the
// supplied password in constant time.
func CheckPassword(salt, password, storedHash string) bool {
	computed := HashPassword(salt, password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
