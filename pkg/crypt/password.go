// Package crypt handles password verification. New passwords hash with
// bcrypt; hashes imported from old TinyMUSH flatfiles are DES crypt(3)
// ("XX" salt) and still verify, so imported players can log in before
// their hash is upgraded.
package crypt

import (
	"strings"

	descrypt "github.com/digitive/crypt"
	"golang.org/x/crypto/bcrypt"
)

// Crypt performs traditional Unix DES crypt(3).
func Crypt(password, salt string) string {
	result, err := descrypt.Crypt(password, salt)
	if err != nil {
		return ""
	}
	return result
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword verifies a password against a stored hash, bcrypt or
// legacy DES.
func CheckPassword(password, storedHash string) bool {
	if strings.HasPrefix(storedHash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
	}
	if len(storedHash) < 2 {
		return false
	}
	salt := storedHash[:2]
	computed := Crypt(password, salt)
	return computed != "" && computed == storedHash
}

// NeedsUpgrade reports whether a stored hash is legacy DES and should be
// rehashed with bcrypt after a successful login.
func NeedsUpgrade(storedHash string) bool {
	return !strings.HasPrefix(storedHash, "$2")
}
