package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 round count. The stored verifier does not record it,
	// so changing it invalidates every existing password.
	Iterations = 100_000
	// SaltSize is the length of the random per-user salt in bytes.
	SaltSize = 16
	// KeySize is the length of the derived key in bytes.
	KeySize = 32
	// MinPasswordLength is the shortest password the policy accepts.
	MinPasswordLength = 8
)

var (
	// ErrMalformedHash is returned when a stored verifier is not "<salt_hex>$<key_hex>".
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrPasswordPolicy is returned when a password does not meet the policy.
	ErrPasswordPolicy = errors.New("password must be at least 8 characters and contain upper, lower, and digit")
)

// HashPassword derives a "<salt_hex>$<key_hex>" verifier from password using a fresh random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return encode(salt, derive(password, salt)), nil
}

// CheckPassword reports whether password matches the stored verifier.
// Malformed verifiers never match.
func CheckPassword(password, hash string) bool {
	salt, key, err := ParseHash(hash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(derive(password, salt), key) == 1
}

// ParseHash splits a stored verifier into its salt and derived key.
func ParseHash(hash string) (salt, key []byte, err error) {
	saltHex, keyHex, ok := strings.Cut(hash, "$")
	if !ok || saltHex == "" || keyHex == "" || strings.Contains(keyHex, "$") {
		return nil, nil, ErrMalformedHash
	}
	if salt, err = hex.DecodeString(saltHex); err != nil {
		return nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if key, err = hex.DecodeString(keyHex); err != nil {
		return nil, nil, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	return salt, key, nil
}

// BurnCycles performs one derivation and discards the result. Used on unknown
// usernames so lookups and wrong passwords cost the same.
func BurnCycles(password string) {
	_ = derive(password, dummySalt)
}

var dummySalt = make([]byte, SaltSize)

func derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

func encode(salt, key []byte) string {
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(key)
}

// ValidatePasswordPolicy checks the minimum length and that the password has
// at least one uppercase letter, one lowercase letter and one digit.
func ValidatePasswordPolicy(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrPasswordPolicy
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrPasswordPolicy
	}
	return nil
}
