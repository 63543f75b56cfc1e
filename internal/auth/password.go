// Package auth hashes wishlist passwords and issues list session tokens.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hashing schemes accepted by NewHasher.
const (
	SchemeSHA256 = "sha256"
	SchemeBcrypt = "bcrypt"
)

// PasswordHasher turns a password into the string stored in the wishlist
// document and checks candidates against it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(stored, password string) bool
}

// NewHasher returns the hasher for scheme.
func NewHasher(scheme string) (PasswordHasher, error) {
	switch strings.ToLower(scheme) {
	case "", SchemeSHA256:
		return SHA256Hasher{}, nil
	case SchemeBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unknown password hash scheme %q", scheme)
	}
}

// SHA256Hasher stores the unsalted hex sha256 of the password. Existing
// wishlist documents use this format.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (SHA256Hasher) Verify(stored, password string) bool {
	return Verify(stored, password)
}

// BcryptHasher stores salted bcrypt hashes.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (BcryptHasher) Verify(stored, password string) bool {
	return Verify(stored, password)
}

// Verify checks password against a stored hash of either format, so lists
// created under one scheme stay usable after PASSWORD_HASH changes.
func Verify(stored, password string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	sum := sha256.Sum256([]byte(password))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(stored)), []byte(want)) == 1
}
