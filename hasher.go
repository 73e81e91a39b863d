package webauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the salted one-way hash used for stored credentials.
// Verify never returns an error: any mismatch, including a corrupt or
// truncated stored value, reports false.
type PasswordHasher interface {
	Hash(secret string) (hash string, salt string, err error)
	Verify(secret, hash, salt string) bool
}

// SaltedHasher hashes digest(secret||salt) with SHA-256 and a random
// fixed-length salt. Both outputs are base64 strings.
type SaltedHasher struct {
	// SaltLength defaults to 4 bytes when zero.
	SaltLength int
}

func (h *SaltedHasher) saltLength() int {
	if h.SaltLength > 0 {
		return h.SaltLength
	}
	return 4
}

func (h *SaltedHasher) Hash(secret string) (string, string, error) {
	salt := make([]byte, h.saltLength())
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	sum := sha256.Sum256(append([]byte(secret), salt...))
	return base64.StdEncoding.EncodeToString(sum[:]), base64.StdEncoding.EncodeToString(salt), nil
}

func (h *SaltedHasher) Verify(secret, hash, salt string) bool {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}
	rawHash, err := base64.StdEncoding.DecodeString(hash)
	if err != nil || len(rawHash) != sha256.Size {
		return false
	}
	sum := sha256.Sum256(append([]byte(secret), rawSalt...))
	return subtle.ConstantTimeCompare(sum[:], rawHash) == 1
}

// BcryptHasher is an alternate PasswordHasher for deployments that prefer an
// adaptive hash. The salt return is always empty; bcrypt embeds its own.
type BcryptHasher struct {
	// Cost defaults to bcrypt.DefaultCost when zero.
	Cost int
}

func (h *BcryptHasher) Hash(secret string) (string, string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), "", nil
}

func (h *BcryptHasher) Verify(secret, hash, _ string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
