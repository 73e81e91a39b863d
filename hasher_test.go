package webauth_test

import (
	"testing"

	"github.com/telklund/webauth"
)

func TestSaltedHasher(t *testing.T) {
	h := &webauth.SaltedHasher{}

	hash, salt, err := h.Hash("hunter22")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == "" || salt == "" {
		t.Fatalf("Expected non-empty hash and salt, got %q / %q", hash, salt)
	}

	tests := []struct {
		name     string
		secret   string
		hash     string
		salt     string
		expected bool
	}{
		{"correct password", "hunter22", hash, salt, true},
		{"wrong password", "hunter23", hash, salt, false},
		{"wrong salt", "hunter22", hash, "AAAA", false},
		{"corrupt hash", "hunter22", "not-base64!!", salt, false},
		{"truncated hash", "hunter22", "c2hvcnQ=", salt, false},
		{"corrupt salt", "hunter22", hash, "not-base64!!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Verify(tt.secret, tt.hash, tt.salt); got != tt.expected {
				t.Errorf("Verify() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestSaltedHasherUniqueSalts(t *testing.T) {
	h := &webauth.SaltedHasher{}
	hash1, salt1, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	hash2, salt2, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if salt1 == salt2 {
		t.Error("Expected distinct salts for repeated hashing")
	}
	if hash1 == hash2 {
		t.Error("Expected distinct hashes under distinct salts")
	}
}

func TestBcryptHasher(t *testing.T) {
	h := &webauth.BcryptHasher{Cost: 4} // min cost keeps the test fast
	hash, salt, err := h.Hash("hunter22")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if salt != "" {
		t.Errorf("Expected empty salt from bcrypt, got %q", salt)
	}
	if !h.Verify("hunter22", hash, "") {
		t.Error("Expected correct password to verify")
	}
	if h.Verify("wrong", hash, "") {
		t.Error("Expected wrong password to fail")
	}
}
