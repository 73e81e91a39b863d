package webauth_test

import (
	"testing"

	"github.com/telklund/webauth"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := webauth.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Realm != "webauth" {
		t.Errorf("Expected default realm, got %q", cfg.Realm)
	}
	if cfg.NonceTimeoutSeconds != 600 {
		t.Errorf("Expected default nonce timeout, got %d", cfg.NonceTimeoutSeconds)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Expected default redis addr, got %q", cfg.RedisAddr)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("WEBAUTH_REALM", "api.example.com")
	t.Setenv("WEBAUTH_NONCE_TIMEOUT_SECS", "120")
	t.Setenv("WEBAUTH_JWT_SECRET_KEY", "s3cret")

	cfg, err := webauth.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Realm != "api.example.com" {
		t.Errorf("Realm override lost: %q", cfg.Realm)
	}
	if cfg.NonceTimeoutSeconds != 120 {
		t.Errorf("Timeout override lost: %d", cfg.NonceTimeoutSeconds)
	}
	if cfg.JWTSecretKey != "s3cret" {
		t.Errorf("Secret override lost: %q", cfg.JWTSecretKey)
	}
}
