package webauth

import (
	"fmt"

	"github.com/joeshaw/envdecode"
)

// Config is the environment-driven configuration for a webauth deployment.
// All fields have working defaults so a zero-config dev setup still runs.
type Config struct {
	Realm               string `env:"WEBAUTH_REALM,default=webauth"`
	JWTSecretKey        string `env:"WEBAUTH_JWT_SECRET_KEY"`
	DigestPrivateKey    string `env:"WEBAUTH_DIGEST_PRIVATE_KEY"`
	NonceTimeoutSeconds int    `env:"WEBAUTH_NONCE_TIMEOUT_SECS,default=600"`
	SessionExpirySecs   int    `env:"WEBAUTH_SESSION_EXPIRY_SECS,default=86400"`
	RememberMeSecs      int    `env:"WEBAUTH_REMEMBER_ME_SECS,default=2592000"`
	RedisAddr           string `env:"WEBAUTH_REDIS_ADDR,default=localhost:6379"`
}

// FromEnv loads Config from the environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
