package webauth

import (
	"strings"
)

// DigestAuthProvider authenticates via RFC 2617 digest challenges. All
// challenge state rides in the nonce; the session keeps only the last-seen
// nc for replay protection.
type DigestAuthProvider struct {
	Store UserAccountStore

	// Realm defaults to DefaultRealm.
	Realm string

	// PrivateKey signs nonces. Required.
	PrivateKey string

	// NonceTimeoutSeconds defaults to 600.
	NonceTimeoutSeconds int
}

func (p *DigestAuthProvider) Name() string { return "digest" }

func (p *DigestAuthProvider) realm() string {
	if p.Realm != "" {
		return p.Realm
	}
	return DefaultRealm
}

func (p *DigestAuthProvider) timeout() int {
	if p.NonceTimeoutSeconds > 0 {
		return p.NonceTimeoutSeconds
	}
	return 600
}

// challenge mints a fresh nonce for a 401 response.
func (p *DigestAuthProvider) challenge(req *AuthRequest) string {
	return ChallengeHeader(p.realm(), MintNonce(req.ClientAddress(), p.PrivateKey))
}

func (p *DigestAuthProvider) Authenticate(s *Session, req *AuthRequest) (*AuthResult, error) {
	header := req.Header("Authorization")
	if !strings.HasPrefix(header, "Digest ") {
		return &AuthResult{Status: "unauthorized", Challenge: p.challenge(req)}, nil
	}
	method := ""
	if req.HTTP != nil {
		method = req.HTTP.Method
	}
	fields, err := ParseDigestAuthorization(header, method)
	if err != nil {
		return nil, err
	}

	acct, err := p.Store.TryAuthenticateDigest(fields, req.ClientAddress(), p.PrivateKey, p.timeout(), s.Sequence)
	if err != nil {
		// Failed checks re-challenge rather than erroring out; a corrupt
		// nonce is the one hard failure.
		if _, ok := err.(*AuthError); ok {
			return &AuthResult{Status: "unauthorized", Challenge: p.challenge(req)}, nil
		}
		return nil, err
	}

	// A different principal replaces session identity data, same as the
	// credentials path.
	if s.IsAuthenticated && s.UserAuthId != acct.Id {
		s.ResetPrincipal()
	}

	s.Sequence = fields.Nc
	s.ReferrerUrl = resolveReferrer(req, "")
	s.PopulateFromAccount(acct)
	s.IsAuthenticated = true
	s.Provider = p.Name()
	return successResult(s), nil
}

func (p *DigestAuthProvider) IsAuthorized(s *Session, req *AuthRequest) bool {
	if s == nil || !s.IsAuthenticated || s.UserAuthName == "" {
		return false
	}
	if req != nil && req.UserName != "" && !strings.EqualFold(req.UserName, s.UserAuthName) {
		return false
	}
	return true
}

func (p *DigestAuthProvider) Logout(s *Session, req *AuthRequest) (*AuthResult, error) {
	return logoutResult(s, req), nil
}
