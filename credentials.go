package webauth

import (
	"strings"
)

// CredentialsAuthProvider authenticates a username/password pair against the
// account store. It is also the delegate behind HTTP Basic.
type CredentialsAuthProvider struct {
	Store UserAccountStore

	// Provider name, defaults to "credentials".
	Provider string

	// ReferrerUrl is the fallback continuation target.
	ReferrerUrl string
}

func (p *CredentialsAuthProvider) Name() string {
	if p.Provider != "" {
		return p.Provider
	}
	return "credentials"
}

func (p *CredentialsAuthProvider) Authenticate(s *Session, req *AuthRequest) (*AuthResult, error) {
	if req.UserName == "" {
		return nil, NewAuthError(ErrCodeMissingField, "UserName is required", "userName")
	}
	if req.Password == "" {
		return nil, NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}

	// An already-bound session for the same principal needs no second
	// round-trip to the store. A different login name forces replacement.
	if s.IsAuthenticated && p.IsAuthorized(s, req) {
		return successResult(s), nil
	}

	acct, err := p.Store.TryAuthenticate(req.UserName, req.Password)
	if err != nil {
		return nil, NewAuthError(ErrCodeInvalidCreds, "Invalid UserName or Password", "password")
	}

	// Logging in as a different principal replaces the session's identity
	// data rather than merging into it.
	if s.IsAuthenticated && s.UserAuthId != acct.Id {
		s.ResetPrincipal()
	}

	s.ReferrerUrl = resolveReferrer(req, p.ReferrerUrl)
	s.PopulateFromAccount(acct)
	s.IsAuthenticated = true
	s.Provider = p.Name()
	return successResult(s), nil
}

func (p *CredentialsAuthProvider) IsAuthorized(s *Session, req *AuthRequest) bool {
	if s == nil || !s.IsAuthenticated || s.UserAuthName == "" {
		return false
	}
	if req != nil && req.UserName != "" && !strings.EqualFold(req.UserName, s.UserAuthName) {
		return false
	}
	return true
}

func (p *CredentialsAuthProvider) Logout(s *Session, req *AuthRequest) (*AuthResult, error) {
	return logoutResult(s, req), nil
}
