package webauth

// BasicAuthProvider decodes an "Authorization: Basic" header into a
// username/password pair and delegates to the credentials path.
type BasicAuthProvider struct {
	Store UserAccountStore
}

func (p *BasicAuthProvider) Name() string { return "basic" }

func (p *BasicAuthProvider) credentials() *CredentialsAuthProvider {
	return &CredentialsAuthProvider{Store: p.Store, Provider: p.Name()}
}

func (p *BasicAuthProvider) Authenticate(s *Session, req *AuthRequest) (*AuthResult, error) {
	if req.HTTP == nil {
		return nil, NewAuthError(ErrCodeNotAuthenticated, "Invalid BasicAuth credentials", "Authorization")
	}
	user, pass, ok := req.HTTP.BasicAuth()
	if !ok || user == "" {
		return nil, NewAuthError(ErrCodeNotAuthenticated, "Invalid BasicAuth credentials", "Authorization")
	}
	delegated := *req
	delegated.UserName = user
	delegated.Password = pass
	return p.credentials().Authenticate(s, &delegated)
}

func (p *BasicAuthProvider) IsAuthorized(s *Session, req *AuthRequest) bool {
	return p.credentials().IsAuthorized(s, req)
}

func (p *BasicAuthProvider) Logout(s *Session, req *AuthRequest) (*AuthResult, error) {
	return logoutResult(s, req), nil
}
