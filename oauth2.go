package webauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"golang.org/x/oauth2"
)

// OAuth2Provider drives a generic authorization-code flow. Like the 1.0a
// provider, the handshake's intermediate state (here the CSRF state value)
// is carried in the session's provider-token slot rather than in process
// memory.
type OAuth2Provider struct {
	// Provider is the registry name ("github", "google", ...). Required.
	Provider string

	ClientId     string
	ClientSecret string
	CallbackUrl  string
	RedirectUrl  string
	Scopes       []string
	Endpoint     oauth2.Endpoint

	// ProfileUrl is fetched with a bearer token after the exchange.
	ProfileUrl string

	// MapProfile maps the decoded profile document onto the token bundle.
	MapProfile func(profile map[string]any, tokens *OAuthTokens, s *Session)

	Store   UserAccountStore
	Gateway HTTPGateway
}

func (p *OAuth2Provider) Name() string { return p.Provider }

func (p *OAuth2Provider) gateway() HTTPGateway {
	if p.Gateway != nil {
		return p.Gateway
	}
	return nil
}

func (p *OAuth2Provider) oauthConfig(callbackUrl string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientId,
		ClientSecret: p.ClientSecret,
		RedirectURL:  callbackUrl,
		Scopes:       p.Scopes,
		Endpoint:     p.Endpoint,
	}
}

func randomState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func (p *OAuth2Provider) Authenticate(s *Session, req *AuthRequest) (*AuthResult, error) {
	tokens := s.Tokens(p.Name())
	s.ReferrerUrl = resolveReferrer(req, p.RedirectUrl)

	code := ""
	if req.HTTP != nil {
		code = req.HTTP.URL.Query().Get("code")
	}

	// Callback leg: verify state, exchange the code.
	if code != "" && tokens.RequestToken != "" {
		if req.State != tokens.RequestToken {
			s.ClearTokens(p.Name())
			return p.failureRedirect(s, FailureAccessToken), nil
		}
		cfg := p.oauthConfig(resolveCallback(req, p.CallbackUrl))
		tok, err := cfg.Exchange(context.Background(), code)
		if err != nil {
			log.Printf("oauth2 %s: code exchange failed: %v", p.Name(), err)
			s.ClearTokens(p.Name())
			return p.failureRedirect(s, FailureAccessToken), nil
		}
		tokens.AccessToken = tok.AccessToken
		tokens.RefreshToken = tok.RefreshToken
		tokens.RefreshTokenExpiry = tok.Expiry
		tokens.RequestToken = ""

		if err := p.onAuthenticated(s, tokens); err != nil {
			return nil, err
		}
		return &AuthResult{
			SessionId:   s.Id,
			UserName:    s.UserAuthName,
			ReferrerUrl: s.ReferrerUrl,
			RedirectUrl: withParam(s.ReferrerUrl, SuccessParam, "1"),
			Status:      "success",
		}, nil
	}

	// Initial leg: stash a random state and redirect to the authorize URL.
	state := randomState()
	tokens.RequestToken = state
	cfg := p.oauthConfig(resolveCallback(req, p.CallbackUrl))
	return &AuthResult{RedirectUrl: cfg.AuthCodeURL(state), Status: "redirect"}, nil
}

func (p *OAuth2Provider) failureRedirect(s *Session, marker string) *AuthResult {
	return &AuthResult{
		RedirectUrl: withParam(s.ReferrerUrl, FailureParam, marker),
		Status:      "failed",
	}
}

func (p *OAuth2Provider) onAuthenticated(s *Session, tokens *OAuthTokens) error {
	if p.ProfileUrl != "" {
		if err := p.loadProfile(tokens, s); err != nil {
			log.Printf("oauth2 %s: profile load failed: %v", p.Name(), err)
		}
	}
	accountId, err := p.Store.CreateOrMergeAuthSession(s, tokens)
	if err != nil {
		return fmt.Errorf("failed to merge auth session: %w", err)
	}
	s.UserAuthId = accountId
	if err := p.Store.LoadUserAuth(s, tokens); err != nil {
		return fmt.Errorf("failed to reload session: %w", err)
	}
	s.IsAuthenticated = true
	s.Provider = p.Name()
	return nil
}

func (p *OAuth2Provider) loadProfile(tokens *OAuthTokens, s *Session) error {
	gw := p.gateway()
	var client HTTPGateway
	if gw != nil {
		client = gw
	} else {
		client = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tokens.AccessToken}))
	}
	var profile map[string]any
	if err := fetchJSON(client, p.ProfileUrl, &profile); err != nil {
		return err
	}
	if p.MapProfile != nil {
		p.MapProfile(profile, tokens, s)
		return nil
	}
	// Common claim names cover most providers.
	if id, ok := profile["id"].(string); ok {
		tokens.UserId = id
	} else if sub, ok := profile["sub"].(string); ok {
		tokens.UserId = sub
	}
	if name, ok := profile["name"].(string); ok {
		tokens.DisplayName = name
		fillString(&s.DisplayName, name)
	}
	if email, ok := profile["email"].(string); ok {
		tokens.Email = email
		fillString(&s.Email, email)
	}
	return nil
}

func (p *OAuth2Provider) IsAuthorized(s *Session, req *AuthRequest) bool {
	if s == nil || s.ProviderTokens == nil {
		return false
	}
	tokens := s.ProviderTokens[p.Name()]
	if tokens == nil || tokens.AccessToken == "" {
		return false
	}
	if req != nil && req.UserName != "" && !strings.EqualFold(req.UserName, s.UserAuthName) {
		return false
	}
	return true
}

func (p *OAuth2Provider) Logout(s *Session, req *AuthRequest) (*AuthResult, error) {
	return logoutResult(s, req), nil
}
