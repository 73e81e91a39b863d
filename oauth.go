package webauth

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"
)

// HTTPGateway is the outbound-client collaborator used for provider profile
// fetches. *http.Client satisfies it.
type HTTPGateway interface {
	Do(req *http.Request) (*http.Response, error)
}

// OAuthProvider drives the three-legged OAuth 1.0a flow. It is a state
// machine over two separate round-trips; the intermediate request token is
// carried in the session's provider-token slot, so any server instance
// sharing the session store can finish a handshake another one started.
type OAuthProvider struct {
	// Provider is the registry name ("twitter", ...). Required.
	Provider string

	ConsumerKey    string
	ConsumerSecret string

	RequestTokenUrl string
	AuthorizeUrl    string
	AccessTokenUrl  string

	// CallbackUrl defaults to the current request URI.
	CallbackUrl string

	// RedirectUrl is the fallback continuation target when the request
	// carries no continue param or Referer header.
	RedirectUrl string

	Store   UserAccountStore
	Gateway HTTPGateway

	// LoadUserProfile runs after the access-token exchange, before the
	// account merge. Specializations fetch the provider's profile endpoint
	// here and map its fields onto the token bundle and session. Failures
	// are logged, not fatal; the tokens alone still identify the caller.
	LoadUserProfile func(p *OAuthProvider, tokens *OAuthTokens, s *Session) error
}

func (p *OAuthProvider) Name() string { return p.Provider }

func (p *OAuthProvider) gateway() HTTPGateway {
	if p.Gateway != nil {
		return p.Gateway
	}
	return http.DefaultClient
}

func (p *OAuthProvider) oauthConfig(callbackUrl string) *oauth1.Config {
	return &oauth1.Config{
		ConsumerKey:    p.ConsumerKey,
		ConsumerSecret: p.ConsumerSecret,
		CallbackURL:    callbackUrl,
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: p.RequestTokenUrl,
			AuthorizeURL:    p.AuthorizeUrl,
			AccessTokenURL:  p.AccessTokenUrl,
		},
	}
}

// SignedClient returns an http.Client that signs requests with the consumer
// key and the given access token, for authenticated profile fetches.
func (p *OAuthProvider) SignedClient(tokens *OAuthTokens) *http.Client {
	return p.oauthConfig("").Client(oauth1.NoContext,
		oauth1.NewToken(tokens.AccessToken, tokens.AccessTokenSecret))
}

func (p *OAuthProvider) Authenticate(s *Session, req *AuthRequest) (*AuthResult, error) {
	tokens := s.Tokens(p.Name())
	s.ReferrerUrl = resolveReferrer(req, p.RedirectUrl)

	// Second leg: the provider redirected back with a verifier for the
	// request token we stored on the first leg.
	if req.OAuthVerifier != "" && tokens.RequestToken != "" {
		if req.OAuthToken != "" && req.OAuthToken != tokens.RequestToken {
			s.ClearTokens(p.Name())
			return p.failureRedirect(s, FailureAccessToken), nil
		}
		accessToken, accessSecret, err := p.oauthConfig("").AccessToken(
			tokens.RequestToken, tokens.RequestTokenSecret, req.OAuthVerifier)
		if err != nil {
			log.Printf("oauth %s: access token exchange failed: %v", p.Name(), err)
			s.ClearTokens(p.Name())
			return p.failureRedirect(s, FailureAccessToken), nil
		}
		tokens.AccessToken = accessToken
		tokens.AccessTokenSecret = accessSecret
		tokens.RequestToken = ""
		tokens.RequestTokenSecret = ""

		if err := p.onAuthenticated(s, tokens, req); err != nil {
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

	// First leg: acquire a request token and send the caller off to the
	// provider's authorize page.
	cfg := p.oauthConfig(resolveCallback(req, p.CallbackUrl))
	requestToken, requestSecret, err := cfg.RequestToken()
	if err != nil {
		log.Printf("oauth %s: request token failed: %v", p.Name(), err)
		return p.failureRedirect(s, FailureRequestToken), nil
	}
	tokens.RequestToken = requestToken
	tokens.RequestTokenSecret = requestSecret

	authorizeUrl, err := cfg.AuthorizationURL(requestToken)
	if err != nil {
		log.Printf("oauth %s: authorize url failed: %v", p.Name(), err)
		return p.failureRedirect(s, FailureRequestToken), nil
	}
	return &AuthResult{RedirectUrl: authorizeUrl.String(), Status: "redirect"}, nil
}

func (p *OAuthProvider) failureRedirect(s *Session, marker string) *AuthResult {
	return &AuthResult{
		RedirectUrl: withParam(s.ReferrerUrl, FailureParam, marker),
		Status:      "failed",
	}
}

// onAuthenticated is the common post-authentication hook: load
// provider-specific profile fields, merge/create the backing account and
// linked identity, then reload the session from it.
func (p *OAuthProvider) onAuthenticated(s *Session, tokens *OAuthTokens, req *AuthRequest) error {
	if p.LoadUserProfile != nil {
		if err := p.LoadUserProfile(p, tokens, s); err != nil {
			log.Printf("oauth %s: profile load failed: %v", p.Name(), err)
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

func (p *OAuthProvider) IsAuthorized(s *Session, req *AuthRequest) bool {
	if s == nil || s.ProviderTokens == nil {
		return false
	}
	tokens := s.ProviderTokens[p.Name()]
	if tokens == nil || tokens.AccessTokenSecret == "" {
		return false
	}
	if req != nil && req.UserName != "" && !strings.EqualFold(req.UserName, s.UserAuthName) {
		return false
	}
	return true
}

func (p *OAuthProvider) Logout(s *Session, req *AuthRequest) (*AuthResult, error) {
	return logoutResult(s, req), nil
}

// fetchJSON GETs a provider endpoint through a gateway and decodes the JSON
// body.
func fetchJSON(gw HTTPGateway, url string, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := gw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("profile endpoint returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
