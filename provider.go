package webauth

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Reserved provider name: dispatches to the first registered provider's
// Logout.
const LogoutAction = "logout"

// Redirect marker params appended to browser redirects. Browser flows
// cannot consume a JSON body mid-redirect, so outcomes travel in the query
// string.
const (
	SuccessParam = "s"
	FailureParam = "f"

	FailureRequestToken = "RequestTokenFailed"
	FailureAccessToken  = "AccessTokenFailed"
)

// AuthRequest is the inbound authentication request shape, independent of
// transport parsing.
type AuthRequest struct {
	Provider      string `json:"provider"`
	State         string `json:"state"`
	OAuthToken    string `json:"oauth_token"`
	OAuthVerifier string `json:"oauth_verifier"`
	UserName      string `json:"userName"`
	Password      string `json:"password"`
	RememberMe    bool   `json:"rememberMe"`
	Continue      string `json:"continue"`
	Nonce         string `json:"nonce"`
	Uri           string `json:"uri"`
	Response      string `json:"response"`
	Qop           string `json:"qop"`
	Nc            string `json:"nc"`
	CNonce        string `json:"cnonce"`

	// HTTP is the underlying request, for header and address access.
	HTTP *http.Request `json:"-"`
}

// ParseAuthRequest builds an AuthRequest from form, query or JSON body.
func ParseAuthRequest(r *http.Request, provider string) *AuthRequest {
	req := &AuthRequest{Provider: provider, HTTP: r}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body AuthRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			body.Provider = provider
			body.HTTP = r
			req = &body
		}
	} else {
		r.ParseForm()
		get := func(name string) string { return r.Form.Get(name) }
		req.State = get("state")
		req.OAuthToken = get("oauth_token")
		req.OAuthVerifier = get("oauth_verifier")
		req.UserName = get("userName")
		req.Password = get("password")
		req.RememberMe = get("rememberMe") == "true" || get("rememberMe") == "on"
		req.Continue = get("continue")
		req.Nonce = get("nonce")
		req.Uri = get("uri")
		req.Response = get("response")
		req.Qop = get("qop")
		req.Nc = get("nc")
		req.CNonce = get("cnonce")
	}
	if req.Continue == "" && req.HTTP != nil {
		req.Continue = r.URL.Query().Get("continue")
	}
	return req
}

// Header reads a header from the underlying request, empty when detached.
func (r *AuthRequest) Header(name string) string {
	if r.HTTP == nil {
		return ""
	}
	return r.HTTP.Header.Get(name)
}

// ClientAddress is the peer address used to bind digest nonces.
func (r *AuthRequest) ClientAddress() string {
	if r.HTTP == nil {
		return ""
	}
	if fwd := r.HTTP.Header.Get("X-Forwarded-For"); fwd != "" {
		addr, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(addr)
	}
	host, _, err := net.SplitHostPort(r.HTTP.RemoteAddr)
	if err != nil {
		return r.HTTP.RemoteAddr
	}
	return host
}

// AuthResult is a provider outcome. A non-empty RedirectUrl instructs the
// dispatcher to 302; a non-empty Challenge instructs a 401 with a
// WWW-Authenticate header; otherwise the result renders as JSON.
type AuthResult struct {
	SessionId   string `json:"sessionId,omitempty"`
	UserName    string `json:"userName,omitempty"`
	ReferrerUrl string `json:"referrerUrl,omitempty"`
	Status      string `json:"status,omitempty"`

	RedirectUrl string `json:"-"`
	Challenge   string `json:"-"`
}

// AuthProvider is a named authentication strategy. Implementations hold
// configuration only; per-request state lives in the Session.
type AuthProvider interface {
	Name() string
	Authenticate(s *Session, req *AuthRequest) (*AuthResult, error)
	IsAuthorized(s *Session, req *AuthRequest) bool
	Logout(s *Session, req *AuthRequest) (*AuthResult, error)
}

// successResult is the uniform success payload for credential-style
// providers.
func successResult(s *Session) *AuthResult {
	return &AuthResult{
		SessionId:   s.Id,
		UserName:    s.UserAuthName,
		ReferrerUrl: s.ReferrerUrl,
		Status:      "success",
	}
}

// logoutResult redirects to the continuation target when one was supplied.
// Session removal itself is the dispatcher's job.
func logoutResult(s *Session, req *AuthRequest) *AuthResult {
	out := &AuthResult{Status: "logged_out"}
	if req != nil && req.Continue != "" {
		out.RedirectUrl = req.Continue
	}
	return out
}

// resolveReferrer picks the post-auth continuation target: the explicit
// continue param, else the Referer header, else the configured fallback. A
// target that points back into the auth endpoint would loop the redirect, so
// it falls through to "/".
func resolveReferrer(req *AuthRequest, fallback string) string {
	candidates := []string{req.Continue, req.Header("Referer"), fallback}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if req.HTTP != nil && req.HTTP.URL != nil && req.HTTP.URL.Path != "" {
			if u, err := url.Parse(c); err == nil && strings.HasPrefix(u.Path, req.HTTP.URL.Path) {
				continue
			}
		}
		return c
	}
	return "/"
}

// resolveCallback returns the configured callback URL, defaulting to the
// current request URI.
func resolveCallback(req *AuthRequest, configured string) string {
	if configured != "" {
		return configured
	}
	if req.HTTP == nil {
		return ""
	}
	scheme := "http"
	if req.HTTP.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + req.HTTP.Host + req.HTTP.URL.Path
}

// withParam appends a query parameter, preserving existing ones.
func withParam(rawurl, key, value string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
