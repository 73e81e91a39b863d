package webauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

// IdentityCookieName carries the signed account id for fast
// re-identification on subsequent requests.
const IdentityCookieName = "webauth_uid"

// AuthService resolves a named provider and drives its
// authenticate/logout contract, rendering the outcome as JSON for API
// callers or an HTTP redirect for HTML-negotiated ones.
//
// The provider registry is built once at construction and never mutated;
// there is no process-global state.
type AuthService struct {
	Sessions SessionProvider

	// Validate may short-circuit any call before a provider is invoked,
	// for cross-cutting policy independent of any specific provider.
	Validate func(req *AuthRequest) error

	// OnAuthenticated runs after a successful authentication has been
	// persisted.
	OnAuthenticated func(s *Session, req *AuthRequest)

	// JWTSecretKey signs the identity cookie. Falls back to the
	// WEBAUTH_JWT_SECRET_KEY environment variable.
	JWTSecretKey string
	JwtIssuer    string

	// IdentityCookieExpiry defaults to the remember-me expiry.
	IdentityCookieExpiry time.Duration

	providers []AuthProvider
	byName    map[string]AuthProvider
}

// NewAuthService builds the dispatcher over an ordered provider registry.
// The first provider is the default target and owns the reserved "logout"
// action.
func NewAuthService(sessions SessionProvider, providers ...AuthProvider) *AuthService {
	svc := &AuthService{
		Sessions: sessions,
		byName:   map[string]AuthProvider{},
	}
	for _, p := range providers {
		svc.providers = append(svc.providers, p)
		svc.byName[p.Name()] = p
	}
	return svc.EnsureDefaults()
}

func (svc *AuthService) EnsureDefaults() *AuthService {
	if svc.JWTSecretKey == "" {
		svc.JWTSecretKey = strings.TrimSpace(os.Getenv("WEBAUTH_JWT_SECRET_KEY"))
	}
	if svc.JwtIssuer == "" {
		svc.JwtIssuer = "webauth"
	}
	if svc.IdentityCookieExpiry <= 0 {
		svc.IdentityCookieExpiry = DefaultRememberMeExpiry
	}
	return svc
}

// Provider resolves a registry name; the empty name means the first
// registered provider.
func (svc *AuthService) Provider(name string) (AuthProvider, error) {
	if len(svc.providers) == 0 {
		return nil, ErrProviderNotFound
	}
	if name == "" {
		return svc.providers[0], nil
	}
	if p, ok := svc.byName[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
}

// Handler mounts the auth endpoints: /{provider} and /logout.
func (svc *AuthService) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/"+LogoutAction, func(w http.ResponseWriter, req *http.Request) {
		svc.serve(w, req, LogoutAction)
	})
	r.HandleFunc("/{provider}", func(w http.ResponseWriter, req *http.Request) {
		svc.serve(w, req, mux.Vars(req)["provider"])
	})
	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		svc.serve(w, req, "")
	})
	return r
}

func (svc *AuthService) serve(w http.ResponseWriter, r *http.Request, providerName string) {
	req := ParseAuthRequest(r, providerName)
	svc.Authenticate(w, r, req)
}

// Authenticate runs one authentication (or logout) request end to end:
// session load, optional global validation, provider dispatch, session
// persistence, identity cookie issuance and rendering.
func (svc *AuthService) Authenticate(w http.ResponseWriter, r *http.Request, req *AuthRequest) {
	s, err := svc.Sessions.Load(r)
	if err != nil {
		log.Printf("failed to load session: %v", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	if svc.Validate != nil {
		if err := svc.Validate(req); err != nil {
			svc.renderError(w, r, s, err)
			return
		}
	}

	if req.Provider == LogoutAction {
		svc.logout(w, r, req, s)
		return
	}

	provider, err := svc.Provider(req.Provider)
	if err != nil {
		svc.renderError(w, r, s, err)
		return
	}

	result, err := provider.Authenticate(s, req)
	if err != nil {
		svc.renderError(w, r, s, err)
		return
	}

	// The session is persisted after every provider call: an OAuth
	// first leg stores its request token here even though nobody is
	// authenticated yet.
	if err := svc.Sessions.Save(w, r, s, req.RememberMe); err != nil {
		log.Printf("failed to save session: %v", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	if s.IsAuthenticated {
		svc.issueIdentityCookie(w, s)
		if svc.OnAuthenticated != nil {
			svc.OnAuthenticated(s, req)
		}
	}

	svc.renderResult(w, r, s, result)
}

func (svc *AuthService) logout(w http.ResponseWriter, r *http.Request, req *AuthRequest, s *Session) {
	provider, err := svc.Provider("")
	if err != nil {
		svc.renderError(w, r, s, err)
		return
	}
	result, err := provider.Logout(s, req)
	if err != nil {
		svc.renderError(w, r, s, err)
		return
	}
	if err := svc.Sessions.Remove(w, r); err != nil {
		log.Printf("failed to remove session: %v", err)
	}
	svc.clearIdentityCookie(w)
	svc.renderResult(w, r, s, result)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (svc *AuthService) renderResult(w http.ResponseWriter, r *http.Request, s *Session, result *AuthResult) {
	if result.Challenge != "" {
		w.Header().Set("WWW-Authenticate", result.Challenge)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if result.RedirectUrl != "" {
		http.Redirect(w, r, result.RedirectUrl, http.StatusFound)
		return
	}
	if wantsHTML(r) {
		target := result.ReferrerUrl
		if target == "" {
			target = s.ReferrerUrl
		}
		if target == "" {
			target = "/"
		}
		http.Redirect(w, r, withParam(target, SuccessParam, "1"), http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// renderError renders the typed taxonomy for API callers; browser-driven
// flows cannot consume a JSON body mid-redirect, so HTML callers get a
// redirect with the failure appended as a query parameter.
func (svc *AuthService) renderError(w http.ResponseWriter, r *http.Request, s *Session, err error) {
	if wantsHTML(r) {
		target := s.ReferrerUrl
		if target == "" {
			target = "/"
		}
		code := "Unknown"
		var ae *AuthError
		if errors.As(err, &ae) {
			code = ae.Code
		}
		http.Redirect(w, r, withParam(target, FailureParam, code), http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	var ae *AuthError
	if errors.As(err, &ae) {
		json.NewEncoder(w).Encode(ae)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (svc *AuthService) issueIdentityCookie(w http.ResponseWriter, s *Session) {
	if svc.JWTSecretKey == "" || s.UserAuthId == "" {
		return
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": s.UserAuthId,
		"iss": svc.JwtIssuer,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(svc.IdentityCookieExpiry).Unix(),
	})
	signed, err := token.SignedString([]byte(svc.JWTSecretKey))
	if err != nil {
		log.Printf("failed to sign identity cookie: %v", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     IdentityCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(svc.IdentityCookieExpiry),
		MaxAge:   int(svc.IdentityCookieExpiry / time.Second),
	})
}

func (svc *AuthService) clearIdentityCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    IdentityCookieName,
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}

// VerifyIdentityCookie validates the signed identity cookie and returns the
// bound account id.
func (svc *AuthService) VerifyIdentityCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(IdentityCookieName)
	if err != nil {
		return "", NewAuthError(ErrCodeNotAuthenticated, "no identity cookie", "")
	}
	token, err := jwt.Parse(cookie.Value, func(token *jwt.Token) (any, error) {
		return []byte(svc.JWTSecretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("subject not found")
	}
	return sub, nil
}
