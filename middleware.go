package webauth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

type contextKey string

const loggedInUserKey contextKey = "webauthUserId"

// Middleware extracts the authenticated account id for downstream handlers.
// It consults the session first and falls back to the signed identity
// cookie, so API calls carrying only the JWT still resolve a user.
type Middleware struct {
	Sessions SessionProvider

	// VerifyIdentity validates the identity cookie and returns the bound
	// account id. Usually AuthService.VerifyIdentityCookie.
	VerifyIdentity func(r *http.Request) (string, error)

	// LoginUrl is where EnsureUser redirects anonymous browser requests.
	// Empty means a plain 401.
	LoginUrl string

	// CallbackURLParam names the query param carrying the original URL on
	// the login redirect. Defaults to "continue".
	CallbackURLParam string
}

func (m *Middleware) EnsureDefaults() *Middleware {
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = "continue"
	}
	return m
}

// LoggedInUserId returns the account id extracted for this request, or ""
// when the caller is anonymous.
func LoggedInUserId(r *http.Request) string {
	if v, ok := r.Context().Value(loggedInUserKey).(string); ok {
		return v
	}
	return ""
}

func (m *Middleware) resolveUser(r *http.Request) string {
	if m.Sessions != nil {
		if s, err := m.Sessions.Load(r); err == nil && s.IsAuthenticated && s.UserAuthId != "" {
			return s.UserAuthId
		}
	}
	if m.VerifyIdentity != nil {
		userId, err := m.VerifyIdentity(r)
		if err == nil && userId != "" {
			return userId
		}
		if err != nil {
			slog.Debug("identity cookie rejected", "error", err)
		}
	}
	return ""
}

func (m *Middleware) withUser(r *http.Request, userId string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), loggedInUserKey, userId))
}

// ExtractUser resolves the caller and stores the account id on the request
// context. It never rejects; anonymous requests pass through with an empty
// id.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	m.EnsureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, m.withUser(r, m.resolveUser(r)))
	})
}

// EnsureUser is ExtractUser plus enforcement: anonymous requests are
// redirected to the login page (browser) or rejected with a 401.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	m.EnsureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := m.resolveUser(r)
		if userId == "" {
			if m.LoginUrl != "" && wantsHTML(r) {
				target := m.LoginUrl + "?" + m.CallbackURLParam + "=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, m.withUser(r, userId))
	})
}
