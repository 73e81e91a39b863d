package webauth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/telklund/webauth"
)

func TestMiddleware(t *testing.T) {
	svc, _ := newTestService(t)
	handler := svc.Handler()

	login := postLogin(handler, "/credentials", "alice", "hunter22", "")
	if login.Code != http.StatusOK {
		t.Fatalf("Login failed: %d", login.Code)
	}
	cookies := login.Result().Cookies()

	mw := &webauth.Middleware{
		Sessions:       svc.Sessions,
		VerifyIdentity: svc.VerifyIdentityCookie,
		LoginUrl:       "/auth/login",
	}

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(webauth.LoggedInUserId(r)))
	})

	t.Run("extract with session cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/private", nil)
		for _, c := range cookies {
			r.AddCookie(c)
		}
		rr := httptest.NewRecorder()
		mw.ExtractUser(echo).ServeHTTP(rr, r)
		if rr.Body.String() == "" {
			t.Error("Expected a resolved account id")
		}
	})

	t.Run("extract with identity cookie only", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/private", nil)
		for _, c := range cookies {
			if c.Name == webauth.IdentityCookieName {
				r.AddCookie(c)
			}
		}
		rr := httptest.NewRecorder()
		mw.ExtractUser(echo).ServeHTTP(rr, r)
		if rr.Body.String() == "" {
			t.Error("Expected the identity cookie fallback to resolve")
		}
	})

	t.Run("extract passes anonymous through", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/private", nil)
		rr := httptest.NewRecorder()
		mw.ExtractUser(echo).ServeHTTP(rr, r)
		if rr.Code != http.StatusOK || rr.Body.String() != "" {
			t.Errorf("Expected anonymous pass-through, got %d %q", rr.Code, rr.Body.String())
		}
	})

	t.Run("ensure rejects anonymous api calls", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/private", nil)
		rr := httptest.NewRecorder()
		mw.EnsureUser(echo).ServeHTTP(rr, r)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})

	t.Run("ensure redirects anonymous browsers", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/private?tab=2", nil)
		r.Header.Set("Accept", "text/html")
		rr := httptest.NewRecorder()
		mw.EnsureUser(echo).ServeHTTP(rr, r)
		if rr.Code != http.StatusFound {
			t.Fatalf("Expected redirect, got %d", rr.Code)
		}
		loc := rr.Header().Get("Location")
		if !strings.HasPrefix(loc, "/auth/login?continue=") {
			t.Errorf("Unexpected redirect target: %q", loc)
		}
	})
}
