package webauth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/telklund/webauth"
	"github.com/telklund/webauth/stores/memstore"
)

// fakeOAuth1Server serves the three OAuth 1.0a endpoints plus a graph-style
// profile endpoint, without verifying signatures.
func fakeOAuth1Server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true"))
	})
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.Write([]byte("oauth_token=access-token&oauth_token_secret=access-secret"))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "access-token" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id":         "fb-12345",
			"name":       "Alice Liddell",
			"first_name": "Alice",
			"last_name":  "Liddell",
			"email":      "alice@example.com",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newFakeProvider(t *testing.T, store webauth.UserAccountStore) *webauth.OAuthProvider {
	server := fakeOAuth1Server(t)
	return webauth.NewFacebookProvider(webauth.FacebookConfig{
		ConsumerKey:     "consumer-key",
		ConsumerSecret:  "consumer-secret",
		CallbackUrl:     "http://app.example.com/auth/facebook",
		RedirectUrl:     "http://app.example.com/home",
		ProfileUrl:      server.URL + "/me?access_token=",
		RequestTokenUrl: server.URL + "/oauth/request_token",
		AuthorizeUrl:    server.URL + "/oauth/authorize",
		AccessTokenUrl:  server.URL + "/oauth/access_token",
		Store:           store,
	})
}

func TestOAuthFirstLeg(t *testing.T) {
	store := memstore.New()
	provider := newFakeProvider(t, store)

	s := webauth.NewSession()
	r := httptest.NewRequest("GET", "/auth/facebook", nil)
	result, err := provider.Authenticate(s, &webauth.AuthRequest{Provider: "facebook", HTTP: r})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if result.RedirectUrl == "" {
		t.Fatal("Expected a redirect to the authorize page")
	}
	u, err := url.Parse(result.RedirectUrl)
	if err != nil {
		t.Fatalf("Bad redirect url: %v", err)
	}
	if u.Query().Get("oauth_token") != "req-token" {
		t.Errorf("Expected oauth_token=req-token in redirect, got %q", result.RedirectUrl)
	}

	tokens := s.Tokens("facebook")
	if tokens.RequestToken != "req-token" || tokens.RequestTokenSecret != "req-secret" {
		t.Errorf("Request token bundle not stored on session: %+v", tokens)
	}
	if s.IsAuthenticated {
		t.Error("Session authenticated mid-handshake")
	}
}

func TestOAuthSecondLeg(t *testing.T) {
	store := memstore.New()
	provider := newFakeProvider(t, store)

	s := webauth.NewSession()
	firstLeg := httptest.NewRequest("GET", "/auth/facebook", nil)
	if _, err := provider.Authenticate(s, &webauth.AuthRequest{Provider: "facebook", HTTP: firstLeg}); err != nil {
		t.Fatalf("First leg failed: %v", err)
	}

	callback := httptest.NewRequest("GET", "/auth/facebook?oauth_token=req-token&oauth_verifier=ver", nil)
	result, err := provider.Authenticate(s, &webauth.AuthRequest{
		Provider:      "facebook",
		OAuthToken:    "req-token",
		OAuthVerifier: "ver",
		HTTP:          callback,
	})
	if err != nil {
		t.Fatalf("Second leg failed: %v", err)
	}

	if result.Status != "success" {
		t.Fatalf("Unexpected result: %+v", result)
	}
	if !strings.Contains(result.RedirectUrl, webauth.SuccessParam+"=1") {
		t.Errorf("Expected success marker in redirect, got %q", result.RedirectUrl)
	}
	if !s.IsAuthenticated || s.Provider != "facebook" {
		t.Errorf("Unexpected session state: authenticated=%v provider=%q", s.IsAuthenticated, s.Provider)
	}

	tokens := s.Tokens("facebook")
	if tokens.AccessToken != "access-token" || tokens.AccessTokenSecret != "access-secret" {
		t.Errorf("Access token bundle missing: %+v", tokens)
	}
	if tokens.RequestToken != "" {
		t.Error("Request token should be cleared after the exchange")
	}

	// The merge created a backing account and linked identity.
	if s.UserAuthId == "" {
		t.Fatal("Session has no backing account")
	}
	acct, err := store.GetUserAuthById(s.UserAuthId)
	if err != nil {
		t.Fatalf("Backing account missing: %v", err)
	}
	if acct.Email != "alice@example.com" || acct.DisplayName != "Alice Liddell" {
		t.Errorf("Profile fields not merged onto account: %+v", acct)
	}
	li, err := store.GetLinkedIdentity("facebook", "fb-12345")
	if err != nil {
		t.Fatalf("Linked identity missing: %v", err)
	}
	if li.UserAuthId != acct.Id {
		t.Errorf("Identity bound to %q, expected %q", li.UserAuthId, acct.Id)
	}
	if li.AccessToken != "access-token" {
		t.Errorf("Identity did not absorb tokens: %+v", li)
	}

	if !provider.IsAuthorized(s, &webauth.AuthRequest{}) {
		t.Error("Expected IsAuthorized after the handshake")
	}
}

func TestOAuthTokenMismatch(t *testing.T) {
	store := memstore.New()
	provider := newFakeProvider(t, store)

	s := webauth.NewSession()
	firstLeg := httptest.NewRequest("GET", "/auth/facebook", nil)
	if _, err := provider.Authenticate(s, &webauth.AuthRequest{Provider: "facebook", HTTP: firstLeg}); err != nil {
		t.Fatalf("First leg failed: %v", err)
	}

	callback := httptest.NewRequest("GET", "/auth/facebook", nil)
	result, err := provider.Authenticate(s, &webauth.AuthRequest{
		Provider:      "facebook",
		OAuthToken:    "some-other-token",
		OAuthVerifier: "ver",
		HTTP:          callback,
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !strings.Contains(result.RedirectUrl, webauth.FailureAccessToken) {
		t.Errorf("Expected access-token failure marker, got %q", result.RedirectUrl)
	}
	if s.IsAuthenticated {
		t.Error("Session authenticated despite token mismatch")
	}
	if s.Tokens("facebook").RequestToken != "" {
		t.Error("Stale request token should be cleared on mismatch")
	}
}

func TestOAuthRequestTokenFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer failing.Close()

	provider := webauth.NewFacebookProvider(webauth.FacebookConfig{
		ConsumerKey:     "consumer-key",
		ConsumerSecret:  "consumer-secret",
		RedirectUrl:     "http://app.example.com/home",
		RequestTokenUrl: failing.URL + "/oauth/request_token",
		AuthorizeUrl:    failing.URL + "/oauth/authorize",
		AccessTokenUrl:  failing.URL + "/oauth/access_token",
		Store:           memstore.New(),
	})

	s := webauth.NewSession()
	r := httptest.NewRequest("GET", "/auth/facebook", nil)
	result, err := provider.Authenticate(s, &webauth.AuthRequest{Provider: "facebook", HTTP: r})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !strings.Contains(result.RedirectUrl, webauth.FailureRequestToken) {
		t.Errorf("Expected request-token failure marker, got %q", result.RedirectUrl)
	}
}

func TestTwitterProfileMapping(t *testing.T) {
	profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id_str":      "tw-99",
			"screen_name": "aliddell",
			"name":        "Alice Liddell",
		})
	}))
	defer profile.Close()

	provider := webauth.NewTwitterProvider(webauth.TwitterConfig{
		ConsumerKey:    "consumer-key",
		ConsumerSecret: "consumer-secret",
		ProfileUrl:     profile.URL,
		Store:          memstore.New(),
	})

	s := webauth.NewSession()
	tokens := s.Tokens("twitter")
	tokens.AccessToken = "at"
	tokens.AccessTokenSecret = "ats"
	if err := provider.LoadUserProfile(provider, tokens, s); err != nil {
		t.Fatalf("LoadUserProfile failed: %v", err)
	}
	if tokens.UserId != "tw-99" || tokens.UserName != "aliddell" {
		t.Errorf("Profile not mapped onto tokens: %+v", tokens)
	}
	if s.UserName != "aliddell" || s.DisplayName != "Alice Liddell" {
		t.Errorf("Profile not mapped onto session: %q / %q", s.UserName, s.DisplayName)
	}
}
