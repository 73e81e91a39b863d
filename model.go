package webauth

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// UserAccount is the durable account record. One account may be linked to
// several provider identities; at least one of UserName/Email must be set
// and each is globally unique.
type UserAccount struct {
	Id           string            `json:"id"`
	UserName     string            `json:"user_name"`
	Email        string            `json:"email"`
	PrimaryEmail string            `json:"primary_email"`
	DisplayName  string            `json:"display_name"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	PasswordHash string            `json:"password_hash"`
	Salt         string            `json:"salt"`
	DigestHA1    string            `json:"digest_ha1"`
	Roles        []string          `json:"roles"`
	Permissions  []string          `json:"permissions"`
	Meta         map[string]string `json:"meta"`
	CreatedAt    time.Time         `json:"created_at"`
	ModifiedAt   time.Time         `json:"modified_at"`
}

func (a *UserAccount) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

func (a *UserAccount) HasPermission(perm string) bool {
	return slices.Contains(a.Permissions, perm)
}

// LinkedIdentity is a provider-scoped external identity merged into a local
// account. (Provider, UserId) resolves to at most one UserAccount.
type LinkedIdentity struct {
	Id         string `json:"id"`
	UserAuthId string `json:"user_auth_id"`
	Provider   string `json:"provider"`
	UserId     string `json:"user_id"`

	// Cached profile fields from the provider.
	UserName    string `json:"user_name"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`

	// Token bundle from the most recent exchange.
	RequestToken       string    `json:"request_token"`
	RequestTokenSecret string    `json:"request_token_secret"`
	AccessToken        string    `json:"access_token"`
	AccessTokenSecret  string    `json:"access_token_secret"`
	RefreshToken       string    `json:"refresh_token"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`

	Items      map[string]string `json:"items"`
	CreatedAt  time.Time         `json:"created_at"`
	ModifiedAt time.Time         `json:"modified_at"`
}

// OAuthTokens is the transient value produced during a token exchange. The
// merge algorithm folds it into a LinkedIdentity.
type OAuthTokens struct {
	Provider    string `json:"provider"`
	UserId      string `json:"user_id"`
	UserName    string `json:"user_name"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`

	RequestToken       string    `json:"request_token"`
	RequestTokenSecret string    `json:"request_token_secret"`
	AccessToken        string    `json:"access_token"`
	AccessTokenSecret  string    `json:"access_token_secret"`
	RefreshToken       string    `json:"refresh_token"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`

	Items map[string]string `json:"items"`
}

// Session carries per-principal state across requests. It is owned by the
// host's session store; providers and the dispatcher mutate it.
type Session struct {
	Id              string    `json:"id"`
	UserAuthId      string    `json:"user_auth_id"`
	UserAuthName    string    `json:"user_auth_name"`
	UserName        string    `json:"user_name"`
	DisplayName     string    `json:"display_name"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	IsAuthenticated bool      `json:"is_authenticated"`
	Provider        string    `json:"provider"`
	ReferrerUrl     string    `json:"referrer_url"`
	Roles           []string  `json:"roles"`
	Permissions     []string  `json:"permissions"`
	Sequence        string    `json:"sequence"`
	CreatedAt       time.Time `json:"created_at"`
	LastModified    time.Time `json:"last_modified"`

	// Per-provider token cache. OAuth request tokens live here between the
	// two legs of the handshake so any server instance can finish the flow.
	ProviderTokens map[string]*OAuthTokens `json:"provider_tokens"`
}

// NewSession creates an empty unauthenticated session with a fresh id.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		Id:             uuid.NewString(),
		CreatedAt:      now,
		LastModified:   now,
		ProviderTokens: map[string]*OAuthTokens{},
	}
}

// Tokens returns the session's token slot for a provider, creating it if
// absent.
func (s *Session) Tokens(provider string) *OAuthTokens {
	if s.ProviderTokens == nil {
		s.ProviderTokens = map[string]*OAuthTokens{}
	}
	t := s.ProviderTokens[provider]
	if t == nil {
		t = &OAuthTokens{Provider: provider}
		s.ProviderTokens[provider] = t
	}
	return t
}

// ClearTokens drops the token slot for a provider (e.g. after a failed
// access-token exchange).
func (s *Session) ClearTokens(provider string) {
	delete(s.ProviderTokens, provider)
}

// PopulateFromAccount copies account fields onto the session while keeping
// the session's own id. Already-populated session fields are preserved so a
// provider specialization can write its own values first.
func (s *Session) PopulateFromAccount(acct *UserAccount) {
	s.UserAuthId = acct.Id
	if acct.UserName != "" {
		s.UserAuthName = acct.UserName
	} else {
		s.UserAuthName = acct.Email
	}
	fillString(&s.UserName, acct.UserName)
	fillString(&s.DisplayName, acct.DisplayName)
	fillString(&s.FirstName, acct.FirstName)
	fillString(&s.LastName, acct.LastName)
	fillString(&s.Email, acct.PrimaryEmail)
	fillString(&s.Email, acct.Email)
	s.Roles = slices.Clone(acct.Roles)
	s.Permissions = slices.Clone(acct.Permissions)
	s.LastModified = time.Now().UTC()
}

// ResetPrincipal clears principal-derived state ahead of binding a different
// account: profile fields, roles/permissions, the digest sequence and the
// provider token cache. The session keeps its own id and referrer.
func (s *Session) ResetPrincipal() {
	s.UserAuthId = ""
	s.UserAuthName = ""
	s.UserName = ""
	s.DisplayName = ""
	s.FirstName = ""
	s.LastName = ""
	s.Email = ""
	s.Roles = nil
	s.Permissions = nil
	s.Sequence = ""
	s.ProviderTokens = map[string]*OAuthTokens{}
	s.LastModified = time.Now().UTC()
}

func (s *Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// fillString implements the first-write-wins rule: a populated destination is
// never overwritten.
func fillString(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}

// AbsorbTokens folds an exchange result into the identity. Token values
// always refresh (a new exchange supersedes the old bundle); profile fields
// follow first-write-wins.
func (li *LinkedIdentity) AbsorbTokens(t *OAuthTokens) {
	if t == nil {
		return
	}
	if t.RequestToken != "" {
		li.RequestToken = t.RequestToken
		li.RequestTokenSecret = t.RequestTokenSecret
	}
	if t.AccessToken != "" {
		li.AccessToken = t.AccessToken
		li.AccessTokenSecret = t.AccessTokenSecret
	}
	if t.RefreshToken != "" {
		li.RefreshToken = t.RefreshToken
		li.RefreshTokenExpiry = t.RefreshTokenExpiry
	}
	fillString(&li.UserName, t.UserName)
	fillString(&li.DisplayName, t.DisplayName)
	fillString(&li.FirstName, t.FirstName)
	fillString(&li.LastName, t.LastName)
	fillString(&li.Email, t.Email)
	fillString(&li.FullName, t.FullName)
	if len(t.Items) > 0 {
		if li.Items == nil {
			li.Items = map[string]string{}
		}
		for k, v := range t.Items {
			if _, ok := li.Items[k]; !ok {
				li.Items[k] = v
			}
		}
	}
	li.ModifiedAt = time.Now().UTC()
}

// AbsorbIdentity copies identity profile fields onto the account,
// first-write-wins, so several linked providers can each contribute data
// without clobbering user-edited values.
func (a *UserAccount) AbsorbIdentity(li *LinkedIdentity) {
	fillString(&a.DisplayName, li.DisplayName)
	fillString(&a.FirstName, li.FirstName)
	fillString(&a.LastName, li.LastName)
	fillString(&a.Email, li.Email)
	fillString(&a.PrimaryEmail, li.Email)
	a.ModifiedAt = time.Now().UTC()
}

// AbsorbAccount is the reverse direction of the bidirectional merge.
func (li *LinkedIdentity) AbsorbAccount(a *UserAccount) {
	fillString(&li.UserName, a.UserName)
	fillString(&li.DisplayName, a.DisplayName)
	fillString(&li.FirstName, a.FirstName)
	fillString(&li.LastName, a.LastName)
	fillString(&li.Email, a.Email)
	li.ModifiedAt = time.Now().UTC()
}
