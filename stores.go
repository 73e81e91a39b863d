package webauth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRealm is the digest protection-space used when a store or provider
// is not configured with one.
const DefaultRealm = "webauth"

// UserAccountStore is the durability contract for accounts and their linked
// identities. Three backends implement it: in-memory, Redis and relational.
type UserAccountStore interface {
	// CreateUserAuth validates required fields, enforces username/email
	// uniqueness, hashes the password, computes the digest HA1 and stamps
	// timestamps. The password may be empty for accounts created from an
	// OAuth identity.
	CreateUserAuth(acct *UserAccount, password string) (*UserAccount, error)

	// UpdateUserAuth applies updated onto existing. A blank password keeps
	// the stored hash.
	UpdateUserAuth(existing *UserAccount, updated *UserAccount, password string) (*UserAccount, error)

	GetUserAuthById(id string) (*UserAccount, error)

	// GetUserAuthByUserName accepts either a username or an email address;
	// the presence of "@" disambiguates.
	GetUserAuthByUserName(userNameOrEmail string) (*UserAccount, error)

	// TryAuthenticate verifies a password against the stored hash.
	TryAuthenticate(userName, password string) (*UserAccount, error)

	// TryAuthenticateDigest verifies a parsed digest authorization against
	// the account's stored HA1. lastSeenNc is the session's replay guard.
	TryAuthenticateDigest(fields *DigestFields, clientAddress, serverSecret string, nonceTimeoutSeconds int, lastSeenNc string) (*UserAccount, error)

	// LoadUserAuth resolves the backing account (session binding, then
	// username, then linked identity) and copies its fields onto the
	// session, preserving the session's own id.
	LoadUserAuth(s *Session, tokens *OAuthTokens) error

	GetLinkedIdentity(provider, providerUserId string) (*LinkedIdentity, error)
	GetLinkedIdentities(userAuthId string) ([]*LinkedIdentity, error)

	// CreateOrMergeAuthSession folds an exchange result into a linked
	// identity and its owning account, creating either as needed, and
	// returns the account id. Calling it twice with the same provider
	// identity returns the same id without duplicating the identity.
	CreateOrMergeAuthSession(s *Session, tokens *OAuthTokens) (string, error)

	DeleteUserAuth(id string) error
}

// ValidateUserAuth checks the account invariants common to every backend.
func ValidateUserAuth(acct *UserAccount) error {
	if acct.UserName == "" && acct.Email == "" {
		return NewAuthError(ErrCodeMissingField, "UserName or Email is required", "userName")
	}
	if acct.UserName != "" && strings.Contains(acct.UserName, "@") {
		return NewAuthError(ErrCodeValidationFailed, "UserName cannot contain '@'", "userName")
	}
	return nil
}

// PrepareUserAuth hashes the password, computes the digest HA1 and stamps
// timestamps. Backends call it from CreateUserAuth/UpdateUserAuth so the
// credential material is derived identically everywhere. A blank password
// leaves hash fields untouched.
func PrepareUserAuth(acct *UserAccount, password string, hasher PasswordHasher, realm string) error {
	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.ModifiedAt = now
	if password == "" {
		return nil
	}
	hash, salt, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	acct.PasswordHash = hash
	acct.Salt = salt
	if acct.UserName != "" {
		acct.DigestHA1 = CalcHA1(acct.UserName, realm, password)
	}
	return nil
}

// userNameResolver is the lookup subset the shared resolution helpers need.
type userNameResolver interface {
	GetUserAuthById(id string) (*UserAccount, error)
	GetUserAuthByUserName(userNameOrEmail string) (*UserAccount, error)
	GetLinkedIdentity(provider, providerUserId string) (*LinkedIdentity, error)
}

// ResolveUserAuth finds the account behind a session: the session binding
// wins, then the session's username, then the linked identity named by the
// tokens. Returns ErrAccountNotFound when nothing resolves.
func ResolveUserAuth(store userNameResolver, s *Session, tokens *OAuthTokens) (*UserAccount, error) {
	if s != nil && s.UserAuthId != "" {
		acct, err := store.GetUserAuthById(s.UserAuthId)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
	}
	if s != nil && s.UserAuthName != "" {
		acct, err := store.GetUserAuthByUserName(s.UserAuthName)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
	}
	if tokens != nil && tokens.Provider != "" && tokens.UserId != "" {
		li, err := store.GetLinkedIdentity(tokens.Provider, tokens.UserId)
		if err == nil && li.UserAuthId != "" {
			return store.GetUserAuthById(li.UserAuthId)
		}
		if err != nil && !errors.Is(err, ErrIdentityNotFound) {
			return nil, err
		}
	}
	return nil, ErrAccountNotFound
}

// CheckUniqueness is the advisory duplicate pre-check shared by the KV and
// relational backends. It is a read-then-write check, not a storage-level
// constraint; two racing creates can still both pass it.
func CheckUniqueness(store userNameResolver, acct *UserAccount, exceptId string) error {
	if acct.UserName != "" {
		existing, err := store.GetUserAuthByUserName(acct.UserName)
		if err == nil && existing.Id != exceptId {
			return ErrDuplicateUserName
		}
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return err
		}
	}
	if acct.Email != "" {
		existing, err := store.GetUserAuthByUserName(acct.Email)
		if err == nil && existing.Id != exceptId {
			return ErrDuplicateEmail
		}
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return err
		}
	}
	return nil
}

// VerifyDigest runs the digest validation shared by every backend's
// TryAuthenticateDigest.
func VerifyDigest(acct *UserAccount, fields *DigestFields, clientAddress, serverSecret string, nonceTimeoutSeconds int, lastSeenNc string) (*UserAccount, error) {
	if acct.DigestHA1 == "" {
		return nil, NewAuthError(ErrCodeInvalidCreds, "Invalid UserName or Password", "password")
	}
	ok, err := ValidateResponse(fields, clientAddress, serverSecret, nonceTimeoutSeconds, acct.DigestHA1, lastSeenNc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewAuthError(ErrCodeInvalidCreds, "Invalid UserName or Password", "password")
	}
	return acct, nil
}
