// Package memstore provides the process-local UserAccountStore backend:
// typed tables inside one repository value, guarded by per-entity-type
// locks. Non-durable; intended for tests and development.
package memstore

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/telklund/webauth"
)

type Store struct {
	// Hasher defaults to the salted SHA-256 hasher.
	Hasher webauth.PasswordHasher

	// Realm is used for digest HA1 computation. Defaults to
	// webauth.DefaultRealm.
	Realm string

	accountsMu    sync.RWMutex
	accounts      map[string]*webauth.UserAccount
	userNameIndex map[string]string
	emailIndex    map[string]string

	identitiesMu  sync.RWMutex
	identities    map[string]*webauth.LinkedIdentity
	providerIndex map[string]string
	accountIndex  map[string][]string
}

func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (st *Store) reset() {
	st.accounts = map[string]*webauth.UserAccount{}
	st.userNameIndex = map[string]string{}
	st.emailIndex = map[string]string{}
	st.identities = map[string]*webauth.LinkedIdentity{}
	st.providerIndex = map[string]string{}
	st.accountIndex = map[string][]string{}
}

// Clear drops every record. Test isolation only.
func (st *Store) Clear() {
	st.accountsMu.Lock()
	st.identitiesMu.Lock()
	st.reset()
	st.identitiesMu.Unlock()
	st.accountsMu.Unlock()
}

func (st *Store) hasher() webauth.PasswordHasher {
	if st.Hasher != nil {
		return st.Hasher
	}
	return &webauth.SaltedHasher{}
}

func (st *Store) realm() string {
	if st.Realm != "" {
		return st.Realm
	}
	return webauth.DefaultRealm
}

func providerKey(provider, userId string) string {
	return provider + ":" + userId
}

func cloneAccount(a *webauth.UserAccount) *webauth.UserAccount {
	out := *a
	out.Roles = slices.Clone(a.Roles)
	out.Permissions = slices.Clone(a.Permissions)
	out.Meta = maps.Clone(a.Meta)
	return &out
}

func cloneIdentity(li *webauth.LinkedIdentity) *webauth.LinkedIdentity {
	out := *li
	out.Items = maps.Clone(li.Items)
	return &out
}

func (st *Store) CreateUserAuth(acct *webauth.UserAccount, password string) (*webauth.UserAccount, error) {
	if err := webauth.ValidateUserAuth(acct); err != nil {
		return nil, err
	}
	record := cloneAccount(acct)
	if err := webauth.PrepareUserAuth(record, password, st.hasher(), st.realm()); err != nil {
		return nil, err
	}

	st.accountsMu.Lock()
	defer st.accountsMu.Unlock()
	if record.UserName != "" {
		if _, taken := st.userNameIndex[strings.ToLower(record.UserName)]; taken {
			return nil, webauth.ErrDuplicateUserName
		}
	}
	if record.Email != "" {
		if _, taken := st.emailIndex[strings.ToLower(record.Email)]; taken {
			return nil, webauth.ErrDuplicateEmail
		}
	}
	if record.Id == "" {
		record.Id = uuid.NewString()
	}
	st.accounts[record.Id] = record
	if record.UserName != "" {
		st.userNameIndex[strings.ToLower(record.UserName)] = record.Id
	}
	if record.Email != "" {
		st.emailIndex[strings.ToLower(record.Email)] = record.Id
	}
	return cloneAccount(record), nil
}

func (st *Store) UpdateUserAuth(existing, updated *webauth.UserAccount, password string) (*webauth.UserAccount, error) {
	if err := webauth.ValidateUserAuth(updated); err != nil {
		return nil, err
	}
	record := cloneAccount(updated)
	record.Id = existing.Id
	record.CreatedAt = existing.CreatedAt
	if password == "" {
		record.PasswordHash = existing.PasswordHash
		record.Salt = existing.Salt
		record.DigestHA1 = existing.DigestHA1
	}
	if err := webauth.PrepareUserAuth(record, password, st.hasher(), st.realm()); err != nil {
		return nil, err
	}

	st.accountsMu.Lock()
	defer st.accountsMu.Unlock()
	prev, ok := st.accounts[existing.Id]
	if !ok {
		return nil, webauth.ErrAccountNotFound
	}
	if record.UserName != "" {
		if id, taken := st.userNameIndex[strings.ToLower(record.UserName)]; taken && id != record.Id {
			return nil, webauth.ErrDuplicateUserName
		}
	}
	if record.Email != "" {
		if id, taken := st.emailIndex[strings.ToLower(record.Email)]; taken && id != record.Id {
			return nil, webauth.ErrDuplicateEmail
		}
	}
	if prev.UserName != "" {
		delete(st.userNameIndex, strings.ToLower(prev.UserName))
	}
	if prev.Email != "" {
		delete(st.emailIndex, strings.ToLower(prev.Email))
	}
	st.accounts[record.Id] = record
	if record.UserName != "" {
		st.userNameIndex[strings.ToLower(record.UserName)] = record.Id
	}
	if record.Email != "" {
		st.emailIndex[strings.ToLower(record.Email)] = record.Id
	}
	return cloneAccount(record), nil
}

func (st *Store) GetUserAuthById(id string) (*webauth.UserAccount, error) {
	st.accountsMu.RLock()
	defer st.accountsMu.RUnlock()
	acct, ok := st.accounts[id]
	if !ok {
		return nil, webauth.ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

func (st *Store) GetUserAuthByUserName(userNameOrEmail string) (*webauth.UserAccount, error) {
	st.accountsMu.RLock()
	defer st.accountsMu.RUnlock()
	index := st.userNameIndex
	if strings.Contains(userNameOrEmail, "@") {
		index = st.emailIndex
	}
	id, ok := index[strings.ToLower(userNameOrEmail)]
	if !ok {
		return nil, webauth.ErrAccountNotFound
	}
	return cloneAccount(st.accounts[id]), nil
}

func (st *Store) TryAuthenticate(userName, password string) (*webauth.UserAccount, error) {
	acct, err := st.GetUserAuthByUserName(userName)
	if err != nil {
		return nil, webauth.NewAuthError(webauth.ErrCodeInvalidCreds, "Invalid UserName or Password", "password")
	}
	if !st.hasher().Verify(password, acct.PasswordHash, acct.Salt) {
		return nil, webauth.NewAuthError(webauth.ErrCodeInvalidCreds, "Invalid UserName or Password", "password")
	}
	return acct, nil
}

func (st *Store) TryAuthenticateDigest(fields *webauth.DigestFields, clientAddress, serverSecret string, nonceTimeoutSeconds int, lastSeenNc string) (*webauth.UserAccount, error) {
	acct, err := st.GetUserAuthByUserName(fields.UserName)
	if err != nil {
		return nil, webauth.NewAuthError(webauth.ErrCodeInvalidCreds, "Invalid UserName or Password", "password")
	}
	return webauth.VerifyDigest(acct, fields, clientAddress, serverSecret, nonceTimeoutSeconds, lastSeenNc)
}

func (st *Store) LoadUserAuth(s *webauth.Session, tokens *webauth.OAuthTokens) error {
	acct, err := webauth.ResolveUserAuth(st, s, tokens)
	if err != nil {
		return err
	}
	s.PopulateFromAccount(acct)
	return nil
}

func (st *Store) GetLinkedIdentity(provider, providerUserId string) (*webauth.LinkedIdentity, error) {
	st.identitiesMu.RLock()
	defer st.identitiesMu.RUnlock()
	id, ok := st.providerIndex[providerKey(provider, providerUserId)]
	if !ok {
		return nil, webauth.ErrIdentityNotFound
	}
	return cloneIdentity(st.identities[id]), nil
}

func (st *Store) GetLinkedIdentities(userAuthId string) ([]*webauth.LinkedIdentity, error) {
	st.identitiesMu.RLock()
	defer st.identitiesMu.RUnlock()
	var out []*webauth.LinkedIdentity
	for _, id := range st.accountIndex[userAuthId] {
		out = append(out, cloneIdentity(st.identities[id]))
	}
	return out, nil
}

func (st *Store) saveLinkedIdentity(li *webauth.LinkedIdentity) {
	st.identitiesMu.Lock()
	defer st.identitiesMu.Unlock()
	record := cloneIdentity(li)
	st.identities[record.Id] = record
	st.providerIndex[providerKey(record.Provider, record.UserId)] = record.Id
	if !slices.Contains(st.accountIndex[record.UserAuthId], record.Id) {
		st.accountIndex[record.UserAuthId] = append(st.accountIndex[record.UserAuthId], record.Id)
	}
}

func (st *Store) CreateOrMergeAuthSession(s *webauth.Session, tokens *webauth.OAuthTokens) (string, error) {
	li, err := st.GetLinkedIdentity(tokens.Provider, tokens.UserId)
	if errors.Is(err, webauth.ErrIdentityNotFound) {
		li = &webauth.LinkedIdentity{
			Id:       uuid.NewString(),
			Provider: tokens.Provider,
			UserId:   tokens.UserId,
		}
	} else if err != nil {
		return "", err
	}

	acct, err := webauth.ResolveUserAuth(st, s, tokens)
	if errors.Is(err, webauth.ErrAccountNotFound) {
		acct, err = st.CreateUserAuth(&webauth.UserAccount{
			UserName:    tokens.UserName,
			Email:       tokens.Email,
			DisplayName: tokens.DisplayName,
			FirstName:   tokens.FirstName,
			LastName:    tokens.LastName,
		}, "")
	}
	if err != nil {
		return "", err
	}

	li.UserAuthId = acct.Id
	li.AbsorbTokens(tokens)
	acct.AbsorbIdentity(li)
	li.AbsorbAccount(acct)

	st.accountsMu.Lock()
	st.accounts[acct.Id] = cloneAccount(acct)
	st.accountsMu.Unlock()
	st.saveLinkedIdentity(li)
	return acct.Id, nil
}

func (st *Store) DeleteUserAuth(id string) error {
	st.accountsMu.Lock()
	acct, ok := st.accounts[id]
	if ok {
		delete(st.accounts, id)
		if acct.UserName != "" {
			delete(st.userNameIndex, strings.ToLower(acct.UserName))
		}
		if acct.Email != "" {
			delete(st.emailIndex, strings.ToLower(acct.Email))
		}
	}
	st.accountsMu.Unlock()
	if !ok {
		return webauth.ErrAccountNotFound
	}

	st.identitiesMu.Lock()
	for _, liId := range st.accountIndex[id] {
		if li, ok := st.identities[liId]; ok {
			delete(st.providerIndex, providerKey(li.Provider, li.UserId))
			delete(st.identities, liId)
		}
	}
	delete(st.accountIndex, id)
	st.identitiesMu.Unlock()
	return nil
}
