// Package redisstore implements UserAccountStore on a Redis-compatible
// key/value server. Accounts and linked identities are stored as JSON
// values; username and email lookups go through hash-based indexes.
//
// Key layout:
//
//	webauth:user:{id}                 account JSON
//	webauth:index:username            hash: lower(username) -> account id
//	webauth:index:email               hash: lower(email) -> account id
//	webauth:identity:{provider}:{id}  linked identity JSON
//	webauth:identities:{accountId}    set of identity keys
//
// Uniqueness is enforced by an advisory read-then-write check, the same
// policy as the relational backend.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telklund/webauth"
)

const keyPrefix = "webauth:"

type Store struct {
	Client *redis.Client

	// Hasher defaults to the salted SHA-256 hasher.
	Hasher webauth.PasswordHasher

	// Realm is used for digest HA1 computation. Defaults to
	// webauth.DefaultRealm.
	Realm string
}

func New(client *redis.Client) *Store {
	return &Store{Client: client}
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

func accountKey(id string) string            { return keyPrefix + "user:" + id }
func identityKey(provider, id string) string { return keyPrefix + "identity:" + provider + ":" + id }
func identitySetKey(accountId string) string { return keyPrefix + "identities:" + accountId }

const (
	userNameIndexKey = keyPrefix + "index:username"
	emailIndexKey    = keyPrefix + "index:email"
)

func (st *Store) getAccount(ctx context.Context, id string) (*webauth.UserAccount, error) {
	data, err := st.Client.Get(ctx, accountKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, webauth.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	var acct webauth.UserAccount
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", id, err)
	}
	return &acct, nil
}

func (st *Store) putAccount(ctx context.Context, acct *webauth.UserAccount) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("failed to encode account %s: %w", acct.Id, err)
	}
	pipe := st.Client.TxPipeline()
	pipe.Set(ctx, accountKey(acct.Id), data, 0)
	if acct.UserName != "" {
		pipe.HSet(ctx, userNameIndexKey, strings.ToLower(acct.UserName), acct.Id)
	}
	if acct.Email != "" {
		pipe.HSet(ctx, emailIndexKey, strings.ToLower(acct.Email), acct.Id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store account %s: %w", acct.Id, err)
	}
	return nil
}

func (st *Store) dropIndexes(ctx context.Context, acct *webauth.UserAccount) {
	if acct.UserName != "" {
		st.Client.HDel(ctx, userNameIndexKey, strings.ToLower(acct.UserName))
	}
	if acct.Email != "" {
		st.Client.HDel(ctx, emailIndexKey, strings.ToLower(acct.Email))
	}
}

func (st *Store) CreateUserAuth(acct *webauth.UserAccount, password string) (*webauth.UserAccount, error) {
	ctx := context.Background()
	if err := webauth.ValidateUserAuth(acct); err != nil {
		return nil, err
	}
	if err := webauth.CheckUniqueness(st, acct, acct.Id); err != nil {
		return nil, err
	}
	record := *acct
	if record.Id == "" {
		record.Id = uuid.NewString()
	}
	if err := webauth.PrepareUserAuth(&record, password, st.hasher(), st.realm()); err != nil {
		return nil, err
	}
	if err := st.putAccount(ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (st *Store) UpdateUserAuth(existing, updated *webauth.UserAccount, password string) (*webauth.UserAccount, error) {
	ctx := context.Background()
	if err := webauth.ValidateUserAuth(updated); err != nil {
		return nil, err
	}
	prev, err := st.getAccount(ctx, existing.Id)
	if err != nil {
		return nil, err
	}
	record := *updated
	record.Id = prev.Id
	record.CreatedAt = prev.CreatedAt
	if password == "" {
		record.PasswordHash = prev.PasswordHash
		record.Salt = prev.Salt
		record.DigestHA1 = prev.DigestHA1
	}
	if err := webauth.CheckUniqueness(st, &record, record.Id); err != nil {
		return nil, err
	}
	if err := webauth.PrepareUserAuth(&record, password, st.hasher(), st.realm()); err != nil {
		return nil, err
	}
	st.dropIndexes(ctx, prev)
	if err := st.putAccount(ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (st *Store) GetUserAuthById(id string) (*webauth.UserAccount, error) {
	return st.getAccount(context.Background(), id)
}

func (st *Store) GetUserAuthByUserName(userNameOrEmail string) (*webauth.UserAccount, error) {
	ctx := context.Background()
	index := userNameIndexKey
	if strings.Contains(userNameOrEmail, "@") {
		index = emailIndexKey
	}
	id, err := st.Client.HGet(ctx, index, strings.ToLower(userNameOrEmail)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, webauth.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %q: %w", userNameOrEmail, err)
	}
	return st.getAccount(ctx, id)
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
	ctx := context.Background()
	data, err := st.Client.Get(ctx, identityKey(provider, providerUserId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, webauth.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity %s/%s: %w", provider, providerUserId, err)
	}
	var li webauth.LinkedIdentity
	if err := json.Unmarshal(data, &li); err != nil {
		return nil, fmt.Errorf("failed to decode identity %s/%s: %w", provider, providerUserId, err)
	}
	return &li, nil
}

func (st *Store) GetLinkedIdentities(userAuthId string) ([]*webauth.LinkedIdentity, error) {
	ctx := context.Background()
	keys, err := st.Client.SMembers(ctx, identitySetKey(userAuthId)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list identities for %s: %w", userAuthId, err)
	}
	var out []*webauth.LinkedIdentity
	for _, key := range keys {
		data, err := st.Client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load identity %s: %w", key, err)
		}
		var li webauth.LinkedIdentity
		if err := json.Unmarshal(data, &li); err != nil {
			return nil, fmt.Errorf("failed to decode identity %s: %w", key, err)
		}
		out = append(out, &li)
	}
	return out, nil
}

func (st *Store) putLinkedIdentity(ctx context.Context, li *webauth.LinkedIdentity) error {
	data, err := json.Marshal(li)
	if err != nil {
		return fmt.Errorf("failed to encode identity %s/%s: %w", li.Provider, li.UserId, err)
	}
	key := identityKey(li.Provider, li.UserId)
	pipe := st.Client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, identitySetKey(li.UserAuthId), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store identity %s/%s: %w", li.Provider, li.UserId, err)
	}
	return nil
}

func (st *Store) CreateOrMergeAuthSession(s *webauth.Session, tokens *webauth.OAuthTokens) (string, error) {
	ctx := context.Background()
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

	if err := st.putAccount(ctx, acct); err != nil {
		return "", err
	}
	if err := st.putLinkedIdentity(ctx, li); err != nil {
		return "", err
	}
	return acct.Id, nil
}

func (st *Store) DeleteUserAuth(id string) error {
	ctx := context.Background()
	acct, err := st.getAccount(ctx, id)
	if err != nil {
		return err
	}
	identities, err := st.GetLinkedIdentities(id)
	if err != nil {
		return err
	}
	pipe := st.Client.TxPipeline()
	for _, li := range identities {
		pipe.Del(ctx, identityKey(li.Provider, li.UserId))
	}
	pipe.Del(ctx, identitySetKey(id))
	pipe.Del(ctx, accountKey(id))
	if acct.UserName != "" {
		pipe.HDel(ctx, userNameIndexKey, strings.ToLower(acct.UserName))
	}
	if acct.Email != "" {
		pipe.HDel(ctx, emailIndexKey, strings.ToLower(acct.Email))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, err)
	}
	return nil
}
