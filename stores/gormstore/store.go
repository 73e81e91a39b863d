// Package gormstore implements UserAccountStore on a relational database
// through GORM. Accounts and linked identities live in two tables; slice
// and map fields are serialized to JSON columns.
package gormstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/telklund/webauth"
)

// AutoMigrate creates or updates the tables this store uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserAccountModel{},
		&LinkedIdentityModel{},
	)
}

type Store struct {
	db *gorm.DB

	// Hasher defaults to the salted SHA-256 hasher.
	Hasher webauth.PasswordHasher

	// Realm is used for digest HA1 computation. Defaults to
	// webauth.DefaultRealm.
	Realm string
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
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

func (st *Store) CreateUserAuth(acct *webauth.UserAccount, password string) (*webauth.UserAccount, error) {
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
	if err := st.db.Create(AccountToModel(&record)).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &record, nil
}

func (st *Store) UpdateUserAuth(existing, updated *webauth.UserAccount, password string) (*webauth.UserAccount, error) {
	if err := webauth.ValidateUserAuth(updated); err != nil {
		return nil, err
	}
	prev, err := st.GetUserAuthById(existing.Id)
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
	if err := st.db.Save(AccountToModel(&record)).Error; err != nil {
		return nil, fmt.Errorf("failed to update account %s: %w", record.Id, err)
	}
	return &record, nil
}

func (st *Store) GetUserAuthById(id string) (*webauth.UserAccount, error) {
	var model UserAccountModel
	if err := st.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webauth.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (st *Store) GetUserAuthByUserName(userNameOrEmail string) (*webauth.UserAccount, error) {
	column := "user_name"
	if strings.Contains(userNameOrEmail, "@") {
		column = "email"
	}
	var model UserAccountModel
	err := st.db.First(&model, "lower("+column+") = ?", strings.ToLower(userNameOrEmail)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webauth.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
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
	var model LinkedIdentityModel
	err := st.db.First(&model, "provider = ? AND provider_user_id = ?", provider, providerUserId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webauth.ErrIdentityNotFound
		}
		return nil, err
	}
	return model.ToIdentity(), nil
}

func (st *Store) GetLinkedIdentities(userAuthId string) ([]*webauth.LinkedIdentity, error) {
	var models []LinkedIdentityModel
	if err := st.db.Where("user_auth_id = ?", userAuthId).Find(&models).Error; err != nil {
		return nil, err
	}
	identities := make([]*webauth.LinkedIdentity, len(models))
	for i := range models {
		identities[i] = models[i].ToIdentity()
	}
	return identities, nil
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

	err = st.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(AccountToModel(acct)).Error; err != nil {
			return err
		}
		return tx.Save(IdentityToModel(li)).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to merge auth session: %w", err)
	}
	return acct.Id, nil
}

func (st *Store) DeleteUserAuth(id string) error {
	if _, err := st.GetUserAuthById(id); err != nil {
		return err
	}
	return st.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&LinkedIdentityModel{}, "user_auth_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&UserAccountModel{}, "id = ?", id).Error
	})
}
