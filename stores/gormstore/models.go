package gormstore

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/telklund/webauth"
)

// StringMap stores a map[string]string as a JSON column.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, m)
}

// StringSlice stores a []string as a JSON column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, s)
}

// UserAccountModel is the GORM model for user accounts.
type UserAccountModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	UserName     string `gorm:"size:255;uniqueIndex:idx_accounts_username,where:user_name <> ''"`
	Email        string `gorm:"size:320;uniqueIndex:idx_accounts_email,where:email <> ''"`
	PrimaryEmail string `gorm:"size:320"`
	DisplayName  string `gorm:"size:255"`
	FirstName    string `gorm:"size:255"`
	LastName     string `gorm:"size:255"`
	PasswordHash string `gorm:"size:255"`
	Salt         string `gorm:"size:64"`
	DigestHA1    string `gorm:"size:64"`
	Roles        StringSlice
	Permissions  StringSlice
	Meta         StringMap
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

func (UserAccountModel) TableName() string {
	return "user_accounts"
}

func (m *UserAccountModel) ToAccount() *webauth.UserAccount {
	return &webauth.UserAccount{
		Id:           m.ID,
		UserName:     m.UserName,
		Email:        m.Email,
		PrimaryEmail: m.PrimaryEmail,
		DisplayName:  m.DisplayName,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		PasswordHash: m.PasswordHash,
		Salt:         m.Salt,
		DigestHA1:    m.DigestHA1,
		Roles:        m.Roles,
		Permissions:  m.Permissions,
		Meta:         m.Meta,
		CreatedAt:    m.CreatedAt,
		ModifiedAt:   m.ModifiedAt,
	}
}

func AccountToModel(a *webauth.UserAccount) *UserAccountModel {
	return &UserAccountModel{
		ID:           a.Id,
		UserName:     a.UserName,
		Email:        a.Email,
		PrimaryEmail: a.PrimaryEmail,
		DisplayName:  a.DisplayName,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		PasswordHash: a.PasswordHash,
		Salt:         a.Salt,
		DigestHA1:    a.DigestHA1,
		Roles:        StringSlice(a.Roles),
		Permissions:  StringSlice(a.Permissions),
		Meta:         StringMap(a.Meta),
		CreatedAt:    a.CreatedAt,
		ModifiedAt:   a.ModifiedAt,
	}
}

// LinkedIdentityModel is the GORM model for linked identities. The
// (provider, provider_user_id) pair is unique across the table.
type LinkedIdentityModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	UserAuthID     string `gorm:"size:64;index"`
	Provider       string `gorm:"size:32;uniqueIndex:idx_identities_provider_user"`
	ProviderUserID string `gorm:"size:255;uniqueIndex:idx_identities_provider_user"`

	UserName    string `gorm:"size:255"`
	DisplayName string `gorm:"size:255"`
	FirstName   string `gorm:"size:255"`
	LastName    string `gorm:"size:255"`
	Email       string `gorm:"size:320"`
	FullName    string `gorm:"size:255"`

	RequestToken       string `gorm:"size:512"`
	RequestTokenSecret string `gorm:"size:512"`
	AccessToken        string `gorm:"size:1024"`
	AccessTokenSecret  string `gorm:"size:512"`
	RefreshToken       string `gorm:"size:1024"`
	RefreshTokenExpiry time.Time

	Items      StringMap
	CreatedAt  time.Time
	ModifiedAt time.Time
}

func (LinkedIdentityModel) TableName() string {
	return "linked_identities"
}

func (m *LinkedIdentityModel) ToIdentity() *webauth.LinkedIdentity {
	return &webauth.LinkedIdentity{
		Id:                 m.ID,
		UserAuthId:         m.UserAuthID,
		Provider:           m.Provider,
		UserId:             m.ProviderUserID,
		UserName:           m.UserName,
		DisplayName:        m.DisplayName,
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		Email:              m.Email,
		FullName:           m.FullName,
		RequestToken:       m.RequestToken,
		RequestTokenSecret: m.RequestTokenSecret,
		AccessToken:        m.AccessToken,
		AccessTokenSecret:  m.AccessTokenSecret,
		RefreshToken:       m.RefreshToken,
		RefreshTokenExpiry: m.RefreshTokenExpiry,
		Items:              m.Items,
		CreatedAt:          m.CreatedAt,
		ModifiedAt:         m.ModifiedAt,
	}
}

func IdentityToModel(li *webauth.LinkedIdentity) *LinkedIdentityModel {
	return &LinkedIdentityModel{
		ID:                 li.Id,
		UserAuthID:         li.UserAuthId,
		Provider:           li.Provider,
		ProviderUserID:     li.UserId,
		UserName:           li.UserName,
		DisplayName:        li.DisplayName,
		FirstName:          li.FirstName,
		LastName:           li.LastName,
		Email:              li.Email,
		FullName:           li.FullName,
		RequestToken:       li.RequestToken,
		RequestTokenSecret: li.RequestTokenSecret,
		AccessToken:        li.AccessToken,
		AccessTokenSecret:  li.AccessTokenSecret,
		RefreshToken:       li.RefreshToken,
		RefreshTokenExpiry: li.RefreshTokenExpiry,
		Items:              StringMap(li.Items),
		CreatedAt:          li.CreatedAt,
		ModifiedAt:         li.ModifiedAt,
	}
}
