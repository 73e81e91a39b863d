package gormstore_test

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/telklund/webauth"
	"github.com/telklund/webauth/stores/gormstore"
)

func newTestDB(t *testing.T) *gormstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	return gormstore.New(db)
}

func TestGormCreateAndLookup(t *testing.T) {
	store := newTestDB(t)

	acct, err := store.CreateUserAuth(&webauth.UserAccount{
		UserName: "alice",
		Email:    "alice@example.com",
		Roles:    []string{"admin"},
		Meta:     map[string]string{"plan": "pro"},
	}, "hunter22")
	if err != nil {
		t.Fatalf("CreateUserAuth failed: %v", err)
	}
	if acct.Id == "" || acct.PasswordHash == "" || acct.DigestHA1 == "" {
		t.Errorf("Credential material missing: %+v", acct)
	}

	t.Run("by id", func(t *testing.T) {
		got, err := store.GetUserAuthById(acct.Id)
		if err != nil {
			t.Fatalf("GetUserAuthById failed: %v", err)
		}
		if got.UserName != "alice" || got.Meta["plan"] != "pro" || !got.HasRole("admin") {
			t.Errorf("Round-tripped account mismatch: %+v", got)
		}
	})

	t.Run("by username and email", func(t *testing.T) {
		for _, lookup := range []string{"alice", "Alice", "alice@example.com", "ALICE@example.com"} {
			got, err := store.GetUserAuthByUserName(lookup)
			if err != nil {
				t.Fatalf("Lookup %q failed: %v", lookup, err)
			}
			if got.Id != acct.Id {
				t.Errorf("Lookup %q resolved %q", lookup, got.Id)
			}
		}
	})

	t.Run("duplicates rejected", func(t *testing.T) {
		if _, err := store.CreateUserAuth(&webauth.UserAccount{UserName: "alice"}, "pw"); !errors.Is(err, webauth.ErrDuplicateUserName) {
			t.Errorf("Expected ErrDuplicateUserName, got %v", err)
		}
		if _, err := store.CreateUserAuth(&webauth.UserAccount{UserName: "alice2", Email: "alice@example.com"}, "pw"); !errors.Is(err, webauth.ErrDuplicateEmail) {
			t.Errorf("Expected ErrDuplicateEmail, got %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := store.GetUserAuthById("nope"); !errors.Is(err, webauth.ErrAccountNotFound) {
			t.Errorf("Expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestGormTryAuthenticate(t *testing.T) {
	store := newTestDB(t)
	if _, err := store.CreateUserAuth(&webauth.UserAccount{UserName: "alice", Email: "alice@example.com"}, "hunter22"); err != nil {
		t.Fatalf("CreateUserAuth failed: %v", err)
	}

	if _, err := store.TryAuthenticate("alice", "hunter22"); err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if _, err := store.TryAuthenticate("alice", "wrong"); err == nil {
		t.Error("Expected failure for wrong password")
	}
}

func TestGormUpdateUserAuth(t *testing.T) {
	store := newTestDB(t)
	acct, err := store.CreateUserAuth(&webauth.UserAccount{UserName: "alice"}, "hunter22")
	if err != nil {
		t.Fatalf("CreateUserAuth failed: %v", err)
	}

	updated := *acct
	updated.DisplayName = "Alice A"
	out, err := store.UpdateUserAuth(acct, &updated, "")
	if err != nil {
		t.Fatalf("UpdateUserAuth failed: %v", err)
	}
	if out.PasswordHash != acct.PasswordHash {
		t.Error("Blank-password update changed the stored hash")
	}
	if _, err := store.TryAuthenticate("alice", "hunter22"); err != nil {
		t.Errorf("Password stopped working after profile update: %v", err)
	}

	if _, err := store.UpdateUserAuth(acct, &updated, "new-password"); err != nil {
		t.Fatalf("Password update failed: %v", err)
	}
	if _, err := store.TryAuthenticate("alice", "new-password"); err != nil {
		t.Errorf("New password rejected: %v", err)
	}
}

func TestGormCreateOrMergeAuthSession(t *testing.T) {
	store := newTestDB(t)
	tokens := &webauth.OAuthTokens{
		Provider:    "twitter",
		UserId:      "tw-1",
		UserName:    "aliddell",
		AccessToken: "at",
	}

	first, err := store.CreateOrMergeAuthSession(webauth.NewSession(), tokens)
	if err != nil {
		t.Fatalf("First merge failed: %v", err)
	}
	second, err := store.CreateOrMergeAuthSession(webauth.NewSession(), tokens)
	if err != nil {
		t.Fatalf("Second merge failed: %v", err)
	}
	if first != second {
		t.Errorf("Merge returned different accounts: %q vs %q", first, second)
	}

	identities, err := store.GetLinkedIdentities(first)
	if err != nil {
		t.Fatalf("GetLinkedIdentities failed: %v", err)
	}
	if len(identities) != 1 {
		t.Fatalf("Expected a single identity, got %d", len(identities))
	}
	if identities[0].AccessToken != "at" {
		t.Errorf("Identity did not keep tokens: %+v", identities[0])
	}

	s := webauth.NewSession()
	if err := store.LoadUserAuth(s, tokens); err != nil {
		t.Fatalf("LoadUserAuth failed: %v", err)
	}
	if s.UserAuthId != first {
		t.Errorf("Session resolved %q, expected %q", s.UserAuthId, first)
	}
}

func TestGormDeleteUserAuth(t *testing.T) {
	store := newTestDB(t)
	s := webauth.NewSession()
	id, err := store.CreateOrMergeAuthSession(s, &webauth.OAuthTokens{Provider: "twitter", UserId: "tw-1", UserName: "aliddell"})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if err := store.DeleteUserAuth(id); err != nil {
		t.Fatalf("DeleteUserAuth failed: %v", err)
	}
	if _, err := store.GetUserAuthById(id); !errors.Is(err, webauth.ErrAccountNotFound) {
		t.Errorf("Account still present: %v", err)
	}
	if _, err := store.GetLinkedIdentity("twitter", "tw-1"); !errors.Is(err, webauth.ErrIdentityNotFound) {
		t.Errorf("Identity still present: %v", err)
	}
}
