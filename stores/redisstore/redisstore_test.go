package redisstore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telklund/webauth"
	"github.com/telklund/webauth/stores/redisstore"
)

// newTestStore dials the Redis server named by WEBAUTH_REDIS_ADDR
// (localhost:6379 by default) and skips the test when none is reachable.
func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()
	addr := os.Getenv("WEBAUTH_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 9})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping: no redis server at %s: %v", addr, err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test db: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return redisstore.New(client)
}

func TestRedisAccountLifecycle(t *testing.T) {
	store := newTestStore(t)

	acct, err := store.CreateUserAuth(&webauth.UserAccount{
		UserName: "alice",
		Email:    "alice@example.com",
		Meta:     map[string]string{"plan": "pro"},
	}, "hunter22")
	if err != nil {
		t.Fatalf("CreateUserAuth failed: %v", err)
	}

	got, err := store.GetUserAuthById(acct.Id)
	if err != nil {
		t.Fatalf("GetUserAuthById failed: %v", err)
	}
	if got.UserName != "alice" || got.Meta["plan"] != "pro" {
		t.Errorf("Round-tripped account mismatch: %+v", got)
	}

	for _, lookup := range []string{"alice", "Alice", "alice@example.com"} {
		if _, err := store.GetUserAuthByUserName(lookup); err != nil {
			t.Errorf("Lookup %q failed: %v", lookup, err)
		}
	}

	if _, err := store.CreateUserAuth(&webauth.UserAccount{UserName: "alice"}, "pw"); !errors.Is(err, webauth.ErrDuplicateUserName) {
		t.Errorf("Expected ErrDuplicateUserName, got %v", err)
	}

	if _, err := store.TryAuthenticate("alice", "hunter22"); err != nil {
		t.Errorf("TryAuthenticate failed: %v", err)
	}
	if _, err := store.TryAuthenticate("alice", "wrong"); err == nil {
		t.Error("Expected failure for wrong password")
	}

	if err := store.DeleteUserAuth(acct.Id); err != nil {
		t.Fatalf("DeleteUserAuth failed: %v", err)
	}
	if _, err := store.GetUserAuthById(acct.Id); !errors.Is(err, webauth.ErrAccountNotFound) {
		t.Errorf("Account still present after delete: %v", err)
	}
	if _, err := store.GetUserAuthByUserName("alice"); !errors.Is(err, webauth.ErrAccountNotFound) {
		t.Errorf("Username still indexed after delete: %v", err)
	}
}

func TestRedisUpdateUserAuth(t *testing.T) {
	store := newTestStore(t)
	acct, err := store.CreateUserAuth(&webauth.UserAccount{UserName: "bob"}, "hunter22")
	if err != nil {
		t.Fatalf("CreateUserAuth failed: %v", err)
	}

	updated := *acct
	updated.UserName = "robert"
	out, err := store.UpdateUserAuth(acct, &updated, "")
	if err != nil {
		t.Fatalf("UpdateUserAuth failed: %v", err)
	}
	if out.PasswordHash != acct.PasswordHash {
		t.Error("Blank-password update changed the stored hash")
	}
	if _, err := store.GetUserAuthByUserName("bob"); !errors.Is(err, webauth.ErrAccountNotFound) {
		t.Errorf("Old username still indexed: %v", err)
	}
	if _, err := store.GetUserAuthByUserName("robert"); err != nil {
		t.Errorf("New username not indexed: %v", err)
	}
}

func TestRedisCreateOrMergeAuthSession(t *testing.T) {
	store := newTestStore(t)
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

	// Linking a second provider to the same account.
	s := webauth.NewSession()
	s.UserAuthId = first
	fbId, err := store.CreateOrMergeAuthSession(s, &webauth.OAuthTokens{Provider: "facebook", UserId: "fb-1"})
	if err != nil {
		t.Fatalf("Facebook merge failed: %v", err)
	}
	if fbId != first {
		t.Errorf("Second provider split the account: %q vs %q", fbId, first)
	}
	identities, err = store.GetLinkedIdentities(first)
	if err != nil {
		t.Fatalf("GetLinkedIdentities failed: %v", err)
	}
	if len(identities) != 2 {
		t.Errorf("Expected two identities, got %d", len(identities))
	}
}
