// Demo host app: an in-memory deployment of the auth service with
// credentials, basic and digest providers mounted under /auth/.
//
// Try it:
//
//	go run ./cmd/webauth-demo
//	curl -X POST -d 'userName=demo&password=demo123' localhost:8080/auth/credentials
//	curl --digest -u demo:demo123 localhost:8080/auth/digest
package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/telklund/webauth"
	"github.com/telklund/webauth/stores/memstore"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	cfg, err := webauth.FromEnv()
	if err != nil {
		log.Fatalf("bad configuration: %v", err)
	}
	if cfg.DigestPrivateKey == "" {
		cfg.DigestPrivateKey = "demo-only-private-key"
	}

	store := memstore.New()
	store.Realm = cfg.Realm
	if _, err := store.CreateUserAuth(&webauth.UserAccount{
		UserName: "demo",
		Email:    "demo@example.com",
	}, "demo123"); err != nil {
		log.Fatalf("failed to seed demo account: %v", err)
	}

	svc := webauth.NewAuthService(
		webauth.NewMemorySessionProvider(),
		&webauth.CredentialsAuthProvider{Store: store},
		&webauth.BasicAuthProvider{Store: store},
		&webauth.DigestAuthProvider{
			Store:               store,
			Realm:               cfg.Realm,
			PrivateKey:          cfg.DigestPrivateKey,
			NonceTimeoutSeconds: cfg.NonceTimeoutSeconds,
		},
	)
	svc.JWTSecretKey = cfg.JWTSecretKey

	mw := &webauth.Middleware{
		Sessions:       svc.Sessions,
		VerifyIdentity: svc.VerifyIdentityCookie,
		LoginUrl:       "/auth/credentials",
	}

	mux := http.NewServeMux()
	mux.Handle("/auth/", http.StripPrefix("/auth", svc.Handler()))
	mux.Handle("/private", mw.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello " + webauth.LoggedInUserId(r) + "\n"))
	})))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("webauth demo: POST /auth/credentials, GET /private\n"))
	})

	log.Printf("listening on %s (realm %q)", *addr, cfg.Realm)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
