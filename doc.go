// Package webauth authenticates callers through interchangeable credential
// schemes, binds each authenticated caller to a session, and maps that
// session onto a durable account record that may be linked to several
// third-party identities.
//
// # Architecture
//
// AuthProvider: a named authentication strategy. Providers are
// configuration-only values implementing {Authenticate, IsAuthorized,
// Logout}; per-request state lives in the Session. Built-in providers cover
// HTTP Basic, username/password credentials, RFC 2617 digest, the
// three-legged OAuth 1.0a flow (with Twitter and Facebook specializations)
// and a generic OAuth2 authorization-code flow.
//
// UserAccount: the durable account record, owned by a UserAccountStore.
// One account can be linked to several provider identities; profile fields
// merge first-write-wins so no provider clobbers user-edited values.
//
// Session: per-principal state carried across requests through a
// SessionProvider. OAuth handshake state rides in the session, so any
// server instance sharing the session store can finish a flow another one
// started.
//
// AuthService: the dispatcher. It resolves a provider by name, drives its
// contract and renders the outcome as JSON for API callers or an HTTP
// redirect with outcome markers for browser flows.
//
// # Basic Usage
//
// Pick a store backend and register providers:
//
//	store := memstore.New()
//	sessions := webauth.NewMemorySessionProvider()
//	svc := webauth.NewAuthService(sessions,
//	    &webauth.CredentialsAuthProvider{Store: store},
//	    &webauth.BasicAuthProvider{Store: store},
//	    &webauth.DigestAuthProvider{Store: store, PrivateKey: secret},
//	    webauth.NewTwitterProvider(webauth.TwitterConfig{
//	        ConsumerKey:    key,
//	        ConsumerSecret: secret,
//	        Store:          store,
//	    }),
//	)
//	mux.Handle("/auth/", http.StripPrefix("/auth", svc.Handler()))
//
// Production deployments swap memstore for the Redis or GORM backend and
// back the ScsSessionProvider with a shared scs store.
//
// # Security
//
// Passwords are stored as salted SHA-256 digests by default (bcrypt is
// available via BcryptHasher). Digest nonces are self-validating: they
// encode a timestamp and a private-key signature, so staleness and
// tampering are detected without server-side state. Successful logins set a
// long-lived identity cookie carrying the account id as a signed JWT.
package webauth
