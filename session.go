package webauth

import (
	"net/http"
	"sync"
	"time"
)

// Default session lifetimes. RememberMe selects the long expiry.
const (
	DefaultSessionExpiry    = 24 * time.Hour
	DefaultRememberMeExpiry = 30 * 24 * time.Hour
)

// SessionProvider is the host collaborator that owns session durability.
// Load never returns a nil session on a nil error; a request with no
// existing session gets a fresh empty one.
type SessionProvider interface {
	Load(r *http.Request) (*Session, error)
	Save(w http.ResponseWriter, r *http.Request, s *Session, rememberMe bool) error
	Remove(w http.ResponseWriter, r *http.Request) error
}

const memorySessionCookie = "webauth_sid"

// MemorySessionProvider keeps sessions in process memory, keyed by a session
// cookie. Suitable for tests and single-instance deployments.
type MemorySessionProvider struct {
	// ShortExpiry/LongExpiry default to the package expiries when zero.
	ShortExpiry time.Duration
	LongExpiry  time.Duration

	mu       sync.RWMutex
	sessions map[string]*memorySessionEntry
}

type memorySessionEntry struct {
	session   *Session
	expiresAt time.Time
}

func NewMemorySessionProvider() *MemorySessionProvider {
	return &MemorySessionProvider{sessions: map[string]*memorySessionEntry{}}
}

func (p *MemorySessionProvider) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(memorySessionCookie)
	if err != nil {
		return NewSession(), nil
	}
	p.mu.RLock()
	entry := p.sessions[cookie.Value]
	p.mu.RUnlock()
	if entry == nil || time.Now().After(entry.expiresAt) {
		return NewSession(), nil
	}
	return entry.session, nil
}

func (p *MemorySessionProvider) Save(w http.ResponseWriter, r *http.Request, s *Session, rememberMe bool) error {
	expiry := p.ShortExpiry
	if expiry <= 0 {
		expiry = DefaultSessionExpiry
	}
	if rememberMe {
		expiry = p.LongExpiry
		if expiry <= 0 {
			expiry = DefaultRememberMeExpiry
		}
	}
	s.LastModified = time.Now().UTC()
	p.mu.Lock()
	if p.sessions == nil {
		p.sessions = map[string]*memorySessionEntry{}
	}
	p.sessions[s.Id] = &memorySessionEntry{session: s, expiresAt: time.Now().Add(expiry)}
	p.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     memorySessionCookie,
		Value:    s.Id,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(expiry / time.Second),
	})
	return nil
}

func (p *MemorySessionProvider) Remove(w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(memorySessionCookie); err == nil {
		p.mu.Lock()
		delete(p.sessions, cookie.Value)
		p.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:    memorySessionCookie,
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
	return nil
}
