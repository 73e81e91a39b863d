package webauth

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
)

// ScsSessionProvider persists the auth session through an
// scs.SessionManager, so the session survives across server instances when
// the manager is given a shared store. The manager's LoadAndSave middleware
// must wrap the handler chain; cookie writing is its job, not ours.
//
// RememberMe maps onto the manager's persistent-cookie switch: configure the
// manager with Cookie.Persist=false and Lifetime set to the long expiry, and
// a plain login gets a browser-session cookie while a remember-me login gets
// a persistent one.
type ScsSessionProvider struct {
	Manager *scs.SessionManager

	// SessionKey is the session-data key. Defaults to "webauthSession".
	SessionKey string
}

func (p *ScsSessionProvider) key() string {
	if p.SessionKey != "" {
		return p.SessionKey
	}
	return "webauthSession"
}

func (p *ScsSessionProvider) Load(r *http.Request) (*Session, error) {
	data := p.Manager.GetBytes(r.Context(), p.key())
	if len(data) == 0 {
		return NewSession(), nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (p *ScsSessionProvider) Save(w http.ResponseWriter, r *http.Request, s *Session, rememberMe bool) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	p.Manager.Put(r.Context(), p.key(), data)
	// Each save selects the cookie lifetime; a plain login after a
	// remember-me one drops back to a browser-session cookie.
	p.Manager.RememberMe(r.Context(), rememberMe)
	return nil
}

func (p *ScsSessionProvider) Remove(w http.ResponseWriter, r *http.Request) error {
	return p.Manager.Destroy(r.Context())
}
