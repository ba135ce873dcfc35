package vcr

import (
	"net/url"
	"strings"
	"sync"
)

// basicAuthScope is one entry installed by the 'a' action: set_basic_auth
// user pass scope_host.
type basicAuthScope struct {
	host     string
	username string
	password string
}

// authTable holds the Basic-Auth credentials installed by 'a' actions, scoped by
// host. Per spec §4.4's action table ("a: set_basic_auth user pass scope_host"),
// credentials only apply to requests whose host matches scope_host.
type authTable struct {
	mu     sync.RWMutex
	scopes []basicAuthScope
}

func newAuthTable() *authTable {
	return &authTable{}
}

// set installs or replaces the Basic-Auth credentials for host.
func (t *authTable) set(host, username, password string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.scopes {
		if s.host == host {
			t.scopes[i] = basicAuthScope{host: host, username: username, password: password}
			return
		}
	}
	t.scopes = append(t.scopes, basicAuthScope{host: host, username: username, password: password})
}

// lookup returns the credentials that apply to rawURL's host, if any.
func (t *authTable) lookup(rawURL string) (basicAuthScope, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return basicAuthScope{}, false
	}
	host := u.Hostname()

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.scopes {
		if strings.EqualFold(s.host, host) {
			return s, true
		}
	}
	return basicAuthScope{}, false
}
