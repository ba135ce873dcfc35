// Package vcr implements kosh's URL-VCR: a linked list of HTTP navigation states that
// records or replays the sequence of browser-like actions needed to rotate a password
// on a remote web form. See spec §4.4; there is no original-language implementation to
// port (_examples/original_source/httppasswd.py is a bare skeleton), so this package is
// built fresh from the specification in the teacher's idiom.
package vcr

import (
	"net/http"
	"net/http/cookiejar"

	"golang.org/x/net/publicsuffix"
)

// State is one node in a VCR session's navigation history: the page currently loaded,
// and a non-owning link to the state it was reached from. Design Notes §9 calls for
// "composed parser instances" and explicit accessor methods rather than dynamic
// attribute access throughout this package; State follows the same arena-free but
// pointer-owned linked-list shape spec §3 describes ("Lifecycle: pushed on each
// state-changing action, popped on undo, garbage when no path leads to it") — unlike
// record.Record's history chain, VCR states are not persisted, so ordinary Go pointers
// (not arena indices) are the right tool here: nothing needs to survive serialization.
type State struct {
	parent *State

	url  string
	body []byte

	overrideReferer *string
	userAgent       string

	jar *cookiejar.Jar
}

// DefaultUserAgent is used by new root States unless overridden by a 't' action.
const DefaultUserAgent = "kosh-urlvcr/1.0"

// NewRootState creates the initial State for a session, with a fresh cookie jar backed
// by the public suffix list (so cookies scope correctly across subdomains).
func NewRootState() (*State, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicSuffixList{}})
	if err != nil {
		return nil, err
	}
	return &State{userAgent: DefaultUserAgent, jar: jar}, nil
}

// Push creates a new State reached from s, sharing s's cookie jar by reference (spec
// §5: "Cookie jar: shared along a VCR state chain by reference; copy-on-branch
// semantics are acceptable but not required since branches are linear").
func (s *State) Push(url string, body []byte) *State {
	return &State{
		parent:    s,
		url:       url,
		body:      body,
		userAgent: s.userAgent,
		jar:       s.jar,
	}
}

// Parent returns the State this one was reached from, or nil at the session root.
func (s *State) Parent() *State { return s.parent }

// URL returns the URL currently loaded in this State.
func (s *State) URL() string { return s.url }

// Body returns the last-fetched response body for this State.
func (s *State) Body() []byte { return s.body }

// SetBody replaces the State's stored body in place. The meta-refresh hop does not use
// it: Client.do follows the refresh itself and the action pushes the final page.
func (s *State) SetBody(body []byte) { s.body = body }

// SetURL updates the State's URL in place.
func (s *State) SetURL(url string) { s.url = url }

// OverrideReferer returns the explicit Referer set by an 'R' action, if any.
func (s *State) OverrideReferer() (string, bool) {
	if s.overrideReferer == nil {
		return "", false
	}
	return *s.overrideReferer, true
}

// SetOverrideReferer implements the 'R' action: override_referer url|null.
func (s *State) SetOverrideReferer(url *string) { s.overrideReferer = url }

// UserAgent returns the effective User-Agent for requests originating from this State.
func (s *State) UserAgent() string { return s.userAgent }

// SetUserAgent implements the 't' action: override_agent.
func (s *State) SetUserAgent(agent string) { s.userAgent = agent }

// Jar returns the cookie jar shared across this State's chain.
func (s *State) Jar() http.CookieJar { return s.jar }

// publicSuffixList adapts golang.org/x/net/publicsuffix's free functions to the
// cookiejar.PublicSuffixList interface cookiejar.Options expects.
type publicSuffixList struct{}

func (publicSuffixList) PublicSuffix(domain string) string { return publicsuffix.PublicSuffix(domain) }
func (publicSuffixList) String() string                    { return "golang.org/x/net/publicsuffix" }
