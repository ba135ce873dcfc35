package store

import (
	"sync"
	"time"
)

// autoExpireTimer wraps a time.AfterFunc that expires every loaded MasterKey after a
// period of inactivity. Grounded on spec §4.1 "expire() must zero... K" plus §4.3
// "Concurrency": "MasterKey lifetime (§4.1 expire) may fire from a UI inactivity
// timer" — the Store, not a UI layer, owns this timer so any caller (CLI, future GUI)
// gets the same inactivity behavior for free. The original koshdb._masterKey.TIMEOUT
// (60 seconds) is kept as the default.
type autoExpireTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	store    *Store
	stopped  bool
}

// DefaultAutoExpire matches koshdb.py's _masterKey.TIMEOUT.
const DefaultAutoExpire = 60 * time.Second

// WithAutoExpire installs an inactivity timer on s that expires every loaded MasterKey
// after d of no store activity (Set/Delete/Rename/Get). Any prior timer is replaced.
func (s *Store) WithAutoExpire(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.autoExpire != nil {
		s.autoExpire.Stop()
	}
	aet := &autoExpireTimer{duration: d, store: s}
	aet.timer = time.AfterFunc(d, aet.fire)
	s.autoExpire = aet
}

func (a *autoExpireTimer) fire() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	a.store.mu.Lock()
	for _, mk := range a.store.keys {
		mk.Expire()
	}
	a.store.mu.Unlock()
}

// Stop cancels the timer permanently; used by Store.Close.
func (a *autoExpireTimer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.timer.Stop()
}

func (a *autoExpireTimer) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.timer.Reset(a.duration)
}

// touchActivity resets the inactivity timer, if one is installed. Caller must hold
// s.mu; called from every mutating Store operation.
func (s *Store) touchActivity() {
	if s.autoExpire != nil {
		s.autoExpire.reset()
	}
}
