// Package biogate implements kosh's optional biometric pre-unlock gate, adapted
// from the teacher's internal/bio/toggle package: it stands in front of
// store.Store.Open and lets a vault directory opt into a Keychain-backed check on
// Darwin ahead of the typed passphrase, which is still required. See SPEC_FULL.md §4.z.
package biogate

import "errors"

// State captures whether the biometric gate is enabled for a vault directory. The
// teacher's State additionally carried WebAuthn RPID/Origin fields; kosh has no
// browser-origin concept, so those are dropped here.
type State struct {
	Enabled bool `json:"enabled"`
}

// ErrUnsupported signals that the biometric gate is not available on this platform.
var ErrUnsupported = errors.New("biogate: biometric gate not supported on this platform")
