// Package store implements kosh's single-file, append-only encrypted credential store:
// multi-key unlock, conflict-tolerant rename/delete history, and atomic on-disk
// rewrite. See spec §4.3; the original reference is
// _examples/original_source/koshdb/koshdb.py's KoshDB class.
package store

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"github.com/kosh-project/kosh/krypto"
	"github.com/kosh-project/kosh/record"
)

// PromptFunc requests a passphrase from the user, labeled by prompt. It mirrors
// koshdb.py's callback-based `prompt` argument — kept as an injected function value
// rather than a global terminal dependency, so Store has no direct I/O coupling and
// tests can supply canned answers.
type PromptFunc func(prompt string) ([]byte, error)

// lineRef records, for one physical line of the store file in original order, either a
// passthrough string or which in-memory handle (a MasterKey slot or an arena Record) it
// decodes to. Rewrite walks this slice to reproduce the original line order exactly,
// per spec §4.3 "iterate lines in original order".
type lineRef struct {
	kind        lineKind
	passthrough string
	keyIdx      int // valid when kind == lineMasterKey
	recordIdx   int // arena index, valid when kind == lineRecord
}

// Store is an open kosh credential database: a sequence of MasterKeys, an index of
// currently-visible Records by name, a history of superseded/deleted Records, and the
// original line order needed to reproduce passthrough content on rewrite.
type Store struct {
	mu sync.Mutex

	path     string
	envelope krypto.Envelope
	fileLock *flock.Flock

	keys         []*krypto.MasterKey
	keyBlobs     [][]byte // original wrapped bytes for keys[i], kept to allow Reunlock after Expire
	seenPassword [][]byte // passphrases that have unlocked at least one key so far
	lockPass     [][]byte // passphrase that unlocks keys[i], parallel to keys

	arena   *record.Arena
	index   map[string]int // name -> arena index of the current Record
	history []int          // arena indices of superseded/deleted Records

	lines []lineRef

	autoExpire *autoExpireTimer
}

// Path returns the filesystem path the Store was opened from.
func (s *Store) Path() string { return s.path }

// Envelope reports which on-disk crypto envelope this Store's file uses.
func (s *Store) Envelope() krypto.Envelope { return s.envelope }

// KeyCount returns how many MasterKeys are loaded.
func (s *Store) KeyCount() int { return len(s.keys) }

// Create initializes a brand-new store file at path, wrapping a single fresh MasterKey
// under passphrase, and writes it out immediately. env selects K05Hv0 (legacy,
// compatibility) or K05Hv1 (modern, Argon2id+AES-GCM) for this new file — new stores
// should default to K05Hv1 unless compatibility with an external koshdb reader is
// required.
func Create(path string, passphrase []byte, env krypto.Envelope) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("store: %s already exists", path)
	}

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("store: acquire lock: %w", err)
	}
	if !locked {
		return nil, ErrFileLocked
	}

	var mk *krypto.MasterKey
	switch env {
	case krypto.EnvelopeLegacy:
		mk, err = krypto.NewMasterKey()
	case krypto.EnvelopeModern:
		mk, err = krypto.NewMasterKeyV1(krypto.DefaultArgon2Params())
	default:
		err = fmt.Errorf("store: unknown envelope %v", env)
	}
	if err != nil {
		fl.Unlock()
		return nil, err
	}

	blob, err := mk.Wrap(passphrase)
	if err != nil {
		fl.Unlock()
		return nil, err
	}

	s := &Store{
		path:         path,
		envelope:     env,
		fileLock:     fl,
		keys:         []*krypto.MasterKey{mk},
		keyBlobs:     [][]byte{blob},
		seenPassword: [][]byte{passphrase},
		lockPass:     [][]byte{passphrase},
		arena:        record.NewArena(),
		index:        map[string]int{},
	}
	s.lines = []lineRef{{kind: lineMasterKey, keyIdx: 0}}

	if err := s.rewriteLocked(); err != nil {
		fl.Unlock()
		return nil, err
	}
	return s, nil
}

// Open unlocks an existing store file at path, prompting (via prompt) for one or more
// passphrases as needed. Implements spec §4.3 "Open" exactly: an exclusive advisory
// lock is acquired first, then the magic header is checked, then each k: line is
// unlocked — trying every passphrase seen so far before prompting again — and finally
// each p: line is claimed by the first key that decrypts it.
func Open(path string, prompt PromptFunc) (*Store, error) {
	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("store: acquire lock: %w", err)
	}
	if !locked {
		return nil, ErrFileLocked
	}

	f, err := os.Open(path)
	if err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	defer f.Close()

	env, err := readHeader(f)
	if err != nil {
		fl.Unlock()
		return nil, err
	}

	s := &Store{
		path:     path,
		envelope: env,
		fileLock: fl,
		arena:    record.NewArena(),
		index:    map[string]int{},
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		parsed := classifyLine(line)
		switch parsed.kind {
		case linePassthrough:
			s.lines = append(s.lines, lineRef{kind: linePassthrough, passthrough: parsed.raw})

		case lineMasterKey:
			blob, decErr := base64.StdEncoding.DecodeString(parsed.payload)
			if decErr != nil {
				fl.Unlock()
				return nil, fmt.Errorf("store: decode master key line: %w", decErr)
			}
			mk, pass, unlockErr := s.unlockMasterKey(len(s.keys), blob, prompt)
			if unlockErr != nil {
				fl.Unlock()
				return nil, unlockErr
			}
			idx := len(s.keys)
			s.keys = append(s.keys, mk)
			s.keyBlobs = append(s.keyBlobs, blob)
			s.lockPass = append(s.lockPass, pass)
			s.rememberPassphrase(pass)
			s.lines = append(s.lines, lineRef{kind: lineMasterKey, keyIdx: idx})

		case lineRecord:
			blob, decErr := base64.StdEncoding.DecodeString(parsed.payload)
			if decErr != nil {
				fl.Unlock()
				return nil, fmt.Errorf("store: decode record line: %w", decErr)
			}
			rec, claimedBy, claimErr := s.claimRecord(blob)
			if claimErr != nil {
				fl.Unlock()
				return nil, claimErr
			}
			rec.SetOwningKey(claimedBy)
			arenaIdx := s.applyLoaded(rec)
			s.lines = append(s.lines, lineRef{kind: lineRecord, recordIdx: arenaIdx})
		}
	}
	if err := scanner.Err(); err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}

	return s, nil
}

func readHeader(f *os.File) (krypto.Envelope, error) {
	buf := make([]byte, len(HeaderLegacy))
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("store: read header: %w", err)
	}
	switch string(buf[:n]) {
	case HeaderLegacy:
		return krypto.EnvelopeLegacy, nil
	case HeaderModern:
		return krypto.EnvelopeModern, nil
	default:
		return 0, ErrUnrecognizedHeader
	}
}

func (s *Store) rememberPassphrase(p []byte) {
	for _, known := range s.seenPassword {
		if bytes.Equal(known, p) {
			return
		}
	}
	s.seenPassword = append(s.seenPassword, p)
}

// unlockMasterKey tries every passphrase seen so far, falling back to repeatedly
// prompting for this specific key slot, per spec §4.3 Open.
func (s *Store) unlockMasterKey(slotIdx int, blob []byte, prompt PromptFunc) (*krypto.MasterKey, []byte, error) {
	for _, p := range s.seenPassword {
		mk, err := krypto.LoadMasterKey(s.envelope, blob, p)
		if err == nil {
			return mk, p, nil
		}
	}
	for {
		p, err := prompt(fmt.Sprintf("Passphrase error\nEnter master passphrase for key %d:", slotIdx+1))
		if err != nil {
			return nil, nil, err
		}
		mk, err := krypto.LoadMasterKey(s.envelope, blob, p)
		if err == nil {
			return mk, p, nil
		}
	}
}

// Reunlock re-derives key slot keyIdx from its original wrapped bytes and passphrase,
// replacing an expired MasterKey. This is how a caller satisfies spec §4.3's
// "operations that need K must tolerate KeyExpired by prompting for re-unlock": the
// zeroed key material from Expire is gone for good, but the blob it was wrapped from
// is retained for exactly this purpose.
func (s *Store) Reunlock(keyIdx int, passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keyIdx < 0 || keyIdx >= len(s.keys) {
		return fmt.Errorf("store: key index %d out of range", keyIdx)
	}
	mk, err := krypto.LoadMasterKey(s.envelope, s.keyBlobs[keyIdx], passphrase)
	if err != nil {
		return err
	}
	s.keys[keyIdx] = mk
	s.lockPass[keyIdx] = passphrase
	s.rememberPassphrase(passphrase)
	s.touchActivity()
	return nil
}

// claimRecord tries every loaded key in order, returning the decoded Record and the
// index of the key that claimed it. Fails with krypto.ErrChecksumFailure if none do.
func (s *Store) claimRecord(blob []byte) (*record.Record, int, error) {
	for i, mk := range s.keys {
		plaintext, err := mk.DecryptBody(blob)
		if err != nil {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal(plaintext, &rec); err != nil {
			return nil, 0, fmt.Errorf("store: decode record body: %w", err)
		}
		return &rec, i, nil
	}
	return nil, 0, krypto.ErrChecksumFailure
}

// Close releases the advisory file lock and zeroes every loaded MasterKey. Call when
// done with the Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoExpire != nil {
		s.autoExpire.Stop()
	}
	for _, mk := range s.keys {
		mk.Expire()
	}
	return s.fileLock.Unlock()
}
