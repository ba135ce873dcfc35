package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kosh-project/kosh/krypto"
)

// header returns this store's magic header line for its envelope.
func (s *Store) header() string {
	if s.envelope == krypto.EnvelopeModern {
		return HeaderModern
	}
	return HeaderLegacy
}

// rewriteLocked performs spec §4.3's "Rewrite (atomic save)": build the entries set
// (master keys ∪ index values ∪ history), walk `lines` in original order re-encoding
// every MasterKey/Record handle and passing through everything else verbatim, then
// atomically replace the store file. Any entries left over after the walk indicate a
// bookkeeping bug and are appended with warning markers — data is not lost, but ErrBug
// is returned once the rename has completed. Caller must hold s.mu.
func (s *Store) rewriteLocked() error {
	entries := make(map[int]bool, len(s.index)+len(s.history)+len(s.keys))
	for _, idx := range s.index {
		entries[idx] = true
	}
	for _, idx := range s.history {
		entries[idx] = true
	}
	keyEntries := make(map[int]bool, len(s.keys))
	for i := range s.keys {
		keyEntries[i] = true
	}

	var buf bytes.Buffer
	buf.WriteString(s.header())

	for _, ln := range s.lines {
		switch ln.kind {
		case linePassthrough:
			buf.WriteString(ln.passthrough)
			buf.WriteByte('\n')
		case lineMasterKey:
			encoded, err := s.encodeMasterKeyLine(ln.keyIdx)
			if err != nil {
				return err
			}
			buf.WriteString(encoded)
			buf.WriteByte('\n')
			delete(keyEntries, ln.keyIdx)
		case lineRecord:
			encoded, err := s.encodeRecordLine(ln.recordIdx)
			if err != nil {
				return err
			}
			buf.WriteString(encoded)
			buf.WriteByte('\n')
			delete(entries, ln.recordIdx)
		}
	}

	bug := len(entries) > 0 || len(keyEntries) > 0
	if bug {
		for idx := range keyEntries {
			encoded, err := s.encodeMasterKeyLine(idx)
			if err != nil {
				return err
			}
			buf.WriteString("# BUG: orphaned master key, recovered below\n")
			buf.WriteString(encoded)
			buf.WriteByte('\n')
			buf.WriteString("# end recovered master key\n")
		}
		for idx := range entries {
			encoded, err := s.encodeRecordLine(idx)
			if err != nil {
				return err
			}
			buf.WriteString("# BUG: orphaned record, recovered below\n")
			buf.WriteString(encoded)
			buf.WriteByte('\n')
			buf.WriteString("# end recovered record\n")
		}
	}

	if err := s.atomicReplace(buf.Bytes()); err != nil {
		return err
	}

	if bug {
		return ErrBug
	}
	return nil
}

func (s *Store) encodeMasterKeyLine(idx int) (string, error) {
	mk := s.keys[idx]
	passphrase := s.passphraseFor(idx)
	wrapped, err := mk.Wrap(passphrase)
	if err != nil {
		return "", fmt.Errorf("store: wrap master key %d: %w", idx, err)
	}
	return tagMasterKey + base64.StdEncoding.EncodeToString(wrapped), nil
}

// passphraseFor returns the passphrase known to unlock key idx. Every loaded key was
// unlocked by exactly one of seenPassword during Open/Create, tracked in lockPass.
func (s *Store) passphraseFor(idx int) []byte {
	if idx < len(s.lockPass) {
		return s.lockPass[idx]
	}
	if len(s.seenPassword) > 0 {
		return s.seenPassword[0]
	}
	return nil
}

func (s *Store) encodeRecordLine(idx int) (string, error) {
	rec := s.arena.At(idx)
	if rec == nil {
		return "", fmt.Errorf("store: rewrite: arena index %d has no record", idx)
	}
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("store: encode record %q: %w", rec.Name(), err)
	}
	mk := s.keys[rec.OwningKey()]
	ciphertext, err := mk.EncryptBody(plaintext)
	if err != nil {
		return "", fmt.Errorf("store: encrypt record %q: %w", rec.Name(), err)
	}
	return tagRecord + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// atomicReplace writes data to a temp file in the same directory, backs up any existing
// target to "<path>~", and renames the temp file into place. Grounded on the teacher's
// store/vaultfs.go SaveVaultHeader pattern (temp file + rename), extended with the
// "<path>~" backup step spec §4.3 requires (koshdb.py's _write: "os.rename(filename,
// filename+'~')").
func (s *Store) atomicReplace(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close temp file: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.path+"~"); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("store: backup existing file: %w", err)
		}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}

// Rewrite forces an atomic save of the current in-memory state. Set/Delete/Rename call
// this automatically; exposed for callers (e.g. a periodic compaction job) that want to
// force a flush without a corresponding mutation.
func (s *Store) Rewrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewriteLocked()
}
