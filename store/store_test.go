package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kosh-project/kosh/krypto"
	"github.com/kosh-project/kosh/record"
	"github.com/kosh-project/kosh/store"
)

func promptAnswering(answer string) store.PromptFunc {
	return func(string) ([]byte, error) {
		return []byte(answer), nil
	}
}

func TestCreateOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kosh")

	s, err := store.Create(path, []byte("hunter2"), krypto.EnvelopeModern)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := record.New("example.com", 0)
	rec.Set("Username", "alice")
	rec.Set("Password", "s3cret")
	if err := s.Set(rec); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := store.Open(path, promptAnswering("hunter2"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("example.com")
	if !ok {
		t.Fatalf("expected example.com to round-trip")
	}
	if v, _ := got.Get("Username"); v != "alice" {
		t.Fatalf("expected Username=alice, got %q", v)
	}
	if v, _ := got.Get("Password"); v != "s3cret" {
		t.Fatalf("expected Password=s3cret, got %q", v)
	}
}

func TestCreateLegacyEnvelopeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kosh")

	s, err := store.Create(path, []byte("hunter2"), krypto.EnvelopeLegacy)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec := record.New("legacy.example", 0)
	rec.Set("Username", "bob")
	if err := s.Set(rec); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	reopened, err := store.Open(path, promptAnswering("hunter2"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	if reopened.Envelope() != krypto.EnvelopeLegacy {
		t.Fatalf("expected legacy envelope on reopen")
	}
	got, ok := reopened.Get("legacy.example")
	if !ok || got == nil {
		t.Fatalf("expected legacy.example to round-trip")
	}
}

func TestOpenWrongPassphrasePrompts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kosh")

	s, err := store.Create(path, []byte("correct"), krypto.EnvelopeModern)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Close()

	attempts := []string{"wrong1", "wrong2", "correct"}
	i := 0
	prompt := func(string) ([]byte, error) {
		answer := attempts[i]
		i++
		return []byte(answer), nil
	}

	reopened, err := store.Open(path, prompt)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	if i != len(attempts) {
		t.Fatalf("expected all %d attempts to be consumed, used %d", len(attempts), i)
	}
}

func TestRenameUpdatesIndexAndHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kosh")
	s, err := store.Create(path, []byte("pw"), krypto.EnvelopeModern)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	rec := record.New("site", 0)
	rec.Set("Username", "alice")
	if err := s.Set(rec); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := s.Rename("site", "site2"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, ok := s.Get("site"); ok {
		t.Fatalf("expected old name to be gone from index")
	}
	newRec, ok := s.Get("site2")
	if !ok {
		t.Fatalf("expected new name in index")
	}
	chain := s.History(newRec)
	if len(chain) != 2 {
		t.Fatalf("expected a 2-entry history chain, got %d", len(chain))
	}
}

func TestDeleteTombstones(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kosh")
	s, err := store.Create(path, []byte("pw"), krypto.EnvelopeModern)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	rec := record.New("site", 0)
	rec.Set("Username", "alice")
	if err := s.Set(rec); err != nil {
		t.Fatalf("Set: %v", err)
	}
	deleted, err := s.Delete("site")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected Delete to report the record existed")
	}
	if _, ok := s.Get("site"); ok {
		t.Fatalf("expected site to be gone from the index after delete")
	}
}

func TestSetNoopOnEqualRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kosh")
	s, err := store.Create(path, []byte("pw"), krypto.EnvelopeModern)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	rec := record.New("site", 0)
	rec.Set("Username", "alice")
	if err := s.Set(rec); err != nil {
		t.Fatalf("Set: %v", err)
	}
	before, _ := s.Get("site")
	beforeTS, _ := before.Timestamp()

	again := record.New("site", 0)
	again.Set("Username", "alice")
	if err := s.Set(again); err != nil {
		t.Fatalf("Set (again): %v", err)
	}

	after, _ := s.Get("site")
	afterTS, _ := after.Timestamp()
	if beforeTS != afterTS {
		t.Fatalf("expected a no-op on an equal record, timestamps changed: %d -> %d", beforeTS, afterTS)
	}
}

func TestImportRecordRejectsEmptyNameAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kosh")
	s, err := store.Create(path, []byte("pw"), krypto.EnvelopeModern)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	if err := s.ImportRecord("name", map[string]string{"name": "", "Username": "x"}, 0); err != store.ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}

	cols := map[string]string{"name": "imported.example", "Username": "carol"}
	if err := s.ImportRecord("name", cols, 0); err != nil {
		t.Fatalf("ImportRecord: %v", err)
	}
	if err := s.ImportRecord("name", cols, 0); err != store.ErrDuplicateRecord {
		t.Fatalf("expected ErrDuplicateRecord on repeat import, got %v", err)
	}
}

func TestWithAutoExpireExpiresKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.kosh")
	s, err := store.Create(path, []byte("pw"), krypto.EnvelopeModern)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	s.WithAutoExpire(10 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	rec := record.New("site", 0)
	rec.Set("Username", "alice")
	err = s.Set(rec)
	if err != krypto.ErrKeyExpired {
		t.Fatalf("expected ErrKeyExpired after inactivity timeout, got %v", err)
	}

	if err := s.Reunlock(0, []byte("pw")); err != nil {
		t.Fatalf("Reunlock: %v", err)
	}
	if err := s.Set(rec); err != nil {
		t.Fatalf("Set after Reunlock: %v", err)
	}
}
