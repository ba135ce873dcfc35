package store_test

import (
	"path/filepath"
	"testing"

	"github.com/kosh-project/kosh/krypto"
	"github.com/kosh-project/kosh/record"
	"github.com/kosh-project/kosh/store"
)

func TestSearchCacheRebuildAndSearch(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "vault.kosh")
	s, err := store.Create(vaultPath, []byte("pw"), krypto.EnvelopeModern)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	for _, name := range []string{"github.com", "gitlab.com", "example.org"} {
		rec := record.New(name, 0)
		rec.Set("Username", "alice")
		if err := s.Set(rec); err != nil {
			t.Fatalf("Set(%s): %v", name, err)
		}
	}

	cachePath := filepath.Join(dir, "cache.sqlite")
	cache, err := store.OpenSearchCache(cachePath)
	if err != nil {
		t.Fatalf("OpenSearchCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Rebuild(s); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	names, err := cache.Search("git%")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 matches for git%%, got %v", names)
	}
}
