package record_test

import (
	"encoding/json"
	"testing"

	"github.com/kosh-project/kosh/record"
)

func TestNewRecordUnfrozenThenFreeze(t *testing.T) {
	r := record.New("example.com", 0)
	r.Set("Username", "alice")
	r.Set("Password", "hunter2")

	if r.Frozen() {
		t.Fatalf("new record should not be frozen")
	}
	if _, ok := r.Timestamp(); ok {
		t.Fatalf("new record should have no timestamp")
	}

	r.Freeze(1000)
	if !r.Frozen() {
		t.Fatalf("expected record to be frozen after Freeze")
	}
	ts, ok := r.Timestamp()
	if !ok || ts != 1000 {
		t.Fatalf("expected timestamp 1000, got %d (ok=%v)", ts, ok)
	}

	// A second Freeze call must not move the timestamp.
	r.Freeze(2000)
	ts, _ = r.Timestamp()
	if ts != 1000 {
		t.Fatalf("expected timestamp to stay at 1000, got %d", ts)
	}
}

func TestMutatingFrozenRecordPanics(t *testing.T) {
	r := record.New("example.com", 0)
	r.Freeze(1)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic mutating a frozen record")
		}
	}()
	r.Set("Username", "alice")
}

func TestFieldOrderDefault(t *testing.T) {
	r := record.New("example.com", 0)
	r.Set("notes", "vip")
	r.Set("Password", "hunter2")
	r.Set("Username", "alice")

	got := r.Fields()
	want := []string{"Username", "Password", "notes"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCloneSetsRenamedFrom(t *testing.T) {
	r := record.New("site", 0)
	r.Set("Username", "alice")
	r.Freeze(1)

	renamed := r.Clone("site2")
	if got, ok := renamed.Meta(record.MetaRenamedFrom); !ok || got != "site" {
		t.Fatalf("expected RenamedFrom=site, got %q (ok=%v)", got, ok)
	}
	if renamed.Frozen() {
		t.Fatalf("clone should be unfrozen")
	}
	if v, _ := renamed.Get("Username"); v != "alice" {
		t.Fatalf("expected cloned field to carry over, got %q", v)
	}
}

func TestCloneDeletedClearsFields(t *testing.T) {
	r := record.New("site", 0)
	r.Set("Username", "alice")
	r.Freeze(1)

	tomb := r.CloneDeleted()
	if !tomb.IsDeleted() {
		t.Fatalf("expected IsDeleted on tombstone clone")
	}
	if len(tomb.Fields()) != 0 {
		t.Fatalf("expected no fields on tombstone clone, got %v", tomb.Fields())
	}
	if tomb.Name() != r.Name() {
		t.Fatalf("tombstone should keep the original name")
	}
}

func TestEqualIgnoresTimestamp(t *testing.T) {
	a := record.New("site", 0)
	a.Set("Username", "alice")
	b := record.New("site", 0)
	b.Set("Username", "alice")
	b.Freeze(12345)

	if !a.Equal(b) {
		t.Fatalf("expected records differing only by timestamp to be equal")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	r := record.New("example.com", 0)
	r.Set("Username", "alice")
	r.Set("Password", "hunter2")
	r.Freeze(42)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded record.Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Name() != "example.com" {
		t.Fatalf("expected name example.com, got %q", decoded.Name())
	}
	ts, ok := decoded.Timestamp()
	if !ok || ts != 42 {
		t.Fatalf("expected timestamp 42, got %d (ok=%v)", ts, ok)
	}
	if v, _ := decoded.Get("Username"); v != "alice" {
		t.Fatalf("expected Username=alice, got %q", v)
	}
	if !r.Equal(&decoded) {
		t.Fatalf("round-tripped record should equal original")
	}
}

func TestJSONRoundTripPreservesFieldOrder(t *testing.T) {
	r := record.New("example.com", 0)
	r.SetFieldOrder([]string{"custom1", "custom2"})
	r.Set("custom2", "b")
	r.Set("custom1", "a")
	r.Freeze(1)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded record.Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	got := decoded.Fields()
	if len(got) != 2 || got[0] != "custom1" || got[1] != "custom2" {
		t.Fatalf("expected [custom1 custom2], got %v", got)
	}
}

func TestArenaHistoryLinks(t *testing.T) {
	a := record.NewArena()
	older := record.New("site", 0)
	older.Freeze(1)
	newer := older.Clone("site")
	newer.Freeze(2)

	oldIdx := a.Add(older)
	newIdx := a.Add(newer)
	a.Link(oldIdx, newIdx)

	if a.At(oldIdx).NewerIndex() != newIdx {
		t.Fatalf("expected older.newer to point at newer")
	}
	if a.At(newIdx).OlderIndex() != oldIdx {
		t.Fatalf("expected newer.older to point at older")
	}
}
