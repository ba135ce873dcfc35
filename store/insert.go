package store

import (
	"time"

	"github.com/kosh-project/kosh/krypto"
	"github.com/kosh-project/kosh/record"
)

func (s *Store) now() uint64 {
	return uint64(time.Now().Unix())
}

// commit applies spec §4.3's Insert/update semantics to rec in memory: timestamp
// assignment, oldname resolution, no-op detection, history linking, and index update.
// It returns the arena index rec was stored at and whether the call was a no-op (in
// which case the returned index refers to the unchanged existing Record, not rec).
//
// Open Question decision: spec's step 5 only says to push the *new* tombstone to
// history on delete, not the record it superseded. This store instead pushes whichever
// record is displaced from the index — on rename and on delete alike — so that
// `history` always holds exactly the Records the index no longer references. This
// keeps entries accounting in Rewrite self-consistent without changing what ends up
// on disk: the superseded record was already carrying its own line reference from
// whenever it was first committed.
func (s *Store) commit(rec *record.Record) (arenaIdx int, noop bool) {
	name := rec.Name()

	oldName := name
	if rf, ok := rec.Meta(record.MetaRenamedFrom); ok {
		if rf != name {
			oldName = rf
		}
	}

	if !rec.Frozen() {
		rec.Freeze(s.now())
	}

	oldIdx := -1
	if idx, exists := s.index[oldName]; exists {
		oldIdx = idx
		if old := s.arena.At(idx); old != nil && old.Equal(rec) {
			return idx, true
		}
	}

	arenaIdx = s.arena.Add(rec)
	if oldIdx >= 0 {
		s.arena.Link(oldIdx, arenaIdx)
	}

	if _, renamed := rec.Meta(record.MetaRenamedFrom); renamed && oldName != name {
		delete(s.index, oldName)
	}

	if rec.IsDeleted() {
		delete(s.index, name)
		s.history = append(s.history, arenaIdx)
		if oldIdx >= 0 {
			s.history = append(s.history, oldIdx)
		}
	} else {
		s.index[name] = arenaIdx
		if oldIdx >= 0 {
			s.history = append(s.history, oldIdx)
		}
	}

	return arenaIdx, false
}

// applyLoaded replays commit for a Record decoded while reading an existing file (see
// Open), where the Record already carries its original timestamp and must not be
// treated as a brand-new append: its line reference is added by the caller separately,
// since it mirrors a line that already physically exists.
func (s *Store) applyLoaded(rec *record.Record) int {
	idx, _ := s.commit(rec)
	return idx
}

// Set assigns rec to its name in the store's index, per spec §4.3 "Insert/update
// semantics", then atomically rewrites the file. If rec has no owning key assigned
// (OwningKey() < 0), it defaults to the first loaded MasterKey.
func (s *Store) Set(rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.OwningKey() < 0 {
		rec.SetOwningKey(0)
	}
	if s.keys[rec.OwningKey()].Expired() {
		return krypto.ErrKeyExpired
	}

	idx, noop := s.commit(rec)
	if noop {
		return nil
	}
	s.lines = append(s.lines, lineRef{kind: lineRecord, recordIdx: idx})
	s.touchActivity()
	return s.rewriteLocked()
}

// Get returns the currently visible Record for name, if any.
func (s *Store) Get(name string) (*record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchActivity()
	idx, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.arena.At(idx), true
}

// List returns every currently-visible record name, in no particular order.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.index))
	for name := range s.index {
		out = append(out, name)
	}
	return out
}

// Delete tombstones the record named name: clones it with an empty field set and
// meta.Deleted set, then commits the clone. Returns false if name is not currently
// present.
func (s *Store) Delete(name string) (bool, error) {
	s.mu.Lock()
	idx, ok := s.index[name]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	current := s.arena.At(idx)
	s.mu.Unlock()

	tomb := current.CloneDeleted()
	tomb.SetOwningKey(current.OwningKey())
	return true, s.Set(tomb)
}

// Rename clones the record named oldName to newName (setting meta.RenamedFrom) and
// commits the clone.
func (s *Store) Rename(oldName, newName string) error {
	s.mu.Lock()
	idx, ok := s.index[oldName]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	current := s.arena.At(idx)
	s.mu.Unlock()

	renamed := current.Clone(newName)
	renamed.SetOwningKey(current.OwningKey())
	return s.Set(renamed)
}

// History returns the chain of Records superseded by or superseding the Record
// currently (or formerly) visible at name, oldest first, by walking older/newer arena
// links starting from head.
func (s *Store) History(head *record.Record) []*record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if head == nil {
		return nil
	}

	// Walk to the oldest ancestor.
	cur := head
	for {
		older := s.arena.At(cur.OlderIndex())
		if older == nil {
			break
		}
		cur = older
	}

	var chain []*record.Record
	for cur != nil {
		chain = append(chain, cur)
		cur = s.arena.At(cur.NewerIndex())
	}
	return chain
}
