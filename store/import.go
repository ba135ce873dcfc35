package store

import (
	"github.com/kosh-project/kosh/record"
)

// ImportRecord constructs a new Record from a column-name -> value mapping (typically
// one CSV row) and commits it under keyIdx, per spec §4.3 "Import": "constructs a new
// Record from a mapping of column-name -> value, assigns it the first MasterKey, and
// rejects duplicates (by equality) and empty names."
//
// name is taken from the column named by nameField; fields are every other column. A record matching an existing Record
// by Equal (ignoring timestamp) is rejected with ErrDuplicateRecord rather than
// silently accepted, so repeated imports of the same export file are idempotent.
func (s *Store) ImportRecord(nameField string, columns map[string]string, keyIdx int) error {
	name := columns[nameField]
	if name == "" {
		return ErrEmptyName
	}

	candidate := record.New(name, keyIdx)
	for col, val := range columns {
		if col == nameField {
			continue
		}
		candidate.Set(col, val)
	}

	s.mu.Lock()
	if idx, ok := s.index[name]; ok {
		if existing := s.arena.At(idx); existing != nil && existing.Equal(candidate) {
			s.mu.Unlock()
			return ErrDuplicateRecord
		}
	}
	s.mu.Unlock()

	return s.Set(candidate)
}
