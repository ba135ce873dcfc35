package record

// Arena owns every Record a Store has ever decrypted or committed — current index
// entries and superseded/deleted history alike. older/newer links between Records are
// stored as arena indices rather than pointers or weak references, per the design note
// that "an arena + index approach (Records in a vector, links as indices) is the
// cleanest mapping" for the history chain: Go has no native weak-reference type, and an
// index into a slice the Arena itself owns sidesteps needing one.
type Arena struct {
	records []*Record
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{}
}

// Add appends r to the arena and returns its index, used as the record's identity for
// Older/Newer linking.
func (a *Arena) Add(r *Record) int {
	a.records = append(a.records, r)
	return len(a.records) - 1
}

// At returns the Record stored at idx, or nil if idx is out of range (covers the -1
// sentinel used for "no link").
func (a *Arena) At(idx int) *Record {
	if idx < 0 || idx >= len(a.records) {
		return nil
	}
	return a.records[idx]
}

// Len returns the number of Records the arena has ever held.
func (a *Arena) Len() int {
	return len(a.records)
}

// All returns every Record the arena holds, in insertion order.
func (a *Arena) All() []*Record {
	out := make([]*Record, len(a.records))
	copy(out, a.records)
	return out
}

// Link sets newIdx.older = oldIdx and oldIdx.newer = newIdx, the history-chain update
// spec §4.3 step 4 describes ("set new.older = old, old.newer = new").
func (a *Arena) Link(oldIdx, newIdx int) {
	if newer := a.At(newIdx); newer != nil {
		newer.olderIdx = oldIdx
	}
	if older := a.At(oldIdx); older != nil {
		older.newerIdx = newIdx
	}
}

// OlderIndex returns the arena index of r's predecessor in the history chain, or -1.
func (r *Record) OlderIndex() int { return r.olderIdx }

// NewerIndex returns the arena index of r's successor in the history chain, or -1.
func (r *Record) NewerIndex() int { return r.newerIdx }
