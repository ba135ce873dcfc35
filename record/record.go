// Package record implements the credential entry type kosh stores one of per site: a
// named bag of fields plus metadata, a creation timestamp, and non-owning links to the
// Record it replaced and the Record that replaced it.
//
// A Record is mutable only until it is committed to a store (see Freeze), at which
// point it is frozen: a timestamp is assigned and further mutation panics with
// ErrReadOnlyPassEntry, mirroring spec's "programmer error; assert/crash" classification
// for that condition. To edit a committed Record, Clone it first.
package record

import (
	"fmt"
)

// Well-known meta keys recognized by the codec and the store's insert/update logic.
const (
	MetaFieldOrder     = "FieldOrder"
	MetaCopyFieldOrder = "CopyFieldOrder"
	MetaRenamedFrom    = "RenamedFrom"
	MetaDeleted        = "Deleted"
)

// defaultFieldOrder is the fallback display/serialization order spec §4.2 mandates when
// meta.FieldOrder is absent: "Username, login, Password, passwd" first, then whatever
// remains in insertion order.
var defaultFieldOrder = []string{"Username", "login", "Password", "passwd"}

// ErrReadOnlyPassEntry is the panic value used when code attempts to mutate a Record
// after it has been frozen (timestamp assigned). Per spec, this is a programmer error,
// not a recoverable condition — the store never causes it in normal operation.
type ErrReadOnlyPassEntry struct {
	Name string
}

func (e ErrReadOnlyPassEntry) Error() string {
	return fmt.Sprintf("record: attempted mutation of committed record %q", e.Name)
}

// Record is a single credential entry: a name, an ordered field map, metadata, a
// creation timestamp (nil until committed), and a reference to the MasterKey that
// encrypts it.
type Record struct {
	name       string
	fields     *orderedFields
	meta       map[string]string
	timestamp  *uint64 // seconds since epoch; nil until frozen
	owningKey  int     // index into the owning Store's key slice
	frozen     bool
	olderIdx   int // arena index, or -1
	newerIdx   int // arena index, or -1
}

// New creates an unfrozen Record with the given name and owning key index. Fields may
// be added with Set until the Record is frozen by a Store commit.
func New(name string, owningKey int) *Record {
	return &Record{
		name:      name,
		fields:    newOrderedFields(),
		meta:      map[string]string{},
		owningKey: owningKey,
		olderIdx:  -1,
		newerIdx:  -1,
	}
}

// Name returns the Record's current name.
func (r *Record) Name() string { return r.name }

// OwningKey returns the index of the MasterKey (within the owning Store) this Record is
// encrypted under.
func (r *Record) OwningKey() int { return r.owningKey }

// SetOwningKey records which MasterKey index successfully decrypted this Record. Used
// by the store while parsing `p:` lines, where owning_key is discovered only after a
// successful decrypt, not known at decode time.
func (r *Record) SetOwningKey(idx int) { r.owningKey = idx }

// Timestamp returns the Record's commit timestamp and whether one has been assigned.
func (r *Record) Timestamp() (uint64, bool) {
	if r.timestamp == nil {
		return 0, false
	}
	return *r.timestamp, true
}

// Frozen reports whether the Record has been committed and can no longer be mutated
// in place.
func (r *Record) Frozen() bool { return r.frozen }

// Freeze assigns ts as the Record's timestamp if one is not already set, and marks it
// read-only. Called by the store on commit; idempotent if ts is already set, per spec
// §4.3 step 1 ("Assign a timestamp if none present (frozen thereafter)").
func (r *Record) Freeze(ts uint64) {
	if r.timestamp == nil {
		t := ts
		r.timestamp = &t
	}
	r.frozen = true
}

func (r *Record) checkMutable() {
	if r.frozen {
		panic(ErrReadOnlyPassEntry{Name: r.name})
	}
}

// Set assigns a field value, preserving first-insertion order for unfrozen Records.
func (r *Record) Set(field, value string) {
	r.checkMutable()
	r.fields.set(field, value)
}

// Delete removes a field.
func (r *Record) Delete(field string) {
	r.checkMutable()
	r.fields.delete(field)
}

// Get returns a field's value and whether it is present.
func (r *Record) Get(field string) (string, bool) {
	return r.fields.get(field)
}

// Fields returns field names in serialization/display order: meta.FieldOrder if
// present, else the default order followed by remaining insertion-order keys.
func (r *Record) Fields() []string {
	if order, ok := r.meta[MetaFieldOrder]; ok {
		return splitFieldOrder(order, r.fields)
	}
	return resolveOrder(defaultFieldOrder, r.fields)
}

// CopyFields returns field names in clipboard-iteration order: meta.CopyFieldOrder if
// present, else the same order Fields() would return.
func (r *Record) CopyFields() []string {
	if order, ok := r.meta[MetaCopyFieldOrder]; ok {
		return splitFieldOrder(order, r.fields)
	}
	return r.Fields()
}

// SetMeta assigns a metadata value. Unlike field values, meta may be set even on a
// frozen Record only via Clone — direct mutation is still rejected once frozen, to
// keep the invariant that a committed Record never changes after the fact.
func (r *Record) SetMeta(key, value string) {
	r.checkMutable()
	r.meta[key] = value
}

// Meta returns a metadata value and whether it is present.
func (r *Record) Meta(key string) (string, bool) {
	v, ok := r.meta[key]
	return v, ok
}

// DeleteMeta removes a metadata key.
func (r *Record) DeleteMeta(key string) {
	r.checkMutable()
	delete(r.meta, key)
}

// IsDeleted reports whether meta.Deleted is set.
func (r *Record) IsDeleted() bool {
	_, ok := r.meta[MetaDeleted]
	return ok
}

// Clone produces a new, unfrozen Record with the same owning key and field contents,
// named newName, with meta.RenamedFrom set to the current name (per spec §4.3 step 2,
// unless newName equals the current name, in which case RenamedFrom is omitted/stripped
// since no rename occurred).
func (r *Record) Clone(newName string) *Record {
	clone := New(newName, r.owningKey)
	for _, f := range r.fields.order {
		v, _ := r.fields.get(f)
		clone.fields.set(f, v)
	}
	for k, v := range r.meta {
		clone.meta[k] = v
	}
	if newName != r.name {
		clone.meta[MetaRenamedFrom] = r.name
	} else {
		delete(clone.meta, MetaRenamedFrom)
	}
	return clone
}

// CloneDeleted produces a tombstone clone: same name, no fields, meta.Deleted set, per
// spec §4.3 "Deletion is modeled as a clone whose fields are cleared and
// meta.Deleted = true."
func (r *Record) CloneDeleted() *Record {
	clone := New(r.name, r.owningKey)
	for k, v := range r.meta {
		clone.meta[k] = v
	}
	clone.meta[MetaDeleted] = "true"
	delete(clone.meta, MetaRenamedFrom)
	return clone
}

// Equal compares two Records per spec §4.2: "ignores timestamps; compares name, field
// map, and meta exactly."
func (r *Record) Equal(other *Record) bool {
	if other == nil {
		return false
	}
	if r.name != other.name {
		return false
	}
	if len(r.meta) != len(other.meta) {
		return false
	}
	for k, v := range r.meta {
		if ov, ok := other.meta[k]; !ok || ov != v {
			return false
		}
	}
	if len(r.fields.order) != len(other.fields.order) {
		return false
	}
	for _, f := range r.fields.order {
		v, _ := r.fields.get(f)
		ov, ok := other.fields.get(f)
		if !ok || ov != v {
			return false
		}
	}
	return true
}

func splitFieldOrder(order string, f *orderedFields) []string {
	names := decodeOrderList(order)
	return resolveOrder(names, f)
}

// resolveOrder returns preferred names that exist in f, in order, followed by any
// remaining field names in their insertion order.
func resolveOrder(preferred []string, f *orderedFields) []string {
	seen := make(map[string]bool, len(preferred))
	out := make([]string, 0, len(f.order))
	for _, name := range preferred {
		if _, ok := f.get(name); ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	for _, name := range f.order {
		if !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out
}
