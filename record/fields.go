package record

import "strings"

// orderedFields is a string-to-string map that preserves first-insertion order, used
// for a Record's field map. Go maps have no iteration order guarantee, so Record cannot use a plain map
// where serialization order matters (spec §4.2's "insertion order preserved for
// display, serialized order stable").
type orderedFields struct {
	order  []string
	values map[string]string
}

func newOrderedFields() *orderedFields {
	return &orderedFields{values: map[string]string{}}
}

func (f *orderedFields) set(name, value string) {
	if _, ok := f.values[name]; !ok {
		f.order = append(f.order, name)
	}
	f.values[name] = value
}

func (f *orderedFields) get(name string) (string, bool) {
	v, ok := f.values[name]
	return v, ok
}

func (f *orderedFields) delete(name string) {
	if _, ok := f.values[name]; !ok {
		return
	}
	delete(f.values, name)
	for i, n := range f.order {
		if n == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// orderListSeparator joins field names inside a meta.FieldOrder / meta.CopyFieldOrder
// value. Meta values are plain strings (spec §3: "meta (string-keyed map...)"), so an
// ordered list of field names has to be packed into one; a comma is safe since field
// names come from user-chosen credential field labels, which in practice never contain
// one, and any that do simply fall back to default ordering for that one field.
const orderListSeparator = ","

func encodeOrderList(names []string) string {
	return strings.Join(names, orderListSeparator)
}

func decodeOrderList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, orderListSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetFieldOrder sets meta.FieldOrder from an explicit field-name ordering.
func (r *Record) SetFieldOrder(names []string) {
	r.SetMeta(MetaFieldOrder, encodeOrderList(names))
}

// SetCopyFieldOrder sets meta.CopyFieldOrder from an explicit field-name ordering.
func (r *Record) SetCopyFieldOrder(names []string) {
	r.SetMeta(MetaCopyFieldOrder, encodeOrderList(names))
}
