package record

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the Record as the 4-element array spec §4.2 describes. Field
// iteration order within the object follows Fields(); json.Marshal of a Go map does not
// preserve insertion order, so the field object is built as raw JSON tokens instead of
// relying on encoding/json's map handling.
func (r *Record) MarshalJSON() ([]byte, error) {
	nameJSON, err := json.Marshal(r.name)
	if err != nil {
		return nil, err
	}

	var tsJSON []byte
	if r.timestamp != nil {
		tsJSON, err = json.Marshal(*r.timestamp)
	} else {
		tsJSON = []byte("null")
	}
	if err != nil {
		return nil, err
	}

	fieldsJSON, err := marshalOrderedObject(r.Fields(), func(name string) (string, bool) {
		return r.fields.get(name)
	})
	if err != nil {
		return nil, err
	}

	metaJSON, err := marshalOrderedObject(sortedKeys(r.meta), func(name string) (string, bool) {
		v, ok := r.meta[name]
		return v, ok
	})
	if err != nil {
		return nil, err
	}

	out := append([]byte{'['}, nameJSON...)
	out = append(out, ',')
	out = append(out, tsJSON...)
	out = append(out, ',')
	out = append(out, fieldsJSON...)
	out = append(out, ',')
	out = append(out, metaJSON...)
	out = append(out, ']')
	return out, nil
}

func marshalOrderedObject(names []string, lookup func(string) (string, bool)) ([]byte, error) {
	out := []byte{'{'}
	first := true
	for _, name := range names {
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if !first {
			out = append(out, ',')
		}
		first = false

		keyJSON, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		out = append(out, keyJSON...)
		out = append(out, ':')
		out = append(out, valJSON...)
	}
	out = append(out, '}')
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// Meta has no display-order requirement in spec; a stable deterministic order
	// keeps re-serialization of an unchanged Record byte-identical, which matters
	// for Store.Rewrite's passthrough-line bookkeeping.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// UnmarshalJSON decodes the 4-element array form back into a Record. The result is
// unfrozen if the decoded timestamp is nil, frozen otherwise (a Record read back from
// storage already has a timestamp and must not be further mutated in place).
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw [4]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("record: decode array: %w", err)
	}

	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		return fmt.Errorf("record: decode name: %w", err)
	}

	var ts *uint64
	if err := json.Unmarshal(raw[1], &ts); err != nil {
		return fmt.Errorf("record: decode timestamp: %w", err)
	}

	var fields map[string]string
	if err := json.Unmarshal(raw[2], &fields); err != nil {
		return fmt.Errorf("record: decode fields: %w", err)
	}

	var meta map[string]string
	if err := json.Unmarshal(raw[3], &meta); err != nil {
		return fmt.Errorf("record: decode meta: %w", err)
	}

	r.name = name
	r.fields = newOrderedFields()
	for _, k := range orderedKeysFromMeta(meta, fields) {
		r.fields.set(k, fields[k])
	}
	r.meta = meta
	if r.meta == nil {
		r.meta = map[string]string{}
	}
	r.owningKey = -1 // caller (store) must set this from which key successfully decrypted
	r.olderIdx = -1
	r.newerIdx = -1
	if ts != nil {
		r.timestamp = ts
		r.frozen = true
	}
	return nil
}

// orderedKeysFromMeta reconstructs field insertion order on decode: meta.FieldOrder if
// present (restricted to keys that actually exist in fields), else the default order,
// then any remaining keys in lexical order (Go's JSON decoder does not preserve the
// original encoder's key order, so anything not named by an order list is sorted to
// keep the result stable).
func orderedKeysFromMeta(meta, fields map[string]string) []string {
	var preferred []string
	if order, ok := meta[MetaFieldOrder]; ok {
		preferred = decodeOrderList(order)
	} else {
		preferred = defaultFieldOrder
	}

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, name := range preferred {
		if _, ok := fields[name]; ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	remaining := make([]string, 0, len(fields))
	for name := range fields {
		if !seen[name] {
			remaining = append(remaining, name)
		}
	}
	for i := 1; i < len(remaining); i++ {
		for j := i; j > 0 && remaining[j-1] > remaining[j]; j-- {
			remaining[j-1], remaining[j] = remaining[j], remaining[j-1]
		}
	}
	out = append(out, remaining...)
	return out
}
