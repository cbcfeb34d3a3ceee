package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MetaField is one key/value pair of a metadata bag
type MetaField struct {
	Key   string
	Value json.RawMessage
}

// Meta is an ordered, opaque metadata bag (SEO or theme fields).
// It marshals to a JSON object with keys in insertion order.
type Meta []MetaField

// Get returns the raw value for key
func (m Meta) Get(key string) (json.RawMessage, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether key carries a non-empty value
func (m Meta) Has(key string) bool {
	v, ok := m.Get(key)
	return ok && !isEmptyValue(v)
}

// Set replaces the value for key in place, or appends it
func (m *Meta) Set(key string, value json.RawMessage) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, MetaField{Key: key, Value: value})
}

// SetValue marshals v and stores it under key
func (m *Meta) SetValue(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode meta %s: %w", key, err)
	}
	m.Set(key, raw)
	return nil
}

// Keys returns the keys in order
func (m Meta) Keys() []string {
	keys := make([]string, len(m))
	for i, f := range m {
		keys[i] = f.Key
	}
	return keys
}

// Clone returns a deep copy
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for i, f := range m {
		out[i] = MetaField{Key: f.Key, Value: append(json.RawMessage(nil), f.Value...)}
	}
	return out
}

// MarshalJSON writes the bag as an object preserving key order
func (m Meta) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping the order keys appear in.
// A repeated key keeps its first position and its last value.
func (m *Meta) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("meta must be a JSON object")
	}

	out := Meta{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("meta key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("meta %s: %w", key, err)
		}
		out.Set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out
	return nil
}

// MergeMeta folds incoming into local. A key is written when overriding is
// allowed or the local bag has no value for it. It returns the merged bag and
// the keys that were written.
func MergeMeta(local, incoming Meta, allowOverride bool) (Meta, []string) {
	merged := local.Clone()
	var written []string
	for _, f := range incoming {
		if !allowOverride && merged.Has(f.Key) {
			continue
		}
		merged.Set(f.Key, append(json.RawMessage(nil), f.Value...))
		written = append(written, f.Key)
	}
	return merged, written
}

func isEmptyValue(v json.RawMessage) bool {
	s := bytes.TrimSpace(v)
	return len(s) == 0 || bytes.Equal(s, []byte("null")) || bytes.Equal(s, []byte(`""`))
}
