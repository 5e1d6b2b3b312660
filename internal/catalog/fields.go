package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// GalleryKey is the reserved field key holding non-main images.
const GalleryKey = "_gallery_images"

// FieldValue is one collected category attribute.
type FieldValue struct {
	Key   string
	Value string
}

// Fields is an insertion-ordered attribute map plus the gallery side-channel.
// It serializes to a JSON object whose key order matches insertion order, with
// the gallery under GalleryKey.
type Fields struct {
	Values  *orderedmap.OrderedMap[string, string]
	Gallery []string
}

// FieldsOf builds Fields from pairs in order. Later duplicates win in place.
func FieldsOf(pairs []FieldValue) Fields {
	var f Fields
	for _, p := range pairs {
		f.Set(p.Key, p.Value)
	}
	return f
}

// Get returns the value for key.
func (f Fields) Get(key string) (string, bool) {
	if f.Values == nil {
		return "", false
	}
	return f.Values.Get(key)
}

// Set replaces an existing key in place or appends a new one.
func (f *Fields) Set(key, value string) {
	if f.Values == nil {
		f.Values = orderedmap.New[string, string]()
	}
	f.Values.Set(key, value)
}

// Len is the number of attributes, not counting the gallery.
func (f Fields) Len() int {
	if f.Values == nil {
		return 0
	}
	return f.Values.Len()
}

// Pairs lists the attributes in insertion order.
func (f Fields) Pairs() []FieldValue {
	if f.Values == nil {
		return nil
	}
	out := make([]FieldValue, 0, f.Values.Len())
	for pair := f.Values.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, FieldValue{Key: pair.Key, Value: pair.Value})
	}
	return out
}

// IsZero reports whether there is nothing to store.
func (f Fields) IsZero() bool {
	return f.Len() == 0 && len(f.Gallery) == 0
}

// MarshalJSON writes keys in insertion order, gallery last.
func (f Fields) MarshalJSON() ([]byte, error) {
	doc := orderedmap.New[string, any](f.Len() + 1)
	for _, p := range f.Pairs() {
		doc.Set(p.Key, p.Value)
	}
	if len(f.Gallery) > 0 {
		doc.Set(GalleryKey, f.Gallery)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads keys back in document order. Non-string values other
// than the gallery are stored using their JSON text.
func (f *Fields) UnmarshalJSON(data []byte) error {
	*f = Fields{}
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("fields: expected object")
	}

	doc := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	for pair := doc.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == GalleryKey {
			if err := json.Unmarshal(pair.Value, &f.Gallery); err != nil {
				return fmt.Errorf("fields: gallery: %w", err)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(pair.Value, &s); err != nil {
			s = string(pair.Value)
		}
		f.Set(pair.Key, s)
	}
	return nil
}
