package core

// Document is one raw platform event (or any nested object inside one),
// decoded from JSON. Field names drift between PascalCase and camelCase
// across event-list shapes, so every accessor takes an ordered list of
// candidate names and returns the first candidate that yields a value.
type Document map[string]any

// AsDocument converts a decoded JSON value into a Document.
func AsDocument(v any) (Document, bool) {
	switch t := v.(type) {
	case Document:
		return t, true
	case map[string]any:
		return Document(t), true
	default:
		return nil, false
	}
}

// First returns the value of the first candidate key that exists with a
// non-nil value.
func (d Document) First(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := d[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Str returns the first candidate key's value as a string, or "".
func (d Document) Str(keys ...string) string {
	v, ok := d.First(keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Doc returns the first candidate key's value as a nested Document.
func (d Document) Doc(keys ...string) Document {
	v, ok := d.First(keys...)
	if !ok {
		return nil
	}
	doc, _ := AsDocument(v)
	return doc
}

// List returns the first candidate key that holds a non-empty slice of
// Documents. A key present with an empty list falls through to the next
// candidate, so refund payloads carrying an empty RefundChargeList next to
// a populated ChargeList resolve to the populated one. A single nested
// object is wrapped into a one-element slice, because the paginated event
// merge can collapse singleton lists.
func (d Document) List(keys ...string) []Document {
	for _, k := range keys {
		v, ok := d[k]
		if !ok || v == nil {
			continue
		}
		if docs := asDocumentList(v); len(docs) > 0 {
			return docs
		}
	}
	return nil
}

func asDocumentList(v any) []Document {
	switch t := v.(type) {
	case []any:
		out := make([]Document, 0, len(t))
		for _, e := range t {
			if doc, ok := AsDocument(e); ok {
				out = append(out, doc)
			}
		}
		return out
	default:
		if doc, ok := AsDocument(v); ok {
			return []Document{doc}
		}
		return nil
	}
}

// Int returns the first candidate key's value as an int, or 0. Raw
// payloads carry quantities as JSON numbers (float64 after decoding).
func (d Document) Int(keys ...string) int {
	v, ok := d.First(keys...)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	default:
		return 0
	}
}
