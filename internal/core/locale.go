package core

// locale.go handles the open-ended data_in extension blob.
//
// The blob arrives in several shapes accumulated over the life of the data:
// suffixed scalar keys ("title_en": "x"), unsuffixed per-locale objects
// ("title": {"en": {"title": "...", "value": "x"}}), flat locale values
// ("title": {"en": "x"}), plain scalars, and occasionally the whole blob
// double-encoded as a JSON string. All of that is normalized exactly once
// per fetch into an ExtensionMap keyed by base key, and serialized back to
// the canonical wire shape only at commit time. The canonical shape for a
// localized field is the nested form { locale: { title, value } }.

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Locales is the set of supported locale tags in fallback order after the
// requested locale: en, then ru, then rs.
var Locales = []string{"en", "ru", "rs"}

// MissingDisplay is the literal rendered when no value resolves.
const MissingDisplay = "-"

// LocaleLeaf is one per-locale slot of a localized extension field.
// The title/value nesting is a deliberate two-level structure: Title feeds
// the column header, Value feeds the cell.
type LocaleLeaf struct {
	Title string
	Value any
}

// ExtensionField is one logical field of the extension blob.
// Either Scalar is set and Value holds a plain value, or Leaves holds the
// per-locale variants. Suffixed records whether the source keys carried a
// locale suffix; an unsuffixed localized field is edited across all locales.
type ExtensionField struct {
	Scalar   bool
	Suffixed bool
	Value    any
	Leaves   map[string]LocaleLeaf
}

// Resolve returns the leaf for the requested locale, following the fixed
// fallback order requested -> en -> ru -> rs. ok is false only when no
// locale has a leaf at all.
func (f *ExtensionField) Resolve(locale string) (LocaleLeaf, bool) {
	if f.Scalar {
		return LocaleLeaf{Value: f.Value}, true
	}
	for _, loc := range fallbackChain(locale) {
		if leaf, ok := f.Leaves[loc]; ok {
			return leaf, true
		}
	}
	return LocaleLeaf{}, false
}

// ExtensionMap is the normalized in-memory form of one row's data_in blob.
// Base keys are matched case-insensitively; first-seen spelling is kept for
// display and serialization.
type ExtensionMap struct {
	fields map[string]*ExtensionField // lowercased base key -> field
	names  map[string]string          // lowercased base key -> original spelling
}

// NewExtensionMap returns an empty map.
func NewExtensionMap() *ExtensionMap {
	return &ExtensionMap{
		fields: make(map[string]*ExtensionField),
		names:  make(map[string]string),
	}
}

// ParseExtensions normalizes a raw data_in value. It tolerates already-parsed
// objects, JSON text, byte slices, and double-encoded strings. A nil or
// unparseable input yields an empty map and a KindSchema error for the latter.
func ParseExtensions(raw any) (*ExtensionMap, error) {
	m := NewExtensionMap()
	if raw == nil {
		return m, nil
	}

	obj, err := decodeBlob(raw)
	if err != nil {
		return m, NewGridError(KindSchema, "", err)
	}
	if obj == nil {
		return m, nil
	}

	for key, value := range obj {
		base, locale := SplitLocaleKey(key)
		if locale != "" {
			m.addLeaf(base, locale, normalizeLeaf(value), true)
			continue
		}
		if locales, ok := asLocaleObject(value); ok {
			for loc, v := range locales {
				m.addLeaf(base, loc, normalizeLeaf(v), false)
			}
			continue
		}
		m.setScalar(base, value)
	}
	return m, nil
}

// decodeBlob unwraps the raw blob into a JSON object, following one level of
// double encoding.
func decodeBlob(raw any) (map[string]any, error) {
	for range [2]struct{}{} {
		switch v := raw.(type) {
		case map[string]any:
			return v, nil
		case []byte:
			var decoded any
			if err := json.Unmarshal(v, &decoded); err != nil {
				return nil, fmt.Errorf("decode extension blob: %w", err)
			}
			raw = decoded
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, nil
			}
			var decoded any
			if err := json.Unmarshal([]byte(v), &decoded); err != nil {
				return nil, fmt.Errorf("decode extension blob: %w", err)
			}
			raw = decoded
		default:
			return nil, fmt.Errorf("unexpected extension blob type %T", raw)
		}
	}
	if obj, ok := raw.(map[string]any); ok {
		return obj, nil
	}
	return nil, fmt.Errorf("extension blob is not an object")
}

// SplitLocaleKey strips a two-letter locale suffix from a key.
// "title_en" -> ("title", "en"); "amount" -> ("amount", "").
func SplitLocaleKey(key string) (base, locale string) {
	if len(key) < 4 || key[len(key)-3] != '_' {
		return key, ""
	}
	suffix := strings.ToLower(key[len(key)-2:])
	if !isASCIIAlpha(suffix) {
		return key, ""
	}
	return key[:len(key)-3], suffix
}

func isASCIIAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return len(s) > 0
}

// normalizeLeaf adapts a raw per-locale value into a LocaleLeaf. An object
// with a "value" key is the nested title/value shape; anything else is a
// flat value.
func normalizeLeaf(v any) LocaleLeaf {
	if obj, ok := v.(map[string]any); ok {
		if val, has := obj["value"]; has {
			title, _ := obj["title"].(string)
			return LocaleLeaf{Title: title, Value: val}
		}
	}
	return LocaleLeaf{Value: v}
}

// asLocaleObject reports whether v is a per-locale object: a non-empty map
// whose keys are all known locale tags.
func asLocaleObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	for key := range obj {
		if !isKnownLocale(key) {
			return nil, false
		}
	}
	return obj, true
}

func isKnownLocale(tag string) bool {
	for _, loc := range Locales {
		if loc == tag {
			return true
		}
	}
	return false
}

// fallbackChain returns the locale resolution order for a requested locale.
func fallbackChain(locale string) []string {
	chain := make([]string, 0, len(Locales)+1)
	if locale != "" {
		chain = append(chain, locale)
	}
	for _, loc := range Locales {
		if loc != locale {
			chain = append(chain, loc)
		}
	}
	return chain
}

func (m *ExtensionMap) addLeaf(base, locale string, leaf LocaleLeaf, suffixed bool) {
	key := strings.ToLower(base)
	field, ok := m.fields[key]
	if !ok || field.Scalar {
		field = &ExtensionField{Leaves: make(map[string]LocaleLeaf)}
		m.fields[key] = field
		m.names[key] = base
	}
	if suffixed {
		field.Suffixed = true
	}
	field.Leaves[locale] = leaf
}

func (m *ExtensionMap) setScalar(base string, value any) {
	key := strings.ToLower(base)
	if _, ok := m.fields[key]; ok {
		// A localized variant already claimed this base key; keep it.
		return
	}
	m.fields[key] = &ExtensionField{Scalar: true, Value: value}
	m.names[key] = base
}

// BaseKeys returns the original spellings of all base keys, sorted.
func (m *ExtensionMap) BaseKeys() []string {
	keys := make([]string, 0, len(m.names))
	for _, name := range m.names {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// Field finds a field by base key, case-insensitively.
func (m *ExtensionMap) Field(base string) (*ExtensionField, bool) {
	f, ok := m.fields[strings.ToLower(base)]
	return f, ok
}

// Len returns the number of distinct base keys.
func (m *ExtensionMap) Len() int { return len(m.fields) }

// Title resolves the display title for a base key: the embedded title of the
// locale-resolved leaf when present, otherwise empty.
func (m *ExtensionMap) Title(base, locale string) string {
	field, ok := m.Field(base)
	if !ok {
		return ""
	}
	if leaf, ok := field.Resolve(locale); ok {
		return leaf.Title
	}
	return ""
}

// SetValue records an edit on a base key and returns the map for chaining.
//
// Rules, in order: an existing scalar field stays scalar; a suffixed
// localized field rewrites only the requested locale's leaf; an unsuffixed
// localized field rewrites every existing leaf; a brand-new key is created
// with a full three-locale scaffold, each leaf holding the input value.
func (m *ExtensionMap) SetValue(base, locale string, value any) *ExtensionMap {
	field, ok := m.Field(base)
	if !ok {
		leaves := make(map[string]LocaleLeaf, len(Locales))
		for _, loc := range Locales {
			leaves[loc] = LocaleLeaf{Value: value}
		}
		key := strings.ToLower(base)
		m.fields[key] = &ExtensionField{Suffixed: true, Leaves: leaves}
		m.names[key] = base
		return m
	}

	switch {
	case field.Scalar:
		field.Value = value
	case field.Suffixed && locale != "":
		leaf := field.Leaves[locale]
		leaf.Value = value
		field.Leaves[locale] = leaf
	default:
		for loc, leaf := range field.Leaves {
			leaf.Value = value
			field.Leaves[loc] = leaf
		}
	}
	return m
}

// Serialize converts the map back to the canonical wire shape: scalars as-is,
// localized fields nested as { locale: { title, value } }.
func (m *ExtensionMap) Serialize() map[string]any {
	out := make(map[string]any, len(m.fields))
	for key, field := range m.fields {
		name := m.names[key]
		if field.Scalar {
			out[name] = field.Value
			continue
		}
		locales := make(map[string]any, len(field.Leaves))
		for loc, leaf := range field.Leaves {
			entry := map[string]any{"value": leaf.Value}
			if leaf.Title != "" {
				entry["title"] = leaf.Title
			}
			locales[loc] = entry
		}
		out[name] = locales
	}
	return out
}
