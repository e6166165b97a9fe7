package core

// columns.go turns a normalized schema plus a sample of rows into the
// renderable/editable column list. The generated set is always:
// one fixed row-select column, one column per visible schema field, one
// column per visible data_in base key, and one fixed row-actions column.

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Fixed column identifiers.
const (
	ColumnSelect  = "__select"
	ColumnActions = "__actions"
)

// ColumnDef is one generated grid column. Resolve produces the display value
// for a row; Edit converts raw user input into the pending value handed to
// the edit session. Fixed columns have neither.
type ColumnDef struct {
	ID        string
	Title     string
	Kind      FieldKind
	Fixed     bool
	Extension bool   // discovered from data_in rather than the schema
	BaseKey   string // set for extension columns
	Editable  bool
	Resolve   func(row RowRecord) string
	Edit      func(row RowRecord, input string) (any, error)
}

// GenerateOptions carries everything column generation depends on besides
// the schema and rows.
type GenerateOptions struct {
	Locale         string
	RelationLabels RelationLabels
	Hidden         map[string]bool   // column ids excluded from the output
	Titles         map[string]string // translation table for extension titles
	EditMode       bool
	Session        *EditSession // consulted for pending display values
}

// GenerateColumns produces the full column list for a schema and row sample.
// For N visible schema fields and K visible base keys the result holds
// exactly 2+N+K columns.
func GenerateColumns(schema []ColumnSchema, rows []RowRecord, opts GenerateOptions) []ColumnDef {
	columns := make([]ColumnDef, 0, len(schema)+4)
	columns = append(columns, ColumnDef{ID: ColumnSelect, Title: "", Fixed: true})

	for _, col := range schema {
		if col.Hidden || opts.Hidden[col.Name] {
			continue
		}
		columns = append(columns, schemaColumn(col, opts))
	}

	for _, base := range scanBaseKeys(rows, opts.Hidden) {
		columns = append(columns, extensionColumn(base, rows, opts))
	}

	columns = append(columns, ColumnDef{ID: ColumnActions, Title: "", Fixed: true})
	return columns
}

// scanBaseKeys collects the distinct visible base keys across all rows'
// extension blobs, in first-key-sorted order.
func scanBaseKeys(rows []RowRecord, hidden map[string]bool) []string {
	seen := make(map[string]string)
	for _, row := range rows {
		ext, err := ParseExtensions(row[ExtensionBlobField])
		if err != nil {
			continue // unparseable blob degrades to no extension columns for that row
		}
		for _, base := range ext.BaseKeys() {
			key := strings.ToLower(base)
			if _, ok := seen[key]; !ok {
				seen[key] = base
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for _, base := range seen {
		if hidden[base] {
			continue
		}
		keys = append(keys, base)
	}
	sort.Strings(keys)
	return keys
}

// schemaColumn builds the column for one schema field, branching on the
// closed FieldKind set for both display and editing.
func schemaColumn(col ColumnSchema, opts GenerateOptions) ColumnDef {
	def := ColumnDef{
		ID:       col.Name,
		Title:    col.Name,
		Kind:     col.Kind,
		Editable: opts.EditMode && !col.PrimaryKey,
	}

	name := col.Name
	def.Resolve = func(row RowRecord) string {
		value := cellValue(row, name, opts.Session)
		return displayFieldValue(col, value, opts)
	}

	if def.Editable {
		def.Edit = func(_ RowRecord, input string) (any, error) {
			return editFieldValue(col, input)
		}
	}
	return def
}

// displayFieldValue renders one schema field value by kind.
func displayFieldValue(col ColumnSchema, value any, opts GenerateOptions) string {
	if value == nil {
		return MissingDisplay
	}

	switch col.Kind {
	case KindBool:
		if b, ok := value.(bool); ok {
			if b {
				return "true"
			}
			return "false"
		}
		return MissingDisplay // tri-state: unknown stays blank-ish

	case KindSelect:
		return optionLabel(col.SelectOptions, formatDisplay(value))

	case KindEnum:
		return enumLabel(col.Enum, formatDisplay(value))

	case KindRelation:
		return opts.RelationLabels.Label(col.Name, formatDisplay(value))

	case KindPrice:
		return FormatPrice(value)

	case KindJSON:
		if col.Localized || col.Name == ExtensionBlobField {
			return resolveLocalizedJSON(value, opts.Locale)
		}
		return formatDisplay(value)

	case KindText, KindNumber, KindDate, KindDateTime, KindArray:
		return formatDisplay(value)

	default:
		return formatDisplay(value)
	}
}

// EditValue converts raw user input for a schema column into the typed value
// staged in an edit session.
func EditValue(col ColumnSchema, input string) (any, error) {
	return editFieldValue(col, input)
}

// editFieldValue converts user input to the stored representation by kind.

func editFieldValue(col ColumnSchema, input string) (any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	switch col.Kind {
	case KindNumber:
		n, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return nil, NewGridError(KindValidation, "", fmt.Errorf("%s: invalid number %q", col.Name, input))
		}
		return n, nil

	case KindBool:
		b, err := ParseBool(input)
		if err != nil {
			return nil, NewGridError(KindValidation, "", fmt.Errorf("%s: %w", col.Name, err))
		}
		return b, nil

	case KindPrice:
		minor, err := ParsePrice(input)
		if err != nil {
			return nil, NewGridError(KindValidation, "", fmt.Errorf("%s: %w", col.Name, err))
		}
		return minor, nil

	case KindDate, KindDateTime:
		t, err := ParseDate(input)
		if err != nil {
			return nil, NewGridError(KindValidation, "", fmt.Errorf("%s: %w", col.Name, err))
		}
		if col.Kind == KindDate {
			return t.Format("2006-01-02"), nil
		}
		return t.Format(time.RFC3339), nil

	case KindEnum:
		if col.Enum != nil && len(col.Enum.Values) > 0 {
			for _, v := range col.Enum.Values {
				if strings.EqualFold(v, input) {
					return v, nil
				}
			}
			return nil, NewGridError(KindValidation, "",
				fmt.Errorf("%s: value must be one of: %s", col.Name, strings.Join(col.Enum.Values, ", ")))
		}
		return input, nil

	case KindSelect, KindRelation, KindText, KindArray, KindJSON:
		return input, nil

	default:
		return input, nil
	}
}

// extensionColumn builds one column for a data_in base key. The accessor
// re-parses the blob and resolves with the same locale-fallback and
// title/value unwrapping rules as localized schema fields.
func extensionColumn(base string, rows []RowRecord, opts GenerateOptions) ColumnDef {
	def := ColumnDef{
		ID:        "data_in." + base,
		Title:     extensionTitle(base, rows, opts),
		Kind:      KindJSON,
		Extension: true,
		BaseKey:   base,
		Editable:  opts.EditMode,
	}

	def.Resolve = func(row RowRecord) string {
		blob := cellValue(row, ExtensionBlobField, opts.Session)
		ext, err := ParseExtensions(blob)
		if err != nil {
			return formatDisplay(blob) // unknown shape degrades to the literal
		}
		field, ok := ext.Field(base)
		if !ok {
			return MissingDisplay
		}
		leaf, ok := field.Resolve(opts.Locale)
		if !ok {
			return MissingDisplay
		}
		return leafDisplay(leaf)
	}

	if def.Editable {
		// Editing rewrites the targeted locale leaf inside the whole parsed
		// blob and hands the entire object back as one pending edit.
		def.Edit = func(row RowRecord, input string) (any, error) {
			// Rebuild from the pending blob when one exists so successive
			// edits to different base keys on the same row accumulate.
			ext, err := ParseExtensions(cellValue(row, ExtensionBlobField, opts.Session))
			if err != nil {
				return nil, NewGridError(KindValidation, "", fmt.Errorf("%s: %w", base, err))
			}
			return ext.SetValue(base, opts.Locale, input).Serialize(), nil
		}
	}
	return def
}

// extensionTitle picks the column title: an embedded title found inside the
// locale-resolved value, else the translation table, else the base key.
func extensionTitle(base string, rows []RowRecord, opts GenerateOptions) string {
	for _, row := range rows {
		ext, err := ParseExtensions(row[ExtensionBlobField])
		if err != nil {
			continue
		}
		if title := ext.Title(base, opts.Locale); title != "" {
			return title
		}
	}
	if title, ok := opts.Titles[base]; ok && title != "" {
		return title
	}
	return base
}

// cellValue returns the pending edit for a cell when one exists, else the
// last-fetched value.
func cellValue(row RowRecord, field string, session *EditSession) any {
	if session != nil {
		if pending, ok := session.Pending(RowKey(row), field); ok {
			return pending
		}
	}
	return row[field]
}

// resolveLocalizedJSON resolves a localized json value with locale fallback
// and title/value unwrapping.
func resolveLocalizedJSON(value any, locale string) string {
	obj, err := decodeBlob(value)
	if err != nil || obj == nil {
		return formatDisplay(value)
	}
	for _, loc := range fallbackChain(locale) {
		if v, ok := obj[loc]; ok {
			return leafDisplay(normalizeLeaf(v))
		}
	}
	return formatDisplay(value)
}

func leafDisplay(leaf LocaleLeaf) string {
	return formatDisplay(leaf.Value)
}

// optionLabel looks up a select option label with case-insensitive, trimmed
// comparison. A missing label falls back to the raw value.
func optionLabel(options []SelectOption, raw string) string {
	needle := strings.TrimSpace(raw)
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt.Value), needle) {
			return opt.Label
		}
	}
	return raw
}

// enumLabel resolves an enum value to its positional label.
func enumLabel(spec *EnumSpec, raw string) string {
	if spec == nil {
		return raw
	}
	needle := strings.TrimSpace(raw)
	for i, v := range spec.Values {
		if strings.EqualFold(strings.TrimSpace(v), needle) {
			if i < len(spec.Labels) && spec.Labels[i] != "" {
				return spec.Labels[i]
			}
			return v
		}
	}
	return raw
}

// FormatPrice renders stored integer minor units as a 2-decimal string.
func FormatPrice(value any) string {
	minor, ok := asInt64(value)
	if !ok {
		return formatDisplay(value)
	}
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// ParsePrice converts decimal user input ("19.99") back to integer minor
// units (1999).
func ParsePrice(input string) (int64, error) {
	input = strings.TrimSpace(strings.TrimPrefix(input, "$"))
	f, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", input)
	}
	return int64(math.Round(f * 100)), nil
}

// ParseBool accepts the representations user data actually contains.
func ParseBool(input string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("must be yes/no, true/false, or 1/0")
}

// dateLayouts are the accepted date input formats, unambiguous first.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseDate parses a date or datetime in any accepted layout.
func ParseDate(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, input); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", input)
}

// formatDisplay renders an arbitrary value for the grid. Unknown JSON shapes
// are shown stringified rather than failing the render.
func formatDisplay(v any) string {
	switch val := v.(type) {
	case nil:
		return MissingDisplay
	case string:
		if val == "" {
			return MissingDisplay
		}
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case []byte:
		if len(val) == 0 {
			return MissingDisplay
		}
		return string(val)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(math.Round(n)), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
