package core

// types.go holds the shared data model: field kinds, schema snapshots, rows,
// filter and sort state, and the Store interface the engine runs against.

import "context"

// FieldKind classifies a column for rendering, editing, and conversion.
// The set is closed: every consumer switches over it exhaustively so that
// a new kind fails loudly instead of falling through to a text default.
type FieldKind int

const (
	KindText FieldKind = iota
	KindNumber
	KindBool
	KindDate
	KindDateTime
	KindPrice // integer minor units; displayed as value/100 with 2 decimals
	KindJSON
	KindArray
	KindEnum
	KindSelect
	KindRelation
)

// String returns the wire name of the kind.
func (k FieldKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindPrice:
		return "price"
	case KindJSON:
		return "json"
	case KindArray:
		return "array"
	case KindEnum:
		return "enum"
	case KindSelect:
		return "select"
	case KindRelation:
		return "relation"
	default:
		return "text"
	}
}

// SelectOption is a single value/label pair for select columns.
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// EnumSpec holds the allowed values of an enum column alongside display labels.
// Labels are positional; a missing label falls back to the raw value.
type EnumSpec struct {
	Values []string `json:"values"`
	Labels []string `json:"labels"`
}

// RelationRef describes how a foreign-key column resolves to a human label.
type RelationRef struct {
	TargetCollection string         `json:"targetCollection"`
	ValueField       string         `json:"valueField"`
	LabelFields      []string       `json:"labelFields"`
	StaticFilters    []ColumnFilter `json:"staticFilters,omitempty"`
	InheritSearch    bool           `json:"inheritSearch"`
}

// ColumnSchema is the normalized description of one collection column.
// Instances are read-only snapshots: refreshed on collection change or a
// schema-affecting event, never mutated in place.
type ColumnSchema struct {
	Name          string         `json:"name"`
	StorageType   string         `json:"storageType"`
	Nullable      bool           `json:"nullable"`
	PrimaryKey    bool           `json:"isPrimaryKey"`
	Kind          FieldKind      `json:"-"`
	Localized     bool           `json:"localized"`
	Hidden        bool           `json:"hidden,omitempty"`
	Relation      *RelationRef   `json:"relation,omitempty"`
	SelectOptions []SelectOption `json:"selectOptions,omitempty"`
	Enum          *EnumSpec      `json:"enumSpec,omitempty"`
}

// RowRecord is a single row as key-value pairs. Every row carries a primary
// key and may carry a data_in extension blob (see locale.go).
type RowRecord map[string]any

// ExtensionBlobField is the conventional name of the open-ended JSON
// extension column attached to every collection row.
const ExtensionBlobField = "data_in"

// FilterOperator represents a comparison operator for column filters.
type FilterOperator string

const (
	OpContains   FilterOperator = "contains"
	OpEquals     FilterOperator = "eq"
	OpStartsWith FilterOperator = "starts"
	OpEndsWith   FilterOperator = "ends"
	OpGreaterEq  FilterOperator = "gte"
	OpLessEq     FilterOperator = "lte"
	OpGreater    FilterOperator = "gt"
	OpLess       FilterOperator = "lt"
	OpIn         FilterOperator = "in"
)

// ColumnFilter is a single filter condition on a column.
// For OpIn, Values holds the member set and the row matches if its value is
// any member (OR semantics); Value is used by all other operators.
type ColumnFilter struct {
	Field  string         `json:"field"`
	Op     FilterOperator `json:"op"`
	Value  string         `json:"value,omitempty"`
	Values []string       `json:"values,omitempty"`
}

// SortSpec is a single entry of an ordered multi-column sort.
type SortSpec struct {
	ColumnID string `json:"id"`
	Desc     bool   `json:"desc"`
}

// CollectionViewState is the full query state of one collection selection.
// It lives for the lifetime of that selection and is reset, not merged,
// when the collection changes.
type CollectionViewState struct {
	Collection string
	Page       int // one-based
	PageSize   int
	Search     string
	Filters    []ColumnFilter
	Sort       []SortSpec
	Locale     string
}

// QueryParams are the parameters of one state-query fetch.
type QueryParams struct {
	Collection string
	Page       int // one-based
	PageSize   int
	Search     string
	Filters    []ColumnFilter
	Sort       []SortSpec
}

// QueryResult is the backend's answer to a state query.
type QueryResult struct {
	Data       []RowRecord
	Columns    []ColumnSchema
	Total      int
	TotalPages int
}

// Store is the backend the engine runs against: a state query plus row
// mutations per collection, keyed by primary key.
type Store interface {
	// Collections lists the known collection names.
	Collections(ctx context.Context) ([]string, error)

	// Query returns one page of rows together with the collection schema.
	Query(ctx context.Context, params QueryParams) (*QueryResult, error)

	// Create inserts a new row and returns it with the generated key.
	Create(ctx context.Context, collection string, fields map[string]any) (RowRecord, error)

	// Update applies a partial field map to the row with the given key.
	Update(ctx context.Context, collection, key string, fields map[string]any) error

	// Upsert inserts the row or updates it when the primary key already exists.
	Upsert(ctx context.Context, collection string, row map[string]any) error

	// Delete removes the row with the given key.
	Delete(ctx context.Context, collection, key string) error
}

// RelationLabels caches resolved relation labels per column:
// column name -> raw stored value -> display label.
// Rebuilt once per fetch pass, never mutated between passes.
type RelationLabels map[string]map[string]string

// Label returns the cached label for a raw value, falling back to the raw
// value itself when the relation has not been resolved.
func (rl RelationLabels) Label(column, raw string) string {
	if m, ok := rl[column]; ok {
		if label, ok := m[raw]; ok {
			return label
		}
	}
	return raw
}

// ImportResult is the outcome of one import batch. Errors are accumulated
// per row; a malformed row never aborts the batch.
type ImportResult struct {
	Success       bool     `json:"success"`
	ImportedCount int      `json:"importedCount"`
	Errors        []string `json:"errors"`
}

// ProgressFunc is invoked incrementally during an import batch.
type ProgressFunc func(imported, total int)
