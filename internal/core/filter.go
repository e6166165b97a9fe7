package core

// filter.go coordinates the four disjoint filter mechanisms, applied in a
// fixed order:
//
//	1. server-side column filters, attached to the fetch query
//	2. the free-text search string (server-side unless it carries boolean
//	   operators the backend cannot evaluate)
//	3. quick-pick status/city filters, resolved against a reference
//	   collection and intersected client-side
//	4. a date-range filter on created_at/updated_at, applied client-side
//	   against the already-fetched rows
//
// When any client-side mechanism is active the engine fetches the whole
// candidate set with a large page size and recomputes total/totalPages from
// the filtered length.

import (
	"strconv"
	"strings"
	"time"
)

// Default field names the quick filters and date range operate on.
const (
	QuickStatusField = "status_name"
	QuickCityField   = "city"
	CreatedAtField   = "created_at"
	UpdatedAtField   = "updated_at"
)

// QuickFilters are the status/city quick-pick selections. Values come from a
// reference collection lookup; an empty slice means the filter is unset and
// all rows pass.
type QuickFilters struct {
	Statuses []string
	Cities   []string
}

// Empty reports whether no quick filter is active.
func (q QuickFilters) Empty() bool {
	return len(q.Statuses) == 0 && len(q.Cities) == 0
}

// DateRange is a client-side range filter on a timestamp field.
// Zero bounds are unbounded.
type DateRange struct {
	Field string // created_at or updated_at
	From  time.Time
	To    time.Time
}

// FilterEngine holds the client-side filter state of one grid instance.
type FilterEngine struct {
	Quick            QuickFilters
	Range            *DateRange
	FallbackPageSize int
}

// NewFilterEngine creates an engine with the configured fallback page size
// used when boolean search forces a full fetch.
func NewFilterEngine(fallbackPageSize int) *FilterEngine {
	if fallbackPageSize <= 0 {
		fallbackPageSize = 1000
	}
	return &FilterEngine{FallbackPageSize: fallbackPageSize}
}

// NeedsClientFallback reports whether the search string carries boolean
// operators that must be evaluated client-side.
func (e *FilterEngine) NeedsClientFallback(search string) bool {
	return search != "" && HasBooleanOperators(search)
}

// FetchParams translates view state into the query actually sent to the
// backend. Whenever any client-side mechanism is active (boolean search,
// quick filters, date range) the page size is overridden so the whole
// candidate set arrives in one fetch and pagination runs over the filtered
// result, not a single server page. Boolean search is additionally stripped
// because the backend cannot evaluate it.
func (e *FilterEngine) FetchParams(state CollectionViewState) QueryParams {
	params := QueryParams{
		Collection: state.Collection,
		Page:       state.Page,
		PageSize:   state.PageSize,
		Search:     state.Search,
		Filters:    state.Filters,
		Sort:       state.Sort,
	}
	if e.ClientFallback(state) {
		params.Page = 1
		params.PageSize = e.FallbackPageSize
		if e.NeedsClientFallback(state.Search) {
			params.Search = ""
		}
	}
	return params
}

// ClientFallback reports whether the engine is in client-side filtering mode
// for the given state: boolean search, quick filters, or a date range all
// change the effective row count.
func (e *FilterEngine) ClientFallback(state CollectionViewState) bool {
	return e.NeedsClientFallback(state.Search) || !e.Quick.Empty() || e.Range != nil
}

// ApplyClientSide runs the client-side passes, in order: boolean search,
// quick filters, date range. The returned slice is a fresh view; fetched
// rows are never mutated.
func (e *FilterEngine) ApplyClientSide(rows []RowRecord, state CollectionViewState) ([]RowRecord, error) {
	out := rows

	if e.NeedsClientFallback(state.Search) {
		expr, err := ParseSearchExpr(state.Search)
		if err != nil {
			return nil, NewGridError(KindValidation, state.Collection, err)
		}
		out = filterRows(out, expr.MatchesRow)
	}

	if len(e.Quick.Statuses) > 0 {
		out = filterRows(out, func(row RowRecord) bool {
			return memberOf(row[QuickStatusField], e.Quick.Statuses)
		})
	}
	if len(e.Quick.Cities) > 0 {
		out = filterRows(out, func(row RowRecord) bool {
			return memberOf(row[QuickCityField], e.Quick.Cities)
		})
	}

	if e.Range != nil {
		out = filterRows(out, e.matchesRange)
	}

	return out, nil
}

// Page slices a client-filtered row set to one page.
func Page(rows []RowRecord, page, pageSize int) []RowRecord {
	if pageSize <= 0 {
		return rows
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []RowRecord{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// MatchesFilter evaluates one column filter against a row, client-side.
// OpIn uses OR membership semantics; an unset filter passes everything.
func MatchesFilter(row RowRecord, f ColumnFilter) bool {
	raw := row[f.Field]

	if f.Op == OpIn {
		if len(f.Values) == 0 {
			return true
		}
		return memberOf(raw, f.Values)
	}

	if f.Value == "" {
		return true
	}
	if raw == nil {
		return false
	}

	have := strings.ToLower(strings.TrimSpace(formatDisplay(raw)))
	want := strings.ToLower(strings.TrimSpace(f.Value))

	switch f.Op {
	case OpEquals:
		return have == want
	case OpContains:
		return strings.Contains(have, want)
	case OpStartsWith:
		return strings.HasPrefix(have, want)
	case OpEndsWith:
		return strings.HasSuffix(have, want)
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		return compareOrdered(have, want, f.Op)
	default:
		return true
	}
}

func (e *FilterEngine) matchesRange(row RowRecord) bool {
	field := e.Range.Field
	if field == "" {
		field = CreatedAtField
	}
	value := row[field]
	if value == nil {
		return false
	}

	var ts time.Time
	switch v := value.(type) {
	case time.Time:
		ts = v
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return false
		}
		ts = parsed
	default:
		return false
	}

	if !e.Range.From.IsZero() && ts.Before(e.Range.From) {
		return false
	}
	if !e.Range.To.IsZero() && ts.After(e.Range.To) {
		return false
	}
	return true
}

// memberOf checks set membership with case-insensitive, trimmed comparison.
func memberOf(raw any, set []string) bool {
	if raw == nil {
		return false
	}
	have := strings.ToLower(strings.TrimSpace(formatDisplay(raw)))
	for _, member := range set {
		if strings.ToLower(strings.TrimSpace(member)) == have {
			return true
		}
	}
	return false
}

func filterRows(rows []RowRecord, keep func(RowRecord) bool) []RowRecord {
	out := make([]RowRecord, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

// compareOrdered compares numerically when both sides parse as numbers,
// lexically otherwise.
func compareOrdered(have, want string, op FilterOperator) bool {
	hf, herr := parseFloat(have)
	wf, werr := parseFloat(want)
	if herr == nil && werr == nil {
		switch op {
		case OpGreater:
			return hf > wf
		case OpGreaterEq:
			return hf >= wf
		case OpLess:
			return hf < wf
		case OpLessEq:
			return hf <= wf
		}
	}
	switch op {
	case OpGreater:
		return have > want
	case OpGreaterEq:
		return have >= want
	case OpLess:
		return have < want
	case OpLessEq:
		return have <= want
	}
	return false
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
