package core

// resolver.go fetches a collection's schema and rows and guards against the
// two overlapping-fetch hazards:
//
//   - the idempotence guard: a composite signature of (collection, page,
//     effective page size, search, filters, sort, locale) suppresses issuing
//     a fetch identical to the last *initiated* one, even if that fetch has
//     not resolved yet;
//   - the generation check: every issued fetch gets a monotonically
//     increasing generation, and a response is applied only when its
//     generation still equals the latest issued one. Superseded responses
//     are dropped silently rather than cancelled, so in-flight requests
//     complete without raising abort errors on ordinary navigation.
//
// The resolver moves through an explicit Idle -> Fetching -> Applied/Stale
// cycle instead of mutable ref flags.

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FetchState is the resolver's position in the fetch cycle.
type FetchState int

const (
	StateIdle FetchState = iota
	StateFetching
)

// Snapshot is one applied fetch: the normalized schema, the row page, the
// relation label cache built for this pass, and pagination totals.
type Snapshot struct {
	Collection string
	Columns    []ColumnSchema
	Rows       []RowRecord
	Total      int
	TotalPages int
	Relations  RelationLabels
	Generation uint64
}

// Resolver resolves collection schemas and rows for one grid instance.
// Safe for concurrent use.
type Resolver struct {
	store Store

	mu         sync.Mutex
	state      FetchState
	generation uint64
	lastSig    string
	taxonomy   map[string][]SelectOption // field name -> select options
	lastErr    string                    // collection-scoped error banner text
	collection string
}

// NewResolver creates a resolver over a store.
func NewResolver(store Store) *Resolver {
	return &Resolver{
		store:    store,
		taxonomy: make(map[string][]SelectOption),
	}
}

// State returns the current fetch state.
func (r *Resolver) State() FetchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastError returns the collection-scoped error banner text, empty when the
// last fetch applied cleanly.
func (r *Resolver) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// SetTaxonomy registers select options for a field whose schema depends on a
// separate taxonomy fetch (e.g. status_name). The next applied snapshot
// re-tags the matching column as a select column without discarding
// unrelated column state. Passing nil options removes the entry.
func (r *Resolver) SetTaxonomy(field string, options []SelectOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if options == nil {
		delete(r.taxonomy, field)
		return
	}
	r.taxonomy[field] = options
}

// Resolve fetches the current page for the view state, using the filter
// engine's fetch translation. It returns a KindSuperseded error when the
// response became stale or the fetch was suppressed as a duplicate; callers
// drop those silently.
func (r *Resolver) Resolve(ctx context.Context, state CollectionViewState, filters *FilterEngine) (*Snapshot, error) {
	params := filters.FetchParams(state)
	sig := fetchSignature(state, params)

	r.mu.Lock()
	if r.state == StateFetching && sig == r.lastSig {
		r.mu.Unlock()
		return nil, NewGridError(KindSuperseded, state.Collection,
			fmt.Errorf("identical fetch already in flight"))
	}
	if state.Collection != r.collection {
		// Collection switch: view state is reset, not merged.
		r.collection = state.Collection
		r.lastErr = ""
	}
	r.generation++
	gen := r.generation
	r.lastSig = sig
	r.state = StateFetching
	r.mu.Unlock()

	result, err := r.store.Query(ctx, params)

	var relations RelationLabels
	if err == nil {
		relations = ResolveRelationLabels(ctx, r.store, applyTaxonomySnapshot(result.Columns, r.taxonomyCopy()), result.Data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation {
		// A newer fetch was issued while this one was in flight.
		return nil, NewGridError(KindSuperseded, state.Collection,
			fmt.Errorf("response superseded by generation %d", r.generation))
	}
	r.state = StateIdle

	if err != nil {
		if IsSuperseded(err) {
			return nil, NewGridError(KindSuperseded, state.Collection, err)
		}
		wrapped := NewGridError(KindTransient, state.Collection, err)
		r.lastErr = MapError(wrapped).Message
		return nil, wrapped
	}
	r.lastErr = ""

	columns := applyTaxonomySnapshot(result.Columns, r.taxonomy)
	return &Snapshot{
		Collection: state.Collection,
		Columns:    columns,
		Rows:       result.Data,
		Total:      result.Total,
		TotalPages: result.TotalPages,
		Relations:  relations,
		Generation: gen,
	}, nil
}

func (r *Resolver) taxonomyCopy() map[string][]SelectOption {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]SelectOption, len(r.taxonomy))
	for k, v := range r.taxonomy {
		out[k] = v
	}
	return out
}

// applyTaxonomySnapshot re-derives dependent column metadata from taxonomy
// options. Columns without a taxonomy entry pass through untouched.
func applyTaxonomySnapshot(columns []ColumnSchema, taxonomy map[string][]SelectOption) []ColumnSchema {
	if len(taxonomy) == 0 {
		return columns
	}
	out := make([]ColumnSchema, len(columns))
	copy(out, columns)
	for i, col := range out {
		if options, ok := taxonomy[col.Name]; ok {
			out[i].Kind = KindSelect
			out[i].SelectOptions = options
		}
	}
	return out
}

// ResolveRelationLabels performs the secondary fetches that turn foreign
// keys into display labels, one per relation column per render pass. Export
// and other direct-query paths use it too so relation columns always render
// labels, not raw codes. A failed relation fetch degrades to raw values for
// that column only.
func ResolveRelationLabels(ctx context.Context, store Store, columns []ColumnSchema, rows []RowRecord) RelationLabels {
	labels := make(RelationLabels)

	for _, col := range columns {
		if col.Kind != KindRelation || col.Relation == nil {
			continue
		}

		raws := distinctValues(rows, col.Name)
		if len(raws) == 0 {
			continue
		}

		rel := col.Relation
		filters := append([]ColumnFilter{}, rel.StaticFilters...)
		filters = append(filters, ColumnFilter{Field: rel.ValueField, Op: OpIn, Values: raws})

		result, err := store.Query(ctx, QueryParams{
			Collection: rel.TargetCollection,
			Page:       1,
			PageSize:   len(raws),
			Filters:    filters,
		})
		if err != nil {
			continue
		}

		m := make(map[string]string, len(result.Data))
		for _, row := range result.Data {
			value := formatDisplay(row[rel.ValueField])
			m[value] = relationLabel(row, rel.LabelFields)
		}
		labels[col.Name] = m
	}

	return labels
}

// relationLabel joins the configured label fields of a target row.
func relationLabel(row RowRecord, labelFields []string) string {
	parts := make([]string, 0, len(labelFields))
	for _, field := range labelFields {
		if v := row[field]; v != nil {
			parts = append(parts, formatDisplay(v))
		}
	}
	if len(parts) == 0 {
		return MissingDisplay
	}
	return strings.Join(parts, " ")
}

func distinctValues(rows []RowRecord, field string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		s := formatDisplay(v)
		if s == MissingDisplay || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// fetchSignature builds the composite idempotence signature. The effective
// page size (after any fallback override) participates so switching into
// fallback mode is never suppressed.
func fetchSignature(state CollectionViewState, params QueryParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%d|%s|%s|", state.Collection, params.Page, params.PageSize, params.Search, state.Locale)
	for _, f := range state.Filters {
		fmt.Fprintf(&b, "f:%s:%s:%s:%s|", f.Field, f.Op, f.Value, strings.Join(f.Values, ","))
	}
	for _, s := range state.Sort {
		fmt.Fprintf(&b, "s:%s:%t|", s.ColumnID, s.Desc)
	}
	return b.String()
}
