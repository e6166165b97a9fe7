package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/GTFB/forlifely-sub001/internal/core"
	"github.com/go-chi/chi/v5"
)

// ColumnMeta is the client-facing description of one generated column.
type ColumnMeta struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Kind      string `json:"kind"`
	Fixed     bool   `json:"fixed,omitempty"`
	Extension bool   `json:"extension,omitempty"`
	Editable  bool   `json:"editable,omitempty"`
}

// GridRow is one rendered row: the primary key plus display cells keyed by
// column id.
type GridRow struct {
	Key   string            `json:"key"`
	Cells map[string]string `json:"cells"`
}

// GridResponse is the full answer to a grid state query.
type GridResponse struct {
	Collection string          `json:"collection"`
	Columns    []ColumnMeta    `json:"columns"`
	Rows       []GridRow       `json:"rows"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	Total      int             `json:"total"`
	TotalPages int             `json:"totalPages"`
	Sort       []core.SortSpec `json:"sort,omitempty"`
	Banner     string          `json:"banner,omitempty"`
	Superseded bool            `json:"superseded,omitempty"`
}

// handleListCollections returns the discoverable collection names. With
// stats=true each entry also carries its current row count.
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.backend.Collections(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("stats") != "true" {
		writeJSON(w, map[string]any{"collections": names})
		return
	}

	type collectionStats struct {
		Name  string `json:"name"`
		Total int    `json:"total"`
	}
	stats := make([]collectionStats, 0, len(names))
	for _, name := range names {
		entry := collectionStats{Name: name}
		result, err := s.backend.Query(r.Context(), core.QueryParams{
			Collection: name,
			Page:       1,
			PageSize:   1,
		})
		if err == nil {
			entry.Total = result.Total
		}
		stats = append(stats, entry)
	}
	writeJSON(w, map[string]any{"collections": stats})
}

// handleGridState resolves the full grid state for one collection: fetch (or
// duplicate suppression), client-side filter passes, pagination recompute,
// and column generation.
func (s *Server) handleGridState(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if collection == "" {
		writeError(w, http.StatusBadRequest, "missing collection")
		return
	}

	state, engine, err := s.parseGridState(r, collection)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	resolver := s.resolver(collection)
	snap, err := resolver.Resolve(r.Context(), state, engine)
	if err != nil {
		if core.IsSuperseded(err) {
			// Stale or duplicate fetch: not an error, the client keeps its
			// current view.
			writeJSON(w, GridResponse{Collection: collection, Superseded: true})
			return
		}
		s.respondError(w, r, err, statusForKind(err))
		return
	}

	rows := snap.Rows
	total := snap.Total
	totalPages := snap.TotalPages
	page := state.Page

	if engine.ClientFallback(state) {
		filtered, err := engine.ApplyClientSide(rows, state)
		if err != nil {
			s.respondError(w, r, err, statusForKind(err))
			return
		}
		// Totals come from the filtered length, not the server page.
		pager := s.pager(collection)
		total = len(filtered)
		totalPages = pager.TotalPages(total)
		pager.Clamp(totalPages)
		page = pager.Page()
		rows = core.Page(filtered, page, state.PageSize)
	}

	opts := core.GenerateOptions{
		Locale:         state.Locale,
		RelationLabels: snap.Relations,
		EditMode:       r.URL.Query().Get("edit") == "true",
	}
	if opts.EditMode {
		opts.Session = s.session(collection)
	}
	columns := core.GenerateColumns(snap.Columns, rows, opts)

	// Drop sort entries whose columns disappeared in this generation pass.
	coord := s.sort(collection)
	coord.Prune(columns)

	writeJSON(w, GridResponse{
		Collection: collection,
		Columns:    columnMeta(columns),
		Rows:       renderRows(columns, rows),
		Page:       page,
		PageSize:   state.PageSize,
		Total:      total,
		TotalPages: totalPages,
		Sort:       coord.Entries(),
		Banner:     resolver.LastError(),
	})
}

// parseGridState decodes the view state and filter engine from query params.
// Page, page size, and sort route through the collection's pagination
// controller and sort coordinator so interactions accumulate: a pageSize
// change persists as the collection's default and returns to page 1, and
// toggleSort layers onto the existing sort.
func (s *Server) parseGridState(r *http.Request, collection string) (core.CollectionViewState, *core.FilterEngine, error) {
	q := r.URL.Query()

	pager := s.pager(collection)
	if raw := q.Get("pageSize"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			pager.SetPageSize(collection, n)
		}
	}
	if raw := q.Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			pager.SetPage(n)
		}
	}

	state := core.CollectionViewState{
		Collection: collection,
		Page:       pager.Page(),
		PageSize:   pager.PageSize(),
		Search:     q.Get("search"),
		Locale:     q.Get("locale"),
	}
	if state.Locale == "" {
		state.Locale = s.cfg.Grid.DefaultLocale
	}

	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.Filters); err != nil {
			return state, nil, core.NewGridError(core.KindValidation, collection, err)
		}
	}

	coord := s.sort(collection)
	if raw := q.Get("sort"); raw != "" {
		var entries []core.SortSpec
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return state, nil, core.NewGridError(core.KindValidation, collection, err)
		}
		coord.Set(entries)
	}
	if col := q.Get("toggleSort"); col != "" {
		coord.Toggle(col, q.Get("additive") == "true")
	}
	state.Sort = coord.Entries()

	engine := core.NewFilterEngine(s.cfg.Grid.FallbackPageSize)
	engine.Quick = core.QuickFilters{
		Statuses: splitParam(q.Get("status")),
		Cities:   splitParam(q.Get("city")),
	}

	if field := q.Get("dateField"); field != "" {
		dr := &core.DateRange{Field: field}
		if from := q.Get("dateFrom"); from != "" {
			t, err := core.ParseDate(from)
			if err != nil {
				return state, nil, core.NewGridError(core.KindValidation, collection, err)
			}
			dr.From = t
		}
		if to := q.Get("dateTo"); to != "" {
			t, err := core.ParseDate(to)
			if err != nil {
				return state, nil, core.NewGridError(core.KindValidation, collection, err)
			}
			dr.To = t
		}
		engine.Range = dr
	}

	return state, engine, nil
}

// columnMeta strips the resolve/edit closures down to wire metadata.
func columnMeta(columns []core.ColumnDef) []ColumnMeta {
	out := make([]ColumnMeta, len(columns))
	for i, col := range columns {
		out[i] = ColumnMeta{
			ID:        col.ID,
			Title:     col.Title,
			Kind:      col.Kind.String(),
			Fixed:     col.Fixed,
			Extension: col.Extension,
			Editable:  col.Editable,
		}
	}
	return out
}

// renderRows resolves every data column against every row.
func renderRows(columns []core.ColumnDef, rows []core.RowRecord) []GridRow {
	out := make([]GridRow, len(rows))
	for i, row := range rows {
		cells := make(map[string]string, len(columns))
		for _, col := range columns {
			if col.Fixed || col.Resolve == nil {
				continue
			}
			cells[col.ID] = col.Resolve(row)
		}
		out[i] = GridRow{Key: core.RowKey(row), Cells: cells}
	}
	return out
}

// splitParam splits a comma-separated query value, dropping blanks.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
