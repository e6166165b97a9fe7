package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/GTFB/forlifely-sub001/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleExport downloads the current filtered view of a collection in the
// requested format. The export honors search, filters, and quick filters the
// same way the grid does; pagination is ignored so the whole candidate set is
// written.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if collection == "" {
		writeError(w, http.StatusBadRequest, "missing collection")
		return
	}

	formatParam := r.URL.Query().Get("format")
	if formatParam == "" {
		formatParam = "csv"
	}
	format, err := core.ParseExportFormat(formatParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, engine, err := s.parseGridState(r, collection)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	// Export the whole candidate set, not one page.
	params := engine.FetchParams(state)
	params.Page = 1
	params.PageSize = s.cfg.Grid.FallbackPageSize

	result, err := s.backend.Query(r.Context(), params)
	if err != nil {
		s.respondError(w, r, err, statusForKind(err))
		return
	}

	rows := result.Data
	if engine.ClientFallback(state) {
		rows, err = engine.ApplyClientSide(rows, state)
		if err != nil {
			s.respondError(w, r, err, statusForKind(err))
			return
		}
	}

	columns := core.GenerateColumns(result.Columns, rows, core.GenerateOptions{
		Locale:         state.Locale,
		RelationLabels: core.ResolveRelationLabels(r.Context(), s.backend, result.Columns, rows),
	})

	data, err := core.Export(format, collection, columns, rows)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	filename := core.ExportFilename(collection, format, time.Now())
	w.Header().Set("Content-Type", format.MIME())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(data)
}
