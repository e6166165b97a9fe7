package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/GTFB/forlifely-sub001/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleCreateRow inserts a new row from a JSON field map.
func (s *Server) handleCreateRow(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	row, err := s.backend.Create(r.Context(), collection, fields)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{"key": core.RowKey(row), "row": row})
}

// handleUpdateRow applies a partial field map directly, bypassing the edit
// session. Used for single-cell saves outside edit mode.
func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	key := chi.URLParam(r, "key")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := s.backend.Update(r.Context(), collection, key, fields); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{"status": "updated"})
}

// handleDeleteRow removes a row by primary key.
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	key := chi.URLParam(r, "key")

	if err := s.backend.Delete(r.Context(), collection, key); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{"status": "deleted"})
}

// beginEditRequest is the body of a begin-edit call. Input is the raw text
// the user typed; conversion to the typed pending value happens here.
type beginEditRequest struct {
	RowKey string `json:"rowKey"`
	Column string `json:"column"`
	Input  string `json:"input"`
	Locale string `json:"locale,omitempty"`
}

// handleBeginEdit stages one cell edit in the collection's session without
// touching server data.
func (s *Server) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var req beginEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RowKey == "" || req.Column == "" {
		writeError(w, http.StatusBadRequest, "rowKey and column are required")
		return
	}
	if req.Locale == "" {
		req.Locale = s.cfg.Grid.DefaultLocale
	}

	schema, err := s.backend.Schema(r.Context(), collection)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	// Extension edits rebuild the whole blob, so the current row is needed.
	row, err := s.fetchRow(r, collection, schema, req.RowKey)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	session := s.session(collection)
	columns := core.GenerateColumns(schema, []core.RowRecord{row}, core.GenerateOptions{
		Locale:   req.Locale,
		EditMode: true,
		Session:  session,
	})

	var target *core.ColumnDef
	for i := range columns {
		if columns[i].ID == req.Column {
			target = &columns[i]
			break
		}
	}
	if target == nil || target.Edit == nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("column %q is not editable", req.Column))
		return
	}

	value, err := target.Edit(row, req.Input)
	if err != nil {
		s.respondError(w, r, core.NewGridError(core.KindValidation, collection, err), http.StatusBadRequest)
		return
	}

	field := target.ID
	if target.Extension {
		field = core.ExtensionBlobField
	}
	if err := session.Begin(req.RowKey, field, value); err != nil {
		s.respondError(w, r, err, statusForKind(err))
		return
	}

	writeJSON(w, map[string]any{"status": "pending", "rowKey": req.RowKey, "column": req.Column})
}

// handlePendingEdits lists rows with uncommitted edits.
func (s *Server) handlePendingEdits(w http.ResponseWriter, r *http.Request) {
	session := s.session(chi.URLParam(r, "collection"))
	writeJSON(w, map[string]any{
		"hasPending": session.HasPending(),
		"rows":       session.PendingRows(),
	})
}

// commitResponse reports the outcome of a commit pass.
type commitResponse struct {
	Committed int         `json:"committed"`
	Failed    []failedRow `json:"failed,omitempty"`
	Success   bool        `json:"success"`
}

type failedRow struct {
	RowKey  string `json:"rowKey"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// handleCommitEdits commits every pending row independently. Failed rows keep
// their pending edits; the response lists them per row.
func (s *Server) handleCommitEdits(w http.ResponseWriter, r *http.Request) {
	session := s.session(chi.URLParam(r, "collection"))

	result := session.CommitAll(r.Context())

	resp := commitResponse{Committed: result.Committed, Success: result.Success()}
	for _, f := range result.Failed {
		msg := core.MapError(f.Err)
		resp.Failed = append(resp.Failed, failedRow{
			RowKey:  f.RowKey,
			Message: msg.Message,
			Code:    msg.Code,
		})
	}
	writeJSON(w, resp)
}

// handleDiscardEdits drops pending edits for one row, or all of them when no
// row key is given.
func (s *Server) handleDiscardEdits(w http.ResponseWriter, r *http.Request) {
	session := s.session(chi.URLParam(r, "collection"))

	var req struct {
		RowKey string `json:"rowKey"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if req.RowKey == "" {
		session.DiscardAll()
	} else {
		session.DiscardRow(req.RowKey)
	}
	writeJSON(w, map[string]string{"status": "discarded"})
}

// fetchRow loads a single row by primary key.
func (s *Server) fetchRow(r *http.Request, collection string, schema []core.ColumnSchema, key string) (core.RowRecord, error) {
	pk := core.PrimaryKeyField
	for _, col := range schema {
		if col.PrimaryKey {
			pk = col.Name
			break
		}
	}

	result, err := s.backend.Query(r.Context(), core.QueryParams{
		Collection: collection,
		Page:       1,
		PageSize:   1,
		Filters:    []core.ColumnFilter{{Field: pk, Op: core.OpEquals, Value: key}},
	})
	if err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("row not found: %s", key)
	}
	return result.Data[0], nil
}
