package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/GTFB/forlifely-sub001/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleImport starts an asynchronous import of an uploaded file (or pasted
// text) into a collection and returns the job id immediately.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if collection == "" {
		writeError(w, http.StatusBadRequest, "missing collection")
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	content, formatHint, err := readImportPayload(r, maxSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(content) == 0 {
		writeError(w, http.StatusBadRequest, "empty import payload")
		return
	}

	format, err := core.ParseExportFormat(formatHint)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	schema, err := s.backend.Schema(r.Context(), collection)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	jobID := s.jobs.Start(format, collection, schema, content)
	writeJSON(w, map[string]string{"jobId": jobID})
}

// readImportPayload extracts the import content from a multipart upload or a
// raw request body. The format comes from the "format" form/query value, or
// the uploaded file's extension as a fallback.
func readImportPayload(r *http.Request, maxSize int64) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, "", fmt.Errorf("file too large or invalid form")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("no file provided")
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read file")
		}

		format := r.FormValue("format")
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
		}
		return content, format, nil
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body")
	}
	return content, r.URL.Query().Get("format"), nil
}

// handleImportProgress streams import progress via Server-Sent Events.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	progressCh, err := s.jobs.Subscribe(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed - job finished
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult blocks until the job finishes and returns its outcome.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	result, err := s.jobs.Result(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, result)
}

// handleCancelImport aborts a running import job.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	if err := s.jobs.Cancel(jobID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, map[string]string{"status": "cancelled"})
}
