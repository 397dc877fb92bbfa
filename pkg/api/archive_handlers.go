package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rmax-ai/readgraph/pkg/archive"
	"go.uber.org/zap"
)

// handleDownloadArchive streams the open document's archive.
// ?document=false leaves the document binary out.
func (s *Server) handleDownloadArchive(w http.ResponseWriter, r *http.Request) {
	owner, doc, ok := s.ws.Document()
	if !ok {
		s.writeJSON(w, r, http.StatusConflict, ErrorResponse{Error: "no_document_open"})
		return
	}
	include := includeDocument(r)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+owner+"-"+doc+".zip\"")
	if err := s.ws.WriteArchive(r.Context(), w, include); err != nil {
		// Headers are gone by now; all that is left is to log.
		s.logger.Error("archive_stream_failed", zap.String("document_id", doc), zap.Error(err))
	}
}

// handleExportArchive stores the archive in the blob store.
func (s *Server) handleExportArchive(w http.ResponseWriter, r *http.Request) {
	key, err := s.ws.ExportArchive(r.Context(), includeDocument(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, ExportResponse{Key: key})
}

// handleImportArchives merges every file of a multipart upload (field "archives").
func (s *Server) handleImportArchives(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_multipart_body", Reason: err.Error()})
		return
	}

	var sources []archive.Source
	for _, fh := range r.MultipartForm.File["archives"] {
		f, err := fh.Open()
		if err != nil {
			s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_upload", Reason: err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_upload", Reason: err.Error()})
			return
		}
		sources = append(sources, archive.Source{Name: fh.Filename, Data: data})
	}
	if len(sources) == 0 {
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "no_archives"})
		return
	}

	report, err := s.ws.ImportArchives(r.Context(), sources...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(report.Warnings) > 0 {
		w.Header().Set(WarningHeader, "not_persisted")
	}
	s.writeJSON(w, r, http.StatusOK, ImportResponse{
		Merged:         report.Merged,
		Stats:          report.Stats,
		Failed:         report.Failed,
		DocumentStored: report.DocumentStored,
		DocumentSource: report.DocumentSource,
		Warnings:       report.Warnings,
	})
}

func includeDocument(r *http.Request) bool {
	v := r.URL.Query().Get("document")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

func (s *Server) suggestionKey() (string, bool) {
	owner, doc, ok := s.ws.Document()
	if !ok {
		return "", false
	}
	return "suggest:" + owner + "/" + doc, true
}

// handleGetSuggestion returns the cached suggestion for the open document.
func (s *Server) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	key, ok := s.suggestionKey()
	if !ok {
		s.writeJSON(w, r, http.StatusConflict, ErrorResponse{Error: "no_document_open"})
		return
	}
	if v, found := s.suggestions.Get(key); found {
		s.writeJSON(w, r, http.StatusOK, v)
		return
	}
	if cur := s.ws.Suggestion(); cur != nil {
		s.writeJSON(w, r, http.StatusOK, cur)
		return
	}
	s.writeJSON(w, r, http.StatusNotFound, ErrorResponse{Error: "no_suggestion"})
}

// handleSuggest generates reading goals. Cached results are reused unless ?refresh=true.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := s.suggestionKey()
	if !ok {
		s.writeJSON(w, r, http.StatusConflict, ErrorResponse{Error: "no_document_open"})
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if v, found := s.suggestions.Get(key); found && !refresh {
		s.writeJSON(w, r, http.StatusOK, v)
		return
	}

	out, err := s.ws.SuggestGoals(r.Context(), req.Prompt, req.Text)
	if err != nil {
		s.suggestions.Delete(key)
		s.writeError(w, r, err)
		return
	}
	s.suggestions.SetDefault(key, out)
	s.writeJSON(w, r, http.StatusOK, out)
}
