package api

import (
	"io"
	"net/http"

	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/reports"
	"go.uber.org/zap"
)

// handleAnalyticsDocuments handles GET /v1/analytics/documents?documents=&users=
func (s *Server) handleAnalyticsDocuments(w http.ResponseWriter, r *http.Request) {
	sel := selection(r)
	ds, err := s.dataset(r.Context(), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, DocumentsResponse{
		Documents: analytics.NewAggregator(ds, sel).Documents(),
	})
}

// handleAnalyticsUsers handles GET /v1/analytics/users?document=
func (s *Server) handleAnalyticsUsers(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("document")
	if doc == "" {
		s.writeError(w, r, reports.ErrDocumentRequired)
		return
	}
	sel := selection(r)
	ds, err := s.dataset(r.Context(), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, UsersResponse{
		DocumentID: doc,
		Users:      analytics.NewAggregator(ds, sel).Users(doc),
	})
}

// handleAnalyticsPurposes handles GET /v1/analytics/purposes?document=&owner=
func (s *Server) handleAnalyticsPurposes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doc, owner := q.Get("document"), q.Get("owner")
	if doc == "" {
		s.writeError(w, r, reports.ErrDocumentRequired)
		return
	}
	if owner == "" {
		s.writeError(w, r, reports.ErrOwnerRequired)
		return
	}
	sel := selection(r)
	ds, err := s.dataset(r.Context(), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, PurposesResponse{
		DocumentID: doc,
		OwnerID:    owner,
		Purposes:   analytics.NewAggregator(ds, sel).Purposes(doc, owner),
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	sel := selection(r)
	ds, err := s.dataset(r.Context(), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, TimelineResponse{Timelines: analytics.Timeline(ds, sel)})
}

// handleReports handles GET /v1/reports?type=&format=&document=&owner=
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		reportType = reports.ReportTypeDocuments
	}
	format := reports.ReportFormat(q.Get("format"))
	if format == "" {
		format = reports.ReportFormatCSV
	}

	gen, err := reports.NewReportGenerator(reportType, s.loader)
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_report_type", Reason: err.Error()})
		return
	}

	sel := selection(r)
	ds, err := s.dataset(r.Context(), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := gen.Generate(r.Context(), reports.ReportParams{
		Selection:  sel,
		DocumentID: q.Get("document"),
		OwnerID:    q.Get("owner"),
		Format:     format,
		Dataset:    ds,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if format == reports.ReportFormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+string(reportType)+".csv\"")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, out); err != nil {
		s.logger.Error("failed_to_write_report", zap.String("type", string(reportType)), zap.Error(err))
	}
}
