package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rmax-ai/readgraph/pkg/graph"
	"go.uber.org/zap"
)

func (s *Server) documentResponse(r *http.Request) (DocumentResponse, bool) {
	owner, doc, ok := s.ws.Document()
	if !ok {
		return DocumentResponse{}, false
	}
	resp := DocumentResponse{
		OwnerID:        owner,
		DocumentID:     doc,
		CurrentPurpose: s.ws.CurrentPurpose(),
		SessionState:   s.ws.SessionState().String(),
	}
	if cur, ok := s.ws.CurrentSession(); ok {
		resp.Session = &cur
	}
	if u, err := s.ws.Documents().FetchDocumentBlob(r.Context(), doc); err == nil {
		resp.DocumentURL = u
	}
	return resp, true
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.documentResponse(r)
	if !ok {
		s.writeJSON(w, r, http.StatusNotFound, ErrorResponse{Error: "no_document_open"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	var req OpenDocumentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ws.OpenDocument(r.Context(), req.OwnerID, req.DocumentID, req.Layout); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, _ := s.documentResponse(r)
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleCloseDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.CloseDocument(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req ViewportRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ws.ReportViewport(req.Layout, req.ScrollTop); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ws.Visibility(req.Visible); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadDocument stores the raw request body as the open document's blob.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := s.ws.Document()
	if !ok {
		s.writeJSON(w, r, http.StatusConflict, ErrorResponse{Error: "no_document_open"})
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_body", Reason: err.Error()})
		return
	}
	if err := s.ws.Documents().StoreDocumentBlob(r.Context(), doc, data); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPurposes(w http.ResponseWriter, r *http.Request) {
	ps, err := s.ws.Purposes()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, ps)
}

func (s *Server) handleCreatePurpose(w http.ResponseWriter, r *http.Request) {
	var req PurposeRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.ws.CreatePurpose(r.Context(), req.Title, req.Color, req.Description)
	if err != nil && !s.persistWarning(w, r, err) {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, p)
}

func (s *Server) handleUpdatePurpose(w http.ResponseWriter, r *http.Request) {
	var req PurposeRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.ws.UpdatePurpose(r.Context(), chi.URLParam(r, "purposeID"), req.Title, req.Color, req.Description)
	if err != nil && !s.persistWarning(w, r, err) {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleDeletePurpose(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DeletePurpose(r.Context(), chi.URLParam(r, "purposeID")); err != nil && !s.persistWarning(w, r, err) {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetCurrentPurpose(w http.ResponseWriter, r *http.Request) {
	var req CurrentPurposeRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.ws.SetCurrentPurpose(r.Context(), req.PurposeID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.documentResponse(r)
	if !ok {
		s.writeJSON(w, r, http.StatusConflict, ErrorResponse{Error: "no_document_open"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	frozen, ok, err := s.ws.StopSession()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, r, http.StatusOK, frozen)
}

func (s *Server) handleAddHighlight(w http.ResponseWriter, r *http.Request) {
	var raw graph.RawHighlight
	if !s.decode(w, r, &raw) {
		return
	}
	h, n, err := s.ws.AddHighlight(r.Context(), raw)
	resp := HighlightResponse{Highlight: h, Node: n}
	if err != nil {
		if !s.persistWarning(w, r, err) {
			s.writeError(w, r, err)
			return
		}
		resp.Warning = err.Error()
	}
	s.writeJSON(w, r, http.StatusCreated, resp)
}

// handleRemoveHighlight deletes a highlight; ?force=true skips relinking the chain.
func (s *Server) handleRemoveHighlight(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := s.ws.RemoveHighlight(r.Context(), chi.URLParam(r, "highlightID"), force); err != nil && !s.persistWarning(w, r, err) {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.ws.Graph()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ps, _ := s.ws.Purposes()
	s.writeJSON(w, r, http.StatusOK, GraphResponse{
		Graph:        g.Snapshot(),
		Highlights:   g.Highlights(),
		Purposes:     ps,
		VisibleKinds: g.VisibleEdgeKinds(),
		Selection:    g.Selection(),
	})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, ok, err := s.ws.CreateGroup(req.ChildIDs, req.Label)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Reason: "a group needs at least two existing nodes"})
		return
	}
	s.writeJSON(w, r, http.StatusCreated, n)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req UpdateGroupRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.ws.Graph()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := g.UpdateGroup(chi.URLParam(r, "nodeID"), req.Label, req.Notes); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	var pos graph.Position
	if !s.decode(w, r, &pos) {
		return
	}
	g, err := s.ws.Graph()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := g.MoveNode(chi.URLParam(r, "nodeID"), pos); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DeleteNode(r.Context(), chi.URLParam(r, "nodeID")); err != nil && !s.persistWarning(w, r, err) {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.ws.Graph()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	switch req.Action {
	case "select":
		if !g.Select(req.NodeID) {
			s.writeError(w, r, graph.ErrNotFound)
			return
		}
	case "deselect":
		g.Deselect(req.NodeID)
	case "toggle":
		g.ToggleSelect(req.NodeID)
	case "clear":
		g.ClearSelection()
	}
	s.writeJSON(w, r, http.StatusOK, SelectionResponse{Selected: g.Selection()})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.ws.Graph()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, ok := g.Node(req.TargetID); !ok {
		s.writeError(w, r, graph.ErrNotFound)
		return
	}
	var created int
	if len(req.SourceIDs) > 0 {
		created = g.Connect(req.SourceIDs, req.TargetID)
	} else {
		created = g.ConnectSelected(req.TargetID)
	}
	s.logger.Debug("nodes_connected", zap.String("target_id", req.TargetID), zap.Int("created", created))
	s.writeJSON(w, r, http.StatusOK, ConnectResponse{Created: created})
}

func (s *Server) handleEdgeKinds(w http.ResponseWriter, r *http.Request) {
	var req EdgeKindsRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.ws.Graph()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g.SetVisibleEdgeKinds(req.Kinds...)
	s.writeJSON(w, r, http.StatusOK, g.VisibleEdgeKinds())
}
