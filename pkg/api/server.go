package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/engine"
	"github.com/rmax-ai/readgraph/pkg/store"
	"go.uber.org/zap"
)

const (
	// DatasetTTL bounds how long an analytics dataset is reused between reads.
	DatasetTTL = 30 * time.Second
	// SuggestionTTL bounds how long generated suggestions are reused per document.
	SuggestionTTL = time.Hour
	// MaxUploadBytes caps archive and document uploads.
	MaxUploadBytes = 64 << 20
)

// Server encapsulates the HTTP API server
type Server struct {
	ws       *engine.Workspace
	loader   store.RecordLoader
	logger   *zap.Logger
	validate *validator.Validate

	datasets    *gocache.Cache
	suggestions *gocache.Cache

	server *http.Server
}

// NewServer creates a new API server instance. loader backs the analytics
// endpoints and is usually the same store the workspace writes to.
func NewServer(ws *engine.Workspace, loader store.RecordLoader, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ws:          ws,
		loader:      loader,
		logger:      logger,
		validate:    validator.New(),
		datasets:    gocache.New(DatasetTTL, 2*DatasetTTL),
		suggestions: gocache.New(SuggestionTTL, 10*time.Minute),
	}

	// Use default port if addr is empty
	if addr == "" {
		addr = "127.0.0.1:8091"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.withRecovery)
	r.Use(s.withLogging)
	r.Use(withSecureHeaders)
	r.Use(s.invalidateOnWrite)

	r.Get("/v1/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/document", func(r chi.Router) {
		r.Get("/", s.handleDocument)
		r.Post("/", s.handleOpenDocument)
		r.Delete("/", s.handleCloseDocument)
		r.Put("/viewport", s.handleViewport)
		r.Put("/visibility", s.handleVisibility)
		r.Put("/blob", s.handleUploadDocument)
	})

	r.Route("/v1/purposes", func(r chi.Router) {
		r.Get("/", s.handleListPurposes)
		r.Post("/", s.handleCreatePurpose)
		r.Put("/{purposeID}", s.handleUpdatePurpose)
		r.Delete("/{purposeID}", s.handleDeletePurpose)
	})
	r.Put("/v1/current-purpose", s.handleSetCurrentPurpose)

	r.Get("/v1/session", s.handleSession)
	r.Delete("/v1/session", s.handleStopSession)

	r.Post("/v1/highlights", s.handleAddHighlight)
	r.Delete("/v1/highlights/{highlightID}", s.handleRemoveHighlight)

	r.Route("/v1/graph", func(r chi.Router) {
		r.Get("/", s.handleGraph)
		r.Post("/groups", s.handleCreateGroup)
		r.Put("/groups/{nodeID}", s.handleUpdateGroup)
		r.Put("/nodes/{nodeID}/position", s.handleMoveNode)
		r.Delete("/nodes/{nodeID}", s.handleDeleteNode)
		r.Post("/selection", s.handleSelection)
		r.Post("/connect", s.handleConnect)
		r.Put("/edge-kinds", s.handleEdgeKinds)
	})

	r.Route("/v1/analytics", func(r chi.Router) {
		r.Get("/documents", s.handleAnalyticsDocuments)
		r.Get("/users", s.handleAnalyticsUsers)
		r.Get("/purposes", s.handleAnalyticsPurposes)
		r.Get("/timeline", s.handleTimeline)
	})
	r.Get("/v1/reports", s.handleReports)

	r.Route("/v1/archive", func(r chi.Router) {
		r.Get("/", s.handleDownloadArchive)
		r.Post("/export", s.handleExportArchive)
		r.Post("/import", s.handleImportArchives)
	})

	r.Get("/v1/suggestions", s.handleGetSuggestion)
	r.Post("/v1/suggestions", s.handleSuggest)

	return r
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	s.logger.Info("server_starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// decode reads and validates a JSON body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_json_body", Reason: err.Error()})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Reason: err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed_to_encode_response",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request_failed",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	s.writeJSON(w, r, status, ErrorResponse{Error: code, Reason: err.Error()})
}

// WarningHeader flags a write that succeeded in memory but was not stored.
const WarningHeader = "X-Readgraph-Warning"

// persistWarning reports whether err only says the change was not stored.
// The request then succeeds with WarningHeader set.
func (s *Server) persistWarning(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, engine.ErrNotPersisted) {
		return false
	}
	s.logger.Warn("change_not_persisted",
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	w.Header().Set(WarningHeader, "not_persisted")
	return true
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrNoDocumentOpen):
		return http.StatusConflict, "no_document_open"
	case isNoPurpose(err):
		return http.StatusConflict, "no_active_purpose"
	case isNoViewer(err):
		return http.StatusConflict, "no_viewer"
	case isNotFound(err):
		return http.StatusNotFound, "not_found"
	case isInvalid(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, engine.ErrNoSuggester):
		return http.StatusServiceUnavailable, "suggestions_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

// invalidateOnWrite drops cached analytics after any mutating request.
func (s *Server) invalidateOnWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.datasets.Flush()
		}
	})
}

// dataset loads the selected records, reusing a cached copy when fresh.
func (s *Server) dataset(ctx context.Context, sel analytics.Selection) (*analytics.Dataset, error) {
	key := "dataset:" + strings.Join(sel.DocumentIDs, ",") + "|" + strings.Join(sel.UserIDs, ",")
	if v, ok := s.datasets.Get(key); ok {
		return v.(*analytics.Dataset), nil
	}
	// Pending background writes must land before reading.
	if err := s.ws.Flush(ctx); err != nil {
		s.logger.Warn("flush_before_analytics_failed", zap.Error(err))
	}
	ds, err := analytics.Load(ctx, s.loader, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics dataset: %w", err)
	}
	s.datasets.Set(key, ds, gocache.DefaultExpiration)
	return ds, nil
}

// selection reads ?documents=a,b&users=c from the query.
func selection(r *http.Request) analytics.Selection {
	return analytics.Selection{
		DocumentIDs: splitList(r.URL.Query().Get("documents")),
		UserIDs:     splitList(r.URL.Query().Get("users")),
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic_recovered", zap.Any("error", err), zap.String("path", r.URL.Path))
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("http_request",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
