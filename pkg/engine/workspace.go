package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmax-ai/readgraph/pkg/blob"
	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/session"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/suggest"
	"github.com/rmax-ai/readgraph/pkg/viewer"
	"go.uber.org/zap"
)

var (
	ErrNoDocumentOpen  = errors.New("no document open")
	ErrNotFound        = errors.New("not found")
	ErrInvalidPurpose  = errors.New("purpose title is required")
	ErrInvalidDocument = errors.New("owner and document ids are required")
	ErrNoSuggester     = errors.New("suggestions are not configured")
)

// ErrNotPersisted reports a change that was applied in memory but could not
// be queued for storage. The values returned alongside it are still valid.
var ErrNotPersisted = errors.New("change not persisted")

// docContext is the live state of the open (owner, document) pair.
type docContext struct {
	ownerID    string
	documentID string

	viewer  *viewer.Remote
	tracker *session.Tracker
	graph   *graph.AnnotationGraph

	purposes       map[string]store.Purpose
	purposeOrder   []string
	currentPurpose string
}

// Workspace is the service object behind the rendering surface: it owns the
// session tracker and annotation graph of the open document and hands every
// change to the persister.
type Workspace struct {
	repo      store.Repository
	canvases  store.CanvasStore
	blobs     blob.BlobStore
	docs      *blob.Documents
	persister *Persister
	logger    *zap.Logger

	suggester      suggest.Suggester
	sampleInterval time.Duration
	layout         graph.Layout

	mu         sync.Mutex
	doc        *docContext
	suggestion *suggest.Suggestion
}

// NewWorkspace creates a workspace with no document open.
func NewWorkspace(repo store.Repository, blobs blob.BlobStore, persister *Persister, logger *zap.Logger) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workspace{
		repo:           repo,
		canvases:       repo,
		blobs:          blobs,
		docs:           blob.NewDocuments(blobs),
		persister:      persister,
		logger:         logger,
		sampleInterval: session.DefaultInterval,
		layout:         graph.DefaultLayout,
	}
}

// SetCanvasStore overrides where canvases are loaded from, e.g. Redis.
func (w *Workspace) SetCanvasStore(cs store.CanvasStore) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.canvases = cs
}

func (w *Workspace) SetSuggester(s suggest.Suggester) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suggester = s
}

// SetSampleInterval applies to documents opened afterwards.
func (w *Workspace) SetSampleInterval(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d > 0 {
		w.sampleInterval = d
	}
}

func (w *Workspace) SetLayout(l graph.Layout) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.layout = l
}

// Documents exposes the document blob facade.
func (w *Workspace) Documents() *blob.Documents {
	return w.docs
}

// OpenDocument closes any open document, then loads highlights, purposes and
// the canvas for the pair and attaches a viewer with the given layout.
func (w *Workspace) OpenDocument(ctx context.Context, ownerID, documentID string, layout viewer.Metrics) error {
	if ownerID == "" || documentID == "" {
		return ErrInvalidDocument
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeLocked(ctx)

	canvas, err := w.canvases.LoadCanvas(ctx, ownerID, documentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			// The graph is rebuilt from the highlights instead.
			w.logger.Warn("canvas_load_failed", zap.String("document_id", documentID), zap.Error(err))
		}
		canvas = nil
	}

	highlights, purposes, err := w.loadAnnotations(ctx, ownerID, documentID, canvas)
	if err != nil {
		return err
	}

	v := viewer.NewRemote(layout)
	g := graph.NewAnnotationGraph(ownerID, documentID, v, w.logger)
	g.SetLayout(w.layout)
	if err := g.LoadCanvas(canvas, highlights, purposes); err != nil {
		w.logger.Warn("canvas_decode_failed", zap.String("document_id", documentID), zap.Error(err))
		if err := g.LoadCanvas(nil, highlights, purposes); err != nil {
			return err
		}
	}

	var sink session.Sink
	if w.persister != nil {
		sink = w.persister
	}
	tr := session.NewTracker(ownerID, documentID, sink, w.logger)
	tr.SetInterval(w.sampleInterval)
	tr.AttachViewer(v)

	dc := &docContext{
		ownerID:    ownerID,
		documentID: documentID,
		viewer:     v,
		tracker:    tr,
		graph:      g,
		purposes:   make(map[string]store.Purpose),
	}
	for _, p := range purposes {
		dc.purposes[p.ID] = p
		dc.purposeOrder = append(dc.purposeOrder, p.ID)
	}
	w.doc = dc
	w.suggestion = nil
	w.observeGraphLocked()

	w.logger.Info("document_opened",
		zap.String("owner_id", ownerID),
		zap.String("document_id", documentID),
		zap.Int("highlights", len(highlights)),
		zap.Int("purposes", len(purposes)),
	)
	return nil
}

// loadAnnotations returns the owner's highlights and purposes for the
// document, plus those of other readers that the canvas references (imports).
func (w *Workspace) loadAnnotations(ctx context.Context, ownerID, documentID string, canvas *store.Canvas) ([]store.Highlight, []store.Purpose, error) {
	docs := []string{documentID}

	hs, err := w.repo.LoadHighlights(ctx, nil, docs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load highlights: %w", err)
	}
	ps, err := w.repo.LoadPurposes(ctx, nil, docs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load purposes: %w", err)
	}

	referenced := make(map[string]struct{})
	if canvas != nil {
		var snap graph.Graph
		if err := json.Unmarshal(canvas.SerializedGraph, &snap); err == nil {
			for _, n := range snap.Nodes {
				referenced[n.ID] = struct{}{}
				if n.PurposeID != "" {
					referenced[n.PurposeID] = struct{}{}
				}
			}
		}
	}
	keep := func(owner, id string) bool {
		if owner == ownerID {
			return true
		}
		_, ok := referenced[id]
		return ok
	}

	own := store.PairKey(ownerID, documentID)
	highlights := append([]store.Highlight(nil), hs[own]...)
	purposes := append([]store.Purpose(nil), ps[own]...)
	for _, key := range foreignKeys(hs, own) {
		for _, h := range hs[key] {
			if keep(h.OwnerID, h.ID) {
				highlights = append(highlights, h)
			}
		}
	}
	for _, key := range foreignKeys(ps, own) {
		for _, p := range ps[key] {
			if keep(p.OwnerID, p.ID) {
				purposes = append(purposes, p)
			}
		}
	}
	return highlights, purposes, nil
}

// CloseDocument stops the live session, saves the canvas and flushes pending writes.
func (w *Workspace) CloseDocument(ctx context.Context) error {
	w.mu.Lock()
	if w.doc == nil {
		w.mu.Unlock()
		return ErrNoDocumentOpen
	}
	w.closeLocked(ctx)
	w.mu.Unlock()

	if w.persister != nil {
		return w.persister.Flush(ctx)
	}
	return nil
}

func (w *Workspace) closeLocked(ctx context.Context) {
	dc := w.doc
	if dc == nil {
		return
	}
	// The tick is disarmed before any state goes away.
	w.stopSessionLocked()
	dc.tracker.DetachViewer()

	if c, err := dc.graph.Canvas(); err == nil {
		if err := w.canvases.SaveCanvas(ctx, c); err != nil {
			w.logger.Error("canvas_save_failed", zap.String("document_id", dc.documentID), zap.Error(err))
		}
	}
	w.doc = nil
	w.logger.Info("document_closed", zap.String("document_id", dc.documentID))
}

func (w *Workspace) open() (*docContext, error) {
	if w.doc == nil {
		return nil, ErrNoDocumentOpen
	}
	return w.doc, nil
}

// Document returns the open pair.
func (w *Workspace) Document() (ownerID, documentID string, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return "", "", false
	}
	return w.doc.ownerID, w.doc.documentID, true
}

// Graph returns the open document's graph for read and selection operations.
func (w *Workspace) Graph() (*graph.AnnotationGraph, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return nil, err
	}
	return dc.graph, nil
}

// ReportViewport records the viewer layout and scroll offset.
func (w *Workspace) ReportViewport(layout viewer.Metrics, scrollTop float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return err
	}
	dc.viewer.Report(layout, scrollTop)
	return nil
}

// Visibility forwards host visibility changes to the tracker.
func (w *Workspace) Visibility(visible bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return err
	}
	if visible {
		dc.tracker.Resume()
	} else {
		dc.tracker.Suspend()
	}
	return nil
}

// Purposes returns the open document's purposes in creation order.
func (w *Workspace) Purposes() ([]store.Purpose, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return nil, err
	}
	out := make([]store.Purpose, 0, len(dc.purposeOrder))
	for _, id := range dc.purposeOrder {
		out = append(out, dc.purposes[id])
	}
	return out, nil
}

// CreatePurpose adds a purpose to the open document.
func (w *Workspace) CreatePurpose(ctx context.Context, title, color, description string) (store.Purpose, error) {
	if strings.TrimSpace(title) == "" {
		return store.Purpose{}, ErrInvalidPurpose
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return store.Purpose{}, err
	}

	p := store.Purpose{
		ID:          uuid.New().String(),
		DocumentID:  dc.documentID,
		OwnerID:     dc.ownerID,
		Title:       title,
		Color:       color,
		Description: description,
	}
	dc.purposes[p.ID] = p
	dc.purposeOrder = append(dc.purposeOrder, p.ID)
	dc.graph.UpsertPurpose(p)
	err = w.persistPurposes(p)
	w.observeGraphLocked()
	return p, err
}

// UpdatePurpose changes title, color and description. Ids and ownership are fixed.
func (w *Workspace) UpdatePurpose(ctx context.Context, id, title, color, description string) (store.Purpose, error) {
	if strings.TrimSpace(title) == "" {
		return store.Purpose{}, ErrInvalidPurpose
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return store.Purpose{}, err
	}
	p, ok := dc.purposes[id]
	if !ok {
		return store.Purpose{}, fmt.Errorf("purpose %s: %w", id, ErrNotFound)
	}
	p.Title, p.Color, p.Description = title, color, description
	dc.purposes[id] = p
	dc.graph.UpsertPurpose(p)
	return p, w.persistPurposes(p)
}

// DeletePurpose removes the purpose only. Its highlights and sessions stay and
// show up as unassigned in analytics. Deleting the current purpose stops its session.
func (w *Workspace) DeletePurpose(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return err
	}
	if _, ok := dc.purposes[id]; !ok {
		return fmt.Errorf("purpose %s: %w", id, ErrNotFound)
	}
	if dc.currentPurpose == id {
		w.stopSessionLocked()
		dc.currentPurpose = ""
	}
	delete(dc.purposes, id)
	dc.purposeOrder = without(dc.purposeOrder, id)
	dc.graph.RemovePurpose(id)
	if w.persister != nil {
		err = notPersisted(w.persister.DeletePurpose(id))
	}
	w.observeGraphLocked()
	return err
}

// SetCurrentPurpose makes the purpose current and starts a session under it,
// stopping any live session first.
func (w *Workspace) SetCurrentPurpose(ctx context.Context, id string) (store.Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return store.Session{}, err
	}
	if id == "" {
		return store.Session{}, session.ErrNoActivePurpose
	}
	if _, ok := dc.purposes[id]; !ok {
		return store.Session{}, fmt.Errorf("purpose %s: %w", id, ErrNotFound)
	}

	_, hadLive := dc.tracker.Current()
	s, err := dc.tracker.StartSession(ctx, id)
	if err != nil {
		return store.Session{}, err
	}
	if hadLive {
		if prev, ok := dc.tracker.LastSession(); ok {
			SessionDuration.Observe(float64(prev.DurationMs) / 1000)
		}
	}
	dc.currentPurpose = id
	SessionsStarted.Inc()
	return s, nil
}

// CurrentPurpose returns the current purpose id, or "".
func (w *Workspace) CurrentPurpose() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return ""
	}
	return w.doc.currentPurpose
}

// CurrentSession returns the live session of the open document.
func (w *Workspace) CurrentSession() (store.Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return store.Session{}, false
	}
	return w.doc.tracker.Current()
}

// SessionState returns the tracker state of the open document.
func (w *Workspace) SessionState() session.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return session.Idle
	}
	return w.doc.tracker.State()
}

// StopSession freezes the live session. The current purpose is kept.
func (w *Workspace) StopSession() (store.Session, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.open(); err != nil {
		return store.Session{}, false, err
	}
	s, ok := w.stopSessionLocked()
	return s, ok, nil
}

func (w *Workspace) stopSessionLocked() (store.Session, bool) {
	s, ok := w.doc.tracker.StopSession()
	if ok {
		SessionDuration.Observe(float64(s.DurationMs) / 1000)
	}
	return s, ok
}

// AddHighlight records a highlight under the current purpose and live session.
func (w *Workspace) AddHighlight(ctx context.Context, raw graph.RawHighlight) (*store.Highlight, *graph.Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return nil, nil, err
	}

	h, n, err := dc.graph.AddHighlight(raw, dc.currentPurpose, dc.tracker.SessionID())
	if err != nil {
		return nil, nil, err
	}
	HighlightsTotal.WithLabelValues(string(h.Type)).Inc()
	var perr error
	if w.persister != nil {
		perr = notPersisted(w.persister.SaveHighlights(*h))
	}
	w.observeGraphLocked()
	return h, n, perr
}

// RemoveHighlight deletes a highlight. With force the chronological chain is
// not relinked around it.
func (w *Workspace) RemoveHighlight(ctx context.Context, id string, force bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return err
	}
	if force {
		err = dc.graph.DeleteHighlight(id)
	} else {
		err = dc.graph.RemoveHighlight(id)
	}
	if err != nil {
		return err
	}
	if w.persister != nil {
		err = notPersisted(w.persister.DeleteHighlights(id))
	}
	w.observeGraphLocked()
	return err
}

// DeleteNode force-deletes any node; highlight nodes take their highlight with them.
func (w *Workspace) DeleteNode(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return err
	}
	n, ok := dc.graph.Node(id)
	if !ok {
		return graph.ErrNotFound
	}
	if err := dc.graph.DeleteNode(id); err != nil {
		return err
	}
	if n.Kind == graph.KindHighlight && w.persister != nil {
		err = notPersisted(w.persister.DeleteHighlights(id))
	}
	w.observeGraphLocked()
	return err
}

// CreateGroup groups two or more nodes under a label.
func (w *Workspace) CreateGroup(childIDs []string, label string) (*graph.Node, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return nil, false, err
	}
	n, ok := dc.graph.CreateGroupNode(childIDs, label)
	if ok {
		w.observeGraphLocked()
	}
	return n, ok, nil
}

// Canvas serialises the open graph.
func (w *Workspace) Canvas() (*store.Canvas, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dc, err := w.open()
	if err != nil {
		return nil, err
	}
	return dc.graph.Canvas()
}

// SuggestGoals asks the suggester for reading goals. On failure the previous
// suggestion is dropped and the error returned.
func (w *Workspace) SuggestGoals(ctx context.Context, prompt, documentText string) (*suggest.Suggestion, error) {
	w.mu.Lock()
	s := w.suggester
	w.mu.Unlock()
	if s == nil {
		return nil, ErrNoSuggester
	}

	out, err := s.Suggest(ctx, prompt, documentText)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.suggestion = nil
		w.logger.Warn("suggestion_failed", zap.Error(err))
		return nil, err
	}
	w.suggestion = out
	return out, nil
}

// Suggestion returns the last successful suggestion for the open document.
func (w *Workspace) Suggestion() *suggest.Suggestion {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suggestion
}

// Flush waits until pending background writes are applied.
func (w *Workspace) Flush(ctx context.Context) error {
	if w.persister == nil {
		return nil
	}
	return w.persister.Flush(ctx)
}

// Close closes any open document.
func (w *Workspace) Close(ctx context.Context) error {
	err := w.CloseDocument(ctx)
	if errors.Is(err, ErrNoDocumentOpen) {
		return nil
	}
	return err
}

func (w *Workspace) persistPurposes(ps ...store.Purpose) error {
	if w.persister == nil || len(ps) == 0 {
		return nil
	}
	return notPersisted(w.persister.SavePurposes(ps...))
}

func notPersisted(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNotPersisted, err)
}

func (w *Workspace) observeGraphLocked() {
	if w.doc == nil {
		return
	}
	for kind, n := range w.doc.graph.CountByKind() {
		GraphNodes.WithLabelValues(string(kind)).Set(float64(n))
	}
}

func foreignKeys[T any](groups map[string][]T, own string) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		if k != own {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
