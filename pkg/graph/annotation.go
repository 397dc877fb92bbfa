package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/viewer"
	"go.uber.org/zap"
)

var (
	ErrNoActivePurpose  = errors.New("no active purpose")
	ErrNotFound         = errors.New("node not found")
	ErrInvalidHighlight = errors.New("invalid highlight")
)

// Layout controls automatic node placement.
type Layout struct {
	ColumnWidth  float64 // horizontal distance between purpose columns
	FirstRowY    float64 // y of the first highlight in a column
	RowSpacing   float64 // vertical distance between stacked nodes
	GroupOffsetX float64 // x offset of a group from its children's centroid
}

var DefaultLayout = Layout{
	ColumnWidth:  350,
	FirstRowY:    150,
	RowSpacing:   150,
	GroupOffsetX: 250,
}

// RawHighlight is a highlight as emitted by the rendering surface.
type RawHighlight struct {
	Type         store.HighlightType `json:"type" validate:"required,oneof=text area"`
	Content      string              `json:"content" validate:"required"`
	BoundingRect store.BoundingRect  `json:"boundingRect"`
	Timestamp    time.Time           `json:"timestamp"`
}

// AnnotationGraph is the live canvas for one (owner, document) context.
// Accessors return copies; it is safe for concurrent use.
type AnnotationGraph struct {
	mu sync.RWMutex

	ownerID    string
	documentID string
	canvasID   string
	metrics    viewer.MetricsSource
	layout     Layout
	validate   *validator.Validate
	logger     *zap.Logger
	now        func() time.Time

	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string

	highlights map[string]*store.Highlight

	purposes     map[string]store.Purpose
	purposeOrder []string

	selected map[string]struct{}
	visible  map[EdgeKind]bool
}

// NewAnnotationGraph creates an empty graph. metrics may be nil until a viewer
// is attached with SetMetricsSource.
func NewAnnotationGraph(ownerID, documentID string, metrics viewer.MetricsSource, logger *zap.Logger) *AnnotationGraph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnotationGraph{
		ownerID:    ownerID,
		documentID: documentID,
		canvasID:   uuid.New().String(),
		metrics:    metrics,
		layout:     DefaultLayout,
		validate:   validator.New(),
		logger:     logger,
		now:        time.Now,
		nodes:      make(map[string]*Node),
		edges:      make(map[string]*Edge),
		highlights: make(map[string]*store.Highlight),
		purposes:   make(map[string]store.Purpose),
		selected:   make(map[string]struct{}),
		visible: map[EdgeKind]bool{
			EdgeChronological: true,
			EdgeRelational:    true,
		},
	}
}

func (g *AnnotationGraph) SetLayout(l Layout) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layout = l
}

func (g *AnnotationGraph) SetMetricsSource(m viewer.MetricsSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metrics = m
}

// SetClock overrides the timestamp source used for highlights without one.
func (g *AnnotationGraph) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

func (g *AnnotationGraph) OwnerID() string    { return g.ownerID }
func (g *AnnotationGraph) DocumentID() string { return g.documentID }

// UpsertPurpose registers the purpose column and keeps its overview node in sync.
func (g *AnnotationGraph) UpsertPurpose(p store.Purpose) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsertPurposeLocked(p)
}

func (g *AnnotationGraph) upsertPurposeLocked(p store.Purpose) {
	if p.ID == "" {
		return
	}
	col := g.columnLocked(p.ID)
	g.purposes[p.ID] = p

	if n := g.overviewLocked(p.ID); n != nil {
		n.Data = OverviewData{Label: p.Title}
		return
	}
	g.insertNodeLocked(&Node{
		ID:        uuid.New().String(),
		Kind:      KindOverview,
		PurposeID: p.ID,
		Data:      OverviewData{Label: p.Title},
		Position: Position{
			X: float64(col) * g.layout.ColumnWidth,
			Y: g.layout.FirstRowY - g.layout.RowSpacing,
		},
	})
}

// RemovePurpose drops the purpose's overview node. Its highlights stay and its
// column keeps its slot.
func (g *AnnotationGraph) RemovePurpose(purposeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.purposes, purposeID)
	if n := g.overviewLocked(purposeID); n != nil {
		g.removeNodeLocked(n.ID)
	}
}

// Purposes returns the registered purposes in column order.
func (g *AnnotationGraph) Purposes() []store.Purpose {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]store.Purpose, 0, len(g.purposes))
	for _, id := range g.purposeOrder {
		if p, ok := g.purposes[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// AddHighlight records a new highlight under purposeID, places its node and
// extends the chronological chain.
func (g *AnnotationGraph) AddHighlight(raw RawHighlight, purposeID, sessionID string) (*store.Highlight, *Node, error) {
	if purposeID == "" {
		return nil, nil, ErrNoActivePurpose
	}
	if err := g.validate.Struct(raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidHighlight, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.metrics == nil {
		return nil, nil, viewer.ErrNoPages
	}
	m, err := g.metrics.Metrics()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read viewer metrics: %w", err)
	}
	pos, err := viewer.PositionPercentage(raw.BoundingRect.PageNumber, raw.BoundingRect.Y1, raw.BoundingRect.Height, m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute highlight position: %w", err)
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = g.now()
	}

	h := store.Highlight{
		ID:            uuid.New().String(),
		Type:          raw.Type,
		DocumentID:    g.documentID,
		OwnerID:       g.ownerID,
		PurposeID:     purposeID,
		SessionID:     sessionID,
		Content:       raw.Content,
		BoundingRect:  raw.BoundingRect,
		Timestamp:     ts,
		PosPercentage: pos,
	}
	node := g.appendHighlightLocked(h)

	g.logger.Debug("highlight_added",
		zap.String("highlight_id", h.ID),
		zap.String("purpose_id", purposeID),
		zap.Float64("pos_percentage", pos),
	)

	hc := h
	nc := *node
	return &hc, &nc, nil
}

// appendHighlightLocked stores h, places its node and chains it after the latest chain node.
func (g *AnnotationGraph) appendHighlightLocked(h store.Highlight) *Node {
	prev := g.latestChainLocked()
	node := &Node{
		ID:        h.ID,
		Kind:      KindHighlight,
		PurposeID: h.PurposeID,
		Data: HighlightData{
			Label:   highlightLabel(h),
			Content: h.Content,
			Type:    h.Type,
		},
		Position: g.placeLocked(h.PurposeID),
	}

	hc := h
	g.highlights[h.ID] = &hc
	g.insertNodeLocked(node)
	if prev != nil {
		g.addEdgeLocked(prev.ID, node.ID, EdgeChronological)
	}
	return node
}

// placeLocked returns the position for a new node of the purpose: the column
// head for the first one, otherwise one row beneath the purpose's latest node.
func (g *AnnotationGraph) placeLocked(purposeID string) Position {
	col := g.columnLocked(purposeID)
	for i := len(g.nodeOrder) - 1; i >= 0; i-- {
		n := g.nodes[g.nodeOrder[i]]
		if n.Kind == KindOverview || n.PurposeID != purposeID {
			continue
		}
		return Position{X: n.Position.X, Y: n.Position.Y + g.layout.RowSpacing}
	}
	return Position{X: float64(col) * g.layout.ColumnWidth, Y: g.layout.FirstRowY}
}

func (g *AnnotationGraph) columnLocked(purposeID string) int {
	for i, id := range g.purposeOrder {
		if id == purposeID {
			return i
		}
	}
	g.purposeOrder = append(g.purposeOrder, purposeID)
	return len(g.purposeOrder) - 1
}

func (g *AnnotationGraph) overviewLocked(purposeID string) *Node {
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		if n.Kind == KindOverview && n.PurposeID == purposeID {
			return n
		}
	}
	return nil
}

// latestChainLocked returns the most recently created highlight or group node.
func (g *AnnotationGraph) latestChainLocked() *Node {
	for i := len(g.nodeOrder) - 1; i >= 0; i-- {
		n := g.nodes[g.nodeOrder[i]]
		if n.Kind != KindOverview {
			return n
		}
	}
	return nil
}

// RemoveHighlight deletes a highlight and reconnects its chronological
// predecessor to its successor.
func (g *AnnotationGraph) RemoveHighlight(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok || n.Kind != KindHighlight {
		return ErrNotFound
	}

	var pred, succ string
	for _, e := range g.edges {
		if e.Kind != EdgeChronological {
			continue
		}
		if e.Target == id {
			pred = e.Source
		}
		if e.Source == id {
			succ = e.Target
		}
	}
	if pred != "" && succ != "" {
		g.addEdgeLocked(pred, succ, EdgeChronological)
	}

	g.removeNodeLocked(id)
	return nil
}

// DeleteHighlight deletes a highlight without relinking the chain.
func (g *AnnotationGraph) DeleteHighlight(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok || n.Kind != KindHighlight {
		return ErrNotFound
	}
	g.removeNodeLocked(id)
	return nil
}

// DeleteNode deletes any node without relinking. Deleting a highlight node
// also deletes its highlight.
func (g *AnnotationGraph) DeleteNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return ErrNotFound
	}
	g.removeNodeLocked(id)
	return nil
}

// removeNodeLocked excises the node, its highlight, its edges and its selection.
func (g *AnnotationGraph) removeNodeLocked(id string) {
	delete(g.nodes, id)
	delete(g.highlights, id)
	delete(g.selected, id)
	g.nodeOrder = without(g.nodeOrder, id)

	kept := g.edgeOrder[:0]
	for _, eid := range g.edgeOrder {
		e := g.edges[eid]
		if e.Source == id || e.Target == id {
			delete(g.edges, eid)
			continue
		}
		kept = append(kept, eid)
	}
	g.edgeOrder = kept
}

// CreateGroupNode groups at least two distinct existing nodes. The group joins
// the chronological chain and gets a relational edge to each child.
func (g *AnnotationGraph) CreateGroupNode(childIDs []string, label string) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]struct{}, len(childIDs))
	var children []*Node
	for _, id := range childIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if n, ok := g.nodes[id]; ok {
			children = append(children, n)
		}
	}
	if len(children) < 2 {
		return nil, false
	}

	var cx, cy float64
	purpose := children[0].PurposeID
	for _, c := range children {
		cx += c.Position.X
		cy += c.Position.Y
		if c.PurposeID != purpose {
			purpose = ""
		}
	}
	cx /= float64(len(children))
	cy /= float64(len(children))

	prev := g.latestChainLocked()
	group := &Node{
		ID:        uuid.New().String(),
		Kind:      KindGroup,
		PurposeID: purpose,
		Data:      GroupData{Label: label},
		Position:  Position{X: cx + g.layout.GroupOffsetX, Y: cy},
	}
	g.insertNodeLocked(group)
	if prev != nil {
		g.addEdgeLocked(prev.ID, group.ID, EdgeChronological)
	}
	for _, c := range children {
		g.addEdgeLocked(group.ID, c.ID, EdgeRelational)
	}

	out := *group
	return &out, true
}

// UpdateGroup changes a group's label and notes.
func (g *AnnotationGraph) UpdateGroup(id, label, notes string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok || n.Kind != KindGroup {
		return ErrNotFound
	}
	n.Data = GroupData{Label: label, Notes: notes}
	return nil
}

// MoveNode sets a node's canvas position.
func (g *AnnotationGraph) MoveNode(id string, pos Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return ErrNotFound
	}
	n.Position = pos
	return nil
}

// Select adds an existing node to the selection.
func (g *AnnotationGraph) Select(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	g.selected[id] = struct{}{}
	return true
}

func (g *AnnotationGraph) Deselect(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.selected, id)
}

// ToggleSelect flips selection and reports whether the node is now selected.
func (g *AnnotationGraph) ToggleSelect(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.selected[id]; ok {
		delete(g.selected, id)
		return false
	}
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	g.selected[id] = struct{}{}
	return true
}

// Selection returns the selected ids in creation order.
func (g *AnnotationGraph) Selection() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.selected))
	for _, id := range g.nodeOrder {
		if _, ok := g.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (g *AnnotationGraph) ClearSelection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selected = make(map[string]struct{})
}

// Connect adds a relational edge from each selected id to target and returns
// how many were created. The selection is cleared afterwards.
func (g *AnnotationGraph) Connect(selectedIDs []string, targetID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.connectLocked(selectedIDs, targetID)
	g.selected = make(map[string]struct{})
	return n
}

// ConnectSelected connects the current selection to target, then clears it.
func (g *AnnotationGraph) ConnectSelected(targetID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.selected))
	for _, id := range g.nodeOrder {
		if _, ok := g.selected[id]; ok {
			ids = append(ids, id)
		}
	}
	n := g.connectLocked(ids, targetID)
	g.selected = make(map[string]struct{})
	return n
}

func (g *AnnotationGraph) connectLocked(ids []string, targetID string) int {
	if _, ok := g.nodes[targetID]; !ok {
		return 0
	}
	created := 0
	for _, id := range ids {
		if id == targetID {
			continue
		}
		if _, ok := g.nodes[id]; !ok {
			continue
		}
		if g.hasEdgeLocked(id, targetID, EdgeRelational) {
			continue
		}
		g.addEdgeLocked(id, targetID, EdgeRelational)
		created++
	}
	return created
}

// SetVisibleEdgeKinds shows only the given kinds. Edges are never removed.
func (g *AnnotationGraph) SetVisibleEdgeKinds(kinds ...EdgeKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.visible = map[EdgeKind]bool{}
	for _, k := range kinds {
		g.visible[k] = true
	}
	for _, e := range g.edges {
		e.Hidden = !g.visible[e.Kind]
	}
}

// VisibleEdgeKinds returns the kinds currently shown.
func (g *AnnotationGraph) VisibleEdgeKinds() []EdgeKind {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []EdgeKind
	for _, k := range []EdgeKind{EdgeChronological, EdgeRelational} {
		if g.visible[k] {
			out = append(out, k)
		}
	}
	return out
}

func (g *AnnotationGraph) insertNodeLocked(n *Node) bool {
	if _, exists := g.nodes[n.ID]; exists {
		return false
	}
	g.nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
	return true
}

func (g *AnnotationGraph) addEdgeLocked(source, target string, kind EdgeKind) *Edge {
	e := &Edge{
		ID:     uuid.New().String(),
		Source: source,
		Target: target,
		Kind:   kind,
		Hidden: !g.visible[kind],
	}
	g.edges[e.ID] = e
	g.edgeOrder = append(g.edgeOrder, e.ID)
	return e
}

func (g *AnnotationGraph) hasEdgeLocked(source, target string, kind EdgeKind) bool {
	for _, e := range g.edges {
		if e.Source == source && e.Target == target && e.Kind == kind {
			return true
		}
	}
	return false
}

// Node returns a copy of the node.
func (g *AnnotationGraph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Highlight returns a copy of the highlight.
func (g *AnnotationGraph) Highlight(id string) (store.Highlight, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.highlights[id]
	if !ok {
		return store.Highlight{}, false
	}
	return *h, true
}

// Nodes returns copies of all nodes in creation order.
func (g *AnnotationGraph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns copies of all edges in creation order.
func (g *AnnotationGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, *g.edges[id])
	}
	return out
}

// Highlights returns copies of all highlights in node creation order.
func (g *AnnotationGraph) Highlights() []store.Highlight {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]store.Highlight, 0, len(g.highlights))
	for _, id := range g.nodeOrder {
		if h, ok := g.highlights[id]; ok {
			out = append(out, *h)
		}
	}
	return out
}

// CountByKind returns the number of nodes of each kind.
func (g *AnnotationGraph) CountByKind() map[NodeKind]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := map[NodeKind]int{KindHighlight: 0, KindGroup: 0, KindOverview: 0}
	for _, n := range g.nodes {
		out[n.Kind]++
	}
	return out
}

// Snapshot returns nodes and edges in creation order.
func (g *AnnotationGraph) Snapshot() Graph {
	return Graph{Nodes: g.Nodes(), Edges: g.Edges()}
}

// Restore replaces nodes and edges with the snapshot. Highlight records are
// kept only for highlight nodes present in the snapshot.
func (g *AnnotationGraph) Restore(snap Graph) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.restoreLocked(snap)
}

func (g *AnnotationGraph) restoreLocked(snap Graph) {
	g.nodes = make(map[string]*Node, len(snap.Nodes))
	g.nodeOrder = nil
	g.edges = make(map[string]*Edge, len(snap.Edges))
	g.edgeOrder = nil
	g.selected = make(map[string]struct{})

	for i := range snap.Nodes {
		n := snap.Nodes[i]
		if n.PurposeID != "" {
			g.columnLocked(n.PurposeID)
		}
		g.insertNodeLocked(&n)
	}
	for i := range snap.Edges {
		e := snap.Edges[i]
		if _, dup := g.edges[e.ID]; dup {
			continue
		}
		if g.nodes[e.Source] == nil || g.nodes[e.Target] == nil {
			continue
		}
		e.Hidden = !g.visible[e.Kind]
		g.edges[e.ID] = &e
		g.edgeOrder = append(g.edgeOrder, e.ID)
	}
	for id := range g.highlights {
		if n, ok := g.nodes[id]; !ok || n.Kind != KindHighlight {
			delete(g.highlights, id)
		}
	}
}

// Canvas serialises the graph for persistence.
func (g *AnnotationGraph) Canvas() (*store.Canvas, error) {
	snap := g.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialise graph: %w", err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return &store.Canvas{
		ID:              g.canvasID,
		OwnerID:         g.ownerID,
		DocumentID:      g.documentID,
		SerializedGraph: data,
		UpdatedAt:       g.now(),
	}, nil
}

// LoadCanvas rebuilds the graph from persisted state. With a nil canvas the
// nodes are laid out again from the highlights in timestamp order. Highlights
// missing from the canvas are appended; highlight nodes without a record are dropped.
func (g *AnnotationGraph) LoadCanvas(canvas *store.Canvas, highlights []store.Highlight, purposes []store.Purpose) error {
	var snap Graph
	if canvas != nil && len(canvas.SerializedGraph) > 0 && string(canvas.SerializedGraph) != "null" {
		if err := json.Unmarshal(canvas.SerializedGraph, &snap); err != nil {
			return fmt.Errorf("failed to decode canvas: %w", err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if canvas != nil && canvas.ID != "" {
		g.canvasID = canvas.ID
	}
	g.highlights = make(map[string]*store.Highlight, len(highlights))
	for i := range highlights {
		h := highlights[i]
		g.highlights[h.ID] = &h
	}
	g.purposes = make(map[string]store.Purpose)
	g.purposeOrder = nil

	// Nodes whose highlight record is gone are not restored.
	kept := snap.Nodes[:0]
	for _, n := range snap.Nodes {
		if n.Kind == KindHighlight && g.highlights[n.ID] == nil {
			continue
		}
		kept = append(kept, n)
	}
	snap.Nodes = kept

	pending := make(map[string]store.Highlight, len(highlights))
	for _, h := range highlights {
		pending[h.ID] = h
	}
	g.restoreLocked(snap)
	for id := range g.nodes {
		delete(pending, id)
	}

	for _, p := range purposes {
		g.upsertPurposeLocked(p)
	}

	missing := make([]store.Highlight, 0, len(pending))
	for _, h := range pending {
		missing = append(missing, h)
	}
	sort.SliceStable(missing, func(i, j int) bool {
		return missing[i].Timestamp.Before(missing[j].Timestamp)
	})
	for _, h := range missing {
		g.appendHighlightLocked(h)
	}
	return nil
}

// MergeResult counts what Merge added and skipped.
type MergeResult struct {
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	Highlights int `json:"highlights"`
	Purposes   int `json:"purposes"`
	Skipped    int `json:"skipped"`
}

// Merge adds foreign nodes, edges, highlights and purposes, skipping ids that
// already exist and edges whose endpoints are unknown.
func (g *AnnotationGraph) Merge(snap Graph, highlights []store.Highlight, purposes []store.Purpose) MergeResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	var res MergeResult
	for _, p := range purposes {
		if _, exists := g.purposes[p.ID]; exists {
			res.Skipped++
			continue
		}
		g.columnLocked(p.ID)
		g.purposes[p.ID] = p
		res.Purposes++
	}
	for _, h := range highlights {
		if _, exists := g.highlights[h.ID]; exists {
			res.Skipped++
			continue
		}
		hc := h
		g.highlights[h.ID] = &hc
		res.Highlights++
	}
	for i := range snap.Nodes {
		n := snap.Nodes[i]
		if n.PurposeID != "" {
			g.columnLocked(n.PurposeID)
		}
		if !g.insertNodeLocked(&n) {
			res.Skipped++
			continue
		}
		res.Nodes++
	}
	for i := range snap.Edges {
		e := snap.Edges[i]
		if _, exists := g.edges[e.ID]; exists || g.nodes[e.Source] == nil || g.nodes[e.Target] == nil {
			res.Skipped++
			continue
		}
		e.Hidden = !g.visible[e.Kind]
		g.edges[e.ID] = &e
		g.edgeOrder = append(g.edgeOrder, e.ID)
		res.Edges++
	}
	// Keep the 1:1 highlight/node pairing for merged records.
	var orphans []store.Highlight
	for id, h := range g.highlights {
		if _, ok := g.nodes[id]; !ok {
			orphans = append(orphans, *h)
		}
	}
	sort.SliceStable(orphans, func(i, j int) bool {
		return orphans[i].Timestamp.Before(orphans[j].Timestamp)
	})
	for _, h := range orphans {
		g.appendHighlightLocked(h)
		res.Nodes++
	}
	return res
}

func highlightLabel(h store.Highlight) string {
	if h.Type == store.HighlightArea {
		return fmt.Sprintf("Area highlight (p. %d)", h.BoundingRect.PageNumber)
	}
	r := []rune(h.Content)
	if len(r) > 40 {
		return string(r[:40]) + "…"
	}
	return h.Content
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
