package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T) *AnnotationGraph {
	t.Helper()
	g := NewAnnotationGraph("u1", "d1", viewer.NewRemote(viewer.Metrics{PageHeight: 1000, PageCount: 10}), nil)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	g.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return g
}

func textRaw(content string, page int, y1 float64) RawHighlight {
	return RawHighlight{
		Type:         store.HighlightText,
		Content:      content,
		BoundingRect: store.BoundingRect{PageNumber: page, Y1: y1, Y2: y1 + 20, Width: 800, Height: 1000},
	}
}

func mustAdd(t *testing.T, g *AnnotationGraph, content, purpose string) *store.Highlight {
	t.Helper()
	h, _, err := g.AddHighlight(textRaw(content, 1, 0), purpose, "s1")
	require.NoError(t, err)
	return h
}

func chronological(g *AnnotationGraph) [][2]string {
	var out [][2]string
	for _, e := range g.Edges() {
		if e.Kind == EdgeChronological {
			out = append(out, [2]string{e.Source, e.Target})
		}
	}
	return out
}

func TestAddHighlight(t *testing.T) {
	g := newTestGraph(t)

	h, n, err := g.AddHighlight(textRaw("first sentence", 3, 200), "p1", "s1")
	require.NoError(t, err)
	assert.Equal(t, h.ID, n.ID)
	assert.Equal(t, KindHighlight, n.Kind)
	assert.InDelta(t, 0.22, h.PosPercentage, 1e-9)
	assert.Equal(t, "s1", h.SessionID)
	assert.Equal(t, "u1", h.OwnerID)
	assert.False(t, h.Timestamp.IsZero())
	assert.Equal(t, Position{X: 0, Y: DefaultLayout.FirstRowY}, n.Position)
	assert.Empty(t, g.Edges(), "first node has no predecessor")

	stored, ok := g.Highlight(h.ID)
	require.True(t, ok)
	assert.Equal(t, "first sentence", stored.Content)
}

func TestAddHighlight_Errors(t *testing.T) {
	g := newTestGraph(t)

	_, _, err := g.AddHighlight(textRaw("x", 1, 0), "", "s1")
	assert.ErrorIs(t, err, ErrNoActivePurpose)

	_, _, err = g.AddHighlight(RawHighlight{Type: "circle", Content: "x", BoundingRect: store.BoundingRect{PageNumber: 1}}, "p1", "s1")
	assert.ErrorIs(t, err, ErrInvalidHighlight)

	_, _, err = g.AddHighlight(textRaw("x", 0, 0), "p1", "s1")
	assert.ErrorIs(t, err, ErrInvalidHighlight, "page numbers start at 1")

	detached := NewAnnotationGraph("u1", "d1", nil, nil)
	_, _, err = detached.AddHighlight(textRaw("x", 1, 0), "p1", "s1")
	assert.ErrorIs(t, err, viewer.ErrNoPages)
	assert.Empty(t, detached.Nodes())
}

func TestAddHighlight_Placement(t *testing.T) {
	g := newTestGraph(t)
	g.UpsertPurpose(store.Purpose{ID: "p1", Title: "Skim"})
	g.UpsertPurpose(store.Purpose{ID: "p2", Title: "Deep read"})

	_, a, err := g.AddHighlight(textRaw("a", 1, 0), "p1", "s1")
	require.NoError(t, err)
	_, b, err := g.AddHighlight(textRaw("b", 1, 0), "p2", "s1")
	require.NoError(t, err)
	_, c, err := g.AddHighlight(textRaw("c", 1, 0), "p1", "s1")
	require.NoError(t, err)

	assert.Equal(t, Position{X: 0, Y: 150}, a.Position)
	assert.Equal(t, Position{X: 350, Y: 150}, b.Position)
	assert.Equal(t, Position{X: 0, Y: 300}, c.Position, "stacked beneath the purpose's latest node")

	// The chain is global across purposes.
	assert.Equal(t, [][2]string{{a.ID, b.ID}, {b.ID, c.ID}}, chronological(g))
}

func TestRemoveHighlight_Relinks(t *testing.T) {
	g := newTestGraph(t)
	a := mustAdd(t, g, "a", "p1")
	b := mustAdd(t, g, "b", "p1")
	c := mustAdd(t, g, "c", "p1")
	require.True(t, g.Select(b.ID))

	require.NoError(t, g.RemoveHighlight(b.ID))

	assert.Equal(t, [][2]string{{a.ID, c.ID}}, chronological(g))
	_, ok := g.Highlight(b.ID)
	assert.False(t, ok)
	_, ok = g.Node(b.ID)
	assert.False(t, ok)
	assert.Empty(t, g.Selection())

	assert.ErrorIs(t, g.RemoveHighlight(b.ID), ErrNotFound)
}

func TestRemoveHighlight_Ends(t *testing.T) {
	g := newTestGraph(t)
	a := mustAdd(t, g, "a", "p1")
	b := mustAdd(t, g, "b", "p1")
	c := mustAdd(t, g, "c", "p1")

	require.NoError(t, g.RemoveHighlight(a.ID))
	assert.Equal(t, [][2]string{{b.ID, c.ID}}, chronological(g))

	require.NoError(t, g.RemoveHighlight(c.ID))
	assert.Empty(t, chronological(g))

	d := mustAdd(t, g, "d", "p1")
	assert.Equal(t, [][2]string{{b.ID, d.ID}}, chronological(g))
}

func TestDeleteHighlight_DoesNotRelink(t *testing.T) {
	g := newTestGraph(t)
	a := mustAdd(t, g, "a", "p1")
	b := mustAdd(t, g, "b", "p1")
	c := mustAdd(t, g, "c", "p1")

	require.NoError(t, g.DeleteHighlight(b.ID))
	assert.Empty(t, chronological(g))
	assert.Len(t, g.Highlights(), 2)

	_, ok := g.Node(a.ID)
	assert.True(t, ok)
	_, ok = g.Node(c.ID)
	assert.True(t, ok)
}

func TestCreateGroupNode(t *testing.T) {
	g := newTestGraph(t)
	g.UpsertPurpose(store.Purpose{ID: "p1", Title: "Skim"})
	a := mustAdd(t, g, "a", "p1")
	b := mustAdd(t, g, "b", "p1")

	_, ok := g.CreateGroupNode([]string{a.ID, a.ID}, "dup")
	assert.False(t, ok, "two copies of one child are not a group")
	_, ok = g.CreateGroupNode([]string{a.ID, "missing"}, "short")
	assert.False(t, ok)

	grp, ok := g.CreateGroupNode([]string{a.ID, b.ID}, "Theme")
	require.True(t, ok)
	assert.Equal(t, KindGroup, grp.Kind)
	assert.Equal(t, "p1", grp.PurposeID)
	assert.Equal(t, Position{X: 250, Y: 225}, grp.Position)
	assert.Equal(t, GroupData{Label: "Theme"}, grp.Data)

	var rel [][2]string
	for _, e := range g.Edges() {
		if e.Kind == EdgeRelational {
			rel = append(rel, [2]string{e.Source, e.Target})
		}
	}
	assert.ElementsMatch(t, [][2]string{{grp.ID, a.ID}, {grp.ID, b.ID}}, rel)
	assert.Contains(t, chronological(g), [2]string{b.ID, grp.ID})

	// The group is now the latest chain node.
	c := mustAdd(t, g, "c", "p1")
	assert.Contains(t, chronological(g), [2]string{grp.ID, c.ID})

	require.NoError(t, g.UpdateGroup(grp.ID, "Renamed", "notes"))
	n, _ := g.Node(grp.ID)
	assert.Equal(t, GroupData{Label: "Renamed", Notes: "notes"}, n.Data)

	require.NoError(t, g.DeleteNode(grp.ID))
	assert.NotContains(t, chronological(g), [2]string{grp.ID, c.ID})
	assert.Len(t, g.Highlights(), 3, "group delete keeps children")
}

func TestSelectionAndConnect(t *testing.T) {
	g := newTestGraph(t)
	a := mustAdd(t, g, "a", "p1")
	b := mustAdd(t, g, "b", "p1")
	c := mustAdd(t, g, "c", "p1")

	assert.False(t, g.Select("missing"))
	assert.True(t, g.ToggleSelect(b.ID))
	assert.True(t, g.Select(a.ID))
	assert.Equal(t, []string{a.ID, b.ID}, g.Selection())
	assert.False(t, g.ToggleSelect(b.ID))
	g.Deselect(a.ID)
	assert.Empty(t, g.Selection())

	n := g.Connect([]string{a.ID, c.ID, "missing", a.ID}, c.ID)
	assert.Equal(t, 1, n, "skips target, unknown and duplicate ids")
	assert.Equal(t, 0, g.Connect([]string{a.ID}, c.ID), "edge already exists")
	assert.Equal(t, 0, g.Connect([]string{a.ID}, "missing"))

	g.Select(a.ID)
	g.Select(b.ID)
	assert.Equal(t, 1, g.ConnectSelected(c.ID))
	assert.Empty(t, g.Selection())
}

func TestConnectClearsSelection(t *testing.T) {
	g := newTestGraph(t)
	a := mustAdd(t, g, "a", "p1")
	b := mustAdd(t, g, "b", "p1")
	c := mustAdd(t, g, "c", "p1")

	g.Select(a.ID)
	g.Select(b.ID)
	assert.Equal(t, 2, g.Connect(g.Selection(), c.ID))
	assert.Empty(t, g.Selection())

	// Explicit ids that were never selected still reset the selection.
	g.Select(c.ID)
	assert.Equal(t, 1, g.Connect([]string{a.ID}, b.ID))
	assert.Empty(t, g.Selection())
}

func TestSetVisibleEdgeKinds(t *testing.T) {
	g := newTestGraph(t)
	a := mustAdd(t, g, "a", "p1")
	b := mustAdd(t, g, "b", "p1")
	g.Connect([]string{a.ID}, b.ID)

	g.SetVisibleEdgeKinds(EdgeRelational)
	for _, e := range g.Edges() {
		assert.Equal(t, e.Kind == EdgeChronological, e.Hidden)
	}
	assert.Equal(t, []EdgeKind{EdgeRelational}, g.VisibleEdgeKinds())

	// New edges respect the current visibility.
	c := mustAdd(t, g, "c", "p1")
	for _, e := range g.Edges() {
		if e.Target == c.ID {
			assert.True(t, e.Hidden)
		}
	}

	g.SetVisibleEdgeKinds(EdgeChronological, EdgeRelational)
	for _, e := range g.Edges() {
		assert.False(t, e.Hidden)
	}
	assert.Len(t, g.Edges(), 3, "visibility never removes edges")
}

func TestUpsertPurpose_OverviewNode(t *testing.T) {
	g := newTestGraph(t)
	g.UpsertPurpose(store.Purpose{ID: "p1", Title: "Skim"})
	g.UpsertPurpose(store.Purpose{ID: "p1", Title: "Skim fast"})

	counts := g.CountByKind()
	assert.Equal(t, 1, counts[KindOverview])

	var overview Node
	for _, n := range g.Nodes() {
		if n.Kind == KindOverview {
			overview = n
		}
	}
	assert.Equal(t, OverviewData{Label: "Skim fast"}, overview.Data)

	// Overview nodes never join the chain.
	a := mustAdd(t, g, "a", "p1")
	assert.Empty(t, chronological(g))

	g.RemovePurpose("p1")
	assert.Equal(t, 0, g.CountByKind()[KindOverview])
	_, ok := g.Highlight(a.ID)
	assert.True(t, ok)
}

func TestCanvasRoundTrip(t *testing.T) {
	g := newTestGraph(t)
	g.UpsertPurpose(store.Purpose{ID: "p1", Title: "Skim"})
	a := mustAdd(t, g, "a", "p1")
	b := mustAdd(t, g, "b", "p1")
	grp, ok := g.CreateGroupNode([]string{a.ID, b.ID}, "Theme")
	require.True(t, ok)
	require.NoError(t, g.MoveNode(a.ID, Position{X: 10, Y: 20}))

	canvas, err := g.Canvas()
	require.NoError(t, err)
	assert.Equal(t, "u1", canvas.OwnerID)

	restored := NewAnnotationGraph("u1", "d1", nil, nil)
	require.NoError(t, restored.LoadCanvas(canvas, g.Highlights(), g.Purposes()))

	assert.Equal(t, g.Snapshot(), restored.Snapshot())
	n, ok := restored.Node(grp.ID)
	require.True(t, ok)
	assert.Equal(t, GroupData{Label: "Theme"}, n.Data)

	again, err := restored.Canvas()
	require.NoError(t, err)
	assert.Equal(t, canvas.ID, again.ID)
}

func TestLoadCanvas_WithoutCanvasLaysOutHighlights(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	hs := []store.Highlight{
		{ID: "h2", PurposeID: "p1", Type: store.HighlightText, Content: "two", Timestamp: base.Add(time.Minute)},
		{ID: "h1", PurposeID: "p1", Type: store.HighlightText, Content: "one", Timestamp: base},
	}
	g := NewAnnotationGraph("u1", "d1", nil, nil)
	require.NoError(t, g.LoadCanvas(nil, hs, []store.Purpose{{ID: "p1", Title: "Skim"}}))

	assert.Equal(t, [][2]string{{"h1", "h2"}}, chronological(g))
	n, ok := g.Node("h2")
	require.True(t, ok)
	assert.Equal(t, Position{X: 0, Y: 300}, n.Position)
}

func TestLoadCanvas_DropsNodesWithoutHighlights(t *testing.T) {
	snap := Graph{
		Nodes: []Node{
			{ID: "h1", Kind: KindHighlight, PurposeID: "p1", Data: HighlightData{Label: "one"}},
			{ID: "gone", Kind: KindHighlight, PurposeID: "p1", Data: HighlightData{Label: "gone"}},
		},
		Edges: []Edge{{ID: "e1", Source: "h1", Target: "gone", Kind: EdgeChronological}},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	g := NewAnnotationGraph("u1", "d1", nil, nil)
	require.NoError(t, g.LoadCanvas(&store.Canvas{ID: "c1", SerializedGraph: data},
		[]store.Highlight{{ID: "h1", PurposeID: "p1"}}, nil))

	assert.Len(t, g.Nodes(), 1)
	assert.Empty(t, g.Edges())
}

func TestNodeJSON(t *testing.T) {
	in := Node{ID: "n1", Kind: KindHighlight, PurposeID: "p1",
		Data: HighlightData{Label: "l", Content: "c", Type: store.HighlightArea}, Position: Position{X: 1, Y: 2}}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"n1","kind":"highlight","purposeId":"p1",
		"data":{"label":"l","content":"c","type":"area"},"position":{"x":1,"y":2}}`, string(data))

	var out Node
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"id":"x","kind":"circle","data":{}}`), &out))
}

func TestMerge(t *testing.T) {
	g := newTestGraph(t)
	a := mustAdd(t, g, "a", "p1")

	foreign := Graph{
		Nodes: []Node{
			{ID: a.ID, Kind: KindHighlight, PurposeID: "p1", Data: HighlightData{Label: "clash"}},
			{ID: "x-h1", Kind: KindHighlight, PurposeID: "x-p1", Data: HighlightData{Label: "imported"}},
		},
		Edges: []Edge{{ID: "x-e1", Source: "x-h1", Target: "x-missing", Kind: EdgeRelational}},
	}
	res := g.Merge(foreign,
		[]store.Highlight{{ID: "x-h1", PurposeID: "x-p1"}, {ID: "x-h2", PurposeID: "x-p1"}},
		[]store.Purpose{{ID: "x-p1", Title: "Imported"}},
	)

	assert.Equal(t, 1, res.Purposes)
	assert.Equal(t, 2, res.Highlights)
	assert.Equal(t, 2, res.Nodes, "x-h1 from the snapshot, x-h2 laid out")
	assert.Equal(t, 2, res.Skipped, "clashing node and dangling edge")
	assert.Len(t, g.Highlights(), 3)

	n, ok := g.Node(a.ID)
	require.True(t, ok)
	assert.NotEqual(t, "clash", n.Data.Title())
}
