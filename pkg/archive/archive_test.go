package archive

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest(owner string) Manifest {
	ts := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	return Manifest{
		OwnerID:    owner,
		DocumentID: "d1",
		Purposes:   []store.Purpose{{ID: "p1", OwnerID: owner, DocumentID: "d1", Title: "Skim", Color: "#ff0000"}},
		Highlights: []store.Highlight{
			{ID: "h1", OwnerID: owner, DocumentID: "d1", PurposeID: "p1", SessionID: "s1", Type: store.HighlightText,
				Content: "alpha", Timestamp: ts, PosPercentage: 0.1},
			{ID: "h2", OwnerID: owner, DocumentID: "d1", PurposeID: "p1", SessionID: "s1", Type: store.HighlightArea,
				Content: "img://1", Timestamp: ts.Add(time.Minute), PosPercentage: 0.4},
		},
		Nodes: []graph.Node{
			{ID: "h1", Kind: graph.KindHighlight, PurposeID: "p1", Data: graph.HighlightData{Label: "alpha", Content: "alpha", Type: store.HighlightText}, Position: graph.Position{X: 0, Y: 150}},
			{ID: "h2", Kind: graph.KindHighlight, PurposeID: "p1", Data: graph.HighlightData{Label: "Area", Type: store.HighlightArea}, Position: graph.Position{X: 0, Y: 300}},
			{ID: "g1", Kind: graph.KindGroup, PurposeID: "p1", Data: graph.GroupData{Label: "Theme A"}, Position: graph.Position{X: 250, Y: 225}},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "h1", Target: "h2", Kind: graph.EdgeChronological},
			{ID: "e2", Source: "g1", Target: "h1", Kind: graph.EdgeRelational},
			{ID: "e3", Source: "g1", Target: "h2", Kind: graph.EdgeRelational},
		},
	}
}

func exportBytes(t *testing.T, m Manifest, doc string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var r *strings.Reader
	if doc != "" {
		r = strings.NewReader(doc)
	}
	if r == nil {
		require.NoError(t, Export(&buf, m, nil))
	} else {
		require.NoError(t, Export(&buf, m, r))
	}
	return buf.Bytes()
}

func TestExportImport_RoundTrip(t *testing.T) {
	m := sampleManifest("alice")
	res := Import(Source{Name: "alice.zip", Data: exportBytes(t, m, "%PDF-alice")})

	require.Empty(t, res.Failed)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, ArchiveStats{Name: "alice.zip", OwnerID: "alice", Highlights: 2, Nodes: 3, Edges: 3, Purposes: 1, Document: true}, res.Stats[0])
	assert.Equal(t, "%PDF-alice", string(res.Document))

	require.Len(t, res.Purposes, 1)
	assert.Equal(t, "alice-p1", res.Purposes[0].ID)
	assert.Equal(t, "Skim", res.Purposes[0].Title)
	assert.Equal(t, "#ff0000", res.Purposes[0].Color)

	for i, h := range res.Highlights {
		orig := m.Highlights[i]
		assert.Equal(t, "alice-"+orig.ID, h.ID)
		assert.Equal(t, "alice-p1", h.PurposeID)
		assert.Equal(t, "s1", h.SessionID, "sessions are not part of the archive")
		assert.True(t, orig.Timestamp.Equal(h.Timestamp))
		assert.Equal(t, orig.PosPercentage, h.PosPercentage)
	}
	for i, n := range res.Nodes {
		orig := m.Nodes[i]
		assert.Equal(t, "alice-"+orig.ID, n.ID)
		assert.Equal(t, orig.Position, n.Position)
		assert.Equal(t, orig.Data, n.Data)
	}

	// Every reference resolves.
	ids := map[string]bool{}
	for _, n := range res.Nodes {
		ids[n.ID] = true
	}
	for _, e := range res.Edges {
		assert.True(t, ids[e.Source], e.Source)
		assert.True(t, ids[e.Target], e.Target)
	}
}

func TestImport_TwoOwnersNeverCollide(t *testing.T) {
	res := Import(
		Source{Name: "a.zip", Data: exportBytes(t, sampleManifest("alice"), "%PDF-a")},
		Source{Name: "b.zip", Data: exportBytes(t, sampleManifest("bob"), "%PDF-b")},
	)
	require.Empty(t, res.Failed)
	assert.Len(t, res.Highlights, 4)
	assert.Len(t, res.Nodes, 6)
	assert.Len(t, res.Edges, 6)
	assert.Len(t, res.Purposes, 2)

	seen := map[string]bool{}
	for _, n := range res.Nodes {
		assert.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}

	assert.Equal(t, "%PDF-a", string(res.Document), "first document wins")
	assert.Equal(t, "a.zip", res.DocumentSource)
	assert.False(t, res.Stats[1].Document)
}

func TestImport_SameArchiveTwiceSkipsDuplicates(t *testing.T) {
	data := exportBytes(t, sampleManifest("alice"), "")
	res := Import(Source{Name: "1.zip", Data: data}, Source{Name: "2.zip", Data: data})

	assert.Len(t, res.Highlights, 2)
	assert.Len(t, res.Nodes, 3)
	assert.Equal(t, 9, res.Stats[1].Skipped)
	assert.Nil(t, res.Document)
}

func zipWith(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestImport_BadArchivesAreSkipped(t *testing.T) {
	good := exportBytes(t, sampleManifest("alice"), "")
	res := Import(
		Source{Name: "nomanifest.zip", Data: zipWith(t, map[string]string{"readme.txt": "hi"})},
		Source{Name: "malformed.zip", Data: zipWith(t, map[string]string{"annotations.json": "{not json"})},
		Source{Name: "noowner.zip", Data: zipWith(t, map[string]string{"x.json": `{"highlights":[]}`})},
		Source{Name: "notazip.zip", Data: []byte("garbage")},
		Source{Name: "good.zip", Data: good},
	)

	require.Len(t, res.Failed, 4)
	assert.Equal(t, "nomanifest.zip", res.Failed[0].Name)
	assert.Contains(t, res.Failed[0].Error, ErrNoManifest.Error())
	assert.Contains(t, res.Failed[1].Error, "malformed manifest")
	assert.Contains(t, res.Failed[2].Error, ErrNoOwner.Error())
	require.Len(t, res.Stats, 1)
	assert.Len(t, res.Highlights, 2)
}

func TestImport_IgnoresUnknownEntries(t *testing.T) {
	data := zipWith(t, map[string]string{
		"notes.txt":        "ignored",
		"annotations.json": `{"ownerId":"carol","purposes":[{"id":"p1","title":"Only"}]}`,
		"paper.pdf":        "%PDF-c",
	})
	res := Import(Source{Name: "c.zip", Data: data})
	require.Empty(t, res.Failed)
	assert.Equal(t, "carol-p1", res.Purposes[0].ID)
	assert.Equal(t, "%PDF-c", string(res.Document))
}

func TestExport_RequiresOwner(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Export(&buf, Manifest{}, nil), ErrNoOwner)
}

func TestRemapTable(t *testing.T) {
	m := sampleManifest("alice")
	table := NewRemapTable(&m)
	assert.Equal(t, 7, table.Len(), "p1, h1, h2, g1, e1, e2, e3")
	assert.Equal(t, "alice-g1", table.Map("g1"))
	assert.Equal(t, "s1", table.Map("s1"))

	out := table.Apply(&m)
	assert.Equal(t, "h1", m.Nodes[0].ID, "input is not modified")
	assert.Equal(t, "alice-h1", out.Edges[1].Target)
}
