package archive

import (
	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/store"
)

// RemapTable maps every id defined in one manifest to "<ownerId>-<id>".
// References to ids the manifest does not define pass through unchanged.
type RemapTable struct {
	prefix string
	ids    map[string]string
}

// NewRemapTable builds the table for all purposes, highlights, nodes and edges of m.
func NewRemapTable(m *Manifest) *RemapTable {
	t := &RemapTable{prefix: m.OwnerID + "-", ids: make(map[string]string)}
	for _, p := range m.Purposes {
		t.add(p.ID)
	}
	for _, h := range m.Highlights {
		t.add(h.ID)
	}
	for _, n := range m.Nodes {
		t.add(n.ID)
	}
	for _, e := range m.Edges {
		t.add(e.ID)
	}
	return t
}

func (t *RemapTable) add(id string) {
	if id == "" {
		return
	}
	t.ids[id] = t.prefix + id
}

// Map returns the new id for old.
func (t *RemapTable) Map(old string) string {
	if v, ok := t.ids[old]; ok {
		return v
	}
	return old
}

// Len is the number of remapped ids.
func (t *RemapTable) Len() int { return len(t.ids) }

// Apply returns a copy of m with every id and reference rewritten.
func (t *RemapTable) Apply(m *Manifest) *Manifest {
	out := &Manifest{
		OwnerID:    m.OwnerID,
		DocumentID: m.DocumentID,
		ExportedAt: m.ExportedAt,
		Highlights: make([]store.Highlight, len(m.Highlights)),
		Nodes:      make([]graph.Node, len(m.Nodes)),
		Edges:      make([]graph.Edge, len(m.Edges)),
		Purposes:   make([]store.Purpose, len(m.Purposes)),
	}
	for i, p := range m.Purposes {
		p.ID = t.Map(p.ID)
		out.Purposes[i] = p
	}
	for i, h := range m.Highlights {
		h.ID = t.Map(h.ID)
		h.PurposeID = t.Map(h.PurposeID)
		out.Highlights[i] = h
	}
	for i, n := range m.Nodes {
		n.ID = t.Map(n.ID)
		n.PurposeID = t.Map(n.PurposeID)
		out.Nodes[i] = n
	}
	for i, e := range m.Edges {
		e.ID = t.Map(e.ID)
		e.Source = t.Map(e.Source)
		e.Target = t.Map(e.Target)
		out.Edges[i] = e
	}
	return out
}
