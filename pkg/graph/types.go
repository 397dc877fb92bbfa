package graph

import (
	"encoding/json"
	"fmt"

	"github.com/rmax-ai/readgraph/pkg/store"
)

// NodeKind is the semantic type of a node on the annotation canvas.
type NodeKind string

const (
	KindHighlight NodeKind = "highlight"
	KindGroup     NodeKind = "group"
	KindOverview  NodeKind = "overview" // one per purpose
)

// EdgeKind is the relationship an edge expresses.
type EdgeKind string

const (
	EdgeChronological EdgeKind = "chronological" // creation order
	EdgeRelational    EdgeKind = "relational"    // user-drawn or group membership
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the kind-specific payload of a node.
// Implementations are HighlightData, GroupData and OverviewData.
type NodeData interface {
	Kind() NodeKind
	Title() string
}

type HighlightData struct {
	Label   string              `json:"label"`
	Content string              `json:"content"`
	Type    store.HighlightType `json:"type"`
}

func (HighlightData) Kind() NodeKind  { return KindHighlight }
func (d HighlightData) Title() string { return d.Label }

type GroupData struct {
	Label string `json:"label"`
	Notes string `json:"notes,omitempty"`
}

func (GroupData) Kind() NodeKind  { return KindGroup }
func (d GroupData) Title() string { return d.Label }

type OverviewData struct {
	Label string `json:"label"`
}

func (OverviewData) Kind() NodeKind  { return KindOverview }
func (d OverviewData) Title() string { return d.Label }

// Node is a vertex on the annotation canvas. Highlight nodes share their id
// with the Highlight they display.
type Node struct {
	ID        string
	Kind      NodeKind
	PurposeID string
	Data      NodeData
	Position  Position
}

type nodeJSON struct {
	ID        string          `json:"id"`
	Kind      NodeKind        `json:"kind"`
	PurposeID string          `json:"purposeId,omitempty"`
	Data      json.RawMessage `json:"data"`
	Position  Position        `json:"position"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	var data NodeData = n.Data
	if data == nil {
		data = emptyData(n.Kind)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{
		ID:        n.ID,
		Kind:      n.Kind,
		PurposeID: n.PurposeID,
		Data:      raw,
		Position:  n.Position,
	})
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var aux nodeJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	var data NodeData
	switch aux.Kind {
	case KindHighlight:
		var d HighlightData
		if err := unmarshalData(aux.Data, &d); err != nil {
			return err
		}
		data = d
	case KindGroup:
		var d GroupData
		if err := unmarshalData(aux.Data, &d); err != nil {
			return err
		}
		data = d
	case KindOverview:
		var d OverviewData
		if err := unmarshalData(aux.Data, &d); err != nil {
			return err
		}
		data = d
	default:
		return fmt.Errorf("unknown node kind %q", aux.Kind)
	}

	*n = Node{
		ID:        aux.ID,
		Kind:      aux.Kind,
		PurposeID: aux.PurposeID,
		Data:      data,
		Position:  aux.Position,
	}
	return nil
}

func unmarshalData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid node data: %w", err)
	}
	return nil
}

func emptyData(kind NodeKind) NodeData {
	switch kind {
	case KindGroup:
		return GroupData{}
	case KindOverview:
		return OverviewData{}
	default:
		return HighlightData{}
	}
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
	Hidden bool     `json:"hidden"`
}

// Graph is a serialisable snapshot of the canvas, in creation order.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}
