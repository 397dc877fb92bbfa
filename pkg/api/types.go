package api

import (
	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/archive"
	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/viewer"
)

// OpenDocumentRequest matches the POST /v1/document body schema
type OpenDocumentRequest struct {
	OwnerID    string         `json:"ownerId" validate:"required"`
	DocumentID string         `json:"documentId" validate:"required"`
	Layout     viewer.Metrics `json:"layout"`
}

// DocumentResponse describes the open document and its live session.
type DocumentResponse struct {
	OwnerID        string         `json:"ownerId"`
	DocumentID     string         `json:"documentId"`
	CurrentPurpose string         `json:"currentPurpose,omitempty"`
	SessionState   string         `json:"sessionState"`
	Session        *store.Session `json:"session,omitempty"`
	DocumentURL    string         `json:"documentUrl,omitempty"`
}

// ViewportRequest matches the PUT /v1/document/viewport body schema
type ViewportRequest struct {
	Layout    viewer.Metrics `json:"layout"`
	ScrollTop float64        `json:"scrollTop" validate:"gte=0"`
}

type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// PurposeRequest is the body for creating or updating a purpose.
type PurposeRequest struct {
	Title       string `json:"title" validate:"required"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Description string `json:"description,omitempty"`
}

type CurrentPurposeRequest struct {
	PurposeID string `json:"purposeId" validate:"required"`
}

// HighlightResponse is returned for a created highlight.
type HighlightResponse struct {
	Highlight *store.Highlight `json:"highlight"`
	Node      *graph.Node      `json:"node"`
	Warning   string           `json:"warning,omitempty"`
}

type GroupRequest struct {
	ChildIDs []string `json:"childIds" validate:"min=2,dive,required"`
	Label    string   `json:"label"`
}

type UpdateGroupRequest struct {
	Label string `json:"label"`
	Notes string `json:"notes"`
}

type SelectionRequest struct {
	Action string `json:"action" validate:"required,oneof=select deselect toggle clear"`
	NodeID string `json:"nodeId" validate:"required_unless=Action clear"`
}

type SelectionResponse struct {
	Selected []string `json:"selected"`
}

// ConnectRequest connects SourceIDs (or the current selection when empty) to TargetID.
type ConnectRequest struct {
	SourceIDs []string `json:"sourceIds,omitempty"`
	TargetID  string   `json:"targetId" validate:"required"`
}

type ConnectResponse struct {
	Created int `json:"created"`
}

type EdgeKindsRequest struct {
	Kinds []graph.EdgeKind `json:"kinds" validate:"dive,oneof=chronological relational"`
}

// GraphResponse is the open graph with its visible edge kinds.
type GraphResponse struct {
	graph.Graph
	Highlights   []store.Highlight `json:"highlights"`
	Purposes     []store.Purpose   `json:"purposes"`
	VisibleKinds []graph.EdgeKind  `json:"visibleKinds"`
	Selection    []string          `json:"selection"`
}

type DocumentsResponse struct {
	Documents []analytics.DocumentRow `json:"documents"`
}

type UsersResponse struct {
	DocumentID string              `json:"documentId"`
	Users      []analytics.UserRow `json:"users"`
}

type PurposesResponse struct {
	DocumentID string                 `json:"documentId"`
	OwnerID    string                 `json:"ownerId"`
	Purposes   []analytics.PurposeRow `json:"purposes"`
}

type TimelineResponse struct {
	Timelines []analytics.PairTimeline `json:"timelines"`
}

type ExportResponse struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// ImportResponse mirrors engine.ImportReport.
type ImportResponse struct {
	Merged         graph.MergeResult       `json:"merged"`
	Stats          []archive.ArchiveStats  `json:"stats"`
	Failed         []archive.ImportFailure `json:"failed,omitempty"`
	DocumentStored bool                    `json:"documentStored"`
	DocumentSource string                  `json:"documentSource,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
}

type SuggestRequest struct {
	Prompt string `json:"prompt,omitempty"`
	Text   string `json:"text" validate:"required"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
