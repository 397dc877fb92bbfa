package client

import (
	"fmt"

	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/archive"
	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/viewer"
)

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
}

// OpenRequest opens a document for one owner.
type OpenRequest struct {
	OwnerID    string         `json:"ownerId"`
	DocumentID string         `json:"documentId"`
	Layout     viewer.Metrics `json:"layout"`
}

// Document describes the daemon's open document.
type Document struct {
	OwnerID        string         `json:"ownerId"`
	DocumentID     string         `json:"documentId"`
	CurrentPurpose string         `json:"currentPurpose,omitempty"`
	SessionState   string         `json:"sessionState"`
	Session        *store.Session `json:"session,omitempty"`
	DocumentURL    string         `json:"documentUrl,omitempty"`
}

type documentsResponse struct {
	Documents []analytics.DocumentRow `json:"documents"`
}

type usersResponse struct {
	Users []analytics.UserRow `json:"users"`
}

type purposesResponse struct {
	Purposes []analytics.PurposeRow `json:"purposes"`
}

type timelineResponse struct {
	Timelines []analytics.PairTimeline `json:"timelines"`
}

// ReportOptions selects a report. Type and Format default to documents and csv.
type ReportOptions struct {
	Type       string
	Format     string
	DocumentID string
	OwnerID    string
	Selection  analytics.Selection
}

// ExportResult is the blob key of a stored archive.
type ExportResult struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// ArchiveFile is one archive to upload.
type ArchiveFile struct {
	Name string
	Data []byte
}

// ImportResult summarizes a merge of uploaded archives.
type ImportResult struct {
	Merged         graph.MergeResult       `json:"merged"`
	Stats          []archive.ArchiveStats  `json:"stats"`
	Failed         []archive.ImportFailure `json:"failed,omitempty"`
	DocumentStored bool                    `json:"documentStored"`
	DocumentSource string                  `json:"documentSource,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
}

// SuggestRequest asks the daemon for reading goals over Text.
type SuggestRequest struct {
	Prompt string `json:"prompt,omitempty"`
	Text   string `json:"text"`
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Reason     string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("readgraphd: %d %s: %s", e.StatusCode, e.Code, e.Reason)
	}
	return fmt.Sprintf("readgraphd: %d %s", e.StatusCode, e.Code)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}
