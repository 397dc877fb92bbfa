package reports

import (
	"context"
	"io"

	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/store"
)

type ReportType string

const (
	ReportTypeDocuments ReportType = "documents"
	ReportTypeUsers     ReportType = "users"
	ReportTypePurposes  ReportType = "purposes"
	ReportTypeTimeline  ReportType = "timeline"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
)

// ReportParams selects what a report covers. DocumentID is required for the
// users and purposes levels, OwnerID for purposes. When Dataset is set it is
// used as-is instead of loading from the store.
type ReportParams struct {
	Selection  analytics.Selection
	DocumentID string
	OwnerID    string
	Format     ReportFormat
	Dataset    *analytics.Dataset
}

// ReportStore defines the interface for data access required by reports.
type ReportStore = store.RecordLoader

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
