package reports

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/rmax-ai/readgraph/pkg/analytics"
)

var (
	ErrDocumentRequired = errors.New("document id is required")
	ErrOwnerRequired    = errors.New("owner id is required")
)

// DocumentsReport lists one row per document.
type DocumentsReport struct {
	store ReportStore
}

func NewDocumentsReport(s ReportStore) *DocumentsReport {
	return &DocumentsReport{store: s}
}

func (r *DocumentsReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	ds, err := dataset(ctx, r.store, params)
	if err != nil {
		return nil, err
	}
	rows := analytics.NewAggregator(ds, params.Selection).Documents()

	t := table{
		headers: []string{"document_id", "user_count", "total_duration_ms", "avg_duration_per_user_ms", "total_highlights", "avg_highlights_per_user"},
		records: rows,
	}
	for _, row := range rows {
		t.rows = append(t.rows, []string{
			row.DocumentID,
			strconv.Itoa(row.UserCount),
			formatInt(row.TotalDurationMs),
			formatFloat(row.AverageDurationPerUserMs),
			strconv.Itoa(row.TotalHighlights),
			formatFloat(row.AverageHighlightsPerUser),
		})
	}
	return encode(t, params.Format)
}

var statsHeaders = []string{"duration_ms", "highlights", "text_highlights", "area_highlights", "purposes", "last_read"}

func statsColumns(s analytics.Stats) []string {
	return []string{
		formatInt(s.DurationMs),
		strconv.Itoa(s.HighlightCount),
		strconv.Itoa(s.TextHighlightCount),
		strconv.Itoa(s.ImageHighlightCount),
		strconv.Itoa(s.PurposeCount),
		formatMillis(s.LastReadTime),
	}
}

// UsersReport lists the readers of one document.
type UsersReport struct {
	store ReportStore
}

func NewUsersReport(s ReportStore) *UsersReport {
	return &UsersReport{store: s}
}

func (r *UsersReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	if params.DocumentID == "" {
		return nil, ErrDocumentRequired
	}
	ds, err := dataset(ctx, r.store, params)
	if err != nil {
		return nil, err
	}
	rows := analytics.NewAggregator(ds, params.Selection).Users(params.DocumentID)

	t := table{
		headers: append([]string{"document_id", "owner_id"}, statsHeaders...),
		records: rows,
	}
	for _, row := range rows {
		t.rows = append(t.rows, append([]string{params.DocumentID, row.OwnerID}, statsColumns(row.Stats)...))
	}
	return encode(t, params.Format)
}

// PurposesReport lists one reader's purposes on one document.
type PurposesReport struct {
	store ReportStore
}

func NewPurposesReport(s ReportStore) *PurposesReport {
	return &PurposesReport{store: s}
}

func (r *PurposesReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	if params.DocumentID == "" {
		return nil, ErrDocumentRequired
	}
	if params.OwnerID == "" {
		return nil, ErrOwnerRequired
	}
	ds, err := dataset(ctx, r.store, params)
	if err != nil {
		return nil, err
	}
	rows := analytics.NewAggregator(ds, params.Selection).Purposes(params.DocumentID, params.OwnerID)

	t := table{
		headers: append([]string{"document_id", "owner_id", "purpose_id", "title", "color"}, statsHeaders...),
		records: rows,
	}
	for _, row := range rows {
		t.rows = append(t.rows, append([]string{params.DocumentID, params.OwnerID, row.PurposeID, row.Title, row.Color}, statsColumns(row.Stats)...))
	}
	return encode(t, params.Format)
}
