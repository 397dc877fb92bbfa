package reports

import (
	"context"
	"io"

	"github.com/rmax-ai/readgraph/pkg/analytics"
)

// TimelineReport flattens the stitched timelines: one "sample" row per
// scroll point and one "highlight" row per marker.
type TimelineReport struct {
	store ReportStore
}

func NewTimelineReport(s ReportStore) *TimelineReport {
	return &TimelineReport{store: s}
}

func (r *TimelineReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	ds, err := dataset(ctx, r.store, params)
	if err != nil {
		return nil, err
	}
	timelines := analytics.Timeline(ds, params.Selection)

	t := table{
		headers: []string{"owner_id", "document_id", "kind", "x_ms", "y_percent", "highlight_id", "purpose_id", "color"},
		records: timelines,
	}
	for _, tl := range timelines {
		for _, p := range tl.Points {
			t.rows = append(t.rows, []string{tl.OwnerID, tl.DocumentID, "sample", formatFloat(p.X), formatFloat(p.Y), "", "", ""})
		}
		for _, m := range tl.Markers {
			t.rows = append(t.rows, []string{tl.OwnerID, tl.DocumentID, "highlight", formatFloat(m.X), formatFloat(m.Y), m.HighlightID, m.PurposeID, m.Color})
		}
	}
	return encode(t, params.Format)
}
