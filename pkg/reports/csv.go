package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rmax-ai/readgraph/pkg/analytics"
)

// table is a rendered report before encoding.
type table struct {
	headers []string
	rows    [][]string
	records interface{} // encoded as-is for JSON output
}

func encode(t table, format ReportFormat) (io.Reader, error) {
	buf := &bytes.Buffer{}

	if format == ReportFormatJSON {
		enc := json.NewEncoder(buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(t.records); err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		return buf, nil
	}

	writer := csv.NewWriter(buf)
	if err := writer.Write(t.headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("csv writer error: %w", err)
	}
	return buf, nil
}

func dataset(ctx context.Context, s ReportStore, params ReportParams) (*analytics.Dataset, error) {
	if params.Dataset != nil {
		return params.Dataset, nil
	}
	if s == nil {
		return nil, fmt.Errorf("no report store configured")
	}
	return analytics.Load(ctx, s, params.Selection)
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// formatMillis renders a unix-ms timestamp, or "" for zero.
func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
