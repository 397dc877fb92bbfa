package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReportStore struct {
	sessions   map[string][]store.Session
	highlights map[string][]store.Highlight
	purposes   map[string][]store.Purpose
	err        error
}

func (m *mockReportStore) LoadSessions(ctx context.Context, owners, docs []string) (map[string][]store.Session, error) {
	return m.sessions, m.err
}

func (m *mockReportStore) LoadHighlights(ctx context.Context, owners, docs []string) (map[string][]store.Highlight, error) {
	return m.highlights, m.err
}

func (m *mockReportStore) LoadPurposes(ctx context.Context, owners, docs []string) (map[string][]store.Purpose, error) {
	return m.purposes, m.err
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newMockStore() *mockReportStore {
	ad := store.PairKey("alice", "doc1")
	bd := store.PairKey("bob", "doc1")
	return &mockReportStore{
		sessions: map[string][]store.Session{
			ad: {
				{ID: "s1", OwnerID: "alice", DocumentID: "doc1", PurposeID: "p1", StartTime: t0, DurationMs: 60000,
					ScrollSequence: []store.ScrollSample{{ElapsedMs: 0, Position: 0}, {ElapsedMs: 30000, Position: 0.5}}},
			},
			bd: {
				{ID: "s2", OwnerID: "bob", DocumentID: "doc1", PurposeID: "p2", StartTime: t0, DurationMs: 20000},
			},
		},
		highlights: map[string][]store.Highlight{
			ad: {
				{ID: "h1", Type: store.HighlightText, OwnerID: "alice", DocumentID: "doc1", PurposeID: "p1", SessionID: "s1",
					Timestamp: t0.Add(10 * time.Second), PosPercentage: 0.25},
			},
		},
		purposes: map[string][]store.Purpose{
			ad: {{ID: "p1", OwnerID: "alice", DocumentID: "doc1", Title: "Methods", Color: "#ff0000"}},
			bd: {{ID: "p2", OwnerID: "bob", DocumentID: "doc1", Title: "Skim", Color: "#00ff00"}},
		},
	}
}

func readCSV(t *testing.T, r io.Reader) [][]string {
	t.Helper()
	records, err := csv.NewReader(r).ReadAll()
	require.NoError(t, err)
	return records
}

func TestDocumentsReport(t *testing.T) {
	gen, err := NewReportGenerator(ReportTypeDocuments, newMockStore())
	require.NoError(t, err)

	r, err := gen.Generate(context.Background(), ReportParams{})
	require.NoError(t, err)
	records := readCSV(t, r)

	require.Len(t, records, 2)
	assert.Equal(t, "document_id", records[0][0])
	assert.Equal(t, []string{"doc1", "2", "80000", "40000.00", "1", "0.50"}, records[1])
}

func TestUsersReport(t *testing.T) {
	gen := NewUsersReport(newMockStore())

	_, err := gen.Generate(context.Background(), ReportParams{})
	assert.ErrorIs(t, err, ErrDocumentRequired)

	r, err := gen.Generate(context.Background(), ReportParams{DocumentID: "doc1"})
	require.NoError(t, err)
	records := readCSV(t, r)

	require.Len(t, records, 3)
	assert.Equal(t, "alice", records[1][1])
	assert.Equal(t, "60000", records[1][2])
	assert.Equal(t, "1", records[1][3])
	assert.Equal(t, "bob", records[2][1])
	assert.Equal(t, "0", records[2][3])
}

func TestPurposesReport(t *testing.T) {
	gen := NewPurposesReport(newMockStore())

	_, err := gen.Generate(context.Background(), ReportParams{DocumentID: "doc1"})
	assert.ErrorIs(t, err, ErrOwnerRequired)

	r, err := gen.Generate(context.Background(), ReportParams{DocumentID: "doc1", OwnerID: "alice"})
	require.NoError(t, err)
	records := readCSV(t, r)

	require.Len(t, records, 2)
	assert.Equal(t, []string{"doc1", "alice", "p1", "Methods", "#ff0000"}, records[1][:5])
}

func TestTimelineReport(t *testing.T) {
	gen := NewTimelineReport(newMockStore())

	r, err := gen.Generate(context.Background(), ReportParams{Selection: analytics.Selection{UserIDs: []string{"alice"}}})
	require.NoError(t, err)
	records := readCSV(t, r)

	// header + 2 samples + 1 highlight
	require.Len(t, records, 4)
	assert.Equal(t, "sample", records[1][2])
	assert.Equal(t, "highlight", records[3][2])
	assert.Equal(t, "10000.00", records[3][3])
	assert.Equal(t, "25.00", records[3][4])
	assert.Equal(t, "h1", records[3][5])
}

func TestReportJSONFormat(t *testing.T) {
	gen := NewDocumentsReport(newMockStore())

	r, err := gen.Generate(context.Background(), ReportParams{Format: ReportFormatJSON})
	require.NoError(t, err)

	var rows []analytics.DocumentRow
	require.NoError(t, json.NewDecoder(r).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].UserCount)
}

func TestReportUsesProvidedDataset(t *testing.T) {
	failing := &mockReportStore{err: errors.New("db down")}
	gen := NewDocumentsReport(failing)

	_, err := gen.Generate(context.Background(), ReportParams{})
	assert.Error(t, err)

	ds, err := analytics.Load(context.Background(), newMockStore(), analytics.Selection{})
	require.NoError(t, err)
	r, err := gen.Generate(context.Background(), ReportParams{Dataset: ds})
	require.NoError(t, err)
	assert.Len(t, readCSV(t, r), 2)
}

func TestNewReportGeneratorUnknownType(t *testing.T) {
	_, err := NewReportGenerator("bogus", newMockStore())
	assert.Error(t, err)
}
