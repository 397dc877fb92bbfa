package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	err   error
	users map[string][]analytics.UserRow
}

func (f *fakeSource) Documents(ctx context.Context, sel analytics.Selection) ([]analytics.DocumentRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []analytics.DocumentRow{
		{DocumentID: "paper", UserCount: 2, TotalDurationMs: 90_000, TotalHighlights: 3},
		{DocumentID: "thesis", UserCount: 1, TotalDurationMs: 1_000},
	}, nil
}

func (f *fakeSource) Users(ctx context.Context, documentID string, sel analytics.Selection) ([]analytics.UserRow, error) {
	return f.users[documentID], nil
}

func (f *fakeSource) Purposes(ctx context.Context, documentID, ownerID string, sel analytics.Selection) ([]analytics.PurposeRow, error) {
	return []analytics.PurposeRow{{PurposeID: "p1", Title: "Methods"}, {PurposeID: "p2"}}, nil
}

func (f *fakeSource) Timeline(ctx context.Context, sel analytics.Selection) ([]analytics.PairTimeline, error) {
	return []analytics.PairTimeline{pairTimeline("alice", "paper", "p1")}, nil
}

func pairTimeline(owner, doc, purpose string) analytics.PairTimeline {
	return analytics.PairTimeline{
		OwnerID:    owner,
		DocumentID: doc,
		Points:     []analytics.Point{{X: 0, Y: 0}, {X: 500, Y: 50}, {X: 1000, Y: 100}},
		Markers:    []analytics.Marker{{HighlightID: "h1", PurposeID: purpose, Point: analytics.Point{X: 500, Y: 60}}},
		Segments:   []analytics.Segment{{SessionID: "s1", PurposeID: purpose, StartX: 0, EndX: 1000}},
		TotalMs:    1000,
	}
}

func newTestModel(src source) model {
	return initialModel(src, time.Hour)
}

// step feeds msg to the model and drops the returned command.
func step(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func TestFetchAndDrillDown(t *testing.T) {
	src := &fakeSource{users: map[string][]analytics.UserRow{
		"paper": {{OwnerID: "alice"}, {OwnerID: "bob"}},
	}}
	m := newTestModel(src)

	m = step(t, m, m.fetch()())
	require.True(t, m.ready)
	require.Len(t, m.table.Rows(), 2)
	assert.Equal(t, "paper", m.table.Rows()[0][0])

	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, analytics.LevelUsers, m.nav.Level())
	assert.Equal(t, "paper", m.nav.Document())

	m = step(t, m, m.fetch()())
	require.Len(t, m.table.Rows(), 2)
	assert.Equal(t, "alice", m.table.Rows()[0][0])

	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, analytics.LevelPurposes, m.nav.Level())
	assert.Equal(t, "alice", m.nav.User())

	m = step(t, m, m.fetch()())
	require.Len(t, m.table.Rows(), 2)
	assert.Equal(t, "Methods", m.table.Rows()[0][0])
	assert.Equal(t, "p2", m.table.Rows()[1][0])

	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "p1", m.nav.FocusedPurpose())
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "", m.nav.FocusedPurpose())

	m = step(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, analytics.LevelUsers, m.nav.Level())
	assert.Equal(t, "", m.nav.User())
}

func TestStaleResponsesAreDropped(t *testing.T) {
	m := newTestModel(&fakeSource{})
	stale := m.fetch()()

	m.nav.SelectDocument("paper")
	m = step(t, m, stale)
	assert.Empty(t, m.table.Rows())
	assert.True(t, m.ready)
}

func TestFetchErrorShowsOffline(t *testing.T) {
	m := newTestModel(&fakeSource{err: errors.New("connection refused")})
	m = step(t, m, m.fetch()())
	assert.Contains(t, m.View(), "Offline: connection refused")
}

func TestRenderTimeline(t *testing.T) {
	nav := analytics.NewNavigator()
	tls := []analytics.PairTimeline{pairTimeline("alice", "paper", "p1"), pairTimeline("bob", "thesis", "p9")}

	out := renderTimeline(tls, nav, 20, 5)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, out, "•")
	assert.Contains(t, out, markerGlyph)
	assert.NotContains(t, out, "·")

	nav.SelectDocument("paper")
	require.NoError(t, nav.SelectUser("alice"))
	nav.FocusPurpose("other")
	out = renderTimeline(tls, nav, 20, 5)
	assert.Contains(t, out, "·")
	assert.NotContains(t, out, "•")
}

func TestRenderTimelineEmpty(t *testing.T) {
	assert.Contains(t, renderTimeline(nil, analytics.NewNavigator(), 20, 5), "No reading sessions")
	assert.Empty(t, renderTimeline(nil, analytics.NewNavigator(), 1, 1))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1m30s", formatDuration(90_000))
	assert.Equal(t, "0s", formatDuration(0))
}
