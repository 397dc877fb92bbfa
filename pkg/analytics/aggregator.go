package analytics

import (
	"sort"

	"github.com/rmax-ai/readgraph/pkg/store"
)

// Unassigned labels records whose purpose is not among the pair's purposes.
const (
	UnassignedTitle = "Unassigned"
	UnassignedColor = "#9e9e9e"
)

// Stats summarises reading activity for one user (or one purpose) on a document.
type Stats struct {
	DurationMs          int64 `json:"durationMs"`
	HighlightCount      int   `json:"highlightCount"`
	TextHighlightCount  int   `json:"textHighlightCount"`
	ImageHighlightCount int   `json:"imageHighlightCount"`
	PurposeCount        int   `json:"purposeCount"`
	LastReadTime        int64 `json:"lastReadTime"` // unix ms, 0 when never read
}

type DocumentRow struct {
	DocumentID               string  `json:"documentId"`
	TotalDurationMs          int64   `json:"totalDurationMs"`
	AverageDurationPerUserMs float64 `json:"averageDurationPerUserMs"`
	TotalHighlights          int     `json:"totalHighlights"`
	AverageHighlightsPerUser float64 `json:"averageHighlightsPerUser"`
	UserCount                int     `json:"userCount"`
}

type UserRow struct {
	OwnerID string `json:"ownerId"`
	Stats
}

type PurposeRow struct {
	PurposeID string `json:"purposeId"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Stats
}

// Aggregator computes the three rollup levels over a dataset.
type Aggregator struct {
	ds  *Dataset
	sel Selection

	documents []string
	users     []string
}

func NewAggregator(ds *Dataset, sel Selection) *Aggregator {
	if ds == nil {
		ds = NewDataset()
	}
	a := &Aggregator{ds: ds, sel: sel}

	docs := make(map[string]struct{})
	users := make(map[string]struct{})
	for _, p := range ds.pairs() {
		docs[p.documentID] = struct{}{}
		users[p.ownerID] = struct{}{}
	}
	a.documents = ordered(sel.DocumentIDs, docs)
	a.users = ordered(sel.UserIDs, users)
	return a
}

// ordered returns the explicit selection in its given order, or the present ids sorted.
func ordered(explicit []string, present map[string]struct{}) []string {
	if len(explicit) > 0 {
		return append([]string(nil), explicit...)
	}
	out := make([]string, 0, len(present))
	for id := range present {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Documents returns one row per selected document. Only users with at least
// one session on the document count towards its totals and averages.
func (a *Aggregator) Documents() []DocumentRow {
	rows := make([]DocumentRow, 0, len(a.documents))
	for _, doc := range a.documents {
		row := DocumentRow{DocumentID: doc}
		for _, u := range a.Users(doc) {
			row.UserCount++
			row.TotalDurationMs += u.DurationMs
			row.TotalHighlights += u.HighlightCount
		}
		if row.UserCount > 0 {
			row.AverageDurationPerUserMs = float64(row.TotalDurationMs) / float64(row.UserCount)
			row.AverageHighlightsPerUser = float64(row.TotalHighlights) / float64(row.UserCount)
		}
		rows = append(rows, row)
	}
	return rows
}

// Users returns one row per selected user with a session on the document.
func (a *Aggregator) Users(documentID string) []UserRow {
	var rows []UserRow
	for _, owner := range a.users {
		sessions := a.ds.sessions(owner, documentID)
		if len(sessions) == 0 {
			continue
		}
		st := accumulate(sessions, a.ds.highlights(owner, documentID))
		st.PurposeCount = len(a.ds.purposes(owner, documentID))
		rows = append(rows, UserRow{OwnerID: owner, Stats: st})
	}
	return rows
}

// Purposes returns one row per purpose of the user on the document, plus an
// Unassigned row when sessions or highlights reference unknown purposes.
func (a *Aggregator) Purposes(documentID, ownerID string) []PurposeRow {
	purposes := a.ds.purposes(ownerID, documentID)
	sessions := a.ds.sessions(ownerID, documentID)
	highlights := a.ds.highlights(ownerID, documentID)

	known := make(map[string]struct{}, len(purposes))
	rows := make([]PurposeRow, 0, len(purposes)+1)
	for _, p := range purposes {
		known[p.ID] = struct{}{}
		st := accumulate(filterSessions(sessions, func(id string) bool { return id == p.ID }),
			filterHighlights(highlights, func(id string) bool { return id == p.ID }))
		st.PurposeCount = 1
		rows = append(rows, PurposeRow{PurposeID: p.ID, Title: p.Title, Color: p.Color, Stats: st})
	}

	unknown := func(id string) bool { _, ok := known[id]; return !ok }
	orphanSessions := filterSessions(sessions, unknown)
	orphanHighlights := filterHighlights(highlights, unknown)
	if len(orphanSessions) > 0 || len(orphanHighlights) > 0 {
		rows = append(rows, PurposeRow{
			Title: UnassignedTitle,
			Color: UnassignedColor,
			Stats: accumulate(orphanSessions, orphanHighlights),
		})
	}
	return rows
}

func accumulate(sessions []store.Session, highlights []store.Highlight) Stats {
	var st Stats
	var last int64
	for _, s := range sessions {
		st.DurationMs += s.DurationMs
		if end := s.EndTime().UnixMilli(); end > last {
			last = end
		}
	}
	st.LastReadTime = last
	for _, h := range highlights {
		st.HighlightCount++
		if h.Type == store.HighlightArea {
			st.ImageHighlightCount++
		} else {
			st.TextHighlightCount++
		}
	}
	return st
}

func filterSessions(in []store.Session, keep func(purposeID string) bool) []store.Session {
	var out []store.Session
	for _, s := range in {
		if keep(s.PurposeID) {
			out = append(out, s)
		}
	}
	return out
}

func filterHighlights(in []store.Highlight, keep func(purposeID string) bool) []store.Highlight {
	var out []store.Highlight
	for _, h := range in {
		if keep(h.PurposeID) {
			out = append(out, h)
		}
	}
	return out
}
