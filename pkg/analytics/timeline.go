package analytics

import (
	"sort"

	"github.com/rmax-ai/readgraph/pkg/store"
)

// Point is a timeline coordinate: X in ms since the pair's first session
// (idle gaps removed), Y as a percentage of the document height.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Marker places a highlight on the timeline.
type Marker struct {
	HighlightID string              `json:"highlightId"`
	PurposeID   string              `json:"purposeId"`
	Color       string              `json:"color"`
	Type        store.HighlightType `json:"type"`
	Point
}

// Segment is the span one session occupies on the stitched timeline.
type Segment struct {
	SessionID string  `json:"sessionId"`
	PurposeID string  `json:"purposeId"`
	Color     string  `json:"color"`
	StartX    float64 `json:"startX"`
	EndX      float64 `json:"endX"`
}

// PairTimeline is the continuous reading trace of one user on one document.
type PairTimeline struct {
	OwnerID    string    `json:"ownerId"`
	DocumentID string    `json:"documentId"`
	Points     []Point   `json:"points"`
	Markers    []Marker  `json:"markers"`
	Segments   []Segment `json:"segments"`
	TotalMs    int64     `json:"totalMs"`
}

// Timeline stitches every selected pair's sessions end to end. Each session
// is offset by the summed durations of the sessions before it.
func Timeline(ds *Dataset, sel Selection) []PairTimeline {
	if ds == nil {
		return nil
	}
	var out []PairTimeline
	for _, p := range ds.pairs() {
		if !selected(sel.UserIDs, p.ownerID) || !selected(sel.DocumentIDs, p.documentID) {
			continue
		}
		sessions := append([]store.Session(nil), ds.sessions(p.ownerID, p.documentID)...)
		if len(sessions) == 0 {
			continue
		}
		sort.SliceStable(sessions, func(i, j int) bool {
			return sessions[i].StartTime.Before(sessions[j].StartTime)
		})
		out = append(out, pairTimeline(p, sessions, ds.highlights(p.ownerID, p.documentID), ds.purposes(p.ownerID, p.documentID)))
	}
	return out
}

func pairTimeline(p pair, sessions []store.Session, highlights []store.Highlight, purposes []store.Purpose) PairTimeline {
	colors := make(map[string]string, len(purposes))
	for _, pp := range purposes {
		colors[pp.ID] = pp.Color
	}
	color := func(purposeID string) string {
		if c, ok := colors[purposeID]; ok && c != "" {
			return c
		}
		return UnassignedColor
	}

	tl := PairTimeline{OwnerID: p.ownerID, DocumentID: p.documentID}
	intercepts := make(map[string]int64, len(sessions))

	var durationIntercept int64
	for _, s := range sessions {
		intercepts[s.ID] = durationIntercept
		for _, sample := range s.ScrollSequence {
			tl.Points = append(tl.Points, Point{
				X: float64(sample.ElapsedMs + durationIntercept),
				Y: sample.Position * 100,
			})
		}
		tl.Segments = append(tl.Segments, Segment{
			SessionID: s.ID,
			PurposeID: s.PurposeID,
			Color:     color(s.PurposeID),
			StartX:    float64(durationIntercept),
			EndX:      float64(durationIntercept + s.DurationMs),
		})
		durationIntercept += s.DurationMs
	}
	tl.TotalMs = durationIntercept

	for _, h := range highlights {
		s, ok := owningSession(sessions, h)
		if !ok {
			continue
		}
		rel := h.Timestamp.Sub(s.StartTime).Milliseconds()
		tl.Markers = append(tl.Markers, Marker{
			HighlightID: h.ID,
			PurposeID:   h.PurposeID,
			Color:       color(h.PurposeID),
			Type:        h.Type,
			Point: Point{
				X: float64(rel + intercepts[s.ID]),
				Y: h.PosPercentage * 100,
			},
		})
	}
	sort.SliceStable(tl.Markers, func(i, j int) bool { return tl.Markers[i].X < tl.Markers[j].X })
	return tl
}

// owningSession finds the highlight's session by id, falling back to the
// session whose interval contains the highlight timestamp.
func owningSession(sessions []store.Session, h store.Highlight) (store.Session, bool) {
	for _, s := range sessions {
		if s.ID == h.SessionID {
			return s, true
		}
	}
	for _, s := range sessions {
		if !h.Timestamp.Before(s.StartTime) && !h.Timestamp.After(s.EndTime()) {
			return s, true
		}
	}
	return store.Session{}, false
}
