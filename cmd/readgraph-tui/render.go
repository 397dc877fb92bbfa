package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/rmax-ai/readgraph/pkg/analytics"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	traceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	markerGlyph = "◆"
)

func tableFor(level analytics.Level, docs []analytics.DocumentRow, users []analytics.UserRow, purposes []analytics.PurposeRow, width int) ([]table.Column, []table.Row) {
	switch level {
	case analytics.LevelUsers:
		cols := columns(width, "User", "Read", "Highlights", "Text", "Image", "Purposes", "Last read")
		rows := make([]table.Row, 0, len(users))
		for _, u := range users {
			rows = append(rows, append(table.Row{u.OwnerID}, statsCells(u.Stats)...))
		}
		return cols, rows
	case analytics.LevelPurposes:
		cols := columns(width, "Purpose", "Read", "Highlights", "Text", "Image", "Purposes", "Last read")
		rows := make([]table.Row, 0, len(purposes))
		for _, p := range purposes {
			title := p.Title
			if title == "" {
				title = p.PurposeID
			}
			rows = append(rows, append(table.Row{title}, statsCells(p.Stats)...))
		}
		return cols, rows
	default:
		cols := columns(width, "Document", "Users", "Read", "Avg/user", "Highlights", "Avg/user")
		rows := make([]table.Row, 0, len(docs))
		for _, d := range docs {
			rows = append(rows, table.Row{
				d.DocumentID,
				fmt.Sprintf("%d", d.UserCount),
				formatDuration(d.TotalDurationMs),
				formatDuration(int64(d.AverageDurationPerUserMs)),
				fmt.Sprintf("%d", d.TotalHighlights),
				fmt.Sprintf("%.1f", d.AverageHighlightsPerUser),
			})
		}
		return cols, rows
	}
}

// columns gives the first column double the width of the others.
func columns(width int, titles ...string) []table.Column {
	if width < 10*len(titles) {
		width = 10 * len(titles)
	}
	unit := width / (len(titles) + 1)
	cols := make([]table.Column, len(titles))
	for i, t := range titles {
		w := unit
		if i == 0 {
			w = 2 * unit
		}
		cols[i] = table.Column{Title: t, Width: w}
	}
	return cols
}

func statsCells(s analytics.Stats) table.Row {
	last := "never"
	if s.LastReadTime > 0 {
		last = time.UnixMilli(s.LastReadTime).Format("2006-01-02 15:04")
	}
	return table.Row{
		formatDuration(s.DurationMs),
		fmt.Sprintf("%d", s.HighlightCount),
		fmt.Sprintf("%d", s.TextHighlightCount),
		fmt.Sprintf("%d", s.ImageHighlightCount),
		fmt.Sprintf("%d", s.PurposeCount),
		last,
	}
}

func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}

// renderTimeline plots scroll position (rows, top of document first) against
// reading time (columns). Records the navigator does not emphasize are drawn dim
// underneath the emphasized ones.
func renderTimeline(tls []analytics.PairTimeline, nav *analytics.Navigator, width, height int) string {
	if width < 2 || height < 2 {
		return ""
	}
	if len(tls) == 0 {
		return subtleStyle.Render("No reading sessions yet.")
	}

	maxX := 0.0
	for _, tl := range tls {
		maxX = math.Max(maxX, float64(tl.TotalMs))
		for _, p := range tl.Points {
			maxX = math.Max(maxX, p.X)
		}
	}
	if maxX == 0 {
		maxX = 1
	}

	grid := make([][]string, height)
	for r := range grid {
		grid[r] = make([]string, width)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}
	cell := func(p analytics.Point) (int, int) {
		c := int(math.Round(p.X / maxX * float64(width-1)))
		r := int(math.Round(clamp(p.Y, 0, 100) / 100 * float64(height-1)))
		return r, c
	}

	for _, emphasized := range []bool{false, true} {
		for _, tl := range tls {
			for _, p := range tl.Points {
				if nav.Emphasized(tl.OwnerID, tl.DocumentID, segmentPurpose(tl, p.X)) != emphasized {
					continue
				}
				r, c := cell(p)
				if emphasized {
					grid[r][c] = traceStyle.Render("•")
				} else {
					grid[r][c] = dimStyle.Render("·")
				}
			}
			for _, mk := range tl.Markers {
				if nav.Emphasized(tl.OwnerID, tl.DocumentID, mk.PurposeID) != emphasized {
					continue
				}
				r, c := cell(mk.Point)
				if emphasized && mk.Color != "" {
					grid[r][c] = lipgloss.NewStyle().Foreground(lipgloss.Color(mk.Color)).Render(markerGlyph)
				} else {
					grid[r][c] = dimStyle.Render(markerGlyph)
				}
			}
		}
	}

	var sb strings.Builder
	for r, row := range grid {
		sb.WriteString(strings.Join(row, ""))
		if r < len(grid)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// segmentPurpose returns the purpose of the session covering x.
func segmentPurpose(tl analytics.PairTimeline, x float64) string {
	for _, s := range tl.Segments {
		if x >= s.StartX && x <= s.EndX {
			return s.PurposeID
		}
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
