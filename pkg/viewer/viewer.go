// Package viewer describes the document rendering surface as seen by the
// session tracker and the annotation graph, and the normalisation math that
// maps its pixel geometry onto [0,1] document positions.
//
// Page height is assumed uniform across pages.
package viewer

import (
	"errors"
	"math"
	"sync"
)

// ErrNoPages is returned when the viewer reports an empty or unmeasured document.
var ErrNoPages = errors.New("viewer has no measurable pages")

// Metrics is the current layout of the rendered document.
type Metrics struct {
	PageHeight float64 `json:"pageHeight"`
	PageCount  int     `json:"pageCount"`
}

// Valid reports whether the metrics can normalise positions.
func (m Metrics) Valid() bool {
	return m.PageHeight > 0 && m.PageCount > 0
}

// DocumentHeight is the total scrollable height.
func (m Metrics) DocumentHeight() float64 {
	return m.PageHeight * float64(m.PageCount)
}

// MetricsSource reports page geometry.
type MetricsSource interface {
	Metrics() (Metrics, error)
}

// Viewer is a live document viewer. ScrollTop is the pixel offset of the viewport top.
type Viewer interface {
	MetricsSource
	ScrollTop() (float64, error)
}

// NormalizeScroll maps a scroll offset onto [0,1] of the document height.
func NormalizeScroll(scrollTop float64, m Metrics) (float64, error) {
	if !m.Valid() {
		return 0, ErrNoPages
	}
	return clamp01(scrollTop / m.DocumentHeight()), nil
}

// PositionPercentage maps a highlight's top edge on a page onto [0,1] of the
// document. rectHeight is the page height the rect was measured against; when
// it is zero the viewer's page height is used.
func PositionPercentage(page int, y1, rectHeight float64, m Metrics) (float64, error) {
	if !m.Valid() {
		return 0, ErrNoPages
	}
	h := rectHeight
	if h <= 0 {
		h = m.PageHeight
	}
	if page < 1 {
		page = 1
	}
	return clamp01((float64(page-1)*h + y1) / (h * float64(m.PageCount))), nil
}

// Sample reads the viewer's current normalised scroll position.
func Sample(v Viewer) (float64, error) {
	m, err := v.Metrics()
	if err != nil {
		return 0, err
	}
	top, err := v.ScrollTop()
	if err != nil {
		return 0, err
	}
	return NormalizeScroll(top, m)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Remote holds the last layout and scroll offset reported by an out-of-process
// rendering surface. It is safe for concurrent use.
type Remote struct {
	mu     sync.RWMutex
	layout Metrics
	top    float64
}

func NewRemote(layout Metrics) *Remote {
	return &Remote{layout: layout}
}

// Report records a new layout and scroll offset.
func (r *Remote) Report(layout Metrics, scrollTop float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layout = layout
	r.top = scrollTop
}

// Scroll records a new scroll offset only.
func (r *Remote) Scroll(scrollTop float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.top = scrollTop
}

func (r *Remote) Metrics() (Metrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.layout.Valid() {
		return r.layout, ErrNoPages
	}
	return r.layout, nil
}

func (r *Remote) ScrollTop() (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.top, nil
}
