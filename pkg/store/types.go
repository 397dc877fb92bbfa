package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// HighlightType distinguishes text selections from rectangular area captures.
type HighlightType string

const (
	HighlightText HighlightType = "text"
	HighlightArea HighlightType = "area"
)

// Purpose is a named reading intent declared before highlighting.
type Purpose struct {
	ID          string `json:"id"`
	DocumentID  string `json:"documentId"`
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// BoundingRect is the highlight geometry emitted by the rendering surface.
// Width and Height describe the page the rect was measured against.
type BoundingRect struct {
	PageNumber int     `json:"pageNumber" validate:"gte=1"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1" validate:"gte=0"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Width      float64 `json:"width" validate:"gte=0"`
	Height     float64 `json:"height" validate:"gte=0"`
}

// Highlight is a user-marked span or region, tagged with the purpose active when it was made.
type Highlight struct {
	ID            string        `json:"id"`
	Type          HighlightType `json:"type"`
	DocumentID    string        `json:"documentId"`
	OwnerID       string        `json:"ownerId"`
	PurposeID     string        `json:"purposeId"`
	SessionID     string        `json:"sessionId"`
	Content       string        `json:"content"`
	BoundingRect  BoundingRect  `json:"boundingRect"`
	Timestamp     time.Time     `json:"timestamp"`
	PosPercentage float64       `json:"posPercentage"`
}

// ScrollSample is one point of a session's scroll trace.
type ScrollSample struct {
	ElapsedMs int64   `json:"elapsedMs"`
	Position  float64 `json:"position"` // normalised to [0,1]
}

// Session is one continuous interval of reading under a single purpose.
type Session struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"ownerId"`
	DocumentID     string         `json:"documentId"`
	PurposeID      string         `json:"purposeId"`
	StartTime      time.Time      `json:"startTime"`
	DurationMs     int64          `json:"duration"`
	ScrollSequence []ScrollSample `json:"scrollSequence"`
}

// EndTime returns StartTime + Duration.
func (s Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMs) * time.Millisecond)
}

// Clone returns a copy that shares no slice storage with s.
func (s Session) Clone() Session {
	c := s
	c.ScrollSequence = append([]ScrollSample(nil), s.ScrollSequence...)
	return c
}

// Canvas is the persisted graph snapshot for one (owner, document) pair.
type Canvas struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"ownerId"`
	DocumentID      string          `json:"documentId"`
	SerializedGraph json.RawMessage `json:"serializedGraph"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// PairKey builds the "ownerId_documentId" key used for grouped loads.
func PairKey(ownerID, documentID string) string {
	return ownerID + "_" + documentID
}

// HighlightStore persists highlights.
type HighlightStore interface {
	LoadHighlights(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Highlight, error)
	SaveHighlights(ctx context.Context, highlights []Highlight) error
	DeleteHighlights(ctx context.Context, ids []string) error
}

// PurposeStore persists purposes.
type PurposeStore interface {
	LoadPurposes(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Purpose, error)
	SavePurposes(ctx context.Context, purposes []Purpose) error
	DeletePurpose(ctx context.Context, id string) error
}

// SessionStore persists reading sessions.
type SessionStore interface {
	LoadSessions(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Session, error)
	SaveSessions(ctx context.Context, sessions []Session) error
}

// CanvasStore persists graph snapshots.
type CanvasStore interface {
	LoadCanvas(ctx context.Context, ownerID, documentID string) (*Canvas, error)
	SaveCanvas(ctx context.Context, canvas *Canvas) error
}

// Repository is the full persistence contract consumed by the engine.
type Repository interface {
	HighlightStore
	PurposeStore
	SessionStore
	CanvasStore
}

// RecordLoader is the read side needed by analytics.
type RecordLoader interface {
	LoadHighlights(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Highlight, error)
	LoadPurposes(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Purpose, error)
	LoadSessions(ctx context.Context, ownerIDs, documentIDs []string) (map[string][]Session, error)
}
