// Package session tracks one live reading session: elapsed time and a
// sampled scroll trace, across visibility interruptions.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/viewer"
	"go.uber.org/zap"
)

// DefaultInterval is the scroll sampling cadence.
const DefaultInterval = 500 * time.Millisecond

var (
	ErrNoViewerAttached = errors.New("no document viewer attached")
	ErrNoActivePurpose  = errors.New("no active purpose")
)

// State is the tracker lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Suspended
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	default:
		return "idle"
	}
}

// Sink receives session records on suspend and stop. Implementations must not block.
type Sink interface {
	SessionUpdated(s store.Session)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(store.Session)

func (f SinkFunc) SessionUpdated(s store.Session) { f(s) }

// Tracker owns the single live session for one (owner, document) context.
type Tracker struct {
	ownerID    string
	documentID string
	sink       Sink
	logger     *zap.Logger

	mu       sync.Mutex
	viewer   viewer.Viewer
	interval time.Duration
	now      func() time.Time
	state    State
	current  store.Session
	last     *store.Session

	// gen identifies the armed timer; a tick carrying an older value is stale.
	gen  uint64
	stop chan struct{}
}

// NewTracker creates an idle tracker. sink may be nil.
func NewTracker(ownerID, documentID string, sink Sink, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		ownerID:    ownerID,
		documentID: documentID,
		sink:       sink,
		logger:     logger,
		interval:   DefaultInterval,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// SetInterval changes the sampling cadence. It applies from the next arm.
func (t *Tracker) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
}

func (t *Tracker) AttachViewer(v viewer.Viewer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewer = v
}

// DetachViewer removes the viewer. A live session keeps its record; ticks become no-ops.
func (t *Tracker) DetachViewer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewer = nil
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Current returns a copy of the live session, if any.
func (t *Tracker) Current() (store.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Idle {
		return store.Session{}, false
	}
	return t.current.Clone(), true
}

// SessionID returns the live session id, or "" when idle.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Idle {
		return ""
	}
	return t.current.ID
}

// LastSession returns the most recently stopped session.
func (t *Tracker) LastSession() (store.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return store.Session{}, false
	}
	return t.last.Clone(), true
}

// StartSession stops any live session and starts a new one under purposeID.
func (t *Tracker) StartSession(ctx context.Context, purposeID string) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return store.Session{}, err
	}

	t.mu.Lock()
	if t.viewer == nil {
		t.mu.Unlock()
		return store.Session{}, ErrNoViewerAttached
	}
	if purposeID == "" {
		t.mu.Unlock()
		return store.Session{}, ErrNoActivePurpose
	}

	var handoff []store.Session
	if prev, ok := t.stopLocked(); ok {
		handoff = append(handoff, prev)
	}

	pos, err := viewer.Sample(t.viewer)
	if err != nil {
		t.logger.Debug("initial_sample_failed", zap.Error(err))
		pos = 0
	}

	t.current = store.Session{
		ID:             uuid.New().String(),
		OwnerID:        t.ownerID,
		DocumentID:     t.documentID,
		PurposeID:      purposeID,
		StartTime:      t.now(),
		ScrollSequence: []store.ScrollSample{{ElapsedMs: 0, Position: pos}},
	}
	t.state = Running
	t.armLocked()
	started := t.current.Clone()
	t.mu.Unlock()

	t.logger.Info("session_started",
		zap.String("session_id", started.ID),
		zap.String("purpose_id", purposeID),
	)
	t.handoff(handoff...)
	return started, nil
}

// SampleTick appends the current scroll position and updates the duration.
// It is a no-op unless running.
func (t *Tracker) SampleTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sampleLocked()
}

// Suspend pauses sampling. Duration stays at its last tick value.
func (t *Tracker) Suspend() {
	t.mu.Lock()
	if t.state != Running {
		t.mu.Unlock()
		return
	}
	t.disarmLocked()
	t.state = Suspended
	snapshot := t.current.Clone()
	t.mu.Unlock()

	t.logger.Debug("session_suspended", zap.String("session_id", snapshot.ID))
	t.handoff(snapshot)
}

// Resume restarts sampling for the suspended session.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Suspended {
		return
	}
	t.state = Running
	t.armLocked()
	t.logger.Debug("session_resumed", zap.String("session_id", t.current.ID))
}

// StopSession freezes the live session and hands it to the sink. Safe when idle.
func (t *Tracker) StopSession() (store.Session, bool) {
	t.mu.Lock()
	frozen, ok := t.stopLocked()
	t.mu.Unlock()

	if ok {
		t.logger.Info("session_stopped",
			zap.String("session_id", frozen.ID),
			zap.Int64("duration_ms", frozen.DurationMs),
			zap.Int("samples", len(frozen.ScrollSequence)),
		)
		t.handoff(frozen)
	}
	return frozen, ok
}

func (t *Tracker) stopLocked() (store.Session, bool) {
	if t.state == Idle {
		return store.Session{}, false
	}
	t.disarmLocked()
	frozen := t.current.Clone()
	t.last = &frozen
	t.current = store.Session{}
	t.state = Idle
	return frozen.Clone(), true
}

func (t *Tracker) sampleLocked() {
	if t.state != Running || t.viewer == nil {
		return
	}
	pos, err := viewer.Sample(t.viewer)
	if err != nil {
		t.logger.Debug("scroll_sample_failed", zap.String("session_id", t.current.ID), zap.Error(err))
		return
	}
	elapsed := t.now().Sub(t.current.StartTime).Milliseconds()
	if elapsed < t.current.DurationMs {
		elapsed = t.current.DurationMs
	}

	next := t.current
	next.ScrollSequence = make([]store.ScrollSample, len(t.current.ScrollSequence), len(t.current.ScrollSequence)+1)
	copy(next.ScrollSequence, t.current.ScrollSequence)
	next.ScrollSequence = append(next.ScrollSequence, store.ScrollSample{ElapsedMs: elapsed, Position: pos})
	next.DurationMs = elapsed
	t.current = next
}

// armLocked starts a fresh timer goroutine, always disarming the previous one first.
func (t *Tracker) armLocked() {
	t.disarmLocked()
	stop := make(chan struct{})
	t.stop = stop
	go t.loop(t.gen, t.interval, stop)
}

func (t *Tracker) disarmLocked() {
	t.gen++
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Tracker) loop(gen uint64, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if gen != t.gen {
				t.mu.Unlock()
				return
			}
			t.sampleLocked()
			t.mu.Unlock()
		}
	}
}

func (t *Tracker) handoff(sessions ...store.Session) {
	if t.sink == nil {
		return
	}
	for _, s := range sessions {
		t.sink.SessionUpdated(s)
	}
}
