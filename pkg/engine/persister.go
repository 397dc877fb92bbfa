package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rmax-ai/readgraph/pkg/store"
	"go.uber.org/zap"
)

const (
	// DefaultQueueSize is the persister's buffered queue length.
	DefaultQueueSize = 256
	// WriteTimeout bounds a single background write.
	WriteTimeout = 5 * time.Second
)

var ErrQueueFull = errors.New("persist queue full")

type opKind string

const (
	opSessions         opKind = "sessions"
	opHighlights       opKind = "highlights"
	opDeleteHighlights opKind = "delete_highlights"
	opPurposes         opKind = "purposes"
	opDeletePurpose    opKind = "delete_purpose"
	opCanvas           opKind = "canvas"
	opFlush            opKind = "flush"
)

type persistOp struct {
	kind       opKind
	sessions   []store.Session
	highlights []store.Highlight
	purposes   []store.Purpose
	ids        []string
	canvas     *store.Canvas
	done       chan struct{}
}

// Persister writes records in the background so that timer ticks and UI
// callbacks never wait on storage. Operations apply in enqueue order.
type Persister struct {
	repo     store.Repository
	canvases store.CanvasStore
	queue    chan persistOp
	logger   *zap.Logger
}

// NewPersister creates a persister. canvases may be nil to use repo.
func NewPersister(repo store.Repository, canvases store.CanvasStore, logger *zap.Logger, queueSize int) *Persister {
	if canvases == nil {
		canvases = repo
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Persister{
		repo:     repo,
		canvases: canvases,
		queue:    make(chan persistOp, queueSize),
		logger:   logger,
	}
}

// Run applies queued operations until ctx is cancelled, then drains what is left.
func (p *Persister) Run(ctx context.Context) {
	p.logger.Info("persister_started")

	// Cancellation only ends the loop. Writes already dequeued still complete.
	writeCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			p.stop()
			return
		}
		select {
		case <-ctx.Done():
			p.stop()
			return
		case o := <-p.queue:
			p.apply(writeCtx, o)
		}
	}
}

func (p *Persister) stop() {
	p.drain()
	p.logger.Info("persister_stopped")
}

func (p *Persister) drain() {
	for {
		select {
		case o := <-p.queue:
			p.apply(context.Background(), o)
		default:
			return
		}
	}
}

func (p *Persister) apply(ctx context.Context, o persistOp) {
	if o.kind == opFlush {
		close(o.done)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()

	var err error
	switch o.kind {
	case opSessions:
		err = p.repo.SaveSessions(ctx, o.sessions)
	case opHighlights:
		err = p.repo.SaveHighlights(ctx, o.highlights)
	case opDeleteHighlights:
		err = p.repo.DeleteHighlights(ctx, o.ids)
	case opPurposes:
		err = p.repo.SavePurposes(ctx, o.purposes)
	case opDeletePurpose:
		for _, id := range o.ids {
			if e := p.repo.DeletePurpose(ctx, id); e != nil && !errors.Is(e, store.ErrNotFound) {
				err = e
			}
		}
	case opCanvas:
		err = p.canvases.SaveCanvas(ctx, o.canvas)
	}

	if err != nil {
		PersistFailures.WithLabelValues(string(o.kind)).Inc()
		p.logger.Error("persist_failed", zap.String("kind", string(o.kind)), zap.Error(err))
	}
}

func (p *Persister) enqueue(o persistOp) error {
	select {
	case p.queue <- o:
		return nil
	default:
		PersistFailures.WithLabelValues(string(o.kind)).Inc()
		p.logger.Error("persist_queue_full", zap.String("kind", string(o.kind)))
		return ErrQueueFull
	}
}

// SessionUpdated implements session.Sink.
func (p *Persister) SessionUpdated(s store.Session) {
	_ = p.enqueue(persistOp{kind: opSessions, sessions: []store.Session{s}})
}

func (p *Persister) SaveHighlights(hs ...store.Highlight) error {
	if len(hs) == 0 {
		return nil
	}
	return p.enqueue(persistOp{kind: opHighlights, highlights: hs})
}

func (p *Persister) DeleteHighlights(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return p.enqueue(persistOp{kind: opDeleteHighlights, ids: ids})
}

func (p *Persister) SavePurposes(ps ...store.Purpose) error {
	if len(ps) == 0 {
		return nil
	}
	return p.enqueue(persistOp{kind: opPurposes, purposes: ps})
}

func (p *Persister) DeletePurpose(id string) error {
	return p.enqueue(persistOp{kind: opDeletePurpose, ids: []string{id}})
}

func (p *Persister) SaveCanvas(c *store.Canvas) error {
	return p.enqueue(persistOp{kind: opCanvas, canvas: c})
}

// Flush blocks until every operation enqueued before it has been applied.
// Run must be active.
func (p *Persister) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case p.queue <- persistOp{kind: opFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
