package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/readgraph/pkg/store"
	"go.uber.org/zap"
)

// DefaultSnapshotInterval is how often the open canvas is saved.
const DefaultSnapshotInterval = 30 * time.Second

// CanvasSource yields the canvas of the open document.
type CanvasSource interface {
	Canvas() (*store.Canvas, error)
}

// SnapshotWorker periodically persists the open canvas. Unchanged graphs
// are not written again.
type SnapshotWorker struct {
	source   CanvasSource
	store    store.CanvasStore
	interval time.Duration
	logger   *zap.Logger

	last map[string][]byte
}

// NewSnapshotWorker creates a new worker
func NewSnapshotWorker(source CanvasSource, cs store.CanvasStore, interval time.Duration, logger *zap.Logger) *SnapshotWorker {
	if interval == 0 {
		interval = DefaultSnapshotInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotWorker{
		source:   source,
		store:    cs,
		interval: interval,
		logger:   logger,
		last:     make(map[string][]byte),
	}
}

// Run starts the snapshot loop
func (w *SnapshotWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("snapshot_worker_started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("snapshot_worker_stopped")
			return
		case <-ticker.C:
			saved, err := w.TakeSnapshot(ctx)
			if err != nil {
				w.logger.Error("snapshot_failed", zap.Error(err))
			} else if saved {
				w.logger.Debug("snapshot_created")
			}
		}
	}
}

// TakeSnapshot saves the open canvas if it changed since the last save.
// It reports whether anything was written.
func (w *SnapshotWorker) TakeSnapshot(ctx context.Context) (bool, error) {
	c, err := w.source.Canvas()
	if errors.Is(err, ErrNoDocumentOpen) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to capture canvas: %w", err)
	}

	key := store.PairKey(c.OwnerID, c.DocumentID)
	if prev, ok := w.last[key]; ok && bytes.Equal(prev, c.SerializedGraph) {
		return false, nil
	}

	if err := w.store.SaveCanvas(ctx, c); err != nil {
		PersistFailures.WithLabelValues(string(opCanvas)).Inc()
		return false, fmt.Errorf("store save failed: %w", err)
	}
	w.last[key] = append([]byte(nil), c.SerializedGraph...)
	return true, nil
}
