package engine

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rmax-ai/readgraph/pkg/blob"
	"go.uber.org/zap"
)

const exportsPrefix = "exports/"

// DefaultPruneInterval is how often stored exports are checked for expiry.
const DefaultPruneInterval = time.Hour

// exportKey names an exported archive: exports/<owner>/<doc>/<unix ms>-<uuid>.zip
func exportKey(ownerID, documentID string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s/%d-%s.zip", exportsPrefix, ownerID, documentID, at.UnixMilli(), uuid.New().String())
}

// exportTime recovers the creation time encoded in an export key.
func exportTime(key string) (time.Time, bool) {
	base := path.Base(key)
	ms, _, ok := strings.Cut(base, "-")
	if !ok || !strings.HasSuffix(base, ".zip") {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(n), true
}

// PruneWorker deletes exported archives older than the retention period.
type PruneWorker struct {
	blobs     blob.BlobStore
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewPruneWorker creates a worker. A retention of zero disables pruning.
func NewPruneWorker(blobs blob.BlobStore, retention, interval time.Duration, logger *zap.Logger) *PruneWorker {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PruneWorker{
		blobs:     blobs,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

func (w *PruneWorker) Run(ctx context.Context) {
	if w.retention <= 0 {
		w.logger.Info("export_pruning_disabled")
		return
	}

	w.logger.Info("prune_worker_started", zap.Duration("interval", w.interval), zap.Duration("retention", w.retention))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Initial run
	w.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("prune_worker_stopping")
			return
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *PruneWorker) prune(ctx context.Context) {
	deleted, err := w.Prune(ctx)
	if err != nil {
		w.logger.Error("export_prune_failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.logger.Info("exports_pruned", zap.Int("deleted", deleted), zap.Duration("retention", w.retention))
	}
}

// Prune removes expired exports and returns how many were deleted. Keys that
// carry no timestamp are left alone.
func (w *PruneWorker) Prune(ctx context.Context) (int, error) {
	if w.retention <= 0 {
		return 0, nil
	}
	keys, err := w.blobs.List(ctx, exportsPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list exports: %w", err)
	}

	cutoff := w.now().Add(-w.retention)
	deleted := 0
	for _, key := range keys {
		created, ok := exportTime(key)
		if !ok || !created.Before(cutoff) {
			continue
		}
		if err := w.blobs.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}
