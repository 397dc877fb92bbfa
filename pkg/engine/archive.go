package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rmax-ai/readgraph/pkg/archive"
	"github.com/rmax-ai/readgraph/pkg/blob"
	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/store"
	"go.uber.org/zap"
)

// ImportReport is what ImportArchives did to the open graph.
type ImportReport struct {
	Merged         graph.MergeResult       `json:"merged"`
	Stats          []archive.ArchiveStats  `json:"stats"`
	Failed         []archive.ImportFailure `json:"failed,omitempty"`
	DocumentStored bool                    `json:"documentStored"`
	DocumentSource string                  `json:"documentSource,omitempty"`

	// Warnings lists merged changes that could not be queued for storage.
	Warnings []string `json:"warnings,omitempty"`
}

// manifestLocked collects the open document's annotations.
func (w *Workspace) manifestLocked(dc *docContext) archive.Manifest {
	snap := dc.graph.Snapshot()
	purposes := make([]store.Purpose, 0, len(dc.purposeOrder))
	for _, id := range dc.purposeOrder {
		purposes = append(purposes, dc.purposes[id])
	}
	return archive.Manifest{
		OwnerID:    dc.ownerID,
		DocumentID: dc.documentID,
		Highlights: dc.graph.Highlights(),
		Nodes:      snap.Nodes,
		Edges:      snap.Edges,
		Purposes:   purposes,
	}
}

// WriteArchive writes the open document's archive to wr. The document blob is
// embedded when includeDocument is set and one is stored.
func (w *Workspace) WriteArchive(ctx context.Context, wr io.Writer, includeDocument bool) error {
	w.mu.Lock()
	dc, err := w.open()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	m := w.manifestLocked(dc)
	w.mu.Unlock()

	var doc io.Reader
	if includeDocument {
		data, err := w.docs.OpenDocumentBlob(ctx, m.DocumentID)
		switch {
		case err == nil:
			doc = bytes.NewReader(data)
		case errors.Is(err, blob.ErrNotFound):
			w.logger.Debug("export_without_document", zap.String("document_id", m.DocumentID))
		default:
			return fmt.Errorf("failed to read document blob: %w", err)
		}
	}
	return archive.Export(wr, m, doc)
}

// ExportArchive stores the open document's archive in the blob store and
// returns its key.
func (w *Workspace) ExportArchive(ctx context.Context, includeDocument bool) (string, error) {
	ownerID, documentID, ok := w.Document()
	if !ok {
		return "", ErrNoDocumentOpen
	}

	var buf bytes.Buffer
	if err := w.WriteArchive(ctx, &buf, includeDocument); err != nil {
		return "", err
	}

	key := exportKey(ownerID, documentID, time.Now())
	if err := w.blobs.Put(ctx, key, &buf); err != nil {
		return "", fmt.Errorf("failed to upload archive to blob store: %w", err)
	}

	w.logger.Info("archive_exported", zap.String("key", key), zap.String("document_id", documentID))
	return key, nil
}

// ImportArchives merges archives into the open graph. Imported annotations are
// re-homed on the open document and persisted under their original owners.
// The first embedded document is stored when the open document has none.
func (w *Workspace) ImportArchives(ctx context.Context, sources ...archive.Source) (*ImportReport, error) {
	res := archive.NewImporter(w.logger).Import(sources...)
	ImportArchivesTotal.WithLabelValues("ok").Add(float64(len(res.Stats)))
	ImportArchivesTotal.WithLabelValues("failed").Add(float64(len(res.Failed)))

	w.mu.Lock()
	dc, err := w.open()
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}

	for i := range res.Highlights {
		res.Highlights[i].DocumentID = dc.documentID
	}
	var added []store.Purpose
	for i := range res.Purposes {
		p := res.Purposes[i]
		p.DocumentID = dc.documentID
		res.Purposes[i] = p
		if _, exists := dc.purposes[p.ID]; exists {
			continue
		}
		dc.purposes[p.ID] = p
		dc.purposeOrder = append(dc.purposeOrder, p.ID)
		added = append(added, p)
	}

	merged := dc.graph.Merge(res.Graph(), res.Highlights, res.Purposes)

	var persisted []store.Highlight
	for _, h := range res.Highlights {
		if stored, ok := dc.graph.Highlight(h.ID); ok && stored.OwnerID == h.OwnerID {
			persisted = append(persisted, stored)
		}
	}
	documentID := dc.documentID
	var warnings []string
	if err := w.persistPurposes(added...); err != nil {
		warnings = append(warnings, err.Error())
	}
	if w.persister != nil && len(persisted) > 0 {
		if err := notPersisted(w.persister.SaveHighlights(persisted...)); err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	w.observeGraphLocked()
	w.mu.Unlock()

	report := &ImportReport{
		Merged:   merged,
		Stats:    res.Stats,
		Failed:   res.Failed,
		Warnings: warnings,
	}

	if res.Document != nil {
		_, err := w.docs.FetchDocumentBlob(ctx, documentID)
		switch {
		case errors.Is(err, blob.ErrNotFound):
			if err := w.docs.StoreDocumentBlob(ctx, documentID, res.Document); err != nil {
				return report, fmt.Errorf("failed to store imported document: %w", err)
			}
			report.DocumentStored = true
			report.DocumentSource = res.DocumentSource
		case err != nil:
			return report, fmt.Errorf("failed to check document blob: %w", err)
		}
	}

	w.logger.Info("archives_imported",
		zap.Int("archives", len(res.Stats)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("nodes", merged.Nodes),
		zap.Int("edges", merged.Edges),
		zap.Int("skipped", merged.Skipped),
	)
	return report, nil
}
