// Package archive packs an annotation set into a portable zip archive and
// merges archives from several authors without id collisions.
package archive

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/store"
)

const (
	ManifestName = "annotations.json"
	DocumentName = "document.pdf"
)

var (
	ErrNoManifest = errors.New("archive has no manifest")
	ErrNoOwner    = errors.New("manifest has no owner id")
)

// Manifest is the JSON document stored in every archive.
type Manifest struct {
	OwnerID    string            `json:"ownerId"`
	DocumentID string            `json:"documentId,omitempty"`
	ExportedAt time.Time         `json:"exportedAt,omitempty"`
	Highlights []store.Highlight `json:"highlights"`
	Nodes      []graph.Node      `json:"nodes"`
	Edges      []graph.Edge      `json:"edges"`
	Purposes   []store.Purpose   `json:"purposes"`
}

// Export writes the manifest and, when document is non-nil, the document bytes.
func Export(w io.Writer, m Manifest, document io.Reader) error {
	if m.OwnerID == "" {
		return ErrNoOwner
	}
	if m.ExportedAt.IsZero() {
		m.ExportedAt = time.Now().UTC()
	}

	zw := zip.NewWriter(w)

	mw, err := zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("failed to create manifest entry: %w", err)
	}
	enc := json.NewEncoder(mw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if document != nil {
		dw, err := zw.Create(DocumentName)
		if err != nil {
			return fmt.Errorf("failed to create document entry: %w", err)
		}
		if _, err := io.Copy(dw, document); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalise archive: %w", err)
	}
	return nil
}
