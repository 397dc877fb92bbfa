package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/store"
	"go.uber.org/zap"
)

// Source is one archive to import.
type Source struct {
	Name string
	Data []byte
}

// ArchiveStats counts what one archive contributed.
type ArchiveStats struct {
	Name       string `json:"name"`
	OwnerID    string `json:"ownerId"`
	Highlights int    `json:"highlights"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	Purposes   int    `json:"purposes"`
	Skipped    int    `json:"skipped"`
	Document   bool   `json:"document"`
}

// ImportFailure names an archive that was skipped.
type ImportFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ImportResult is the union of all successfully read archives.
type ImportResult struct {
	Highlights []store.Highlight `json:"highlights"`
	Nodes      []graph.Node      `json:"nodes"`
	Edges      []graph.Edge      `json:"edges"`
	Purposes   []store.Purpose   `json:"purposes"`

	// Document holds the first embedded document found, if any.
	Document       []byte `json:"-"`
	DocumentSource string `json:"documentSource,omitempty"`

	Stats  []ArchiveStats  `json:"stats"`
	Failed []ImportFailure `json:"failed,omitempty"`
}

// Graph returns the merged nodes and edges as a snapshot.
func (r *ImportResult) Graph() graph.Graph {
	return graph.Graph{Nodes: r.Nodes, Edges: r.Edges}
}

// Importer reads archives and merges them.
type Importer struct {
	logger *zap.Logger
}

func NewImporter(logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{logger: logger}
}

// Import merges the archives in order. Archives that cannot be read are
// skipped and listed in Failed; the rest are still imported.
func Import(archives ...Source) *ImportResult {
	return NewImporter(nil).Import(archives...)
}

func (im *Importer) Import(archives ...Source) *ImportResult {
	res := &ImportResult{}
	seen := make(map[string]struct{})

	for _, src := range archives {
		m, doc, err := readArchive(src.Data)
		if err != nil {
			im.logger.Warn("archive_skipped", zap.String("archive", src.Name), zap.Error(err))
			res.Failed = append(res.Failed, ImportFailure{Name: src.Name, Error: err.Error()})
			continue
		}

		remapped := NewRemapTable(m).Apply(m)
		st := ArchiveStats{Name: src.Name, OwnerID: m.OwnerID}

		fresh := func(kind, id string) bool {
			key := kind + "/" + id
			if _, dup := seen[key]; dup {
				st.Skipped++
				return false
			}
			seen[key] = struct{}{}
			return true
		}
		for _, p := range remapped.Purposes {
			if fresh("purpose", p.ID) {
				res.Purposes = append(res.Purposes, p)
				st.Purposes++
			}
		}
		for _, h := range remapped.Highlights {
			if fresh("highlight", h.ID) {
				res.Highlights = append(res.Highlights, h)
				st.Highlights++
			}
		}
		for _, n := range remapped.Nodes {
			if !fresh("node", n.ID) {
				continue
			}
			res.Nodes = append(res.Nodes, n)
			st.Nodes++
		}
		for _, e := range remapped.Edges {
			if fresh("edge", e.ID) {
				res.Edges = append(res.Edges, e)
				st.Edges++
			}
		}

		if doc != nil && res.Document == nil {
			res.Document = doc
			res.DocumentSource = src.Name
			st.Document = true
		}
		res.Stats = append(res.Stats, st)

		im.logger.Info("archive_imported",
			zap.String("archive", src.Name),
			zap.String("owner_id", m.OwnerID),
			zap.Int("highlights", st.Highlights),
			zap.Int("nodes", st.Nodes),
			zap.Int("edges", st.Edges),
		)
	}
	return res
}

// readArchive returns the manifest and the embedded document, if any.
// Other entries are ignored.
func readArchive(data []byte) (*Manifest, []byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var manifestFile, documentFile *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".json":
			// annotations.json wins over any other JSON entry.
			if manifestFile == nil || (path.Base(f.Name) == ManifestName && path.Base(manifestFile.Name) != ManifestName) {
				manifestFile = f
			}
		case ".pdf":
			if documentFile == nil {
				documentFile = f
			}
		}
	}
	if manifestFile == nil {
		return nil, nil, ErrNoManifest
	}

	raw, err := readEntry(manifestFile)
	if err != nil {
		return nil, nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("malformed manifest %s: %w", manifestFile.Name, err)
	}
	if m.OwnerID == "" {
		return nil, nil, ErrNoOwner
	}

	var doc []byte
	if documentFile != nil {
		if doc, err = readEntry(documentFile); err != nil {
			return nil, nil, err
		}
	}
	return &m, doc, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return data, nil
}
