package api

import (
	"errors"

	"github.com/rmax-ai/readgraph/pkg/blob"
	"github.com/rmax-ai/readgraph/pkg/engine"
	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/reports"
	"github.com/rmax-ai/readgraph/pkg/session"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/suggest"
	"github.com/rmax-ai/readgraph/pkg/viewer"
)

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func isNoPurpose(err error) bool {
	return isAny(err, graph.ErrNoActivePurpose, session.ErrNoActivePurpose)
}

func isNoViewer(err error) bool {
	return isAny(err, session.ErrNoViewerAttached, viewer.ErrNoPages)
}

func isNotFound(err error) bool {
	return isAny(err, engine.ErrNotFound, graph.ErrNotFound, store.ErrNotFound, blob.ErrNotFound)
}

func isInvalid(err error) bool {
	return isAny(err,
		graph.ErrInvalidHighlight,
		engine.ErrInvalidPurpose,
		engine.ErrInvalidDocument,
		suggest.ErrEmptyDocument,
		reports.ErrDocumentRequired,
		reports.ErrOwnerRequired,
	)
}
