package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rmax-ai/readgraph/pkg/blob"
	"github.com/rmax-ai/readgraph/pkg/graph"
	"github.com/rmax-ai/readgraph/pkg/store"
	"github.com/rmax-ai/readgraph/pkg/viewer"
	"github.com/stretchr/testify/require"
)

var testLayout = viewer.Metrics{PageHeight: 1000, PageCount: 10}

type fixture struct {
	store     *store.Store
	blobs     *blob.LocalBlobStore
	persister *Persister
	ws        *Workspace
}

// newFixture wires a workspace over an in-memory store with a running persister.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs := blob.NewLocalBlobStore(t.TempDir())
	p := NewPersister(st, nil, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ws := NewWorkspace(st, blobs, p, nil)
	// Ticks are not needed in these tests.
	ws.SetSampleInterval(time.Hour)
	t.Cleanup(func() { _ = ws.Close(context.Background()) })

	return &fixture{store: st, blobs: blobs, persister: p, ws: ws}
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, f.persister.Flush(context.Background()))
}

func textHighlight(content string, page int, y1 float64) graph.RawHighlight {
	return graph.RawHighlight{
		Type:    store.HighlightText,
		Content: content,
		BoundingRect: store.BoundingRect{
			PageNumber: page, X1: 10, Y1: y1, X2: 200, Y2: y1 + 20, Width: 600, Height: 1000,
		},
		Timestamp: time.Now(),
	}
}
