// Package analytics rolls reading sessions and highlights up into
// document → user → purpose summaries and timeline coordinates.
// Everything here is a pure computation over already-fetched records.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/rmax-ai/readgraph/pkg/store"
)

// Selection restricts the rollup. An empty slice selects everything in the dataset.
type Selection struct {
	DocumentIDs []string `json:"documentIds,omitempty"`
	UserIDs     []string `json:"userIds,omitempty"`
}

// Dataset holds records grouped by store.PairKey.
type Dataset struct {
	Sessions   map[string][]store.Session   `json:"sessions"`
	Highlights map[string][]store.Highlight `json:"highlights"`
	Purposes   map[string][]store.Purpose   `json:"purposes"`
}

func NewDataset() *Dataset {
	return &Dataset{
		Sessions:   make(map[string][]store.Session),
		Highlights: make(map[string][]store.Highlight),
		Purposes:   make(map[string][]store.Purpose),
	}
}

// Load fetches the selected records through the persistence contract.
func Load(ctx context.Context, loader store.RecordLoader, sel Selection) (*Dataset, error) {
	ds := NewDataset()
	var err error
	if ds.Sessions, err = loader.LoadSessions(ctx, sel.UserIDs, sel.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	if ds.Highlights, err = loader.LoadHighlights(ctx, sel.UserIDs, sel.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to load highlights: %w", err)
	}
	if ds.Purposes, err = loader.LoadPurposes(ctx, sel.UserIDs, sel.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to load purposes: %w", err)
	}
	return ds, nil
}

type pair struct {
	ownerID    string
	documentID string
}

// pairs returns every (owner, document) pair present in the dataset, read
// from the records themselves rather than from the bucket keys.
func (d *Dataset) pairs() []pair {
	seen := make(map[pair]struct{})
	for _, list := range d.Sessions {
		for _, s := range list {
			seen[pair{s.OwnerID, s.DocumentID}] = struct{}{}
		}
	}
	for _, list := range d.Highlights {
		for _, h := range list {
			seen[pair{h.OwnerID, h.DocumentID}] = struct{}{}
		}
	}
	for _, list := range d.Purposes {
		for _, p := range list {
			seen[pair{p.OwnerID, p.DocumentID}] = struct{}{}
		}
	}
	out := make([]pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ownerID != out[j].ownerID {
			return out[i].ownerID < out[j].ownerID
		}
		return out[i].documentID < out[j].documentID
	})
	return out
}

// PairKey joins ids with "_", so one bucket can hold records of two pairs
// (owner "a_b" on doc "c", owner "a" on doc "b_c"). The accessors keep only
// records that belong to the requested pair.
func (d *Dataset) sessions(ownerID, documentID string) []store.Session {
	return ofPair(d.Sessions[store.PairKey(ownerID, documentID)], ownerID, documentID,
		func(s store.Session) (string, string) { return s.OwnerID, s.DocumentID })
}

func (d *Dataset) highlights(ownerID, documentID string) []store.Highlight {
	return ofPair(d.Highlights[store.PairKey(ownerID, documentID)], ownerID, documentID,
		func(h store.Highlight) (string, string) { return h.OwnerID, h.DocumentID })
}

func (d *Dataset) purposes(ownerID, documentID string) []store.Purpose {
	return ofPair(d.Purposes[store.PairKey(ownerID, documentID)], ownerID, documentID,
		func(p store.Purpose) (string, string) { return p.OwnerID, p.DocumentID })
}

func ofPair[T any](in []T, ownerID, documentID string, ids func(T) (string, string)) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if o, d := ids(v); o == ownerID && d == documentID {
			out = append(out, v)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func selected(ids []string, id string) bool {
	return len(ids) == 0 || contains(ids, id)
}
