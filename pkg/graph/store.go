/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tpotmap/atlas/pkg/errors"
)

// Handle is an immutable loaded graph. All arrays are fixed after Load;
// derived adjacency views are built lazily and memoized. Components other
// than the store hold read-only references to a Handle for the duration of
// a request.
type Handle struct {
	nodes []Account
	index map[string]int
	edges []Edge
	hash  Hash

	directedOnce sync.Once
	directed     *CSR[uint32]

	symOnce     sync.Once
	symmetric   *CSR[float32]
	symWOnce    sync.Once
	symWeighted *CSR[float32]

	mutualOnce sync.Once
	mutual     *CSR[uint32]

	inDegree  []int
	outDegree []int
	degOnce   sync.Once
}

type edgeKey struct {
	source, target string
	direction      Direction
}

// Load ingests node and edge tables from one or more sources and produces
// an immutable Handle. Accounts appearing in several sources are merged
// keeping the record with the latest fetched_at; edges are deduplicated by
// (source, target, direction) under the same rule. Load is all-or-nothing:
// an edge referencing a missing node fails the whole load.
func Load(ctx context.Context, sources ...Source) (*Handle, error) {
	if len(sources) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidArgument, "no graph sources provided")
	}

	byID := make(map[string]Account)
	byEdge := make(map[edgeKey]Edge)

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}

		accounts, err := src.Accounts(ctx)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, "reading account rows", err)
		}
		for _, a := range accounts {
			if a.ID == "" {
				return nil, errors.New(errors.ErrCodeInvalidArgument, "account with empty id")
			}
			if prev, ok := byID[a.ID]; !ok || a.FetchedAt.After(prev.FetchedAt) {
				byID[a.ID] = a
			}
		}

		edges, err := src.Edges(ctx)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, "reading edge rows", err)
		}
		for _, e := range edges {
			k := edgeKey{e.Source, e.Target, e.Direction}
			if prev, ok := byEdge[k]; !ok || e.FetchedAt.After(prev.FetchedAt) {
				byEdge[k] = e
			}
		}
	}

	nodes := make([]Account, 0, len(byID))
	for _, a := range byID {
		nodes = append(nodes, a)
	}
	// Canonical node ordering: ascending id. Established once here and
	// stable for the lifetime of the Handle; any reordering changes the
	// content hash and invalidates downstream artifacts.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	index := make(map[string]int, len(nodes))
	for i, a := range nodes {
		index[a.ID] = i
	}

	edges := make([]Edge, 0, len(byEdge))
	var dangling []string
	for _, e := range byEdge {
		_, srcOK := index[e.Source]
		_, dstOK := index[e.Target]
		if !srcOK || !dstOK {
			dangling = append(dangling, fmt.Sprintf("%s->%s", e.Source, e.Target))
			continue
		}
		edges = append(edges, e)
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return nil, errors.NewWithContext(errors.ErrCodeInvalidArgument,
			"edges reference nodes missing from the graph",
			map[string]any{
				"offenders": errors.TruncateIDs(dangling),
				"total":     len(dangling),
			})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Direction < edges[j].Direction
	})

	h := &Handle{nodes: nodes, index: index, edges: edges}
	h.hash = contentHash(nodes, edges)

	slog.Debug("graph loaded",
		"nodes", len(nodes),
		"edges", len(edges),
		"hash", h.hash.String(),
	)
	return h, nil
}

// NumNodes returns the node count.
func (h *Handle) NumNodes() int { return len(h.nodes) }

// NumEdges returns the deduplicated edge count.
func (h *Handle) NumEdges() int { return len(h.edges) }

// Hash returns the deterministic 128-bit content hash of the graph. It is
// used as a cache salt and snapshot validator.
func (h *Handle) Hash() Hash { return h.hash }

// NodeIDs returns the canonical node-id ordering. The returned slice is a
// copy and safe to retain.
func (h *Handle) NodeIDs() []string {
	ids := make([]string, len(h.nodes))
	for i, a := range h.nodes {
		ids[i] = a.ID
	}
	return ids
}

// Index returns the canonical position of an account id.
func (h *Handle) Index(id string) (int, bool) {
	i, ok := h.index[id]
	return i, ok
}

// Account returns the node at canonical position i.
func (h *Handle) Account(i int) Account { return h.nodes[i] }

// Edges returns the deduplicated edge table. The returned slice aliases
// internal storage and must not be mutated.
func (h *Handle) Edges() []Edge { return h.edges }

// Metadata returns the read-only account view for id.
func (h *Handle) Metadata(id string) (AccountView, error) {
	i, ok := h.index[id]
	if !ok {
		return AccountView{}, errors.Newf(errors.ErrCodeNotFound, "account %s not found", id)
	}
	h.buildDegrees()
	return AccountView{
		Account:   h.nodes[i],
		Index:     i,
		OutDegree: h.outDegree[i],
		InDegree:  h.inDegree[i],
	}, nil
}

// Directed returns the directed adjacency in CSR form. Inbound edges are
// stored from the follower's perspective, so row i always lists the
// accounts that i follows.
func (h *Handle) Directed() *CSR[uint32] {
	h.directedOnce.Do(func() {
		b := newCSRBuilder[uint32](len(h.nodes))
		for _, e := range h.edges {
			s, t := h.index[e.Source], h.index[e.Target]
			switch e.Direction {
			case DirectionInbound:
				// Recorded from the source's side: target follows source.
				b.add(t, uint32(s), 1)
			case DirectionMutualDerived:
				b.add(s, uint32(t), 1)
				b.add(t, uint32(s), 1)
			default:
				b.add(s, uint32(t), 1)
			}
		}
		m := b.build()
		clampCounts(m)
		h.directed = m
	})
	return h.directed
}

// Symmetric returns (A + Aᵀ)/2 in CSR form. With weighted set, edge weights
// participate; otherwise every directed edge contributes 1. Isolated nodes
// receive a unit self-loop so Laplacian degree terms never divide by zero.
func (h *Handle) Symmetric(weighted bool) *CSR[float32] {
	build := func() *CSR[float32] {
		b := newCSRBuilder[float32](len(h.nodes))
		dir := h.Directed()
		n := dir.NumRows()
		touched := make([]bool, n)
		for i := 0; i < n; i++ {
			cols, _ := dir.Row(i)
			for _, j := range cols {
				w := float32(1)
				if weighted {
					w = h.edgeWeight(i, int(j))
				}
				b.add(i, j, w/2)
				b.add(int(j), uint32(i), w/2)
				touched[i] = true
				touched[j] = true
			}
		}
		for i := 0; i < n; i++ {
			if !touched[i] {
				b.add(i, uint32(i), 1)
			}
		}
		return b.build()
	}
	if weighted {
		h.symWOnce.Do(func() { h.symWeighted = build() })
		return h.symWeighted
	}
	h.symOnce.Do(func() { h.symmetric = build() })
	return h.symmetric
}

// Mutual returns the subgraph of edges present in both directions.
func (h *Handle) Mutual() *CSR[uint32] {
	h.mutualOnce.Do(func() {
		dir := h.Directed()
		b := newCSRBuilder[uint32](len(h.nodes))
		for i := 0; i < dir.NumRows(); i++ {
			cols, _ := dir.Row(i)
			for _, j := range cols {
				if dir.Has(int(j), uint32(i)) {
					b.add(i, j, 1)
				}
			}
		}
		m := b.build()
		clampCounts(m)
		h.mutual = m
	})
	return h.mutual
}

// ObservationP returns the clipped observation probability of node i for
// inverse-probability weighting. Unknown probabilities count as fully
// observed.
func (h *Handle) ObservationP(i int, pMin float64) float64 {
	p := h.nodes[i].ObservationP
	if p <= 0 || p > 1 {
		p = 1
	}
	if p < pMin {
		p = pMin
	}
	return p
}

// ResolveShadow returns a new Handle in which the shadow account oldID has
// been replaced by resolved, with all referencing edges rewritten. The new
// Handle carries a new hash; downstream artifacts for the old hash become
// stale.
func (h *Handle) ResolveShadow(ctx context.Context, oldID string, resolved Account) (*Handle, error) {
	i, ok := h.index[oldID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNotFound, "account %s not found", oldID)
	}
	if h.nodes[i].Provenance != ProvenanceShadow {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "account %s is not a shadow account", oldID)
	}
	if resolved.ID == "" {
		return nil, errors.New(errors.ErrCodeInvalidArgument, "resolved account has empty id")
	}

	nodes := make([]Account, 0, len(h.nodes))
	for j, a := range h.nodes {
		if j == i {
			continue
		}
		if a.ID == resolved.ID {
			// The real account already exists; the shadow merges into it.
			continue
		}
		nodes = append(nodes, a)
	}
	nodes = append(nodes, resolved)

	edges := make([]Edge, 0, len(h.edges))
	for _, e := range h.edges {
		if e.Source == oldID {
			e.Source = resolved.ID
		}
		if e.Target == oldID {
			e.Target = resolved.ID
		}
		if e.Source == e.Target {
			continue
		}
		edges = append(edges, e)
	}

	return Load(ctx, SliceSource{Nodes: nodes, Links: edges})
}

func (h *Handle) buildDegrees() {
	h.degOnce.Do(func() {
		dir := h.Directed()
		n := dir.NumRows()
		h.outDegree = make([]int, n)
		h.inDegree = make([]int, n)
		for i := 0; i < n; i++ {
			cols, _ := dir.Row(i)
			h.outDegree[i] = len(cols)
			for _, j := range cols {
				h.inDegree[j]++
			}
		}
	})
}

// edgeWeight returns the recorded weight for the directed pair (i, j),
// falling back to 1 when no explicit weight was loaded.
func (h *Handle) edgeWeight(i, j int) float32 {
	src, dst := h.nodes[i].ID, h.nodes[j].ID
	// Inbound records store the pair as (j, i); mutual-derived records cover
	// both orientations.
	keys := []Edge{
		{Source: src, Target: dst, Direction: DirectionOutbound},
		{Source: src, Target: dst, Direction: DirectionMutualDerived},
		{Source: dst, Target: src, Direction: DirectionMutualDerived},
		{Source: dst, Target: src, Direction: DirectionInbound},
	}
	for _, key := range keys {
		lo := sort.Search(len(h.edges), func(k int) bool {
			if h.edges[k].Source != key.Source {
				return h.edges[k].Source >= key.Source
			}
			if h.edges[k].Target != key.Target {
				return h.edges[k].Target >= key.Target
			}
			return h.edges[k].Direction >= key.Direction
		})
		if lo < len(h.edges) {
			e := h.edges[lo]
			if e.Source == key.Source && e.Target == key.Target && e.Direction == key.Direction && e.Weight > 0 {
				return float32(e.Weight)
			}
		}
	}
	return 1
}

// clampCounts folds duplicate-accumulated counts back to 1. Duplicates can
// appear when an outbound and a mutual-derived record describe the same
// follow.
func clampCounts(m *CSR[uint32]) {
	for i, v := range m.Val {
		if v > 1 {
			m.Val[i] = 1
		}
	}
}
