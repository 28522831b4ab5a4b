/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package community

import (
	"context"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
)

// Service computes and memoizes Louvain community assignments per graph
// hash. Assignments are deterministic for a fixed seed, so repeated lookups
// for the same graph are cheap cache hits.
type Service struct {
	seed int64

	mu    sync.Mutex
	cache map[graph.Hash][]int
}

// NewService creates a Service with the given modularity seed.
func NewService(seed int64) *Service {
	return &Service{seed: seed, cache: make(map[graph.Hash][]int)}
}

// Assignments returns the Louvain community label of every node in
// canonical node order, computed over the symmetrized follow graph.
func (s *Service) Assignments(ctx context.Context, g *graph.Handle) ([]int, error) {
	s.mu.Lock()
	if cached, ok := s.cache[g.Hash()]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}

	sym := g.Symmetric(false)
	n := sym.NumRows()

	ug := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < n; i++ {
		ug.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		cols, vals := sym.Row(i)
		for k, j := range cols {
			if int(j) <= i {
				continue
			}
			ug.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(i),
				T: simple.Node(j),
				W: float64(vals[k]),
			})
		}
	}

	reduced := community.Modularize(ug, 1.0, rand.NewPCG(uint64(s.seed), 0))
	assign := make([]int, n)
	for label, comm := range reduced.Communities() {
		for _, node := range comm {
			assign[node.ID()] = label
		}
	}

	s.mu.Lock()
	s.cache[g.Hash()] = assign
	s.mu.Unlock()
	return assign, nil
}
