/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package discovery

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/propagation"
)

type scoredCandidate struct {
	node    int
	signals map[string]Signal
}

// extractSubgraph walks breadth-first from the seeds over follow edges in
// both directions, bounded by depth, per-node neighbor cap, and a total
// node cap. The context is polled between hops. Returns the visited nodes
// sorted ascending and whether any cap truncated the walk.
func extractSubgraph(ctx context.Context, g *graph.Handle, seeds []int) ([]int, bool, error) {
	dir := g.Directed()
	n := dir.NumRows()

	// Reverse adjacency for follower traversal.
	rev := make([][]int32, n)
	for i := 0; i < n; i++ {
		cols, _ := dir.Row(i)
		for _, j := range cols {
			rev[j] = append(rev[j], int32(i))
		}
	}

	visited := make(map[int]bool, len(seeds))
	frontier := make([]int, 0, len(seeds))
	for _, s := range seeds {
		visited[s] = true
		frontier = append(frontier, s)
	}

	truncated := false
	for depth := 0; depth < bfsMaxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, false, errors.FromContext(err)
		}
		var next []int
		for _, cur := range frontier {
			neighbors := make([]int, 0, bfsNeighborCap)
			cols, _ := dir.Row(cur)
			for _, j := range cols {
				neighbors = append(neighbors, int(j))
			}
			for _, j := range rev[cur] {
				neighbors = append(neighbors, int(j))
			}
			if len(neighbors) > bfsNeighborCap {
				neighbors = neighbors[:bfsNeighborCap]
				truncated = true
			}
			for _, nb := range neighbors {
				if visited[nb] {
					continue
				}
				if len(visited) >= bfsTotalNodeCap {
					truncated = true
					break
				}
				visited[nb] = true
				next = append(next, nb)
			}
			if len(visited) >= bfsTotalNodeCap {
				break
			}
		}
		frontier = next
	}

	members := make([]int, 0, len(visited))
	for i := range visited {
		members = append(members, i)
	}
	sort.Ints(members)
	return members, truncated, nil
}

// computeSignals evaluates the four normalized scoring components for every
// non-seed member of the candidate subgraph.
func computeSignals(ctx context.Context, g *graph.Handle, membership *propagation.Result, seeds []int, seedSet map[int]bool, members []int, maxDistance int) ([]scoredCandidate, error) {
	dir := g.Directed()

	// Accounts any seed follows, the overlap denominator.
	seedsFollowing := make(map[int]bool)
	for _, s := range seeds {
		cols, _ := dir.Row(s)
		for _, j := range cols {
			seedsFollowing[int(j)] = true
		}
	}
	denom := float64(len(seedsFollowing))
	if denom < 1 {
		denom = 1
	}

	// Seed communities for the affinity signal.
	seedCommunity := make(map[string]int)
	if membership != nil {
		for _, s := range seeds {
			if c := membership.CommunityOf(s); c != "" {
				seedCommunity[c]++
			}
		}
	}

	rev := make([][]int32, dir.NumRows())
	for i := 0; i < dir.NumRows(); i++ {
		cols, _ := dir.Row(i)
		for _, j := range cols {
			rev[j] = append(rev[j], int32(i))
		}
	}

	distances := mutualDistances(g, seeds, maxDistance)
	ppr, err := personalizedPageRank(ctx, g, seeds, members)
	if err != nil {
		return nil, err
	}

	// 95th-percentile normalization for PageRank.
	nonSeedPPR := make([]float64, 0, len(members))
	for _, m := range members {
		if !seedSet[m] {
			nonSeedPPR = append(nonSeedPPR, ppr[m])
		}
	}
	sort.Float64s(nonSeedPPR)
	p95 := 0.0
	if len(nonSeedPPR) > 0 {
		p95 = stat.Quantile(0.95, stat.Empirical, nonSeedPPR, nil)
	}

	out := make([]scoredCandidate, 0, len(members))
	for _, m := range members {
		if seedSet[m] {
			continue
		}

		// Neighbor overlap: shared follows between the seed set and the
		// candidate's followers.
		overlap := 0
		for _, f := range rev[m] {
			if seedsFollowing[int(f)] {
				overlap++
			}
		}
		overlapNorm := float64(overlap) / denom
		if overlapNorm > 1 {
			overlapNorm = 1
		}

		commRaw, commNorm := 0.0, 0.0
		if membership != nil {
			if c := membership.CommunityOf(m); c != "" {
				commRaw = float64(seedCommunity[c])
				commNorm = commRaw / float64(len(seeds))
			}
		}

		distRaw, distNorm := -1.0, 0.0
		if d, ok := distances[m]; ok {
			distRaw = float64(d)
			distNorm = distanceScore(d, maxDistance)
		}

		pprNorm := 0.0
		if p95 > 0 {
			pprNorm = ppr[m] / p95
			if pprNorm > 1 {
				pprNorm = 1
			}
		}

		out = append(out, scoredCandidate{
			node: m,
			signals: map[string]Signal{
				SignalNeighborOverlap: {Raw: float64(overlap), Normalized: overlapNorm},
				SignalCommunity:       {Raw: commRaw, Normalized: commNorm},
				SignalPathDistance:    {Raw: distRaw, Normalized: distNorm},
				SignalPageRank:        {Raw: ppr[m], Normalized: pprNorm},
			},
		})
	}
	return out, nil
}

// distanceScore decays linearly from 1.0 at distance 1 to 0.1 at
// maxDistance, and 0 beyond.
func distanceScore(d, maxDistance int) float64 {
	if d < 1 || d > maxDistance {
		return 0
	}
	if maxDistance == 1 {
		return 1
	}
	return 1 - 0.9*float64(d-1)/float64(maxDistance-1)
}

// mutualDistances runs a multi-source BFS over the mutual subgraph from the
// seeds, bounded by maxDistance.
func mutualDistances(g *graph.Handle, seeds []int, maxDistance int) map[int]int {
	mut := g.Mutual()
	dist := make(map[int]int, len(seeds))
	frontier := make([]int, 0, len(seeds))
	for _, s := range seeds {
		dist[s] = 0
		frontier = append(frontier, s)
	}
	for d := 1; d <= maxDistance && len(frontier) > 0; d++ {
		var next []int
		for _, cur := range frontier {
			cols, _ := mut.Row(cur)
			for _, j := range cols {
				if _, seen := dist[int(j)]; seen {
					continue
				}
				dist[int(j)] = d
				next = append(next, int(j))
			}
		}
		frontier = next
	}
	return dist
}

// personalizedPageRank runs a damped power iteration restricted to the
// candidate subgraph, with the teleport vector uniform over the seeds and
// dangling mass routed back to the teleport distribution.
func personalizedPageRank(ctx context.Context, g *graph.Handle, seeds []int, members []int) (map[int]float64, error) {
	const (
		damping = 0.85
		iters   = 60
		tol     = 1e-12
	)

	local := make(map[int]int, len(members))
	for li, m := range members {
		local[m] = li
	}
	n := len(members)

	dir := g.Directed()
	adj := make([][]int32, n)
	for li, m := range members {
		cols, _ := dir.Row(m)
		for _, j := range cols {
			if lj, ok := local[int(j)]; ok {
				adj[li] = append(adj[li], int32(lj))
			}
		}
	}

	teleport := make([]float64, n)
	for _, s := range seeds {
		teleport[local[s]] = 1 / float64(len(seeds))
	}

	x := append([]float64(nil), teleport...)
	next := make([]float64, n)
	for it := 0; it < iters; it++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}
		var dangling float64
		for li := range next {
			next[li] = 0
		}
		for li := range adj {
			if len(adj[li]) == 0 {
				dangling += x[li]
				continue
			}
			share := x[li] / float64(len(adj[li]))
			for _, lj := range adj[li] {
				next[lj] += share
			}
		}
		var delta float64
		for li := range next {
			v := (1-damping)*teleport[li] + damping*(next[li]+dangling*teleport[li])
			delta += abs(v - x[li])
			next[li] = v
		}
		x, next = next, x
		if delta < tol {
			break
		}
	}

	out := make(map[int]float64, n)
	for li, m := range members {
		out[m] = x[li]
	}
	return out, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
