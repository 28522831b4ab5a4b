/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package dendrogram

import (
	"context"
	"math"
	"sort"

	"github.com/tpotmap/atlas/pkg/errors"
)

// Linkage is a row-major (N-1)×4 agglomeration table in the conventional
// encoding: leaves are 0..N-1, the merge recorded in row k forms cluster
// N+k. Columns are (left, right, distance, size).
type Linkage []float32

// NumMerges returns the number of merge rows.
func (l Linkage) NumMerges() int { return len(l) / 4 }

// Row returns merge row k.
func (l Linkage) Row(k int) (left, right int, dist float64, size int) {
	r := l[k*4 : k*4+4]
	return int(r[0]), int(r[1]), float64(r[2]), int(r[3])
}

type stepwiseMerge struct {
	a, b int // leaf representatives of the two clusters
	dist float64
	size int
}

// Ward computes Ward linkage over n points of dimension d given row-major
// coordinates, using the nearest-neighbor chain algorithm. O(n²·d) time,
// O(n·d) extra memory. The context is polled between merges, so a long
// agglomeration can be cancelled without leaving shared state behind.
func Ward(ctx context.Context, points []float64, n, d int) (Linkage, error) {
	if n == 0 {
		return nil, errors.New(errors.ErrCodeInvalidArgument, "no points to cluster")
	}
	if n == 1 {
		return Linkage{}, nil
	}

	// Slot i always represents the cluster whose lowest-index leaf is the
	// original point i, so slot indices double as leaf representatives in
	// the stepwise output.
	centroid := make([]float64, n*d)
	copy(centroid, points)
	size := make([]int, n)
	active := make([]bool, n)
	for i := 0; i < n; i++ {
		size[i] = 1
		active[i] = true
	}

	wardDist := func(a, b int) float64 {
		var sq float64
		ca := centroid[a*d : (a+1)*d]
		cb := centroid[b*d : (b+1)*d]
		for j := 0; j < d; j++ {
			diff := ca[j] - cb[j]
			sq += diff * diff
		}
		na, nb := float64(size[a]), float64(size[b])
		return na * nb / (na + nb) * sq
	}

	merges := make([]stepwiseMerge, 0, n-1)
	chain := make([]int, 0, n)
	remaining := n
	scan := 0

	for remaining > 1 {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}

		if len(chain) == 0 {
			for !active[scan] {
				scan++
			}
			chain = append(chain, scan)
		}

		top := chain[len(chain)-1]
		best, bestDist := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if !active[j] || j == top {
				continue
			}
			dist := wardDist(top, j)
			if dist < bestDist {
				best, bestDist = j, dist
			}
		}

		if len(chain) >= 2 && best == chain[len(chain)-2] {
			a, b := chain[len(chain)-2], top
			chain = chain[:len(chain)-2]
			if a > b {
				a, b = b, a
			}

			merged := size[a] + size[b]
			merges = append(merges, stepwiseMerge{a: a, b: b, dist: bestDist, size: merged})

			// Fold b into a: weighted centroid, deactivate b. Slot a keeps
			// representing the merged cluster.
			ca := centroid[a*d : (a+1)*d]
			cb := centroid[b*d : (b+1)*d]
			wa := float64(size[a]) / float64(merged)
			wb := float64(size[b]) / float64(merged)
			for j := 0; j < d; j++ {
				ca[j] = wa*ca[j] + wb*cb[j]
			}
			size[a] = merged
			active[b] = false
			remaining--
		} else {
			chain = append(chain, best)
		}
	}

	return label(merges, n), nil
}

// label sorts the stepwise merges by distance and rewrites cluster
// references into the conventional n+k encoding using union-find.
func label(merges []stepwiseMerge, n int) Linkage {
	sort.SliceStable(merges, func(i, j int) bool { return merges[i].dist < merges[j].dist })

	parent := make([]int, n)
	clusterID := make([]int, n)
	for i := 0; i < n; i++ {
		parent[i] = i
		clusterID[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	out := make(Linkage, 0, len(merges)*4)
	for k, m := range merges {
		ra, rb := find(m.a), find(m.b)
		left, right := clusterID[ra], clusterID[rb]
		if left > right {
			left, right = right, left
		}
		out = append(out, float32(left), float32(right), float32(m.dist), float32(m.size))

		parent[rb] = ra
		clusterID[ra] = n + k
	}
	return out
}
