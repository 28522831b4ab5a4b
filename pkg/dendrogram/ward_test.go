/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package dendrogram

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	atlaserrors "github.com/tpotmap/atlas/pkg/errors"
)

// twoBlobs returns 2·m points in 2D: m around (0,0) and m around (10,10).
func twoBlobs(m int, seed int64) ([]float64, int) {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]float64, 0, 4*m)
	for i := 0; i < m; i++ {
		pts = append(pts, rng.Float64()*0.5, rng.Float64()*0.5)
	}
	for i := 0; i < m; i++ {
		pts = append(pts, 10+rng.Float64()*0.5, 10+rng.Float64()*0.5)
	}
	return pts, 2 * m
}

func TestWardShape(t *testing.T) {
	pts, n := twoBlobs(6, 1)
	link, err := Ward(context.Background(), pts, n, 2)
	require.NoError(t, err)
	assert.Equal(t, n-1, link.NumMerges())

	// Final merge contains all points; distances are monotone non-decreasing.
	prev := -1.0
	for k := 0; k < link.NumMerges(); k++ {
		l, r, d, size := link.Row(k)
		assert.Less(t, l, r)
		assert.GreaterOrEqual(t, d, prev)
		assert.GreaterOrEqual(t, size, 2)
		prev = d
	}
	_, _, _, lastSize := link.Row(link.NumMerges() - 1)
	assert.Equal(t, n, lastSize)
}

func TestWardSeparatesBlobs(t *testing.T) {
	pts, n := twoBlobs(8, 7)
	link, err := Ward(context.Background(), pts, n, 2)
	require.NoError(t, err)

	assign := Cut(link, n, 2)
	// All first-half points share a label, all second-half points the other.
	for i := 1; i < n/2; i++ {
		assert.Equal(t, assign[0], assign[i])
	}
	for i := n/2 + 1; i < n; i++ {
		assert.Equal(t, assign[n/2], assign[i])
	}
	assert.NotEqual(t, assign[0], assign[n/2])
}

func TestWardCancellation(t *testing.T) {
	pts, n := twoBlobs(50, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Ward(ctx, pts, n, 2)
	require.Error(t, err)
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeCancelled))
}

func TestCutCounts(t *testing.T) {
	pts, n := twoBlobs(10, 11)
	link, err := Ward(context.Background(), pts, n, 2)
	require.NoError(t, err)

	for k := 1; k <= n; k++ {
		assign := Cut(link, n, k)
		seen := map[int]bool{}
		for _, l := range assign {
			seen[l] = true
		}
		assert.Len(t, seen, k, "cut at %d", k)
	}

	// k beyond n clamps to singletons.
	assign := Cut(link, n, n+5)
	seen := map[int]bool{}
	for _, l := range assign {
		seen[l] = true
	}
	assert.Len(t, seen, n)
}

func TestCutRootsAndNavigation(t *testing.T) {
	pts, n := twoBlobs(4, 5)
	link, err := Ward(context.Background(), pts, n, 2)
	require.NoError(t, err)

	assign, roots := CutWithRoots(link, n, 2)
	require.Len(t, roots, 2)

	for lbl, root := range roots {
		members := Members(link, n, root)
		for _, m := range members {
			assert.Equal(t, lbl, assign[m])
		}
		assert.Equal(t, len(members), link.Size(n, root))

		l, r, ok := Children(link, n, root)
		require.True(t, ok)
		union := append(Members(link, n, l), Members(link, n, r)...)
		assert.ElementsMatch(t, members, union)

		p, ok := Parent(link, n, root)
		require.True(t, ok)
		assert.Equal(t, 2*n-2, p, "parent of a 2-cut root is the top merge")
	}

	// Root of the whole tree has no parent.
	_, ok := Parent(link, n, 2*n-2)
	assert.False(t, ok)
}

func TestAdjustedRandIndex(t *testing.T) {
	a := []int{0, 0, 0, 1, 1, 1}
	assert.InDelta(t, 1.0, AdjustedRandIndex(a, []int{5, 5, 5, 9, 9, 9}), 1e-12)

	b := []int{0, 1, 0, 1, 0, 1}
	ari := AdjustedRandIndex(a, b)
	assert.Less(t, ari, 0.3)

	assert.Equal(t, 0.0, AdjustedRandIndex([]int{0}, []int{0, 1}))
}
