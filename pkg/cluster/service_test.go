/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package cluster

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	atlaserrors "github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/metricscache"
	"github.com/tpotmap/atlas/pkg/snapshot"
	"github.com/tpotmap/atlas/pkg/spectral"
	"github.com/tpotmap/atlas/pkg/store"
)

type world struct {
	g    *graph.Handle
	snap *snapshot.Snapshot
	st   *store.Memory
}

// buildWorld loads two 5-cliques bridged by one edge plus a short mutual
// chain, and embeds it.
func buildWorld(t *testing.T) *world {
	t.Helper()
	ts := time.Unix(1700000000, 0)
	var nodes []graph.Account
	var edges []graph.Edge

	addClique := func(prefix string, size int, baseFollowers int64) []string {
		ids := make([]string, size)
		for i := range ids {
			ids[i] = fmt.Sprintf("%s_%02d", prefix, i)
			nodes = append(nodes, graph.Account{
				ID:        ids[i],
				Username:  "u" + ids[i],
				Followers: baseFollowers - int64(i),
				FetchedAt: ts,
			})
		}
		for _, a := range ids {
			for _, b := range ids {
				if a != b {
					edges = append(edges, graph.Edge{Source: a, Target: b, Direction: graph.DirectionOutbound, FetchedAt: ts})
				}
			}
		}
		return ids
	}

	a := addClique("aa", 5, 1000)
	b := addClique("bb", 5, 500)
	edges = append(edges, graph.Edge{Source: a[0], Target: b[0], Direction: graph.DirectionOutbound, FetchedAt: ts})

	prev := a[4]
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("cc_%02d", i)
		nodes = append(nodes, graph.Account{ID: id, Username: "u" + id, Followers: 10, FetchedAt: ts})
		edges = append(edges,
			graph.Edge{Source: prev, Target: id, Direction: graph.DirectionOutbound, FetchedAt: ts},
			graph.Edge{Source: id, Target: prev, Direction: graph.DirectionOutbound, FetchedAt: ts})
		prev = id
	}

	g, err := graph.Load(context.Background(), graph.SliceSource{Nodes: nodes, Links: edges})
	require.NoError(t, err)

	cfg := spectral.DefaultConfig()
	cfg.NDims = 6
	cfg.StabilityRuns = 0
	cfg.Seed = 7
	snap, err := spectral.New().Build(context.Background(), g, cfg, nil)
	require.NoError(t, err)

	return &world{g: g, snap: snap, st: store.NewMemory()}
}

func (w *world) service(opts ...Option) *Service {
	return New(w.st, opts...)
}

func TestInitialCutYieldsRequestedClusters(t *testing.T) {
	w := buildWorld(t)
	// minClusterSize 1 disables demotion so the raw cut is observable.
	svc := w.service(WithLimits(1, 25, 500, 25))

	for _, k := range []int{5, 7, 9} {
		v, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: k})
		require.NoError(t, err)
		assert.Len(t, v.Clusters, k, "granularity %d", k)
	}
}

func TestClusterSizesPartitionNodes(t *testing.T) {
	w := buildWorld(t)
	svc := w.service()

	v, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 5})
	require.NoError(t, err)

	individuals := 0
	sizes := 0
	for _, c := range v.Clusters {
		if c.Individual {
			individuals++
		} else {
			sizes += c.Size
		}
	}
	assert.Equal(t, w.snap.NumNodes()-individuals, sizes)
}

func TestSoftMembershipRows(t *testing.T) {
	w := buildWorld(t)
	cols := 4
	d := w.snap.Dims()
	centroids := make([]float64, cols*d)
	for c := 0; c < cols; c++ {
		copy(centroids[c*d:(c+1)*d], toF64(w.snap.Row(c*2)))
	}
	m := softMembership(w.snap, centroids, cols, 1.0)
	for i, row := range m {
		var sum float64
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "row %d", i)
	}
}

func toF64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func TestEdgesExcludeSelfLoops(t *testing.T) {
	w := buildWorld(t)
	svc := w.service()

	v, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 5})
	require.NoError(t, err)
	for _, e := range v.Edges {
		assert.NotEqual(t, e.Source, e.Target)
		assert.GreaterOrEqual(t, e.Weight, edgeWeightFloor)
	}
}

func TestExpandThenCollapseRestores(t *testing.T) {
	w := buildWorld(t)
	svc := w.service(WithLimits(1, 25, 500, 25))

	base, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 5})
	require.NoError(t, err)

	// Pick an expandable (non-leaf) cluster.
	target := -1
	for _, c := range base.Clusters {
		if c.Size > 1 {
			target = c.ID
			break
		}
	}
	require.GreaterOrEqual(t, target, 0)

	expanded, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 5, Expanded: []int{target}})
	require.NoError(t, err)
	assert.Len(t, expanded.Clusters, len(base.Clusters)+1)
	assert.Less(t, indexOfCluster(expanded, target), 0, "expanded cluster is replaced by children")

	// Collapsing the same id exempts it from expansion: the original set
	// returns exactly.
	restored, err := svc.View(context.Background(), w.g, w.snap, Query{
		Granularity: 5,
		Expanded:    []int{target},
		Collapsed:   []int{target},
	})
	require.NoError(t, err)
	assert.Equal(t, clusterIDs(base), clusterIDs(restored))
}

func clusterIDs(v *View) []int {
	out := make([]int, len(v.Clusters))
	for i, c := range v.Clusters {
		out[i] = c.ID
	}
	return out
}

func indexOfCluster(v *View, id int) int {
	for i, c := range v.Clusters {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func TestBudgetCollapsesMostRecentExpansionFirst(t *testing.T) {
	w := buildWorld(t)
	svc := w.service(WithLimits(1, 25, 500, 25))

	base, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 5})
	require.NoError(t, err)

	var expandable []int
	for _, c := range base.Clusters {
		if c.Size > 1 {
			expandable = append(expandable, c.ID)
		}
	}
	require.GreaterOrEqual(t, len(expandable), 2)

	// Budget 6 permits exactly one of the two expansions; the second
	// (most recent) is undone.
	v, err := svc.View(context.Background(), w.g, w.snap, Query{
		Granularity: 5,
		Budget:      6,
		Expanded:    []int{expandable[0], expandable[1]},
	})
	require.NoError(t, err)
	assert.Len(t, v.Clusters, 6)
	assert.Less(t, indexOfCluster(v, expandable[0]), 0, "first expansion survives")
	assert.GreaterOrEqual(t, indexOfCluster(v, expandable[1]), 0, "second expansion is undone")
	assert.Equal(t, 0, v.Meta.BudgetRemaining)
}

func TestAutofillReachesBudget(t *testing.T) {
	w := buildWorld(t)
	svc := w.service(WithLimits(1, 25, 500, 25))

	v, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 5, Budget: 8, Autofill: true})
	require.NoError(t, err)
	assert.Len(t, v.Clusters, 8)
	assert.Equal(t, 0, v.Meta.BudgetRemaining)
}

func TestGranularityClampWarning(t *testing.T) {
	w := buildWorld(t)
	svc := w.service()

	v, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 2})
	require.NoError(t, err)
	require.NotEmpty(t, v.Warnings)
	assert.Contains(t, v.Warnings[0], "clamped_granularity")
	assert.Equal(t, MinGranularity, v.Meta.Granularity)

	v, err = svc.View(context.Background(), w.g, w.snap, Query{Granularity: 900})
	require.NoError(t, err)
	require.NotEmpty(t, v.Warnings)
	assert.Contains(t, v.Warnings[0], "clamped_granularity")
}

func TestUserLabelPrecedence(t *testing.T) {
	w := buildWorld(t)
	svc := w.service()
	ctx := context.Background()

	v, err := svc.View(ctx, w.g, w.snap, Query{Workspace: "ws", Granularity: 5})
	require.NoError(t, err)
	target := v.Clusters[0]
	assert.Equal(t, LabelSourceAuto, target.LabelSource)
	assert.True(t, strings.HasPrefix(target.Label, fmt.Sprintf("Cluster %d:", target.ID)))
	assert.Contains(t, target.Label, "@")

	require.NoError(t, svc.SetLabel(ctx, "ws", target.Key, "Group A"))
	v, err = svc.View(ctx, w.g, w.snap, Query{Workspace: "ws", Granularity: 5})
	require.NoError(t, err)
	got := v.Clusters[indexOfCluster(v, target.ID)]
	assert.Equal(t, "Group A", got.Label)
	assert.Equal(t, LabelSourceUser, got.LabelSource)

	require.NoError(t, svc.DeleteLabel(ctx, "ws", target.Key))
	v, err = svc.View(ctx, w.g, w.snap, Query{Workspace: "ws", Granularity: 5})
	require.NoError(t, err)
	got = v.Clusters[indexOfCluster(v, target.ID)]
	assert.Equal(t, LabelSourceAuto, got.LabelSource)
	assert.Equal(t, target.Label, got.Label)
}

func TestViewMemoizationAndInvalidation(t *testing.T) {
	w := buildWorld(t)
	cache := metricscache.New("views", 20, 10*time.Minute)
	svc := w.service(WithCache(cache))
	ctx := context.Background()

	q := Query{Workspace: "ws", Granularity: 5}
	v1, err := svc.View(ctx, w.g, w.snap, q)
	require.NoError(t, err)
	v2, err := svc.View(ctx, w.g, w.snap, q)
	require.NoError(t, err)
	assert.Same(t, v1, v2, "second call is a cache hit")

	require.NoError(t, svc.SetLabel(ctx, "ws", v1.Clusters[0].Key, "X"))
	v3, err := svc.View(ctx, w.g, w.snap, q)
	require.NoError(t, err)
	assert.NotSame(t, v1, v3, "label writes invalidate workspace views")
}

func TestContainsEgo(t *testing.T) {
	w := buildWorld(t)
	svc := w.service()

	v, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 5, Ego: "aa_00"})
	require.NoError(t, err)
	found := 0
	for _, c := range v.Clusters {
		if c.ContainsEgo {
			found++
		}
	}
	assert.Equal(t, 1, found)
}

func TestStaleSnapshotRejected(t *testing.T) {
	w := buildWorld(t)
	svc := w.service()

	// Mutate the graph: one extra node changes the hash.
	ts := time.Unix(0, 0)
	nodes := []graph.Account{{ID: "zz_new", FetchedAt: ts}}
	for i := 0; i < w.g.NumNodes(); i++ {
		nodes = append(nodes, w.g.Account(i))
	}
	g2, err := graph.Load(context.Background(), graph.SliceSource{Nodes: nodes, Links: w.g.Edges()})
	require.NoError(t, err)

	_, err = svc.View(context.Background(), g2, w.snap, Query{Granularity: 5})
	require.Error(t, err)
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeStale))
}

func TestPreview(t *testing.T) {
	w := buildWorld(t)
	svc := w.service(WithLimits(1, 25, 500, 25))
	ctx := context.Background()

	base, err := svc.View(ctx, w.g, w.snap, Query{Granularity: 5})
	require.NoError(t, err)

	var big, leaf int
	big = -1
	leaf = -1
	for _, c := range base.Clusters {
		if c.Size > 1 && big < 0 {
			big = c.ID
		}
		if c.Size == 1 && leaf < 0 {
			leaf = c.ID
		}
	}
	require.GreaterOrEqual(t, big, 0)

	p, err := svc.Preview(ctx, w.g, w.snap, big, Query{Granularity: 5})
	require.NoError(t, err)
	assert.True(t, p.Expand.CanExpand)
	assert.Len(t, p.Expand.PredictedChildren, 2)
	assert.True(t, p.Collapse.CanCollapse)

	if leaf >= 0 {
		p, err = svc.Preview(ctx, w.g, w.snap, leaf, Query{Granularity: 5})
		require.NoError(t, err)
		assert.False(t, p.Expand.CanExpand)
		assert.NotEmpty(t, p.Expand.Reason)
	}

	_, err = svc.Preview(ctx, w.g, w.snap, 99999, Query{Granularity: 5})
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeNotFound))
}

func TestMembersPaging(t *testing.T) {
	w := buildWorld(t)
	svc := w.service()
	ctx := context.Background()

	v, err := svc.View(ctx, w.g, w.snap, Query{Granularity: 5})
	require.NoError(t, err)
	var target Node
	for _, c := range v.Clusters {
		if c.Size >= 4 {
			target = c
			break
		}
	}
	require.GreaterOrEqual(t, target.Size, 4)

	page1, err := svc.Members(ctx, w.g, w.snap, target.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page1.Members, 2)
	assert.Equal(t, target.Size, page1.Total)
	assert.GreaterOrEqual(t, page1.Members[0].Followers, page1.Members[1].Followers)

	page2, err := svc.Members(ctx, w.g, w.snap, target.ID, 2, 2)
	require.NoError(t, err)
	if len(page2.Members) > 0 {
		assert.GreaterOrEqual(t, page1.Members[1].Followers, page2.Members[0].Followers)
	}

	// Offset past the end yields an empty page.
	empty, err := svc.Members(ctx, w.g, w.snap, target.ID, 2, 1000)
	require.NoError(t, err)
	assert.Empty(t, empty.Members)
}

func TestPositionsPresent(t *testing.T) {
	w := buildWorld(t)
	svc := w.service()

	v, err := svc.View(context.Background(), w.g, w.snap, Query{Granularity: 5})
	require.NoError(t, err)
	for _, c := range v.Clusters {
		_, ok := v.Positions[c.ID]
		assert.True(t, ok, "cluster %d has a position", c.ID)
	}
}
