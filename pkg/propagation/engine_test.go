/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package propagation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/store"
)

type fixture struct {
	nodes []graph.Account
	edges []graph.Edge
}

func (f *fixture) node(id string) {
	f.nodes = append(f.nodes, graph.Account{ID: id, Username: "u" + id, FetchedAt: time.Unix(0, 0)})
}

func (f *fixture) follow(a, b string) {
	f.edges = append(f.edges, graph.Edge{Source: a, Target: b, Direction: graph.DirectionOutbound, FetchedAt: time.Unix(0, 0)})
}

func (f *fixture) clique(ids ...string) {
	for _, id := range ids {
		f.node(id)
	}
	for _, a := range ids {
		for _, b := range ids {
			if a != b {
				f.follow(a, b)
			}
		}
	}
}

func (f *fixture) load(t *testing.T) *graph.Handle {
	t.Helper()
	h, err := graph.Load(context.Background(), graph.SliceSource{Nodes: f.nodes, Links: f.edges})
	require.NoError(t, err)
	return h
}

func positive(community, account string) Anchor {
	return Anchor{Community: community, Account: account, Polarity: store.PolarityIn, Confidence: 1}
}

func assertRowStochastic(t *testing.T, r *Result) {
	t.Helper()
	for i, row := range r.Matrix {
		var sum float64
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0, "row %d", i)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "row %d", i)
	}
}

func TestSingleCommunityAnchor(t *testing.T) {
	f := &fixture{}
	f.clique("a0", "a1", "a2", "a3")
	g := f.load(t)

	r, err := New().Propagate(context.Background(), g, []Anchor{positive("ai", "a0")}, DefaultConfig())
	require.NoError(t, err)
	assertRowStochastic(t, r)

	i0, _ := g.Index("a0")
	col := 0 // single community
	assert.InDelta(t, 1.0, r.Matrix[i0][col], 1e-9, "anchor keeps boundary weight 1.0")

	// Every connected node receives positive mass for the community.
	for _, id := range []string{"a1", "a2", "a3"} {
		i, _ := g.Index(id)
		assert.Greater(t, r.Matrix[i][col], 0.0, "node %s", id)
	}
}

func TestNoAnchorsAllAbstain(t *testing.T) {
	f := &fixture{}
	f.clique("a0", "a1", "a2")
	g := f.load(t)

	r, err := New().Propagate(context.Background(), g, nil, DefaultConfig())
	require.NoError(t, err)

	assert.Empty(t, r.Communities)
	for i := range r.Matrix {
		assert.True(t, r.Abstain[i])
		assert.InDelta(t, 1.0, r.Matrix[i][r.NoneColumn()], 1e-12)
	}
	assert.Equal(t, 1.0, r.Diagnostics.NoneShare)
}

func TestTwoCommunitiesRowSumsAndDominance(t *testing.T) {
	f := &fixture{}
	f.clique("a0", "a1", "a2", "a3", "a4")
	f.clique("b0", "b1", "b2", "b3", "b4")
	f.follow("a0", "b0")
	g := f.load(t)

	anchors := []Anchor{
		positive("alpha", "a0"), positive("alpha", "a1"),
		positive("beta", "b0"), positive("beta", "b1"),
	}
	r, err := New().Propagate(context.Background(), g, anchors, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, r.Communities)
	assertRowStochastic(t, r)

	for _, id := range []string{"a0", "a1"} {
		i, _ := g.Index(id)
		assert.GreaterOrEqual(t, r.Matrix[i][0], 0.9, "anchor %s on alpha", id)
	}
	for _, id := range []string{"b0", "b1"} {
		i, _ := g.Index(id)
		assert.GreaterOrEqual(t, r.Matrix[i][1], 0.9, "anchor %s on beta", id)
	}

	// Unlabeled clique members lean toward their clique's community.
	for _, id := range []string{"a2", "a3", "a4"} {
		i, _ := g.Index(id)
		assert.Greater(t, r.Matrix[i][0], r.Matrix[i][1], "node %s", id)
	}
}

func TestChainMidpointsAbstain(t *testing.T) {
	f := &fixture{}
	f.clique("a0", "a1", "a2", "a3", "a4")
	f.clique("b0", "b1", "b2", "b3", "b4")
	// A long thin chain hanging off each clique, meeting in the middle.
	prev := "a0"
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("chain_%d", i)
		f.node(id)
		f.follow(prev, id)
		f.follow(id, prev)
		prev = id
	}
	f.follow(prev, "b0")
	f.follow("b0", prev)
	g := f.load(t)

	anchors := []Anchor{
		positive("alpha", "a0"), positive("alpha", "a1"),
		positive("beta", "b0"), positive("beta", "b1"),
	}
	r, err := New().Propagate(context.Background(), g, anchors, DefaultConfig())
	require.NoError(t, err)

	mid, _ := g.Index("chain_2")
	assert.True(t, r.Abstain[mid], "chain midpoint should abstain")
}

func TestDisconnectedUnlabeledComponent(t *testing.T) {
	f := &fixture{}
	f.clique("a0", "a1", "a2")
	f.clique("x0", "x1", "x2") // no anchors, no connection to a-clique
	g := f.load(t)

	r, err := New().Propagate(context.Background(), g, []Anchor{positive("ai", "a0")}, DefaultConfig())
	require.NoError(t, err)
	assertRowStochastic(t, r)

	cols := len(r.Communities) + 1
	for _, id := range []string{"x0", "x1", "x2"} {
		i, _ := g.Index(id)
		assert.True(t, r.Abstain[i], "disconnected node %s", id)
		for _, v := range r.Matrix[i] {
			assert.InDelta(t, 1.0/float64(cols), v, 1e-9)
		}
	}
}

func TestCommunityWithoutPositiveAnchorsDropped(t *testing.T) {
	f := &fixture{}
	f.clique("a0", "a1", "a2")
	g := f.load(t)

	anchors := []Anchor{
		positive("kept", "a0"),
		{Community: "ghost", Account: "a1", Polarity: store.PolarityNotIn, Confidence: 1},
	}
	r, err := New().Propagate(context.Background(), g, anchors, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"kept"}, r.Communities)
	assert.Equal(t, []string{"ghost"}, r.Diagnostics.DroppedCommunities)
	require.NotEmpty(t, r.Warnings)
}

func TestClassBalancingReducesAbsorption(t *testing.T) {
	f := &fixture{}
	big := make([]string, 73)
	for i := range big {
		big[i] = fmt.Sprintf("big_%02d", i)
	}
	small := []string{"sm_0", "sm_1", "sm_2", "sm_3"}
	f.clique(big...)
	f.clique(small...)
	f.follow(big[0], small[0])
	f.follow(small[0], big[0])
	g := f.load(t)

	// Partial-confidence priors: balancing rescales community weight
	// against the none column, so it only has leverage when μ < 1.
	var anchors []Anchor
	for i := 0; i < 15; i++ {
		anchors = append(anchors, Anchor{Community: "large", Account: big[i], Polarity: store.PolarityIn, Confidence: 0.6})
	}
	for i := 0; i < 2; i++ {
		anchors = append(anchors, Anchor{Community: "tiny", Account: small[i], Polarity: store.PolarityIn, Confidence: 0.6})
	}

	balanced := DefaultConfig()
	r1, err := New().Propagate(context.Background(), g, anchors, balanced)
	require.NoError(t, err)

	unbalanced := DefaultConfig()
	unbalanced.ClassBalance = BalanceOff
	r2, err := New().Propagate(context.Background(), g, anchors, unbalanced)
	require.NoError(t, err)

	assert.Less(t, r1.Diagnostics.Absorption["large"], 3.0,
		"balancing keeps the largest community's absorption under 3x its anchor count")
	assert.Less(t, r1.Diagnostics.Absorption["large"], r2.Diagnostics.Absorption["large"])
}

func TestDeterminism(t *testing.T) {
	f := &fixture{}
	f.clique("a0", "a1", "a2", "a3")
	f.clique("b0", "b1", "b2", "b3")
	f.follow("a0", "b0")
	g := f.load(t)

	anchors := []Anchor{positive("alpha", "a0"), positive("beta", "b0")}
	r1, err := New().Propagate(context.Background(), g, anchors, DefaultConfig())
	require.NoError(t, err)
	r2, err := New().Propagate(context.Background(), g, anchors, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, r1.Key, r2.Key)
	assert.Equal(t, r1.Matrix, r2.Matrix, "identical inputs yield bit-identical results")
}

func TestUnknownAnchorsWarn(t *testing.T) {
	f := &fixture{}
	f.clique("a0", "a1", "a2")
	g := f.load(t)

	anchors := []Anchor{positive("ai", "a0"), positive("ai", "nobody")}
	r, err := New().Propagate(context.Background(), g, anchors, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Diagnostics.UnknownAnchors)
	assert.NotEmpty(t, r.Warnings)
}

func TestDirectedRandomWalk(t *testing.T) {
	f := &fixture{}
	// u follows star; mass flows from followee to follower.
	f.node("star")
	f.node("fan_0")
	f.node("fan_1")
	f.follow("fan_0", "star")
	f.follow("fan_1", "star")
	g := f.load(t)

	cfg := DefaultConfig()
	cfg.WalkKind = WalkDirectedRandom
	r, err := New().Propagate(context.Background(), g, []Anchor{positive("ai", "star")}, cfg)
	require.NoError(t, err)
	assertRowStochastic(t, r)

	for _, id := range []string{"fan_0", "fan_1"} {
		i, _ := g.Index(id)
		assert.Greater(t, r.Matrix[i][0], 0.0, "follower %s receives mass from followee", id)
	}
}
