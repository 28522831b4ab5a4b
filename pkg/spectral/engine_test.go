/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package spectral

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	atlaserrors "github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/snapshot"
)

// twoCliques builds two k-cliques joined by a single bridge edge. Node ids
// are aa_0..aa_{k-1} and bb_0..bb_{k-1} so clique membership survives the
// canonical id ordering.
func twoCliques(t *testing.T, k int) *graph.Handle {
	t.Helper()
	ts := time.Unix(1700000000, 0)
	var nodes []graph.Account
	var edges []graph.Edge
	add := func(prefix string) []string {
		ids := make([]string, k)
		for i := 0; i < k; i++ {
			id := fmt.Sprintf("%s_%02d", prefix, i)
			ids[i] = id
			nodes = append(nodes, graph.Account{ID: id, Username: "u" + id, Provenance: graph.ProvenanceArchive, FetchedAt: ts})
		}
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				if i != j {
					edges = append(edges, graph.Edge{Source: ids[i], Target: ids[j], Direction: graph.DirectionOutbound, FetchedAt: ts})
				}
			}
		}
		return ids
	}
	a := add("aa")
	b := add("bb")
	edges = append(edges, graph.Edge{Source: a[0], Target: b[0], Direction: graph.DirectionOutbound, FetchedAt: ts})

	h, err := graph.Load(context.Background(), graph.SliceSource{Nodes: nodes, Links: edges})
	require.NoError(t, err)
	return h
}

func buildCfg(dims int) Config {
	cfg := DefaultConfig()
	cfg.NDims = dims
	cfg.StabilityRuns = 2
	cfg.Seed = 42
	return cfg
}

func TestBuildTwoCliqueSeparation(t *testing.T) {
	g := twoCliques(t, 5)
	s, err := New().Build(context.Background(), g, buildCfg(4), nil)
	require.NoError(t, err)

	require.Equal(t, 10, s.NumNodes())
	d := s.Dims()
	require.GreaterOrEqual(t, d, 1)

	// The first non-trivial dimension separates the cliques: the two
	// clique means have opposite signs.
	var meanA, meanB float64
	for i, id := range s.NodeIDs {
		if id[0] == 'a' {
			meanA += float64(s.Row(i)[0])
		} else {
			meanB += float64(s.Row(i)[0])
		}
	}
	assert.Less(t, meanA*meanB, 0.0, "clique means should have opposite signs")
}

func TestBuildRowNormsAndEigenvalueOrder(t *testing.T) {
	g := twoCliques(t, 5)
	s, err := New().Build(context.Background(), g, buildCfg(4), nil)
	require.NoError(t, err)

	for i := 0; i < s.NumNodes(); i++ {
		var norm float64
		for _, v := range s.Row(i) {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6, "row %d", i)
	}

	for i := 1; i < len(s.Eigenvalues); i++ {
		assert.LessOrEqual(t, s.Eigenvalues[i-1], s.Eigenvalues[i])
	}

	// Ward linkage has shape (N-1)×4.
	assert.Equal(t, (s.NumNodes()-1)*4, len(s.Linkage))
	assert.True(t, s.Manifest.SolverConverged)
	assert.Positive(t, s.Manifest.SolverIterations)
}

func TestBuildSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := twoCliques(t, 5)
	e := New(WithSnapshotDir(dir))

	s, err := e.BuildAndSave(context.Background(), g, buildCfg(3), nil)
	require.NoError(t, err)

	got, err := e.Load(g.Hash())
	require.NoError(t, err)
	assert.Equal(t, s.Embedding, got.Embedding)
	assert.Equal(t, s.Eigenvalues, got.Eigenvalues)
	assert.Equal(t, s.Linkage, got.Linkage)
	assert.Equal(t, s.NodeIDs, got.NodeIDs)
}

func TestLoadStaleHash(t *testing.T) {
	dir := t.TempDir()
	g := twoCliques(t, 5)
	e := New(WithSnapshotDir(dir))
	_, err := e.BuildAndSave(context.Background(), g, buildCfg(3), nil)
	require.NoError(t, err)

	other := twoCliques(t, 4)
	_, err = e.Load(other.Hash())
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeStale))
}

func TestBuildCancellationLeavesNoArtifact(t *testing.T) {
	dir := t.TempDir()
	g := twoCliques(t, 12)
	e := New(WithSnapshotDir(dir))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.BuildAndSave(ctx, g, buildCfg(6), nil)
	require.Error(t, err)
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeCancelled))

	_, statErr := os.Stat(filepath.Join(dir, snapshot.SpectralFile))
	assert.True(t, os.IsNotExist(statErr), "no partial artifact may remain")
}

func TestBuildProgressCallback(t *testing.T) {
	g := twoCliques(t, 5)
	var stages []string
	_, err := New().Build(context.Background(), g, buildCfg(3), func(stage string, done, total int) {
		if len(stages) == 0 || stages[len(stages)-1] != stage {
			stages = append(stages, stage)
		}
	})
	require.NoError(t, err)
	assert.Contains(t, stages, "eigensolve")
	assert.Contains(t, stages, "linkage")
}

func TestBuildDeterminism(t *testing.T) {
	g := twoCliques(t, 5)
	cfg := buildCfg(4)
	cfg.StabilityRuns = 0

	s1, err := New().Build(context.Background(), g, cfg, nil)
	require.NoError(t, err)
	s2, err := New().Build(context.Background(), g, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, s1.Embedding, s2.Embedding)
	assert.Equal(t, s1.Eigenvalues, s2.Eigenvalues)
}

func TestBuildTinyGraphRejected(t *testing.T) {
	ts := time.Unix(0, 0)
	h, err := graph.Load(context.Background(), graph.SliceSource{
		Nodes: []graph.Account{{ID: "solo", FetchedAt: ts}},
	})
	require.NoError(t, err)
	_, err = New().Build(context.Background(), h, buildCfg(3), nil)
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeInvalidArgument))
}
