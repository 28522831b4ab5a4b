/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package spectral

import (
	"context"
	"math"
	"time"

	"github.com/tpotmap/atlas/pkg/dendrogram"
	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/snapshot"
	"github.com/tpotmap/atlas/pkg/store"
)

// BuildFromFingerprints produces a snapshot whose embedding basis is the
// per-account content fingerprints (posted and liked tweet distributions
// plus graph features) instead of the Laplacian eigenvectors. Accounts
// without a fingerprint get a zero row and cluster together. The Ward
// hierarchy and artifact layout are identical to the spectral path, so
// every downstream consumer works unchanged.
func (e *Engine) BuildFromFingerprints(ctx context.Context, g *graph.Handle, fps []store.Fingerprint, cfg Config) (*snapshot.Snapshot, error) {
	if len(fps) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidArgument, "no fingerprints supplied")
	}
	n := g.NumNodes()
	if n < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "graph too small to embed: %d nodes", n)
	}

	dims := 0
	byID := make(map[string][]float32, len(fps))
	version := ""
	for _, fp := range fps {
		vec := make([]float32, 0, len(fp.Posted)+len(fp.Liked)+len(fp.GraphFeatures))
		vec = append(vec, fp.Posted...)
		vec = append(vec, fp.Liked...)
		vec = append(vec, fp.GraphFeatures...)
		if len(vec) == 0 {
			continue
		}
		if dims == 0 {
			dims = len(vec)
			version = fp.PromptVersion
		}
		if len(vec) != dims {
			return nil, errors.NewWithContext(errors.ErrCodeInvalidArgument,
				"fingerprint dimensionality mismatch",
				map[string]any{"account": fp.Account, "got": len(vec), "want": dims})
		}
		byID[fp.Account] = vec
	}
	if dims == 0 {
		return nil, errors.New(errors.ErrCodeInvalidArgument, "all fingerprints are empty")
	}

	embedding := make([]float32, n*dims)
	embeddingF := make([]float64, n*dims)
	covered := 0
	for i := 0; i < n; i++ {
		vec, ok := byID[g.Account(i).ID]
		if !ok {
			continue
		}
		covered++
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			norm = 1
		}
		for k, v := range vec {
			embeddingF[i*dims+k] = float64(v) / norm
			embedding[i*dims+k] = float32(embeddingF[i*dims+k])
		}
	}

	link, err := dendrogram.Ward(ctx, embeddingF, n, dims)
	if err != nil {
		return nil, err
	}

	eigenvalues := make([]float32, dims)
	s := &snapshot.Snapshot{
		Embedding:   embedding,
		NodeIDs:     g.NodeIDs(),
		Eigenvalues: eigenvalues,
		Linkage:     []float32(link),
		Manifest: snapshot.Manifest{
			GeneratedAt:     time.Now().UTC(),
			SourceGraphHash: g.Hash().String(),
			SolverParams: snapshot.SolverParams{
				NDims: dims,
				Seed:  cfg.Seed,
			},
			SolverConverged: true,
			FeatureFlags:    []string{"fingerprint_basis", "prompt_version=" + version},
		},
	}
	if covered < n {
		s.Manifest.FeatureFlags = append(s.Manifest.FeatureFlags, "fingerprint_partial_coverage")
	}
	return s, nil
}
