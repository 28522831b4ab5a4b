/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package spectral

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tpotmap/atlas/pkg/dendrogram"
	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/snapshot"
)

// Engine computes spectral embeddings and their Ward hierarchies. It is
// stateless; every Build reads one immutable graph handle and produces one
// immutable snapshot.
type Engine struct {
	snapshotDir string
}

// Option is a functional option for configuring Engine instances.
type Option func(*Engine)

// WithSnapshotDir sets the directory BuildAndSave writes artifacts to.
func WithSnapshotDir(dir string) Option {
	return func(e *Engine) {
		e.snapshotDir = dir
	}
}

// New creates a new Engine with the provided functional options.
func New(opts ...Option) *Engine {
	e := &Engine{snapshotDir: "snapshots"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build computes the embedding, eigenvalues, Ward linkage, and stability
// metric for the graph. Solver non-convergence is not fatal: the best
// available pairs are kept and the manifest records solver_converged=false
// together with the residual. Cancellation aborts between solver
// iterations and linkage merges without publishing anything.
func (e *Engine) Build(ctx context.Context, g *graph.Handle, cfg Config, progress Progress) (*snapshot.Snapshot, error) {
	start := time.Now()
	applyConfigDefaults(&cfg)

	n := g.NumNodes()
	if n < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "graph too small to embed: %d nodes", n)
	}
	dims := cfg.NDims
	if dims > n-2 {
		dims = n - 2
	}
	if dims < 1 {
		dims = 1
	}
	if cfg.CommunityAlpha < 0 || cfg.CommunityAlpha > 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "community_alpha must be in [0,1], got %g", cfg.CommunityAlpha)
	}

	op := newLaplacianOp(g, cfg)

	// One trivial pair to drop plus one extra pair for the spectral gap.
	nev := dims + 2
	eig, err := smallestEigenpairs(ctx, op, nev, cfg.SolverTol, cfg.SolverMaxIter, cfg.Seed, progress)
	if err != nil {
		buildTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !eig.converged {
		slog.Warn("eigensolver did not converge",
			"residual", eig.residual,
			"tolerance", cfg.SolverTol,
			"iterations", eig.iterations,
		)
	}

	kept := len(eig.values) - 1
	if kept > dims {
		kept = dims
	}
	if kept < 1 {
		return nil, errors.New(errors.ErrCodeInternal, "eigensolver returned no non-trivial pairs")
	}

	// Drop the trivial first pair, keep ascending order, L2-normalize rows.
	embedding := make([]float32, n*kept)
	embeddingF := make([]float64, n*kept)
	eigenvalues := make([]float32, kept)
	for c := 0; c < kept; c++ {
		eigenvalues[c] = float32(eig.values[c+1])
	}
	for i := 0; i < n; i++ {
		var norm float64
		for c := 0; c < kept; c++ {
			v := eig.vectors[c+1][i]
			embeddingF[i*kept+c] = v
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			norm = 1
		}
		for c := 0; c < kept; c++ {
			embeddingF[i*kept+c] /= norm
			embedding[i*kept+c] = float32(embeddingF[i*kept+c])
		}
	}

	if progress != nil {
		progress("linkage", 0, 1)
	}
	link, err := dendrogram.Ward(ctx, embeddingF, n, kept)
	if err != nil {
		buildTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	stability, err := e.stabilityARI(ctx, embeddingF, link, n, kept, cfg)
	if err != nil {
		buildTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	gap := 0.0
	if len(eig.values) > kept+1 {
		gap = eig.values[kept+1] - eig.values[kept]
	}

	flags := featureFlags(cfg)
	s := &snapshot.Snapshot{
		Embedding:   embedding,
		NodeIDs:     g.NodeIDs(),
		Eigenvalues: eigenvalues,
		Linkage:     []float32(link),
		Manifest: snapshot.Manifest{
			GeneratedAt:     time.Now().UTC(),
			SourceGraphHash: g.Hash().String(),
			SolverParams: snapshot.SolverParams{
				NDims:                 kept,
				SolverTol:             cfg.SolverTol,
				SolverMaxIter:         cfg.SolverMaxIter,
				StabilityRuns:         cfg.StabilityRuns,
				Seed:                  cfg.Seed,
				CommunityAlpha:        cfg.CommunityAlpha,
				CompletenessWeighting: string(cfg.CompletenessWeighting),
				ObsPMin:               cfg.ObsPMin,
			},
			SolverConverged:  eig.converged,
			SolverIterations: eig.iterations,
			SolverResidual:   eig.residual,
			EigenvalueGap:    gap,
			StabilityARI:     stability,
			FeatureFlags:     flags,
		},
	}

	buildDuration.Observe(time.Since(start).Seconds())
	buildTotal.WithLabelValues("success").Inc()
	slog.Info("spectral snapshot built",
		"nodes", n,
		"dims", kept,
		"converged", eig.converged,
		"stability_ari", stability,
		"elapsed", time.Since(start),
	)
	return s, nil
}

// BuildAndSave builds and writes the snapshot atomically under the
// engine's snapshot directory. A cancelled build leaves no artifact.
func (e *Engine) BuildAndSave(ctx context.Context, g *graph.Handle, cfg Config, progress Progress) (*snapshot.Snapshot, error) {
	s, err := e.Build(ctx, g, cfg, progress)
	if err != nil {
		return nil, err
	}
	if err := snapshot.Write(e.snapshotDir, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads a snapshot from the engine's directory and validates it
// against the given graph hash.
func (e *Engine) Load(current graph.Hash) (*snapshot.Snapshot, error) {
	s, err := snapshot.Load(e.snapshotDir)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(current); err != nil {
		return nil, err
	}
	return s, nil
}

// stabilityARI reruns the cluster cut over noise-perturbed embeddings and
// reports the mean adjusted Rand index against the baseline at a fixed cut
// size. Runs execute in parallel; each run derives its noise from the base
// seed so results are reproducible.
func (e *Engine) stabilityARI(ctx context.Context, embedding []float64, base dendrogram.Linkage, n, d int, cfg Config) (float64, error) {
	if cfg.StabilityRuns <= 0 || n < 4 {
		return 0, nil
	}
	cut := stabilityCutSize
	if cut > n/2 {
		cut = n / 2
	}
	if cut < 2 {
		cut = 2
	}
	baseline := dendrogram.Cut(base, n, cut)

	aris := make([]float64, cfg.StabilityRuns)
	grp, gctx := errgroup.WithContext(ctx)
	for r := 0; r < cfg.StabilityRuns; r++ {
		grp.Go(func() error {
			rng := rand.New(rand.NewSource(cfg.Seed + int64(r) + 1))
			noisy := make([]float64, len(embedding))
			for i, v := range embedding {
				noisy[i] = v + rng.NormFloat64()*1e-4
			}
			link, err := dendrogram.Ward(gctx, noisy, n, d)
			if err != nil {
				return err
			}
			aris[r] = dendrogram.AdjustedRandIndex(baseline, dendrogram.Cut(link, n, cut))
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return 0, err
	}
	var sum float64
	for _, a := range aris {
		sum += a
	}
	return sum / float64(len(aris)), nil
}

func applyConfigDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.NDims == 0 {
		cfg.NDims = def.NDims
	}
	if cfg.SolverTol == 0 {
		cfg.SolverTol = def.SolverTol
	}
	if cfg.SolverMaxIter == 0 {
		cfg.SolverMaxIter = def.SolverMaxIter
	}
	if cfg.CompletenessWeighting == "" {
		cfg.CompletenessWeighting = def.CompletenessWeighting
	}
	if cfg.ObsPMin == 0 {
		cfg.ObsPMin = def.ObsPMin
	}
}

func featureFlags(cfg Config) []string {
	var flags []string
	if cfg.CompletenessWeighting == WeightingIPW {
		flags = append(flags, "ipw_weighting")
	}
	if cfg.CommunityAlpha > 0 {
		flags = append(flags, fmt.Sprintf("community_alpha=%.2f", cfg.CommunityAlpha))
	}
	return flags
}
