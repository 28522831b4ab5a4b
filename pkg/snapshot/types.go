/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package snapshot

import (
	"sync"
	"time"

	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
)

// SolverParams records the spectral configuration a snapshot was built with.
type SolverParams struct {
	NDims                 int     `json:"n_dims"`
	SolverTol             float64 `json:"solver_tol"`
	SolverMaxIter         int     `json:"solver_max_iter"`
	StabilityRuns         int     `json:"stability_runs"`
	Seed                  int64   `json:"seed"`
	CommunityAlpha        float64 `json:"community_alpha"`
	CompletenessWeighting string  `json:"completeness_weighting"`
	ObsPMin               float64 `json:"obs_p_min"`
}

// Manifest describes a spectral artifact. It is stored as JSON beside the
// binary archive and validated on load.
type Manifest struct {
	GeneratedAt     time.Time    `json:"generated_at"`
	SourceGraphHash string       `json:"source_graph_hash"`
	SolverParams    SolverParams `json:"solver_params"`
	SolverConverged bool         `json:"solver_converged"`
	SolverIterations int         `json:"solver_iterations"`
	SolverResidual  float64      `json:"solver_residual,omitempty"`
	EigenvalueGap   float64      `json:"eigenvalue_gap"`
	StabilityARI    float64      `json:"stability_ari"`
	FeatureFlags    []string     `json:"feature_flags,omitempty"`
}

// Snapshot is the immutable spectral artifact: the embedding, its node-id
// index, eigenvalues, and the Ward linkage. Once written it never changes;
// rebuilds produce a new Snapshot that is atomically swapped in.
type Snapshot struct {
	// Embedding is row-major float32 with NumNodes rows of Dims columns.
	Embedding []float32
	NodeIDs   []string
	// Eigenvalues are ascending, trivial pair already dropped.
	Eigenvalues []float32
	// Linkage is row-major (N-1)×4 Ward linkage: left, right, distance, size.
	Linkage  []float32
	Manifest Manifest

	indexOnce sync.Once
	index     map[string]int
}

// NumNodes returns the number of embedded nodes.
func (s *Snapshot) NumNodes() int { return len(s.NodeIDs) }

// Dims returns the embedding dimensionality.
func (s *Snapshot) Dims() int {
	if len(s.NodeIDs) == 0 {
		return 0
	}
	return len(s.Embedding) / len(s.NodeIDs)
}

// Row returns the embedding row for node i. The slice aliases internal
// storage and must not be mutated.
func (s *Snapshot) Row(i int) []float32 {
	d := s.Dims()
	return s.Embedding[i*d : (i+1)*d]
}

// Index returns the embedding row of an account id. Safe for concurrent
// use; the lookup map is built once on first access.
func (s *Snapshot) Index(id string) (int, bool) {
	s.indexOnce.Do(func() {
		s.index = make(map[string]int, len(s.NodeIDs))
		for i, nid := range s.NodeIDs {
			s.index[nid] = i
		}
	})
	i, ok := s.index[id]
	return i, ok
}

// LinkageRow returns merge row k as (left, right, distance, size).
func (s *Snapshot) LinkageRow(k int) (left, right int, dist float64, size int) {
	row := s.Linkage[k*4 : k*4+4]
	return int(row[0]), int(row[1]), float64(row[2]), int(row[3])
}

// NumMerges returns the number of linkage rows (N-1 for N embedded nodes).
func (s *Snapshot) NumMerges() int { return len(s.Linkage) / 4 }

// Hash returns the parsed source graph hash.
func (s *Snapshot) Hash() graph.Hash {
	h, _ := graph.ParseHash(s.Manifest.SourceGraphHash)
	return h
}

// Validate checks the snapshot against the currently loaded graph. A hash
// mismatch yields a STALE error carrying both hashes so the caller can
// trigger a rebuild.
func (s *Snapshot) Validate(current graph.Hash) error {
	if s.Manifest.SourceGraphHash == current.String() {
		return nil
	}
	return errors.NewWithContext(errors.ErrCodeStale,
		"snapshot does not match the loaded graph",
		map[string]any{
			"snapshot_hash": s.Manifest.SourceGraphHash,
			"graph_hash":    current.String(),
		})
}
