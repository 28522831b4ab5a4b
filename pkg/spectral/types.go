/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package spectral

// Weighting selects how edge observation completeness adjusts the adjacency.
type Weighting string

const (
	// WeightingOff uses raw edge weights.
	WeightingOff Weighting = "off"
	// WeightingIPW multiplies each edge by the inverse of the clipped
	// observation probability of its endpoints.
	WeightingIPW Weighting = "ipw"
)

// Config controls an embedding build.
type Config struct {
	// NDims is the number of non-trivial embedding dimensions.
	NDims int
	// SolverTol is the Ritz-pair residual tolerance.
	SolverTol float64
	// SolverMaxIter bounds the Krylov dimension of the eigensolver.
	SolverMaxIter int
	// StabilityRuns is the number of noisy reruns behind the stability
	// metric. Zero disables the metric.
	StabilityRuns int
	// Seed fixes the solver's start vector and the stability noise.
	Seed int64
	// CommunityAlpha blends soft community structure into the adjacency:
	// W' = (1-α)·W + α·M·Mᵀ. Zero keeps the plain adjacency.
	CommunityAlpha float64
	// Membership is the row-stochastic N×K soft-membership matrix used
	// when CommunityAlpha > 0. Row order must match the graph's canonical
	// node ordering.
	Membership [][]float64
	// CompletenessWeighting toggles inverse-probability edge weighting.
	CompletenessWeighting Weighting
	// ObsPMin clips observation probabilities away from zero.
	ObsPMin float64
}

// DefaultConfig returns the documented build defaults.
func DefaultConfig() Config {
	return Config{
		NDims:                 30,
		SolverTol:             1e-10,
		SolverMaxIter:         5000,
		StabilityRuns:         3,
		CommunityAlpha:        0,
		CompletenessWeighting: WeightingOff,
		ObsPMin:               0.05,
	}
}

// Progress reports long-running build stages. Implementations must be fast;
// they are invoked from the hot path of the solver's outer loop.
type Progress func(stage string, done, total int)

// stabilityCutSize is the fixed flat-cut size the stability ARI is
// measured at.
const stabilityCutSize = 50
