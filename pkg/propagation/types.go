/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package propagation

import (
	"github.com/tpotmap/atlas/pkg/store"
)

// WalkKind selects the Laplacian the harmonic system is built from.
type WalkKind string

const (
	// WalkSymmetric propagates over the symmetrized adjacency.
	WalkSymmetric WalkKind = "symmetric"
	// WalkDirectedRandom propagates along follow direction using the
	// row-stochastic walk, so mass flows from followees to followers.
	// Gated behind a flag until it is validated against the symmetric
	// default on real graphs.
	WalkDirectedRandom WalkKind = "directed_random_walk"
)

// ClassBalance selects anchor-count compensation.
type ClassBalance string

const (
	// BalanceOff leaves boundary weights unscaled.
	BalanceOff ClassBalance = "off"
	// BalanceInverseSqrt scales community columns by 1/√(anchor count).
	BalanceInverseSqrt ClassBalance = "inverse_sqrt"
)

// Config controls a propagation run. Zero values take documented defaults.
type Config struct {
	Temperature        float64
	AbstainConfidence  float64
	AbstainUncertainty float64
	Regularization     float64
	ClassBalance       ClassBalance
	WalkKind           WalkKind
	// Weighting toggles inverse-probability edge weighting ("off"/"ipw").
	Weighting string
	ObsPMin   float64
	// MaxIter bounds the inner solver.
	MaxIter int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:        2,
		AbstainConfidence:  0.15,
		AbstainUncertainty: 0.6,
		Regularization:     1e-3,
		ClassBalance:       BalanceInverseSqrt,
		WalkKind:           WalkSymmetric,
		Weighting:          "off",
		ObsPMin:            0.05,
		MaxIter:            2000,
	}
}

// Anchor is a human-supplied boundary condition: a positive or negative
// community tag on an account.
type Anchor struct {
	Community  string
	Account    string
	Polarity   store.Polarity
	Confidence float64
}

// AnchorsFromTags converts workspace tag assignments into anchors, one per
// (account, tag key).
func AnchorsFromTags(tags []store.TagAssignment) []Anchor {
	out := make([]Anchor, 0, len(tags))
	for _, t := range tags {
		out = append(out, Anchor{
			Community:  t.TagKey,
			Account:    t.Account,
			Polarity:   t.Polarity,
			Confidence: t.Confidence,
		})
	}
	return out
}

// Diagnostics summarizes a run for calibration review.
type Diagnostics struct {
	// NoneShare is the fraction of accounts whose dominant class is
	// "none". Sparse seeding on realistic graphs lands around 40–60%.
	NoneShare float64 `json:"none_share"`
	// Absorption maps community → total mass / positive anchor count.
	Absorption map[string]float64 `json:"absorption"`
	// AbsorptionFlagged lists communities whose absorption exceeds 3×.
	AbsorptionFlagged []string `json:"absorption_flagged,omitempty"`
	// MeanUncertainty per community, over accounts whose dominant class is
	// that community.
	MeanUncertainty map[string]float64 `json:"mean_uncertainty"`
	// LouvainARI is the adjusted Rand agreement between dominant classes
	// and Louvain communities. Zero when Louvain was unavailable.
	LouvainARI float64 `json:"louvain_ari"`
	// DroppedCommunities had no positive anchors and were excluded.
	DroppedCommunities []string `json:"dropped_communities,omitempty"`
	// UnknownAnchors counts anchors referencing accounts outside the graph.
	UnknownAnchors int `json:"unknown_anchors,omitempty"`
}

// Result is a versioned membership matrix with calibrated uncertainty.
type Result struct {
	// RunID identifies this run in logs and diagnostics.
	RunID string `json:"run_id"`
	// Key is the structural cache key: (graph hash, anchor hash, params).
	Key string `json:"key"`
	// Communities are the K retained community names, sorted; the implicit
	// (K+1)-th class is "none".
	Communities []string `json:"communities"`
	// Matrix is N×(K+1), row-stochastic, in canonical node order.
	Matrix [][]float64 `json:"-"`
	// Entropy is the normalized row entropy in [0,1].
	Entropy []float64 `json:"-"`
	// Uncertainty blends entropy with degree sparsity.
	Uncertainty []float64 `json:"-"`
	// Abstain marks rows below the confidence or above the uncertainty
	// thresholds.
	Abstain []bool `json:"-"`

	Diagnostics Diagnostics `json:"diagnostics"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// NoneColumn returns the column index of the abstain class.
func (r *Result) NoneColumn() int { return len(r.Communities) }

// CommunityOf returns the dominant community name for node i, or "" when
// the dominant class is none or the row abstains.
func (r *Result) CommunityOf(i int) string {
	if r.Abstain[i] {
		return ""
	}
	best, bestV := -1, -1.0
	for c, v := range r.Matrix[i] {
		if v > bestV {
			best, bestV = c, v
		}
	}
	if best < 0 || best == r.NoneColumn() {
		return ""
	}
	return r.Communities[best]
}
