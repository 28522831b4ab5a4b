/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package discovery

// Signal keys used in weight maps and per-recommendation explanations.
const (
	SignalNeighborOverlap = "neighbor_overlap"
	SignalPageRank        = "pagerank"
	SignalCommunity       = "community"
	SignalPathDistance    = "path_distance"
)

// Request limits.
const (
	MaxSeeds  = 20
	MaxLimit  = 500
	MaxOffset = 10000

	defaultLimit = 50
)

// Subgraph extraction bounds.
const (
	bfsMaxDepth       = 2
	bfsNeighborCap    = 100
	bfsTotalNodeCap   = 5000
	defaultMaxDistance = 3
)

// DefaultWeights is the documented signal blend.
var DefaultWeights = map[string]float64{
	SignalNeighborOverlap: 0.4,
	SignalPageRank:        0.3,
	SignalCommunity:       0.2,
	SignalPathDistance:    0.1,
}

// Filters narrows the candidate set after scoring.
type Filters struct {
	// ExcludeFollowing drops accounts the seed already follows
	// (single-seed mode only).
	ExcludeFollowing bool `json:"exclude_following,omitempty"`
	// MaxDistance bounds the mutual-graph path distance signal. Zero means
	// the default of 3.
	MaxDistance int `json:"max_distance,omitempty"`
	// MinOverlap requires at least this many shared follows; auto-capped
	// at the number of resolved seeds.
	MinOverlap int `json:"min_overlap,omitempty"`
	// Follower-count bounds. Zero means unbounded.
	MinFollowers int64 `json:"min_followers,omitempty"`
	MaxFollowers int64 `json:"max_followers,omitempty"`
	// Community allow/deny lists over dominant propagation communities.
	IncludeCommunities []string `json:"include_communities,omitempty"`
	ExcludeCommunities []string `json:"exclude_communities,omitempty"`
	// IncludeShadow admits unresolved shadow accounts.
	IncludeShadow bool `json:"include_shadow,omitempty"`
}

// Request asks for candidate accounts ranked against a seed set.
type Request struct {
	// Caller identifies the rate-limit bucket.
	Caller string `json:"caller,omitempty"`
	// Seeds are account ids or usernames, at most MaxSeeds.
	Seeds []string `json:"seeds"`
	// Weights override the default blend per signal key. Values are
	// clamped to [0,1]; missing keys take defaults; an all-zero vector
	// reverts to defaults. The effective vector is normalized to sum to 1
	// with four-decimal rounding.
	Weights map[string]float64 `json:"weights,omitempty"`
	Filters Filters            `json:"filters,omitempty"`
	// Limit above MaxLimit is rejected; zero means 50. Offset above
	// MaxOffset is rejected; a negative offset yields an empty page with a
	// warning.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Signal carries the raw and normalized value of one scoring component.
type Signal struct {
	Raw        float64 `json:"raw"`
	Normalized float64 `json:"normalized"`
}

// Recommendation is one ranked candidate with full per-signal
// explainability: the composite equals the dot product of the response's
// normalized weights with the normalized signal values.
type Recommendation struct {
	Account   string            `json:"account"`
	Username  string            `json:"username"`
	Followers int64             `json:"followers"`
	Composite float64           `json:"composite"`
	Signals   map[string]Signal `json:"signals"`
}

// Response is a page of ranked recommendations.
type Response struct {
	Items []Recommendation `json:"items"`
	// Total is the number of ranked candidates before pagination.
	Total int `json:"total"`
	// Weights is the normalized effective weight vector.
	Weights map[string]float64 `json:"weights"`
	// ResolvedSeeds and DroppedSeeds account for seed resolution.
	ResolvedSeeds []string `json:"resolved_seeds"`
	DroppedSeeds  int      `json:"dropped_seeds,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}
