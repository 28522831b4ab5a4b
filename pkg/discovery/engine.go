/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/propagation"
)

// Engine ranks candidate accounts against a seed set using a four-signal
// composite. One engine serves many callers; each caller gets its own
// token bucket.
type Engine struct {
	ratePerMinute int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option is a functional option for configuring Engine instances.
type Option func(*Engine)

// WithRatePerMinute overrides the default 30 requests/minute budget.
func WithRatePerMinute(n int) Option {
	return func(e *Engine) {
		e.ratePerMinute = n
	}
}

// New creates a new Engine with the provided functional options.
func New(opts ...Option) *Engine {
	e := &Engine{
		ratePerMinute: 30,
		limiters:      make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) limiter(caller string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[caller]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(e.ratePerMinute)/60), e.ratePerMinute)
		e.limiters[caller] = l
	}
	return l
}

// Recommend scores and ranks candidates for the request. The membership
// result may be nil, in which case the community signal is zero for every
// candidate.
func (e *Engine) Recommend(ctx context.Context, g *graph.Handle, membership *propagation.Result, req Request) (*Response, error) {
	start := time.Now()

	if len(req.Seeds) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidArgument, "at least one seed is required")
	}
	if len(req.Seeds) > MaxSeeds {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "too many seeds: %d > %d", len(req.Seeds), MaxSeeds)
	}
	if req.Limit > MaxLimit {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "limit %d exceeds %d", req.Limit, MaxLimit)
	}
	if req.Offset > MaxOffset {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "offset %d exceeds %d", req.Offset, MaxOffset)
	}

	if !e.limiter(req.Caller).Allow() {
		rateLimitRejects.Inc()
		return nil, errors.New(errors.ErrCodeRateLimitExceeded, "discovery rate limit exceeded")
	}

	resp := &Response{Weights: normalizeWeights(req.Weights)}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := req.Offset
	if offset < 0 {
		resp.Warnings = append(resp.Warnings, "invalid pagination: negative offset")
		resp.Items = []Recommendation{}
		requestsTotal.WithLabelValues("empty").Inc()
		return resp, nil
	}

	// Resolve seeds by id first, then by username.
	seedSet := make(map[int]bool)
	for _, s := range req.Seeds {
		if i, ok := g.Index(s); ok {
			if !seedSet[i] {
				seedSet[i] = true
				resp.ResolvedSeeds = append(resp.ResolvedSeeds, g.Account(i).ID)
			}
			continue
		}
		if i, ok := indexByUsername(g, s); ok {
			if !seedSet[i] {
				seedSet[i] = true
				resp.ResolvedSeeds = append(resp.ResolvedSeeds, g.Account(i).ID)
			}
			continue
		}
		resp.DroppedSeeds++
	}
	if len(seedSet) == 0 {
		return nil, errors.NewWithContext(errors.ErrCodeNotFound, "no seeds resolved",
			map[string]any{"seeds": errors.TruncateIDs(req.Seeds)})
	}
	if resp.DroppedSeeds > 0 {
		resp.Warnings = append(resp.Warnings,
			fmt.Sprintf("%d seeds did not resolve and were dropped", resp.DroppedSeeds))
	}
	sort.Strings(resp.ResolvedSeeds)

	seeds := make([]int, 0, len(seedSet))
	for i := range seedSet {
		seeds = append(seeds, i)
	}
	sort.Ints(seeds)

	// Bounded candidate subgraph.
	sub, truncated, err := extractSubgraph(ctx, g, seeds)
	if err != nil {
		return nil, err
	}
	if truncated {
		resp.Warnings = append(resp.Warnings, "subgraph_truncated")
	}

	maxDistance := req.Filters.MaxDistance
	if maxDistance <= 0 {
		maxDistance = defaultMaxDistance
	}
	minOverlap := req.Filters.MinOverlap
	if minOverlap > len(seeds) {
		minOverlap = len(seeds)
	}

	scores, err := computeSignals(ctx, g, membership, seeds, seedSet, sub, maxDistance)
	if err != nil {
		return nil, err
	}

	items := make([]Recommendation, 0, len(scores))
	for _, sc := range scores {
		acct := g.Account(sc.node)
		if !passesFilters(g, acct, sc, req.Filters, minOverlap, seeds, membership) {
			continue
		}

		var composite float64
		for key, w := range resp.Weights {
			composite += w * sc.signals[key].Normalized
		}
		items = append(items, Recommendation{
			Account:   acct.ID,
			Username:  acct.Username,
			Followers: acct.Followers,
			Composite: round4(composite),
			Signals:   sc.signals,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Composite != items[j].Composite {
			return items[i].Composite > items[j].Composite
		}
		return items[i].Account < items[j].Account
	})

	resp.Total = len(items)
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	resp.Items = items[offset:end]

	requestDuration.Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues("success").Inc()
	slog.Debug("discovery request served",
		"seeds", len(seeds),
		"candidates", len(scores),
		"ranked", resp.Total,
		"truncated", truncated,
		"elapsed", time.Since(start),
	)
	return resp, nil
}

func passesFilters(g *graph.Handle, acct graph.Account, sc scoredCandidate, f Filters, minOverlap int, seeds []int, membership *propagation.Result) bool {
	if !f.IncludeShadow && acct.Provenance == graph.ProvenanceShadow {
		return false
	}
	if f.MinFollowers > 0 && acct.Followers < f.MinFollowers {
		return false
	}
	if f.MaxFollowers > 0 && acct.Followers > f.MaxFollowers {
		return false
	}
	if minOverlap > 0 && sc.signals[SignalNeighborOverlap].Raw < float64(minOverlap) {
		return false
	}
	if f.MaxDistance > 0 {
		raw := sc.signals[SignalPathDistance].Raw
		if raw < 0 || raw > float64(f.MaxDistance) {
			return false
		}
	}
	if f.ExcludeFollowing && len(seeds) == 1 {
		if g.Directed().Has(seeds[0], uint32(sc.node)) {
			return false
		}
	}
	if len(f.IncludeCommunities) > 0 || len(f.ExcludeCommunities) > 0 {
		comm := ""
		if membership != nil {
			comm = membership.CommunityOf(sc.node)
		}
		if len(f.IncludeCommunities) > 0 && !containsString(f.IncludeCommunities, comm) {
			return false
		}
		if containsString(f.ExcludeCommunities, comm) && comm != "" {
			return false
		}
	}
	return true
}

// normalizeWeights clamps user weights to [0,1], falls back to defaults for
// missing keys or an all-zero vector, and normalizes to sum to 1 with
// four-decimal rounding.
func normalizeWeights(user map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(DefaultWeights))
	var sum float64
	for key, def := range DefaultWeights {
		v, ok := user[key]
		if !ok || math.IsNaN(v) {
			v = def
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[key] = v
		sum += v
	}
	if sum == 0 {
		for key, def := range DefaultWeights {
			out[key] = def
			sum += def
		}
	}
	for key := range out {
		out[key] = round4(out[key] / sum)
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func indexByUsername(g *graph.Handle, username string) (int, bool) {
	for i := 0; i < g.NumNodes(); i++ {
		if g.Account(i).Username == username {
			return i, true
		}
	}
	return 0, false
}

func containsString(v []string, x string) bool {
	for _, e := range v {
		if e == x {
			return true
		}
	}
	return false
}
