/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tpotmap/atlas/pkg/community"
	"github.com/tpotmap/atlas/pkg/dendrogram"
	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/metricscache"
	"github.com/tpotmap/atlas/pkg/store"
)

// Uncertainty blend weights: normalized row entropy and inverse square-root
// degree contribute equally.
const (
	wEntropy = 0.5
	wDegree  = 0.5
)

// Engine runs multi-class Gaussian-random-field label propagation with an
// explicit abstain class.
type Engine struct {
	louvain *community.Service
}

// Option is a functional option for configuring Engine instances.
type Option func(*Engine)

// WithLouvain enables the Louvain-agreement diagnostic.
func WithLouvain(svc *community.Service) Option {
	return func(e *Engine) {
		e.louvain = svc
	}
}

// New creates a new Engine with the provided functional options.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Propagate computes the membership matrix for the graph under the given
// anchors. The run is deterministic: identical (graph hash, anchors,
// config) inputs produce bit-identical matrices. Communities without
// positive anchors are dropped with a warning; unlabeled components that
// cannot be reached from any anchor receive uniform abstain rows.
func (e *Engine) Propagate(ctx context.Context, g *graph.Handle, anchors []Anchor, cfg Config) (*Result, error) {
	start := time.Now()
	applyDefaults(&cfg)
	if cfg.WalkKind != WalkSymmetric && cfg.WalkKind != WalkDirectedRandom {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "invalid walk kind %q", cfg.WalkKind)
	}

	n := g.NumNodes()
	res := &Result{RunID: uuid.New().String()}

	// Resolve anchors and gather positive counts per community.
	type nodeAnchor struct {
		node       int
		polarity   store.Polarity
		confidence float64
	}
	byCommunity := make(map[string][]nodeAnchor)
	posCount := make(map[string]int)
	unknown := 0
	for _, a := range anchors {
		idx, ok := g.Index(a.Account)
		if !ok {
			unknown++
			continue
		}
		conf := a.Confidence
		if conf <= 0 || conf > 1 {
			conf = 1
		}
		byCommunity[a.Community] = append(byCommunity[a.Community], nodeAnchor{idx, a.Polarity, conf})
		if a.Polarity == store.PolarityIn {
			posCount[a.Community]++
		}
	}
	if unknown > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d anchors reference unknown accounts", unknown))
	}

	var communities, dropped []string
	for c := range byCommunity {
		if posCount[c] > 0 {
			communities = append(communities, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	sort.Strings(communities)
	sort.Strings(dropped)
	for _, d := range dropped {
		res.Warnings = append(res.Warnings, fmt.Sprintf("community %q has no positive anchors and was dropped", d))
	}

	k := len(communities)
	cols := k + 1
	none := k
	res.Communities = communities
	res.Diagnostics.DroppedCommunities = dropped
	res.Diagnostics.UnknownAnchors = unknown

	key, err := runKey(g, anchors, cfg)
	if err != nil {
		return nil, err
	}
	res.Key = key

	res.Matrix = make([][]float64, n)
	res.Entropy = make([]float64, n)
	res.Uncertainty = make([]float64, n)
	res.Abstain = make([]bool, n)

	// No usable anchors at all: every row is the abstain column.
	if k == 0 {
		for i := 0; i < n; i++ {
			row := make([]float64, 1)
			row[0] = 1
			res.Matrix[i] = row
			res.Abstain[i] = true
		}
		res.Diagnostics.NoneShare = 1
		res.Diagnostics.Absorption = map[string]float64{}
		res.Diagnostics.MeanUncertainty = map[string]float64{}
		runsTotal.WithLabelValues("empty").Inc()
		return res, nil
	}

	colOf := make(map[string]int, k)
	for c, name := range communities {
		colOf[name] = c
	}

	// Boundary matrix. μ weights from positive anchors; negative anchors
	// pin the community weight to zero but still mark the row labeled.
	labeled := make([]bool, n)
	fl := make([][]float64, n)
	for name, list := range byCommunity {
		col, retained := colOf[name]
		for _, a := range list {
			if fl[a.node] == nil {
				fl[a.node] = make([]float64, cols)
			}
			labeled[a.node] = true
			if retained && a.polarity == store.PolarityIn {
				if a.confidence > fl[a.node][col] {
					fl[a.node][col] = a.confidence
				}
			}
		}
	}
	var labeledIdx []int
	for i := 0; i < n; i++ {
		if !labeled[i] {
			continue
		}
		labeledIdx = append(labeledIdx, i)
		row := fl[i]
		var sum float64
		for c := 0; c < k; c++ {
			sum += row[c]
		}
		if sum > 1 {
			for c := 0; c < k; c++ {
				row[c] /= sum
			}
			sum = 1
		}
		row[none] = 1 - sum
	}

	// Class balancing compensates for anchor-count imbalance before the
	// rows are renormalized.
	if cfg.ClassBalance == BalanceInverseSqrt {
		for _, i := range labeledIdx {
			row := fl[i]
			var sum float64
			for c, name := range communities {
				row[c] /= math.Sqrt(float64(posCount[name]))
				sum += row[c]
			}
			sum += row[none]
			if sum > 0 {
				for c := range row {
					row[c] /= sum
				}
			} else {
				row[none] = 1
			}
		}
	}

	adj := buildAdjacency(g, cfg)
	reach := adj.reachableFrom(labeledIdx)

	uPos := make([]int, n)
	var uIndex []int
	for i := 0; i < n; i++ {
		uPos[i] = -1
		if !labeled[i] && reach[i] {
			uPos[i] = len(uIndex)
			uIndex = append(uIndex, i)
		}
	}

	fu, err := harmonicSolve(ctx, adj, cfg, uIndex, uPos, fl, labeled, cols)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// Assemble: boundary rows pass through unchanged; harmonic rows get
	// the temperature softmax; unreachable rows are uniform abstain.
	uniform := 1 / float64(cols)
	for i := 0; i < n; i++ {
		switch {
		case labeled[i]:
			res.Matrix[i] = fl[i]
		case uPos[i] >= 0:
			res.Matrix[i] = softmax(fu[uPos[i]], cfg.Temperature)
		default:
			row := make([]float64, cols)
			for c := range row {
				row[c] = uniform
			}
			res.Matrix[i] = row
			res.Abstain[i] = true
		}
	}

	logCols := math.Log(float64(cols))
	for i := 0; i < n; i++ {
		row := res.Matrix[i]
		var h, max float64
		for _, v := range row {
			if v > 0 {
				h -= v * math.Log(v)
			}
			if v > max {
				max = v
			}
		}
		if logCols > 0 {
			h /= logCols
		}
		deg := float64(adj.rowPtr[i+1] - adj.rowPtr[i])
		u := wEntropy*h + wDegree/math.Sqrt(deg+1)
		res.Entropy[i] = h
		res.Uncertainty[i] = u
		if max < cfg.AbstainConfidence || u > cfg.AbstainUncertainty {
			res.Abstain[i] = true
		}
	}

	e.fillDiagnostics(ctx, g, res, posCount)

	runDuration.Observe(time.Since(start).Seconds())
	runsTotal.WithLabelValues("success").Inc()
	slog.Info("propagation run complete",
		"run_id", res.RunID,
		"communities", k,
		"labeled", len(labeledIdx),
		"unlabeled", len(uIndex),
		"none_share", res.Diagnostics.NoneShare,
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (e *Engine) fillDiagnostics(ctx context.Context, g *graph.Handle, res *Result, posCount map[string]int) {
	n := len(res.Matrix)
	cols := len(res.Communities) + 1
	none := res.NoneColumn()

	dominant := make([]int, n)
	noneCount := 0
	mass := make([]float64, cols)
	for i, row := range res.Matrix {
		best, bestV := none, -1.0
		for c, v := range row {
			mass[c] += v
			if v > bestV {
				best, bestV = c, v
			}
		}
		dominant[i] = best
		if best == none {
			noneCount++
		}
	}
	res.Diagnostics.NoneShare = float64(noneCount) / math.Max(float64(n), 1)

	res.Diagnostics.Absorption = make(map[string]float64, len(res.Communities))
	for c, name := range res.Communities {
		ratio := mass[c] / math.Max(float64(posCount[name]), 1)
		res.Diagnostics.Absorption[name] = ratio
		if ratio > 3 {
			res.Diagnostics.AbsorptionFlagged = append(res.Diagnostics.AbsorptionFlagged, name)
		}
	}
	sort.Strings(res.Diagnostics.AbsorptionFlagged)

	res.Diagnostics.MeanUncertainty = make(map[string]float64, len(res.Communities))
	for c, name := range res.Communities {
		var sum float64
		count := 0
		for i := range res.Matrix {
			if dominant[i] == c {
				sum += res.Uncertainty[i]
				count++
			}
		}
		if count > 0 {
			res.Diagnostics.MeanUncertainty[name] = sum / float64(count)
		}
	}

	if e.louvain != nil {
		if assign, err := e.louvain.Assignments(ctx, g); err == nil {
			res.Diagnostics.LouvainARI = dendrogram.AdjustedRandIndex(dominant, assign)
		} else {
			slog.Warn("louvain diagnostic unavailable", "error", err)
		}
	}
}

func softmax(logits []float64, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1
	}
	out := make([]float64, len(logits))
	max := math.Inf(-1)
	for _, v := range logits {
		if v/temperature > max {
			max = v / temperature
		}
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v/temperature - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// runKey builds the structural cache key for a run: the graph hash, the
// normalized anchor set, and every parameter that changes the output.
func runKey(g *graph.Handle, anchors []Anchor, cfg Config) (string, error) {
	norm := append([]Anchor(nil), anchors...)
	sort.Slice(norm, func(i, j int) bool {
		if norm[i].Community != norm[j].Community {
			return norm[i].Community < norm[j].Community
		}
		if norm[i].Account != norm[j].Account {
			return norm[i].Account < norm[j].Account
		}
		return norm[i].Polarity < norm[j].Polarity
	})
	return metricscache.Key("propagation", g.Hash().String(), norm, cfg)
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.AbstainConfidence == 0 {
		cfg.AbstainConfidence = def.AbstainConfidence
	}
	if cfg.AbstainUncertainty == 0 {
		cfg.AbstainUncertainty = def.AbstainUncertainty
	}
	if cfg.Regularization == 0 {
		cfg.Regularization = def.Regularization
	}
	if cfg.ClassBalance == "" {
		cfg.ClassBalance = def.ClassBalance
	}
	if cfg.WalkKind == "" {
		cfg.WalkKind = def.WalkKind
	}
	if cfg.Weighting == "" {
		cfg.Weighting = def.Weighting
	}
	if cfg.ObsPMin == 0 {
		cfg.ObsPMin = def.ObsPMin
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = def.MaxIter
	}
}
