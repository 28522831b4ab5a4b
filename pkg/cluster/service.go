/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/tpotmap/atlas/pkg/community"
	"github.com/tpotmap/atlas/pkg/dendrogram"
	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/metricscache"
	"github.com/tpotmap/atlas/pkg/snapshot"
	"github.com/tpotmap/atlas/pkg/store"
)

// edgeWeightFloor drops cluster edges below this soft-membership mass.
const edgeWeightFloor = 0.01

// membershipFloor skips negligible membership products during edge
// accumulation.
const membershipFloor = 0.001

// Service serves interactive, budget-constrained hierarchical views over a
// spectral snapshot.
type Service struct {
	store   store.Store
	cache   *metricscache.Cache
	louvain *community.Service

	minClusterSize     int
	defaultGranularity int
	maxGranularity     int
	defaultBudget      int
}

// Option is a functional option for configuring Service instances.
type Option func(*Service)

// WithCache sets the view memoization cache.
func WithCache(c *metricscache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLouvain enables signal blending against Louvain communities.
func WithLouvain(svc *community.Service) Option {
	return func(s *Service) { s.louvain = svc }
}

// WithLimits overrides the clustering tunables.
func WithLimits(minClusterSize, defaultGranularity, maxGranularity, defaultBudget int) Option {
	return func(s *Service) {
		s.minClusterSize = minClusterSize
		s.defaultGranularity = defaultGranularity
		s.maxGranularity = maxGranularity
		s.defaultBudget = defaultBudget
	}
}

// New creates a Service backed by the given label store.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:              st,
		minClusterSize:     4,
		defaultGranularity: 25,
		maxGranularity:     MaxGranularity,
		defaultBudget:      25,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View computes (or returns the memoized) cluster view for the query.
// Identical queries coalesce on the cache; the cached value is shared, so
// callers must treat the returned view as read-only.
func (s *Service) View(ctx context.Context, g *graph.Handle, snap *snapshot.Snapshot, q Query) (*View, error) {
	start := time.Now()
	if err := snap.Validate(g.Hash()); err != nil {
		return nil, err
	}

	if s.cache == nil {
		return s.buildView(ctx, g, snap, q)
	}

	key, err := viewKey(q, snap)
	if err != nil {
		return nil, err
	}
	v, hit, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
		return s.buildView(ctx, g, snap, q)
	})
	if err != nil {
		return nil, err
	}
	viewDuration.Observe(time.Since(start).Seconds())
	if hit {
		viewCacheHits.Inc()
	}
	return v.(*View), nil
}

// viewKey derives the memoization key: snapshot hash plus the normalized
// query with expanded/collapsed sorted and the blend bucketed.
func viewKey(q Query, snap *snapshot.Snapshot) (string, error) {
	type normalized struct {
		Granularity int
		Ego         string
		FocusLeaf   string
		Expanded    []int
		Collapsed   []int
		Budget      int
		Autofill    bool
		Bucket      float64
		Temperature float64
	}
	norm := normalized{
		Granularity: q.Granularity,
		Ego:         q.Ego,
		FocusLeaf:   q.FocusLeaf,
		Expanded:    append([]int(nil), q.Expanded...),
		Collapsed:   append([]int(nil), q.Collapsed...),
		Budget:      q.Budget,
		Autofill:    q.Autofill,
		Bucket:      bucketBlend(q.SignalBlend),
		Temperature: q.Temperature,
	}
	sort.Ints(norm.Expanded)
	sort.Ints(norm.Collapsed)
	return metricscache.Key("view:"+q.Workspace, snap.Manifest.SourceGraphHash, norm)
}

// bucketBlend snaps the Louvain blend weight to one decimal so continuous
// slider input cannot thrash the cache.
func bucketBlend(w float64) float64 {
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	return math.Round(w*10) / 10
}

func (s *Service) buildView(ctx context.Context, g *graph.Handle, snap *snapshot.Snapshot, q Query) (*View, error) {
	n := snap.NumNodes()
	link := dendrogram.Linkage(snap.Linkage)
	view := &View{Positions: make(map[int]Position)}

	gran := q.Granularity
	if gran == 0 {
		gran = s.defaultGranularity
	}
	maxGran := s.maxGranularity
	if maxGran > MaxGranularity {
		maxGran = MaxGranularity
	}
	if gran < MinGranularity || gran > maxGran {
		clamped := gran
		if clamped < MinGranularity {
			clamped = MinGranularity
		}
		if clamped > maxGran {
			clamped = maxGran
		}
		view.Warnings = append(view.Warnings,
			fmt.Sprintf("clamped_granularity: %d adjusted to %d", gran, clamped))
		gran = clamped
	}
	if gran > n {
		gran = n
	}

	budget := q.Budget
	if budget <= 0 {
		budget = s.defaultBudget
	}
	temperature := q.Temperature
	if temperature <= 0 {
		temperature = 1
	}
	bucket := bucketBlend(q.SignalBlend)

	// Initial cut, then expansion replay.
	_, roots := dendrogram.CutWithRoots(link, n, gran)
	active := append([]int(nil), roots...)
	collapsed := make(map[int]bool, len(q.Collapsed))
	for _, c := range q.Collapsed {
		collapsed[c] = true
	}

	var applied []int
	for _, e := range q.Expanded {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}
		if collapsed[e] {
			continue
		}
		pos := indexOf(active, e)
		if pos < 0 {
			continue
		}
		l, r, ok := dendrogram.Children(link, n, e)
		if !ok {
			continue
		}
		active = append(active[:pos], append([]int{l, r}, active[pos+1:]...)...)
		applied = append(applied, e)
	}

	clusterCount := s.countClusters(link, n, active)

	// Budget enforcement: undo the most recent expansions first.
	for clusterCount > budget && len(applied) > 0 {
		parent := applied[len(applied)-1]
		applied = applied[:len(applied)-1]
		l, r, _ := dendrogram.Children(link, n, parent)
		active = removeValue(active, l)
		active = removeValue(active, r)
		active = append(active, parent)
		clusterCount = s.countClusters(link, n, active)
	}

	// Autofill: expand highest-variance clusters until the budget is met.
	if q.Autofill {
		for clusterCount < budget {
			best := -1
			bestVar := -1.0
			for _, id := range active {
				if collapsed[id] || link.Size(n, id) < s.minClusterSize {
					continue
				}
				if _, _, ok := dendrogram.Children(link, n, id); !ok {
					continue
				}
				v := clusterVariance(snap, dendrogram.Members(link, n, id))
				if v > bestVar || (v == bestVar && best >= 0 && id < best) {
					best, bestVar = id, v
				}
			}
			if best < 0 {
				break
			}
			l, r, _ := dendrogram.Children(link, n, best)
			pos := indexOf(active, best)
			active = append(active[:pos], append([]int{l, r}, active[pos+1:]...)...)
			clusterCount = s.countClusters(link, n, active)
		}
	}

	// Demote sub-minimum clusters to individual nodes.
	var clusterIDs, individualIDs []int
	for _, id := range active {
		if link.Size(n, id) >= s.minClusterSize {
			clusterIDs = append(clusterIDs, id)
		} else {
			individualIDs = append(individualIDs, dendrogram.Members(link, n, id)...)
		}
	}
	sort.Ints(clusterIDs)
	sort.Ints(individualIDs)

	egoIdx := -1
	if q.Ego != "" {
		if i, ok := snap.Index(q.Ego); ok {
			egoIdx = i
		}
	}
	focusIdx := -1
	if q.FocusLeaf != "" {
		if i, ok := snap.Index(q.FocusLeaf); ok {
			focusIdx = i
		}
	}

	// Assemble nodes and column metadata for membership computation.
	allIDs := append(append([]int(nil), clusterIDs...), individualIDs...)
	cols := len(allIDs)
	centroids := make([]float64, cols*snap.Dims())
	memberOf := make([][]int, cols)
	focusCluster := -1
	for c, id := range allIDs {
		members := dendrogram.Members(link, n, id)
		memberOf[c] = members
		centroidOf(snap, members, centroids[c*snap.Dims():(c+1)*snap.Dims()])
		if focusIdx >= 0 && containsInt(members, focusIdx) {
			focusCluster = id
		}
	}

	for c, id := range allIDs {
		members := memberOf[c]
		node := Node{
			ID:         id,
			Key:        clusterKey(snap, gran, bucket, id),
			Size:       len(members),
			Variance:   clusterVariance(snap, members),
			Individual: c >= len(clusterIDs),
		}
		if egoIdx >= 0 && containsInt(members, egoIdx) {
			node.ContainsEgo = true
		}
		node.TopMembers = s.topMembers(g, snap, members, 3)
		node.Label, node.LabelSource = s.resolveLabel(ctx, g, snap, q.Workspace, node, members)
		view.Clusters = append(view.Clusters, node)
	}

	// Soft memberships and cluster edges.
	membership := softMembership(snap, centroids, cols, temperature)
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}
	var louvainAssign []int
	if s.louvain != nil && bucket > 0 {
		var err error
		louvainAssign, err = s.louvain.Assignments(ctx, g)
		if err != nil {
			return nil, err
		}
	}
	edges, err := s.clusterEdges(ctx, g, snap, membership, allIDs, cols, louvainAssign, bucket)
	if err != nil {
		return nil, err
	}
	view.Edges = edges

	positions(snap, centroids, cols, allIDs, view.Positions)

	remaining := budget - len(clusterIDs)
	if remaining < 0 {
		remaining = 0
	}
	view.Meta = Meta{
		Budget:          budget,
		BudgetRemaining: remaining,
		ApproximateMode: !snap.Manifest.SolverConverged,
		Granularity:     gran,
		FocusCluster:    focusCluster,
	}

	slog.Debug("cluster view built",
		"granularity", gran,
		"clusters", len(clusterIDs),
		"individuals", len(individualIDs),
		"edges", len(view.Edges),
		"budget_remaining", remaining,
	)
	return view, nil
}

// countClusters counts active nodes that survive the minimum-size rule.
func (s *Service) countClusters(link dendrogram.Linkage, n int, active []int) int {
	count := 0
	for _, id := range active {
		if link.Size(n, id) >= s.minClusterSize {
			count++
		}
	}
	return count
}

// clusterEdges accumulates soft-membership mass over every underlying
// directed edge. The optional Louvain blend scales each edge's
// contribution by 1+w when its endpoints share a community and 1−w
// otherwise. The context is polled every few thousand edges.
func (s *Service) clusterEdges(ctx context.Context, g *graph.Handle, snap *snapshot.Snapshot, membership [][]float64, ids []int, cols int, louvain []int, w float64) ([]Edge, error) {
	weight := make([]float64, cols*cols)
	counts := make([]int, cols*cols)
	argmax := make([]int, len(membership))
	for i, row := range membership {
		best, bestV := 0, row[0]
		for c := 1; c < cols; c++ {
			if row[c] > bestV {
				best, bestV = c, row[c]
			}
		}
		argmax[i] = best
	}

	dir := g.Directed()
	processed := 0
	for i := 0; i < dir.NumRows(); i++ {
		neighbors, _ := dir.Row(i)
		si, ok := snap.Index(g.Account(i).ID)
		if !ok {
			continue
		}
		for _, j := range neighbors {
			processed++
			if processed%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, errors.FromContext(err)
				}
			}
			sj, ok := snap.Index(g.Account(int(j)).ID)
			if !ok {
				continue
			}
			scale := 1.0
			if louvain != nil && w > 0 {
				if louvain[i] == louvain[j] {
					scale = 1 + w
				} else {
					scale = 1 - w
					if scale < 0 {
						scale = 0
					}
				}
			}
			if scale == 0 {
				continue
			}
			rowA, rowB := membership[si], membership[sj]
			for a := 0; a < cols; a++ {
				ma := rowA[a]
				if ma < membershipFloor {
					continue
				}
				for b := 0; b < cols; b++ {
					mb := rowB[b]
					if mb < membershipFloor {
						continue
					}
					weight[a*cols+b] += ma * mb * scale
				}
			}
			counts[argmax[si]*cols+argmax[sj]]++
		}
	}

	var edges []Edge
	for a := 0; a < cols; a++ {
		for b := 0; b < cols; b++ {
			if a == b {
				continue
			}
			wab := weight[a*cols+b]
			if wab < edgeWeightFloor {
				continue
			}
			edges = append(edges, Edge{
				Source: ids[a],
				Target: ids[b],
				Weight: wab,
				Count:  counts[a*cols+b],
			})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges, nil
}

// softMembership computes the row-stochastic node→cluster assignment by
// softmax over negative squared distances to each centroid.
func softMembership(snap *snapshot.Snapshot, centroids []float64, cols int, temperature float64) [][]float64 {
	n := snap.NumNodes()
	d := snap.Dims()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, cols)
		rowEmb := snap.Row(i)
		maxLogit := math.Inf(-1)
		for c := 0; c < cols; c++ {
			var sq float64
			cen := centroids[c*d : (c+1)*d]
			for k := 0; k < d; k++ {
				diff := float64(rowEmb[k]) - cen[k]
				sq += diff * diff
			}
			row[c] = -sq / temperature
			if row[c] > maxLogit {
				maxLogit = row[c]
			}
		}
		var sum float64
		for c := 0; c < cols; c++ {
			row[c] = math.Exp(row[c] - maxLogit)
			sum += row[c]
		}
		for c := 0; c < cols; c++ {
			row[c] /= sum
		}
		out[i] = row
	}
	return out
}

func centroidOf(snap *snapshot.Snapshot, members []int, dst []float64) {
	d := snap.Dims()
	for k := 0; k < d; k++ {
		dst[k] = 0
	}
	for _, m := range members {
		row := snap.Row(m)
		for k := 0; k < d; k++ {
			dst[k] += float64(row[k])
		}
	}
	for k := 0; k < d; k++ {
		dst[k] /= float64(len(members))
	}
}

func clusterVariance(snap *snapshot.Snapshot, members []int) float64 {
	if len(members) == 0 {
		return 0
	}
	d := snap.Dims()
	centroid := make([]float64, d)
	centroidOf(snap, members, centroid)
	var total float64
	for _, m := range members {
		row := snap.Row(m)
		for k := 0; k < d; k++ {
			diff := float64(row[k]) - centroid[k]
			total += diff * diff
		}
	}
	return total / float64(len(members))
}

func indexOf(v []int, x int) int {
	for i, e := range v {
		if e == x {
			return i
		}
	}
	return -1
}

func removeValue(v []int, x int) []int {
	i := indexOf(v, x)
	if i < 0 {
		return v
	}
	return append(v[:i], v[i+1:]...)
}

func containsInt(sorted []int, x int) bool {
	i := sort.SearchInts(sorted, x)
	return i < len(sorted) && sorted[i] == x
}
