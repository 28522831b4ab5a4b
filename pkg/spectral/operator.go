/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package spectral

import (
	"math"

	"github.com/tpotmap/atlas/pkg/graph"
)

// laplacianOp applies the normalized Laplacian L_sym = I − D^{-½} W' D^{-½}
// as a matrix-vector product, where W' is the (optionally IPW-scaled)
// symmetric adjacency blended with soft community structure:
//
//	W' = (1-α)·W + α·M·Mᵀ
//
// M·Mᵀ is never materialized; the blend is applied as M·(Mᵀv) inside each
// product, keeping the operator sparse for large K-community overlays.
type laplacianOp struct {
	n        int
	adj      *graph.CSR[float32]
	scale    []float64 // per-entry IPW scaling aligned with adj.Val, nil when off
	alpha    float64
	member   [][]float64 // N×K, nil when alpha == 0
	k        int
	dInvSqrt []float64

	// scratch buffers reused across products
	tmp  []float64
	tmpK []float64
}

func newLaplacianOp(g *graph.Handle, cfg Config) *laplacianOp {
	adj := g.Symmetric(true)
	n := adj.NumRows()

	op := &laplacianOp{n: n, adj: adj, alpha: cfg.CommunityAlpha}

	if cfg.CompletenessWeighting == WeightingIPW {
		op.scale = make([]float64, len(adj.Val))
		pos := 0
		for i := 0; i < n; i++ {
			cols, _ := adj.Row(i)
			pi := g.ObservationP(i, cfg.ObsPMin)
			for _, j := range cols {
				pj := g.ObservationP(int(j), cfg.ObsPMin)
				op.scale[pos] = 1 / (pi * pj)
				pos++
			}
		}
	}

	if op.alpha > 0 && len(cfg.Membership) == n && n > 0 {
		op.member = cfg.Membership
		op.k = len(cfg.Membership[0])
		op.tmpK = make([]float64, op.k)
	} else {
		op.alpha = 0
	}

	op.dInvSqrt = make([]float64, n)
	deg := op.degrees()
	for i, d := range deg {
		if d <= 0 {
			d = 1
		}
		op.dInvSqrt[i] = 1 / math.Sqrt(d)
	}
	op.tmp = make([]float64, n)
	return op
}

// degrees returns the row sums of W'.
func (op *laplacianOp) degrees() []float64 {
	deg := make([]float64, op.n)
	pos := 0
	for i := 0; i < op.n; i++ {
		_, vals := op.adj.Row(i)
		var sum float64
		for _, v := range vals {
			w := float64(v)
			if op.scale != nil {
				w *= op.scale[pos]
			}
			sum += w
			pos++
		}
		deg[i] = sum
	}
	if op.alpha > 0 {
		colSum := make([]float64, op.k)
		for _, row := range op.member {
			for c, v := range row {
				colSum[c] += v
			}
		}
		for i := range deg {
			var m float64
			for c, v := range op.member[i] {
				m += v * colSum[c]
			}
			deg[i] = (1-op.alpha)*deg[i] + op.alpha*m
		}
	}
	return deg
}

// applyW computes y = W'·x.
func (op *laplacianOp) applyW(y, x []float64) {
	pos := 0
	for i := 0; i < op.n; i++ {
		cols, vals := op.adj.Row(i)
		var acc float64
		for kk, j := range cols {
			w := float64(vals[kk])
			if op.scale != nil {
				w *= op.scale[pos]
			}
			acc += w * x[j]
			pos++
		}
		y[i] = acc
	}
	if op.alpha > 0 {
		for c := range op.tmpK {
			op.tmpK[c] = 0
		}
		for i, row := range op.member {
			xi := x[i]
			for c, v := range row {
				op.tmpK[c] += v * xi
			}
		}
		for i, row := range op.member {
			var acc float64
			for c, v := range row {
				acc += v * op.tmpK[c]
			}
			y[i] = (1-op.alpha)*y[i] + op.alpha*acc
		}
	}
}

// Apply computes y = L_sym·x.
func (op *laplacianOp) Apply(y, x []float64) {
	for i := 0; i < op.n; i++ {
		op.tmp[i] = x[i] * op.dInvSqrt[i]
	}
	op.applyW(y, op.tmp)
	for i := 0; i < op.n; i++ {
		y[i] = x[i] - y[i]*op.dInvSqrt[i]
	}
}
