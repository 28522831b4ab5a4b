/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package propagation

import (
	"context"
	"math"

	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
)

// solveResidualTol is the required relative residual of the harmonic solve.
const solveResidualTol = 1e-8

// weightedAdjacency is the propagation operator's view of the graph:
// neighbor lists with effective weights, after optional IPW scaling.
type weightedAdjacency struct {
	n      int
	rowPtr []int
	col    []uint32
	w      []float64
	degree []float64
}

func buildAdjacency(g *graph.Handle, cfg Config) *weightedAdjacency {
	var (
		sym  = cfg.WalkKind == WalkSymmetric
		base interface {
			NumRows() int
			Row(int) ([]uint32, []float32)
		}
	)
	if sym {
		base = g.Symmetric(true)
	} else {
		base = directedAsFloat{g.Directed()}
	}

	n := base.NumRows()
	a := &weightedAdjacency{n: n, rowPtr: make([]int, n+1)}
	for i := 0; i < n; i++ {
		cols, vals := base.Row(i)
		pi := 1.0
		if cfg.Weighting == "ipw" {
			pi = g.ObservationP(i, cfg.ObsPMin)
		}
		for k, j := range cols {
			w := float64(vals[k])
			if cfg.Weighting == "ipw" {
				pj := g.ObservationP(int(j), cfg.ObsPMin)
				w /= pi * pj
			}
			a.col = append(a.col, j)
			a.w = append(a.w, w)
		}
		a.rowPtr[i+1] = len(a.col)
	}
	a.degree = make([]float64, n)
	for i := 0; i < n; i++ {
		for k := a.rowPtr[i]; k < a.rowPtr[i+1]; k++ {
			a.degree[i] += a.w[k]
		}
	}
	if !sym {
		// Row-normalize: the walk averages over followees.
		for i := 0; i < n; i++ {
			if a.degree[i] == 0 {
				continue
			}
			for k := a.rowPtr[i]; k < a.rowPtr[i+1]; k++ {
				a.w[k] /= a.degree[i]
			}
		}
	}
	return a
}

type directedAsFloat struct{ m *graph.CSR[uint32] }

func (d directedAsFloat) NumRows() int { return d.m.NumRows() }
func (d directedAsFloat) Row(i int) ([]uint32, []float32) {
	cols, vals := d.m.Row(i)
	out := make([]float32, len(vals))
	for k, v := range vals {
		out[k] = float32(v)
	}
	return cols, out
}

func (a *weightedAdjacency) row(i int) ([]uint32, []float64) {
	lo, hi := a.rowPtr[i], a.rowPtr[i+1]
	return a.col[lo:hi], a.w[lo:hi]
}

// reachableFrom marks every node reachable from the labeled set treating
// edges as undirected, so disconnected unlabeled components can be given
// uniform abstain rows instead of a singular solve.
func (a *weightedAdjacency) reachableFrom(labeled []int) []bool {
	reach := make([]bool, a.n)
	rev := make([][]int32, a.n)
	for i := 0; i < a.n; i++ {
		cols, _ := a.row(i)
		for _, j := range cols {
			rev[j] = append(rev[j], int32(i))
		}
	}
	queue := make([]int, 0, len(labeled))
	for _, l := range labeled {
		if !reach[l] {
			reach[l] = true
			queue = append(queue, l)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		cols, _ := a.row(cur)
		for _, j := range cols {
			if !reach[j] {
				reach[j] = true
				queue = append(queue, int(j))
			}
		}
		for _, j := range rev[cur] {
			if !reach[j] {
				reach[j] = true
				queue = append(queue, int(j))
			}
		}
	}
	return reach
}

// harmonicSolve computes F_U for the regularized system
// (L_UU + reg·I)·F_U = −L_UL·F_L, column by column. The symmetric walk uses
// conjugate gradients on the SPD sub-Laplacian; the directed walk uses a
// damped fixed-point iteration on the row-stochastic operator. The context
// is polled at each outer iteration.
func harmonicSolve(ctx context.Context, a *weightedAdjacency, cfg Config, uIndex []int, uPos []int, fl [][]float64, labeled []bool, cols int) ([][]float64, error) {
	nu := len(uIndex)
	fu := make([][]float64, nu)
	for i := range fu {
		fu[i] = make([]float64, cols)
	}
	if nu == 0 {
		return fu, nil
	}

	symmetric := cfg.WalkKind == WalkSymmetric

	// b[u][c] = Σ_{l labeled} w_ul · F_L[l][c]
	b := make([][]float64, nu)
	for ui, node := range uIndex {
		b[ui] = make([]float64, cols)
		ncols, w := a.row(node)
		for k, j := range ncols {
			if !labeled[j] {
				continue
			}
			for c := 0; c < cols; c++ {
				b[ui][c] += w[k] * fl[j][c]
			}
		}
	}

	if symmetric {
		for c := 0; c < cols; c++ {
			rhs := make([]float64, nu)
			for ui := range rhs {
				rhs[ui] = b[ui][c]
			}
			x, err := conjugateGradient(ctx, a, cfg, uIndex, uPos, labeled, rhs)
			if err != nil {
				return nil, err
			}
			for ui := range x {
				fu[ui][c] = x[ui]
			}
		}
		return fu, nil
	}

	return fixedPoint(ctx, a, cfg, uIndex, uPos, labeled, b, cols)
}

// applySubLaplacian computes y = (L_UU + reg·I)·x over unlabeled indices.
func applySubLaplacian(a *weightedAdjacency, cfg Config, uIndex []int, uPos []int, labeled []bool, y, x []float64) {
	for ui, node := range uIndex {
		acc := (a.degree[node] + cfg.Regularization) * x[ui]
		cols, w := a.row(node)
		for k, j := range cols {
			if labeled[j] {
				continue
			}
			acc -= w[k] * x[uPos[j]]
		}
		y[ui] = acc
	}
}

func conjugateGradient(ctx context.Context, a *weightedAdjacency, cfg Config, uIndex []int, uPos []int, labeled []bool, b []float64) ([]float64, error) {
	nu := len(b)
	x := make([]float64, nu)
	r := append([]float64(nil), b...)
	p := append([]float64(nil), b...)
	ap := make([]float64, nu)

	bNorm := math.Sqrt(dot(b, b))
	if bNorm == 0 {
		return x, nil
	}

	rs := dot(r, r)
	maxIter := cfg.MaxIter
	if maxIter <= 0 {
		maxIter = 2000
	}
	for it := 0; it < maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}
		applySubLaplacian(a, cfg, uIndex, uPos, labeled, ap, p)
		alpha := rs / dot(p, ap)
		for i := range x {
			x[i] += alpha * p[i]
			r[i] -= alpha * ap[i]
		}
		rsNew := dot(r, r)
		if math.Sqrt(rsNew)/bNorm < solveResidualTol {
			return x, nil
		}
		beta := rsNew / rs
		rs = rsNew
		for i := range p {
			p[i] = r[i] + beta*p[i]
		}
	}
	return nil, errors.Newf(errors.ErrCodeInternal,
		"harmonic solve did not reach residual %g in %d iterations", solveResidualTol, maxIter)
}

// fixedPoint iterates F_U ← (P_UU·F_U + b) / (1 + reg) for the directed
// walk, where rows of P are the normalized followee weights.
func fixedPoint(ctx context.Context, a *weightedAdjacency, cfg Config, uIndex []int, uPos []int, labeled []bool, b [][]float64, cols int) ([][]float64, error) {
	nu := len(uIndex)
	cur := make([][]float64, nu)
	next := make([][]float64, nu)
	for i := range cur {
		cur[i] = make([]float64, cols)
		next[i] = make([]float64, cols)
	}
	damp := 1 / (1 + cfg.Regularization)

	maxIter := cfg.MaxIter
	if maxIter <= 0 {
		maxIter = 2000
	}
	for it := 0; it < maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}
		var delta, norm float64
		for ui, node := range uIndex {
			ncols, w := a.row(node)
			for c := 0; c < cols; c++ {
				acc := b[ui][c]
				for k, j := range ncols {
					if labeled[j] {
						continue
					}
					acc += w[k] * cur[uPos[j]][c]
				}
				acc *= damp
				d := acc - cur[ui][c]
				delta += d * d
				norm += acc * acc
				next[ui][c] = acc
			}
		}
		cur, next = next, cur
		if norm == 0 || math.Sqrt(delta/math.Max(norm, 1e-30)) < solveResidualTol {
			return cur, nil
		}
	}
	return nil, errors.Newf(errors.ErrCodeInternal,
		"directed walk did not reach residual %g in %d iterations", solveResidualTol, maxIter)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
