/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package spectral

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/tpotmap/atlas/pkg/errors"
)

// eigResult carries the smallest eigenpairs of the normalized Laplacian.
type eigResult struct {
	// values are ascending eigenvalues of L_sym.
	values []float64
	// vectors[i] is the eigenvector for values[i], length n.
	vectors    [][]float64
	converged  bool
	iterations int
	residual   float64
}

// smallestEigenpairs extracts the nev smallest eigenpairs of L_sym with a
// Lanczos iteration on the spectrally flipped operator B = 2I − L, whose
// largest eigenvalues correspond to the smallest of L. Full
// reorthogonalization keeps the Krylov basis numerically orthogonal; the
// small tridiagonal problem is handed to gonum's symmetric eigensolver.
//
// The iteration is deterministic for a fixed seed. Non-convergence within
// the iteration budget is not an error: the best available pairs are
// returned with converged=false and the max residual recorded.
func smallestEigenpairs(ctx context.Context, op *laplacianOp, nev int, tol float64, maxIter int, seed int64, progress Progress) (eigResult, error) {
	n := op.n
	if nev > n {
		nev = n
	}
	m := 8 * nev
	if m < 120 {
		m = 120
	}
	if m > maxIter {
		m = maxIter
	}
	if m > n {
		m = n
	}
	if m < nev {
		m = nev
	}

	rng := rand.New(rand.NewSource(seed))

	// Krylov basis, stored row-per-step.
	basis := make([][]float64, 0, m)
	alpha := make([]float64, 0, m)
	beta := make([]float64, 0, m)

	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	normalize(v)
	basis = append(basis, append([]float64(nil), v...))

	w := make([]float64, n)
	lv := make([]float64, n)

	steps := 0
	for j := 0; j < m; j++ {
		if err := ctx.Err(); err != nil {
			return eigResult{}, errors.FromContext(err)
		}
		if progress != nil {
			progress("eigensolve", j, m)
		}

		// w = B·v_j = 2·v_j − L·v_j
		op.Apply(lv, basis[j])
		for i := 0; i < n; i++ {
			w[i] = 2*basis[j][i] - lv[i]
		}

		a := dot(w, basis[j])
		alpha = append(alpha, a)
		for i := 0; i < n; i++ {
			w[i] -= a * basis[j][i]
		}
		if j > 0 {
			for i := 0; i < n; i++ {
				w[i] -= beta[j-1] * basis[j-1][i]
			}
		}

		// Full reorthogonalization against the accumulated basis.
		for _, q := range basis {
			c := dot(w, q)
			for i := 0; i < n; i++ {
				w[i] -= c * q[i]
			}
		}

		b := math.Sqrt(dot(w, w))
		steps = j + 1
		if b < 1e-14 || j == m-1 {
			beta = append(beta, 0)
			break
		}
		beta = append(beta, b)
		for i := 0; i < n; i++ {
			w[i] /= b
		}
		basis = append(basis, append([]float64(nil), w...))
	}

	// Tridiagonal Ritz problem.
	k := steps
	tri := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		tri.SetSym(i, i, alpha[i])
		if i+1 < k {
			tri.SetSym(i, i+1, beta[i])
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(tri, true); !ok {
		return eigResult{}, errors.New(errors.ErrCodeInternal, "tridiagonal eigendecomposition failed")
	}
	ritz := es.Values(nil) // ascending eigenvalues of B
	var s mat.Dense
	es.VectorsTo(&s)

	if nev > k {
		nev = k
	}

	res := eigResult{
		values:     make([]float64, nev),
		vectors:    make([][]float64, nev),
		converged:  true,
		iterations: steps,
	}
	lastBeta := 0.0
	if k >= 1 && k-1 < len(beta) {
		lastBeta = beta[k-1]
	}

	// Largest nev Ritz values of B are the smallest of L.
	for out := 0; out < nev; out++ {
		col := k - 1 - out
		res.values[out] = 2 - ritz[col]

		vec := make([]float64, n)
		for step := 0; step < k; step++ {
			c := s.At(step, col)
			q := basis[step]
			for i := 0; i < n; i++ {
				vec[i] += c * q[i]
			}
		}
		normalize(vec)
		res.vectors[out] = vec

		r := math.Abs(lastBeta * s.At(k-1, col))
		if r > res.residual {
			res.residual = r
		}
	}
	if res.residual > tol {
		res.converged = false
	}
	return res, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalize(v []float64) {
	n := math.Sqrt(dot(v, v))
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}
