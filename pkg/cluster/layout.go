/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package cluster

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tpotmap/atlas/pkg/snapshot"
)

// repulsionIterations bounds the overlap-avoidance pass; each pass nudges
// near-coincident points apart without reshaping the overall geometry.
const repulsionIterations = 24

// positions projects cluster centroids to 2D. With three or more clusters
// a PCA over the centroid matrix picks the two highest-variance axes; with
// fewer, the first two spectral dimensions are used directly.
func positions(snap *snapshot.Snapshot, centroids []float64, cols int, ids []int, out map[int]Position) {
	if cols == 0 {
		return
	}
	d := snap.Dims()
	xy := make([]float64, cols*2)

	if cols < 3 || d < 2 {
		for c := 0; c < cols; c++ {
			xy[c*2] = centroids[c*d]
			if d > 1 {
				xy[c*2+1] = centroids[c*d+1]
			}
		}
	} else {
		// Center the centroid matrix and project onto the two leading
		// principal axes.
		mean := make([]float64, d)
		for c := 0; c < cols; c++ {
			for k := 0; k < d; k++ {
				mean[k] += centroids[c*d+k]
			}
		}
		for k := 0; k < d; k++ {
			mean[k] /= float64(cols)
		}
		centered := mat.NewDense(cols, d, nil)
		for c := 0; c < cols; c++ {
			for k := 0; k < d; k++ {
				centered.Set(c, k, centroids[c*d+k]-mean[k])
			}
		}

		var svd mat.SVD
		if ok := svd.Factorize(centered, mat.SVDThin); ok {
			var v mat.Dense
			svd.VTo(&v)
			for c := 0; c < cols; c++ {
				var px, py float64
				for k := 0; k < d; k++ {
					px += centered.At(c, k) * v.At(k, 0)
					if v.RawMatrix().Cols > 1 {
						py += centered.At(c, k) * v.At(k, 1)
					}
				}
				xy[c*2] = px
				xy[c*2+1] = py
			}
		} else {
			for c := 0; c < cols; c++ {
				xy[c*2] = centroids[c*d]
				xy[c*2+1] = centroids[c*d+1]
			}
		}
	}

	repel(xy, cols)

	for c, id := range ids {
		out[id] = Position{X: xy[c*2], Y: xy[c*2+1]}
	}
}

// repel pushes near-coincident points apart by a short deterministic
// relaxation. The push distance is scaled to the layout extent so relative
// geometry is preserved.
func repel(xy []float64, cols int) {
	if cols < 2 {
		return
	}
	var extent float64
	for c := 0; c < cols; c++ {
		extent = math.Max(extent, math.Hypot(xy[c*2], xy[c*2+1]))
	}
	if extent == 0 {
		extent = 1
	}
	minDist := extent * 0.05

	for it := 0; it < repulsionIterations; it++ {
		moved := false
		for a := 0; a < cols; a++ {
			for b := a + 1; b < cols; b++ {
				dx := xy[b*2] - xy[a*2]
				dy := xy[b*2+1] - xy[a*2+1]
				dist := math.Hypot(dx, dy)
				if dist >= minDist {
					continue
				}
				moved = true
				if dist == 0 {
					// Coincident points separate along a fixed axis,
					// ordered by index for determinism.
					dx, dy, dist = 1, 0, 1
				}
				push := (minDist - dist) / 2 / dist
				xy[a*2] -= dx * push
				xy[a*2+1] -= dy * push
				xy[b*2] += dx * push
				xy[b*2+1] += dy * push
			}
		}
		if !moved {
			break
		}
	}
}
