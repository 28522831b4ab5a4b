/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package spectral computes the normalized-Laplacian embedding of the
// follow graph, its Ward dendrogram, and the stability metric recorded in
// every snapshot manifest.
//
// The eigensolver is a seeded Lanczos iteration with full
// reorthogonalization running against an implicit Laplacian operator, so
// neither the Laplacian nor the optional community blend M·Mᵀ is ever
// materialized. Graph mutations force a full rebuild; there is no
// incremental eigendecomposition.
package spectral
