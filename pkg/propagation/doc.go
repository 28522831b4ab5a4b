/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package propagation spreads sparse human community tags through the
// follow graph as a regularized Gaussian random field with class
// balancing, temperature smoothing, and an explicit abstain class.
//
// Anchor rows are boundary conditions and pass through unchanged; harmonic
// interpolation fills the unlabeled interior, and per-account uncertainty
// blends row entropy with degree sparsity. Every run reports calibration
// diagnostics: the none-class share, per-community absorption ratios, and
// agreement with Louvain communities.
package propagation
