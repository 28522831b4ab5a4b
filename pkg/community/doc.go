/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package community wraps gonum's Louvain modularity maximization over the
// symmetrized follow graph. Cluster views blend the resulting assignments
// into their edge weights, and propagation diagnostics report agreement
// against them.
package community
