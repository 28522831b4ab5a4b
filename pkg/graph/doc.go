/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package graph materializes and exposes the canonical directed follow
// graph: node metadata, deduplicated edges, and the derived adjacency views
// every other analysis component reads through.
//
// A Handle is immutable after Load. Derived views (directed CSR,
// symmetrized Laplacian input, mutual subgraph) are built lazily and
// memoized; the canonical node ordering is fixed at load time and
// participates in the content hash, so any reordering invalidates
// downstream artifacts.
package graph
