/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package cluster serves interactive views over the spectral hierarchy:
// budget-constrained dendrogram cuts with expand/collapse replay,
// soft-membership cluster edges with optional Louvain blending, PCA
// positions, and workspace-scoped label overrides.
//
// Views are derived data, valid for one snapshot only, and memoized in the
// shared metrics cache; every cluster holds indices into the snapshot's
// canonical node array rather than handles into mutable structures.
package cluster
