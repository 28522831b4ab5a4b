/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package dendrogram implements agglomerative hierarchy construction and
// traversal: Ward linkage over an embedding, flat cuts at a requested
// cluster count, child/parent/member navigation over the merge tree, and
// the adjusted Rand index used to compare flat clusterings.
package dendrogram
