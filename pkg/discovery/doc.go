/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package discovery ranks candidate accounts against a seed set using a
// four-signal composite: shared-follower overlap, personalized PageRank,
// community affinity from the active membership matrix, and mutual-graph
// path distance.
//
// Candidates come from a bounded breadth-first subgraph around the seeds;
// every recommendation carries the raw and normalized value of each signal
// so the composite can be reconstructed from the response. A per-caller
// token bucket rejects excess traffic.
package discovery
