/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package api is the versioned in-process facade over the analysis core.
// It owns component lifetimes (caches, snapshot holder, engines) and
// exposes the stable operations (graph.load, spectral.build,
// clusters.view, propagation.run, discovery.recommend, cache.stats) that
// the HTTP and CLI adapters call.
package api
