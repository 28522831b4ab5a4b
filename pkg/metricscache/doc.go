/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package metricscache provides the shared LRU+TTL cache for derived
// analysis artifacts (cluster views and propagation runs). Caches are explicit injected services created at startup,
// never package-level singletons; keys are structural hashes of normalized
// parameter sets so feature flags participate in invalidation.
package metricscache
