/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package server is the thin HTTP adapter over the analysis core: it maps
// requests onto api.Core operations, applies the middleware chain (request
// ids, rate limiting, metrics, panic recovery, logging), and translates
// structured errors onto the documented status codes (STALE → 409,
// CANCELLED → 499, RATE_LIMIT_EXCEEDED → 429).
package server
