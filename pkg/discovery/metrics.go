/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atlas_discovery_request_duration_seconds",
			Help:    "Time taken to serve a discovery request",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_discovery_requests_total",
			Help: "Total discovery requests",
		},
		[]string{"status"}, // success or empty; failed requests are not counted
	)

	rateLimitRejects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_discovery_rate_limit_rejects_total",
			Help: "Discovery requests rejected by the per-caller rate limiter",
		},
	)
)
