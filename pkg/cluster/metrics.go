/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package cluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	viewDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atlas_cluster_view_duration_seconds",
			Help:    "Time taken to serve a cluster view",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	viewCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_cluster_view_cache_hits_total",
			Help: "Cluster views served from the memoization cache",
		},
	)
)
