/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package metricscache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_cache_hits_total",
			Help: "Cache hits per cache name",
		},
		[]string{"cache"},
	)

	missesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_cache_misses_total",
			Help: "Cache misses per cache name",
		},
		[]string{"cache"},
	)

	evictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_cache_evictions_total",
			Help: "Cache evictions per cache name",
		},
		[]string{"cache"},
	)
)
