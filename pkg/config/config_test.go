/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 25, c.DefaultGranularity)
	assert.Equal(t, 500, c.MaxGranularity)
	assert.Equal(t, 4, c.MinClusterSize)
	assert.Equal(t, 2.0, c.Propagation.Temperature)
	assert.Equal(t, 0.15, c.Propagation.AbstainConfidence)
	assert.Equal(t, "symmetric", c.Propagation.WalkKind)
	assert.Equal(t, "off", c.Observation.Weighting)
	assert.Equal(t, 0.05, c.Observation.PMin)
	assert.Equal(t, 30, c.DiscoveryRatePerMinute)
	require.NoError(t, c.Validate())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.yaml")
	data := []byte(`
snapshot_dir: /tmp/atlas-snapshots
cache_max_entries: 42
min_cluster_size: 8
propagation:
  temperature: 1.5
  walk_kind: directed_random_walk
observation:
  weighting: ipw
  p_min: 0.1
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/atlas-snapshots", c.SnapshotDir)
	assert.Equal(t, 42, c.CacheMaxEntries)
	assert.Equal(t, 8, c.MinClusterSize)
	assert.Equal(t, 1.5, c.Propagation.Temperature)
	assert.Equal(t, "directed_random_walk", c.Propagation.WalkKind)
	assert.Equal(t, "ipw", c.Observation.Weighting)
	// Unset keys fall back to defaults.
	assert.Equal(t, 25, c.DefaultGranularity)
	assert.Equal(t, time.Hour, c.CacheTTL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ATLAS_MAX_GRANULARITY", "300")
	t.Setenv("ATLAS_OBSERVATION_WEIGHTING", "ipw")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 300, c.MaxGranularity)
	assert.Equal(t, "ipw", c.Observation.Weighting)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad walk kind", func(c *Config) { c.Propagation.WalkKind = "sideways" }},
		{"bad weighting", func(c *Config) { c.Observation.Weighting = "maybe" }},
		{"bad p_min", func(c *Config) { c.Observation.PMin = 1.5 }},
		{"granularity inversion", func(c *Config) { c.MaxGranularity = 10; c.DefaultGranularity = 25 }},
		{"negative min cluster", func(c *Config) { c.MinClusterSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
