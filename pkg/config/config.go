/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tpotmap/atlas/pkg/errors"
)

// Config carries the tunables for the analysis core. Zero values are
// replaced with defaults by Default / Load.
type Config struct {
	// SnapshotDir is the directory for spectral artifacts.
	SnapshotDir string `yaml:"snapshot_dir"`

	// Cache settings.
	CacheMaxEntries     int           `yaml:"cache_max_entries"`
	ViewCacheMaxEntries int           `yaml:"view_cache_max_entries"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	ViewCacheTTL        time.Duration `yaml:"view_cache_ttl"`

	// Clustering.
	MinClusterSize     int `yaml:"min_cluster_size"`
	DefaultGranularity int `yaml:"default_granularity"`
	MaxGranularity     int `yaml:"max_granularity"`
	DefaultBudget      int `yaml:"default_budget"`

	// Propagation.
	Propagation PropagationConfig `yaml:"propagation"`

	// Observation completeness weighting.
	Observation ObservationConfig `yaml:"observation"`

	// Discovery rate limiting.
	DiscoveryRatePerMinute int `yaml:"discovery_rate_per_minute"`
}

// PropagationConfig holds the propagation defaults exposed through config.
type PropagationConfig struct {
	Temperature       float64 `yaml:"temperature"`
	AbstainConfidence float64 `yaml:"abstain_confidence"`
	WalkKind          string  `yaml:"walk_kind"`
}

// ObservationConfig controls inverse-probability weighting of edges.
type ObservationConfig struct {
	Weighting string  `yaml:"weighting"`
	PMin      float64 `yaml:"p_min"`
}

// Default returns the configuration with all documented defaults applied.
func Default() *Config {
	return &Config{
		SnapshotDir:            "snapshots",
		CacheMaxEntries:        100,
		ViewCacheMaxEntries:    20,
		CacheTTL:               time.Hour,
		ViewCacheTTL:           10 * time.Minute,
		MinClusterSize:         4,
		DefaultGranularity:     25,
		MaxGranularity:         500,
		DefaultBudget:          25,
		DiscoveryRatePerMinute: 30,
		Propagation: PropagationConfig{
			Temperature:       2.0,
			AbstainConfidence: 0.15,
			WalkKind:          "symmetric",
		},
		Observation: ObservationConfig{
			Weighting: "off",
			PMin:      0.05,
		},
	}
}

// Load reads the YAML config at path (if non-empty), applies environment
// overrides, fills remaining zero values with defaults, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("reading config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("parsing config file %s", path), err)
		}
	}

	applyEnv(cfg)
	fillDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.MinClusterSize < 1 {
		return errors.Newf(errors.ErrCodeInvalidArgument, "min_cluster_size must be >= 1, got %d", c.MinClusterSize)
	}
	if c.MaxGranularity < c.DefaultGranularity {
		return errors.Newf(errors.ErrCodeInvalidArgument,
			"max_granularity %d below default_granularity %d", c.MaxGranularity, c.DefaultGranularity)
	}
	switch c.Propagation.WalkKind {
	case "symmetric", "directed_random_walk":
	default:
		return errors.Newf(errors.ErrCodeInvalidArgument, "invalid propagation.walk_kind %q", c.Propagation.WalkKind)
	}
	switch c.Observation.Weighting {
	case "off", "ipw":
	default:
		return errors.Newf(errors.ErrCodeInvalidArgument, "invalid observation.weighting %q", c.Observation.Weighting)
	}
	if c.Observation.PMin <= 0 || c.Observation.PMin > 1 {
		return errors.Newf(errors.ErrCodeInvalidArgument, "observation.p_min must be in (0,1], got %g", c.Observation.PMin)
	}
	return nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("ATLAS_SNAPSHOT_DIR"); v != "" {
		c.SnapshotDir = v
	}
	if v, ok := envInt("ATLAS_CACHE_MAX_ENTRIES"); ok {
		c.CacheMaxEntries = v
	}
	if v, ok := envInt("ATLAS_CACHE_TTL_SECONDS"); ok {
		c.CacheTTL = time.Duration(v) * time.Second
	}
	if v, ok := envInt("ATLAS_MIN_CLUSTER_SIZE"); ok {
		c.MinClusterSize = v
	}
	if v, ok := envInt("ATLAS_DEFAULT_GRANULARITY"); ok {
		c.DefaultGranularity = v
	}
	if v, ok := envInt("ATLAS_MAX_GRANULARITY"); ok {
		c.MaxGranularity = v
	}
	if v := os.Getenv("ATLAS_PROPAGATION_WALK_KIND"); v != "" {
		c.Propagation.WalkKind = v
	}
	if v := os.Getenv("ATLAS_OBSERVATION_WEIGHTING"); v != "" {
		c.Observation.Weighting = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func fillDefaults(c *Config) {
	d := Default()
	if c.SnapshotDir == "" {
		c.SnapshotDir = d.SnapshotDir
	}
	if c.CacheMaxEntries == 0 {
		c.CacheMaxEntries = d.CacheMaxEntries
	}
	if c.ViewCacheMaxEntries == 0 {
		c.ViewCacheMaxEntries = d.ViewCacheMaxEntries
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.ViewCacheTTL == 0 {
		c.ViewCacheTTL = d.ViewCacheTTL
	}
	if c.MinClusterSize == 0 {
		c.MinClusterSize = d.MinClusterSize
	}
	if c.DefaultGranularity == 0 {
		c.DefaultGranularity = d.DefaultGranularity
	}
	if c.MaxGranularity == 0 {
		c.MaxGranularity = d.MaxGranularity
	}
	if c.DefaultBudget == 0 {
		c.DefaultBudget = d.DefaultBudget
	}
	if c.DiscoveryRatePerMinute == 0 {
		c.DiscoveryRatePerMinute = d.DiscoveryRatePerMinute
	}
	if c.Propagation.Temperature == 0 {
		c.Propagation.Temperature = d.Propagation.Temperature
	}
	if c.Propagation.AbstainConfidence == 0 {
		c.Propagation.AbstainConfidence = d.Propagation.AbstainConfidence
	}
	if c.Propagation.WalkKind == "" {
		c.Propagation.WalkKind = d.Propagation.WalkKind
	}
	if c.Observation.Weighting == "" {
		c.Observation.Weighting = d.Observation.Weighting
	}
	if c.Observation.PMin == 0 {
		c.Observation.PMin = d.Observation.PMin
	}
}
