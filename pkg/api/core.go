/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tpotmap/atlas/pkg/cluster"
	"github.com/tpotmap/atlas/pkg/community"
	"github.com/tpotmap/atlas/pkg/config"
	"github.com/tpotmap/atlas/pkg/discovery"
	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/metricscache"
	"github.com/tpotmap/atlas/pkg/propagation"
	"github.com/tpotmap/atlas/pkg/snapshot"
	"github.com/tpotmap/atlas/pkg/spectral"
	"github.com/tpotmap/atlas/pkg/store"
)

// Core is the in-process facade over the analysis components. It owns the
// loaded graph, the snapshot holder, the shared caches, and the per-
// workspace propagation results; the HTTP and CLI adapters translate
// transport requests into Core calls.
type Core struct {
	cfg *config.Config
	st  store.Store

	spectral  *spectral.Engine
	clusters  *cluster.Service
	propagate *propagation.Engine
	discover  *discovery.Engine
	louvain   *community.Service
	holder    *snapshot.Holder

	viewCache    *metricscache.Cache
	metricsCache *metricscache.Cache

	mu         sync.RWMutex
	graph      *graph.Handle
	activeProp map[string]activeRun
}

// activeRun pairs a propagation result with the graph hash it was computed
// against.
type activeRun struct {
	result *propagation.Result
	hash   graph.Hash
}

// New wires a Core from configuration and a store implementation.
func New(cfg *config.Config, st store.Store) *Core {
	viewCache := metricscache.New("cluster_views", cfg.ViewCacheMaxEntries, cfg.ViewCacheTTL)
	metricsCache := metricscache.New("metrics", cfg.CacheMaxEntries, cfg.CacheTTL)
	louvain := community.NewService(1)

	c := &Core{
		cfg:          cfg,
		st:           st,
		spectral:     spectral.New(spectral.WithSnapshotDir(cfg.SnapshotDir)),
		propagate:    propagation.New(propagation.WithLouvain(louvain)),
		discover:     discovery.New(discovery.WithRatePerMinute(cfg.DiscoveryRatePerMinute)),
		louvain:      louvain,
		holder:       snapshot.NewHolder(),
		viewCache:    viewCache,
		metricsCache: metricsCache,
		activeProp:   make(map[string]activeRun),
	}
	c.clusters = cluster.New(st,
		cluster.WithCache(viewCache),
		cluster.WithLouvain(louvain),
		cluster.WithLimits(cfg.MinClusterSize, cfg.DefaultGranularity, cfg.MaxGranularity, cfg.DefaultBudget),
	)

	if mem, ok := st.(*store.Memory); ok {
		mem.OnWrite = func(prefix string) {
			c.viewCache.Invalidate(prefix)
			c.metricsCache.Invalidate(prefix)
		}
	}
	return c
}

// LoadGraph ingests sources into a fresh immutable handle and installs it.
// Existing snapshots stay in place; views against them fail with STALE
// until a rebuild.
func (c *Core) LoadGraph(ctx context.Context, sources ...graph.Source) (graph.Hash, error) {
	h, err := graph.Load(ctx, sources...)
	if err != nil {
		return graph.Hash{}, err
	}
	c.mu.Lock()
	c.graph = h
	c.activeProp = make(map[string]activeRun)
	c.mu.Unlock()

	c.viewCache.Invalidate("")
	c.metricsCache.Invalidate("")
	slog.Info("graph installed", "nodes", h.NumNodes(), "edges", h.NumEdges(), "hash", h.Hash().String())
	return h.Hash(), nil
}

// Graph returns the current handle.
func (c *Core) Graph() (*graph.Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.graph == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "no graph loaded")
	}
	return c.graph, nil
}

// GraphHash implements the graph.hash operation.
func (c *Core) GraphHash() (graph.Hash, error) {
	g, err := c.Graph()
	if err != nil {
		return graph.Hash{}, err
	}
	return g.Hash(), nil
}

// BuildSnapshot implements spectral.build: builds, persists, and swaps in
// a new artifact. Cancellation leaves the previous snapshot installed and
// nothing partial on disk.
func (c *Core) BuildSnapshot(ctx context.Context, cfg spectral.Config, progress spectral.Progress) (*snapshot.Manifest, error) {
	g, err := c.Graph()
	if err != nil {
		return nil, err
	}
	if cfg.CommunityAlpha > 0 && cfg.Membership == nil {
		if prop := c.propForHash(g.Hash()); prop != nil {
			cfg.Membership = prop.Matrix
		}
	}
	s, err := c.spectral.BuildAndSave(ctx, g, cfg, progress)
	if err != nil {
		return nil, err
	}
	c.holder.Swap(s)
	c.viewCache.Invalidate("")
	return &s.Manifest, nil
}

// LoadSnapshot implements spectral.load: reads the artifact from disk,
// validates it against the live graph, and swaps it in.
func (c *Core) LoadSnapshot(ctx context.Context) (*snapshot.Manifest, error) {
	g, err := c.Graph()
	if err != nil {
		return nil, err
	}
	s, err := c.spectral.Load(g.Hash())
	if err != nil {
		return nil, err
	}
	c.holder.Swap(s)
	c.viewCache.Invalidate("")
	return &s.Manifest, nil
}

// acquire leases the current graph and snapshot for one request.
func (c *Core) acquire() (*graph.Handle, *snapshot.Handle, error) {
	g, err := c.Graph()
	if err != nil {
		return nil, nil, err
	}
	lease, err := c.holder.Acquire()
	if err != nil {
		return nil, nil, err
	}
	return g, lease, nil
}

// ClusterView implements clusters.view.
func (c *Core) ClusterView(ctx context.Context, q cluster.Query) (*cluster.View, error) {
	g, lease, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return c.clusters.View(ctx, g, lease.Snapshot(), q)
}

// ClusterPreview implements clusters.preview.
func (c *Core) ClusterPreview(ctx context.Context, clusterID int, q cluster.Query) (*cluster.Preview, error) {
	g, lease, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return c.clusters.Preview(ctx, g, lease.Snapshot(), clusterID, q)
}

// ClusterMembers implements clusters.members.
func (c *Core) ClusterMembers(ctx context.Context, clusterID, limit, offset int) (*cluster.MemberPage, error) {
	g, lease, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return c.clusters.Members(ctx, g, lease.Snapshot(), clusterID, limit, offset)
}

// SetClusterLabel implements clusters.label.set.
func (c *Core) SetClusterLabel(ctx context.Context, workspace, clusterKey, label string) error {
	return c.clusters.SetLabel(ctx, workspace, clusterKey, label)
}

// DeleteClusterLabel implements clusters.label.delete.
func (c *Core) DeleteClusterLabel(ctx context.Context, workspace, clusterKey string) error {
	return c.clusters.DeleteLabel(ctx, workspace, clusterKey)
}

// RunPropagation implements propagation.run: anchors come from the
// workspace's tag assignments; results are memoized on the structural key
// and installed as the workspace's active membership matrix.
func (c *Core) RunPropagation(ctx context.Context, workspace string, cfg propagation.Config) (*propagation.Result, error) {
	g, err := c.Graph()
	if err != nil {
		return nil, err
	}
	tags, err := c.st.Tags(ctx, workspace)
	if err != nil {
		return nil, err
	}
	anchors := propagation.AnchorsFromTags(tags)

	key, err := metricscache.Key("propagation:"+workspace, g.Hash().String(), anchors, cfg)
	if err != nil {
		return nil, err
	}
	v, _, err := c.metricsCache.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
		return c.propagate.Propagate(ctx, g, anchors, cfg)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*propagation.Result)

	c.mu.Lock()
	c.activeProp[workspace] = activeRun{result: result, hash: g.Hash()}
	c.mu.Unlock()
	return result, nil
}

// GetPropagation implements propagation.get, returning the workspace's
// active result.
func (c *Core) GetPropagation(workspace string) (*propagation.Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.activeProp[workspace]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNotFound, "no propagation run for workspace %q", workspace)
	}
	return r.result, nil
}

// propForHash returns any active propagation result computed against the
// given graph hash, for community-aware embedding builds.
func (c *Core) propForHash(h graph.Hash) *propagation.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.activeProp {
		if r.hash == h {
			return r.result
		}
	}
	return nil
}

// Discover implements discovery.recommend against the workspace's active
// membership matrix (community signal is zero when none exists).
func (c *Core) Discover(ctx context.Context, workspace string, req discovery.Request) (*discovery.Response, error) {
	g, err := c.Graph()
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	prop := c.activeProp[workspace].result
	c.mu.RUnlock()
	return c.discover.Recommend(ctx, g, prop, req)
}

// CacheStats implements cache.stats.
func (c *Core) CacheStats() []metricscache.Stats {
	return []metricscache.Stats{
		c.viewCache.Stats(),
		c.metricsCache.Stats(),
	}
}

// CacheInvalidate implements cache.invalidate with an optional prefix.
func (c *Core) CacheInvalidate(prefix string) int {
	return c.viewCache.Invalidate(prefix) + c.metricsCache.Invalidate(prefix)
}

// Store exposes the underlying store to adapters that import tags or
// seeds on the caller's behalf.
func (c *Core) Store() store.Store { return c.st }

// BuildFingerprintSnapshot builds and installs a snapshot over the
// fingerprint basis instead of the spectral one. Fingerprints come from
// the store; the artifact layout is unchanged so every view works
// against it.
func (c *Core) BuildFingerprintSnapshot(ctx context.Context, cfg spectral.Config) (*snapshot.Manifest, error) {
	g, err := c.Graph()
	if err != nil {
		return nil, err
	}
	fps, err := c.st.Fingerprints(ctx)
	if err != nil {
		return nil, err
	}
	s, err := c.spectral.BuildFromFingerprints(ctx, g, fps, cfg)
	if err != nil {
		return nil, err
	}
	if err := snapshot.Write(c.cfg.SnapshotDir, s); err != nil {
		return nil, err
	}
	c.holder.Swap(s)
	c.viewCache.Invalidate("")
	return &s.Manifest, nil
}
