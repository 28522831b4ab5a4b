/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tpotmap/atlas/pkg/errors"
)

type tagKey struct {
	workspace, ego, account, tag string
}

// Memory is the in-process Store implementation. Writes within a workspace
// are serialized under one mutex; every successful tag, seed, or label
// write triggers the configured invalidation hook so derived caches drop
// affected prefixes. Fingerprint writes do not trigger the hook.
type Memory struct {
	mu           sync.RWMutex
	tags         map[tagKey]TagAssignment
	seeds        map[string]map[string]CommunitySeed // workspace → tag key
	labels       map[string]map[string]ClusterLabel  // workspace → cluster key
	fingerprints map[string]Fingerprint

	// OnWrite, when set, receives a cache-prefix hint after each write.
	OnWrite func(prefix string)
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tags:         make(map[tagKey]TagAssignment),
		seeds:        make(map[string]map[string]CommunitySeed),
		labels:       make(map[string]map[string]ClusterLabel),
		fingerprints: make(map[string]Fingerprint),
	}
}

func (m *Memory) notify(prefix string) {
	if m.OnWrite != nil {
		m.OnWrite(prefix)
	}
}

// UpsertTag implements Store with last-writer-wins semantics.
func (m *Memory) UpsertTag(ctx context.Context, tag TagAssignment) error {
	if tag.Workspace == "" || tag.Account == "" || tag.TagKey == "" {
		return errors.New(errors.ErrCodeInvalidArgument, "tag requires workspace, account, and tag key")
	}
	if tag.Confidence < 0 || tag.Confidence > 1 {
		return errors.Newf(errors.ErrCodeInvalidArgument, "tag confidence %g outside [0,1]", tag.Confidence)
	}
	switch tag.Polarity {
	case PolarityIn, PolarityNotIn:
	default:
		return errors.Newf(errors.ErrCodeInvalidArgument, "invalid tag polarity %q", tag.Polarity)
	}
	if tag.UpdatedAt.IsZero() {
		tag.UpdatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.tags[tagKey{tag.Workspace, tag.Ego, tag.Account, tag.TagKey}] = tag
	m.mu.Unlock()

	m.notify("propagation:" + tag.Workspace)
	return nil
}

// DeleteTag implements Store.
func (m *Memory) DeleteTag(ctx context.Context, workspace, ego, account, tag string) error {
	m.mu.Lock()
	delete(m.tags, tagKey{workspace, ego, account, tag})
	m.mu.Unlock()
	m.notify("propagation:" + workspace)
	return nil
}

// Tags implements Store, returning assignments ordered by (ego, account,
// tag key) for determinism.
func (m *Memory) Tags(ctx context.Context, workspace string) ([]TagAssignment, error) {
	m.mu.RLock()
	out := make([]TagAssignment, 0)
	for k, v := range m.tags {
		if k.workspace == workspace {
			out = append(out, v)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ego != out[j].Ego {
			return out[i].Ego < out[j].Ego
		}
		if out[i].Account != out[j].Account {
			return out[i].Account < out[j].Account
		}
		return out[i].TagKey < out[j].TagKey
	})
	return out, nil
}

// UpsertSeed implements Store. Seed changes invalidate propagation caches.
func (m *Memory) UpsertSeed(ctx context.Context, seed CommunitySeed) error {
	if seed.Workspace == "" || seed.TagKey == "" {
		return errors.New(errors.ErrCodeInvalidArgument, "seed requires workspace and tag key")
	}
	if seed.UpdatedAt.IsZero() {
		seed.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	ws, ok := m.seeds[seed.Workspace]
	if !ok {
		ws = make(map[string]CommunitySeed)
		m.seeds[seed.Workspace] = ws
	}
	ws[seed.TagKey] = seed
	m.mu.Unlock()
	m.notify("propagation:" + seed.Workspace)
	return nil
}

// Seeds implements Store, ordered by tag key.
func (m *Memory) Seeds(ctx context.Context, workspace string) ([]CommunitySeed, error) {
	m.mu.RLock()
	out := make([]CommunitySeed, 0, len(m.seeds[workspace]))
	for _, s := range m.seeds[workspace] {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TagKey < out[j].TagKey })
	return out, nil
}

// SetClusterLabel implements Store.
func (m *Memory) SetClusterLabel(ctx context.Context, label ClusterLabel) error {
	if label.Workspace == "" || label.ClusterKey == "" || label.Label == "" {
		return errors.New(errors.ErrCodeInvalidArgument, "cluster label requires workspace, key, and label")
	}
	if label.UpdatedAt.IsZero() {
		label.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	ws, ok := m.labels[label.Workspace]
	if !ok {
		ws = make(map[string]ClusterLabel)
		m.labels[label.Workspace] = ws
	}
	ws[label.ClusterKey] = label
	m.mu.Unlock()
	m.notify("view:" + label.Workspace)
	return nil
}

// DeleteClusterLabel implements Store.
func (m *Memory) DeleteClusterLabel(ctx context.Context, workspace, clusterKey string) error {
	m.mu.Lock()
	if ws, ok := m.labels[workspace]; ok {
		delete(ws, clusterKey)
	}
	m.mu.Unlock()
	m.notify("view:" + workspace)
	return nil
}

// ClusterLabel implements Store.
func (m *Memory) ClusterLabel(ctx context.Context, workspace, clusterKey string) (ClusterLabel, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ws, ok := m.labels[workspace]; ok {
		if l, ok := ws[clusterKey]; ok {
			return l, true, nil
		}
	}
	return ClusterLabel{}, false, nil
}

// UpsertFingerprint implements Store.
func (m *Memory) UpsertFingerprint(ctx context.Context, fp Fingerprint) error {
	if fp.Account == "" {
		return errors.New(errors.ErrCodeInvalidArgument, "fingerprint requires an account id")
	}
	m.mu.Lock()
	m.fingerprints[fp.Account] = fp
	m.mu.Unlock()
	return nil
}

// Fingerprints implements Store, ordered by account id.
func (m *Memory) Fingerprints(ctx context.Context) ([]Fingerprint, error) {
	m.mu.RLock()
	out := make([]Fingerprint, 0, len(m.fingerprints))
	for _, fp := range m.fingerprints {
		out = append(out, fp)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

var _ Store = (*Memory)(nil)
