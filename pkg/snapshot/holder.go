/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package snapshot

import (
	"sync"
	"sync/atomic"

	"github.com/tpotmap/atlas/pkg/errors"
)

// Handle is a reference-counted lease on a Snapshot. Callers acquire a
// handle at request entry and release it when done; a swap never blocks
// readers of the previous artifact.
type Handle struct {
	snap    *Snapshot
	refs    *atomic.Int64
	release sync.Once
}

// Snapshot returns the leased snapshot.
func (h *Handle) Snapshot() *Snapshot { return h.snap }

// Release returns the lease. Safe to call more than once.
func (h *Handle) Release() {
	h.release.Do(func() { h.refs.Add(-1) })
}

// Holder owns the current snapshot and performs copy-on-write swaps. It is
// an injected service with explicit lifetime, not package-level state.
type Holder struct {
	mu      sync.RWMutex
	current *Snapshot
	refs    *atomic.Int64
}

// NewHolder returns an empty Holder.
func NewHolder() *Holder { return &Holder{} }

// Acquire leases the current snapshot, or returns NOT_FOUND when none has
// been loaded or built yet.
func (h *Holder) Acquire() (*Handle, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "no snapshot loaded")
	}
	h.refs.Add(1)
	return &Handle{snap: h.current, refs: h.refs}, nil
}

// Swap atomically replaces the current snapshot. Outstanding handles keep
// the previous artifact alive until released.
func (h *Holder) Swap(s *Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = s
	h.refs = &atomic.Int64{}
}

// Current returns the current snapshot without leasing it, for diagnostics.
func (h *Holder) Current() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}
