/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package metricscache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCompute(t *testing.T) {
	c := New("test", 100, time.Minute)

	calls := 0
	compute := func(context.Context) (any, error) {
		calls++
		return 42, nil
	}

	v, hit, err := c.GetOrCompute(context.Background(), "k1", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = c.GetOrCompute(context.Background(), "k1", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestCoalescing(t *testing.T) {
	c := New("test", 100, time.Minute)

	var calls atomic.Int64
	gate := make(chan struct{})
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		<-gate
		return "done", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrCompute(context.Background(), "same", compute)
			require.NoError(t, err)
			results[i] = v
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent misses must coalesce")
	for _, v := range results {
		assert.Equal(t, "done", v)
	}
}

func TestComputeErrorNotCached(t *testing.T) {
	c := New("test", 100, time.Minute)

	calls := 0
	_, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (any, error) {
		calls++
		return nil, fmt.Errorf("boom")
	})
	require.Error(t, err)

	v, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (any, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestInvalidatePrefix(t *testing.T) {
	c := New("test", 100, time.Minute)
	c.Add("view:aaa", 1)
	c.Add("view:bbb", 2)
	c.Add("prop:ccc", 3)

	removed := c.Invalidate("view:")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("prop:ccc")
	assert.True(t, ok)
	_, ok = c.Get("view:aaa")
	assert.False(t, ok)

	assert.Equal(t, 1, c.Invalidate(""))
}

func TestStats(t *testing.T) {
	c := New("stats", 100, time.Minute)
	c.Add("a", 1)
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, "stats", s.Name)
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
}

func TestKeyStability(t *testing.T) {
	type params struct {
		Granularity int
		Blend       float64
	}
	k1, err := Key("view", "hash1", params{25, 0.5})
	require.NoError(t, err)
	k2, err := Key("view", "hash1", params{25, 0.5})
	require.NoError(t, err)
	k3, err := Key("view", "hash1", params{26, 0.5})
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Contains(t, k1, "view:")
}
