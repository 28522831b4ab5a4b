/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	atlaserrors "github.com/tpotmap/atlas/pkg/errors"
)

func TestUpsertTagLastWriterWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := TagAssignment{
		Workspace: "ws", Ego: "me", Account: "acct", TagKey: "ai",
		Polarity: PolarityIn, Confidence: 0.5, Actor: "alice",
		UpdatedAt: time.Unix(100, 0),
	}
	require.NoError(t, m.UpsertTag(ctx, first))

	second := first
	second.Confidence = 0.9
	second.Polarity = PolarityNotIn
	second.UpdatedAt = time.Unix(200, 0)
	require.NoError(t, m.UpsertTag(ctx, second))

	tags, err := m.Tags(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, tags, 1, "repeated writes overwrite the same key")
	assert.Equal(t, 0.9, tags[0].Confidence)
	assert.Equal(t, PolarityNotIn, tags[0].Polarity)
	assert.Equal(t, time.Unix(200, 0), tags[0].UpdatedAt)
}

func TestUpsertTagValidation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.UpsertTag(ctx, TagAssignment{Workspace: "ws", Account: "a", TagKey: "k", Polarity: "sideways", Confidence: 0.5})
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeInvalidArgument))

	err = m.UpsertTag(ctx, TagAssignment{Workspace: "ws", Account: "a", TagKey: "k", Polarity: PolarityIn, Confidence: 1.5})
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeInvalidArgument))

	err = m.UpsertTag(ctx, TagAssignment{Account: "a", TagKey: "k", Polarity: PolarityIn})
	assert.True(t, atlaserrors.IsCode(err, atlaserrors.ErrCodeInvalidArgument))
}

func TestWriteInvalidation(t *testing.T) {
	m := NewMemory()
	var prefixes []string
	m.OnWrite = func(p string) { prefixes = append(prefixes, p) }
	ctx := context.Background()

	require.NoError(t, m.UpsertTag(ctx, TagAssignment{
		Workspace: "ws", Account: "a", TagKey: "k", Polarity: PolarityIn, Confidence: 1,
	}))
	require.NoError(t, m.SetClusterLabel(ctx, ClusterLabel{Workspace: "ws", ClusterKey: "ck", Label: "Group A"}))
	require.NoError(t, m.DeleteClusterLabel(ctx, "ws", "ck"))

	assert.Equal(t, []string{"propagation:ws", "view:ws", "view:ws"}, prefixes)
}

func TestClusterLabelRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.ClusterLabel(ctx, "ws", "ck")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetClusterLabel(ctx, ClusterLabel{Workspace: "ws", ClusterKey: "ck", Label: "Group A"}))
	l, ok, err := m.ClusterLabel(ctx, "ws", "ck")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Group A", l.Label)

	require.NoError(t, m.DeleteClusterLabel(ctx, "ws", "ck"))
	_, ok, err = m.ClusterLabel(ctx, "ws", "ck")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeedsAndFingerprints(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.UpsertSeed(ctx, CommunitySeed{Workspace: "ws", TagKey: "b", Label: "B"}))
	require.NoError(t, m.UpsertSeed(ctx, CommunitySeed{Workspace: "ws", TagKey: "a", Label: "A"}))
	seeds, err := m.Seeds(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "a", seeds[0].TagKey, "seeds ordered by tag key")

	require.NoError(t, m.UpsertFingerprint(ctx, Fingerprint{Account: "acct", PromptVersion: "v2", Posted: []float32{0.1, 0.9}}))
	fps, err := m.Fingerprints(ctx)
	require.NoError(t, err)
	require.Len(t, fps, 1)
	assert.Equal(t, "v2", fps[0].PromptVersion)
}
