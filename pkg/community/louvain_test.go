/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package community

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpotmap/atlas/pkg/graph"
)

func cliquePair(t *testing.T) *graph.Handle {
	t.Helper()
	ts := time.Unix(0, 0)
	var nodes []graph.Account
	var edges []graph.Edge
	clique := func(prefix string) {
		ids := make([]string, 5)
		for i := range ids {
			ids[i] = fmt.Sprintf("%s%d", prefix, i)
			nodes = append(nodes, graph.Account{ID: ids[i], FetchedAt: ts})
		}
		for i := range ids {
			for j := range ids {
				if i != j {
					edges = append(edges, graph.Edge{Source: ids[i], Target: ids[j], Direction: graph.DirectionOutbound, FetchedAt: ts})
				}
			}
		}
	}
	clique("a")
	clique("b")
	edges = append(edges, graph.Edge{Source: "a0", Target: "b0", Direction: graph.DirectionOutbound, FetchedAt: ts})
	h, err := graph.Load(context.Background(), graph.SliceSource{Nodes: nodes, Links: edges})
	require.NoError(t, err)
	return h
}

func TestAssignmentsSeparateCliques(t *testing.T) {
	g := cliquePair(t)
	svc := NewService(1)
	assign, err := svc.Assignments(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, assign, g.NumNodes())

	ia, _ := g.Index("a0")
	ib, _ := g.Index("b0")
	for i := 0; i < g.NumNodes(); i++ {
		id := g.Account(i).ID
		if id[0] == 'a' {
			assert.Equal(t, assign[ia], assign[i], "node %s", id)
		} else {
			assert.Equal(t, assign[ib], assign[i], "node %s", id)
		}
	}
	assert.NotEqual(t, assign[ia], assign[ib])
}

func TestAssignmentsMemoized(t *testing.T) {
	g := cliquePair(t)
	svc := NewService(1)
	a1, err := svc.Assignments(context.Background(), g)
	require.NoError(t, err)
	a2, err := svc.Assignments(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}
