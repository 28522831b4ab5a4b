/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package cluster

import (
	"context"
	"sort"

	"github.com/tpotmap/atlas/pkg/dendrogram"
	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/snapshot"
)

// Preview predicts the effect of expanding or collapsing clusterID under
// the given query without mutating anything.
func (s *Service) Preview(ctx context.Context, g *graph.Handle, snap *snapshot.Snapshot, clusterID int, q Query) (*Preview, error) {
	if err := snap.Validate(g.Hash()); err != nil {
		return nil, err
	}
	n := snap.NumNodes()
	link := dendrogram.Linkage(snap.Linkage)
	if clusterID < 0 || clusterID >= n+link.NumMerges() {
		return nil, errors.Newf(errors.ErrCodeNotFound, "cluster %d not in dendrogram", clusterID)
	}

	view, err := s.View(ctx, g, snap, q)
	if err != nil {
		return nil, err
	}

	p := &Preview{}
	p.Expand = s.previewExpand(link, n, clusterID, view)
	p.Collapse = s.previewCollapse(link, n, clusterID, q)
	return p, nil
}

func (s *Service) previewExpand(link dendrogram.Linkage, n, clusterID int, view *View) ExpandPreview {
	l, r, ok := dendrogram.Children(link, n, clusterID)
	if !ok {
		return ExpandPreview{Reason: "leaf node cannot be expanded"}
	}

	impact := expandBudgetImpact(link, n, l, r, s.minClusterSize)
	if view.Meta.BudgetRemaining < impact {
		return ExpandPreview{
			PredictedChildren: []int{l, r},
			BudgetImpact:      impact,
			Reason:            "budget exhausted",
		}
	}
	return ExpandPreview{
		CanExpand:         true,
		PredictedChildren: []int{l, r},
		BudgetImpact:      impact,
	}
}

// expandBudgetImpact is the net change in counted cluster nodes when a
// cluster splits: -1 for the removed parent plus one per child that
// survives the minimum-size rule.
func expandBudgetImpact(link dendrogram.Linkage, n, l, r, minSize int) int {
	impact := -1
	if link.Size(n, l) >= minSize {
		impact++
	}
	if link.Size(n, r) >= minSize {
		impact++
	}
	return impact
}

func (s *Service) previewCollapse(link dendrogram.Linkage, n, clusterID int, q Query) CollapsePreview {
	parent, ok := dendrogram.Parent(link, n, clusterID)
	if !ok {
		return CollapsePreview{ParentID: -1}
	}
	l, r, _ := dendrogram.Children(link, n, parent)
	sibling := l
	if sibling == clusterID {
		sibling = r
	}

	// Collapsing rejoins the node with its sibling into the parent: two
	// counted nodes become one when all survive the minimum-size rule.
	freed := 0
	if link.Size(n, clusterID) >= s.minClusterSize {
		freed++
	}
	if link.Size(n, sibling) >= s.minClusterSize {
		freed++
	}
	if link.Size(n, parent) >= s.minClusterSize {
		freed--
	}

	siblings := []int{sibling}
	sort.Ints(siblings)
	return CollapsePreview{
		CanCollapse: true,
		ParentID:    parent,
		SiblingIDs:  siblings,
		NodesFreed:  freed,
	}
}

// Members returns a page of the cluster's member accounts ordered by
// follower count descending, ties broken by username ascending.
func (s *Service) Members(ctx context.Context, g *graph.Handle, snap *snapshot.Snapshot, clusterID, limit, offset int) (*MemberPage, error) {
	if err := snap.Validate(g.Hash()); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "negative offset %d", offset)
	}
	n := snap.NumNodes()
	link := dendrogram.Linkage(snap.Linkage)
	if clusterID < 0 || clusterID >= n+link.NumMerges() {
		return nil, errors.Newf(errors.ErrCodeNotFound, "cluster %d not in dendrogram", clusterID)
	}

	memberIdx := dendrogram.Members(link, n, clusterID)
	members := make([]Member, 0, len(memberIdx))
	for _, m := range memberIdx {
		id := snap.NodeIDs[m]
		gi, ok := g.Index(id)
		if !ok {
			continue
		}
		a := g.Account(gi)
		members = append(members, Member{ID: a.ID, Username: a.Username, Followers: a.Followers})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Followers != members[j].Followers {
			return members[i].Followers > members[j].Followers
		}
		return members[i].Username < members[j].Username
	})

	total := len(members)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return &MemberPage{Members: members[offset:end], Total: total, Offset: offset}, nil
}
