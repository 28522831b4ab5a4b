/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/snapshot"
	"github.com/tpotmap/atlas/pkg/store"
)

// clusterKey builds the stable label key for a cluster within one snapshot,
// granularity, and blend bucket.
func clusterKey(snap *snapshot.Snapshot, granularity int, bucket float64, clusterID int) string {
	return fmt.Sprintf("%s:%d:%.1f:%d", snap.Manifest.SourceGraphHash, granularity, bucket, clusterID)
}

// resolveLabel returns the user override when one exists, otherwise the
// generated top-members label.
func (s *Service) resolveLabel(ctx context.Context, g *graph.Handle, snap *snapshot.Snapshot, workspace string, node Node, members []int) (string, LabelSource) {
	if s.store != nil {
		if l, ok, err := s.store.ClusterLabel(ctx, workspace, node.Key); err == nil && ok {
			return l.Label, LabelSourceUser
		} else if err != nil {
			slog.Warn("label lookup failed", "cluster_key", node.Key, "error", err)
		}
	}
	return autoLabel(node.ID, node.TopMembers), LabelSourceAuto
}

// autoLabel renders "Cluster {id}: @h1, @h2, @h3" from the top member
// handles.
func autoLabel(id int, handles []string) string {
	if len(handles) == 0 {
		return fmt.Sprintf("Cluster %d", id)
	}
	quoted := make([]string, len(handles))
	for i, h := range handles {
		quoted[i] = "@" + h
	}
	return fmt.Sprintf("Cluster %d: %s", id, strings.Join(quoted, ", "))
}

// topMembers returns up to limit usernames ordered by follower count
// descending, ties broken by username ascending.
func (s *Service) topMembers(g *graph.Handle, snap *snapshot.Snapshot, members []int, limit int) []string {
	type cand struct {
		username  string
		followers int64
	}
	cands := make([]cand, 0, len(members))
	for _, m := range members {
		id := snap.NodeIDs[m]
		gi, ok := g.Index(id)
		if !ok {
			continue
		}
		a := g.Account(gi)
		cands = append(cands, cand{username: a.Username, followers: a.Followers})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].followers != cands[j].followers {
			return cands[i].followers > cands[j].followers
		}
		return cands[i].username < cands[j].username
	})
	if len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.username
	}
	return out
}

// SetLabel persists a workspace-scoped label override and invalidates
// cached views for the workspace.
func (s *Service) SetLabel(ctx context.Context, workspace, clusterKey, label string) error {
	if label == "" {
		return errors.New(errors.ErrCodeInvalidArgument, "label must not be empty")
	}
	if err := s.store.SetClusterLabel(ctx, store.ClusterLabel{
		Workspace:  workspace,
		ClusterKey: clusterKey,
		Label:      label,
	}); err != nil {
		return err
	}
	s.invalidateViews(workspace)
	return nil
}

// DeleteLabel removes an override; subsequent views fall back to the auto
// label.
func (s *Service) DeleteLabel(ctx context.Context, workspace, clusterKey string) error {
	if err := s.store.DeleteClusterLabel(ctx, workspace, clusterKey); err != nil {
		return err
	}
	s.invalidateViews(workspace)
	return nil
}

func (s *Service) invalidateViews(workspace string) {
	if s.cache != nil {
		s.cache.Invalidate("view:" + workspace)
	}
}
