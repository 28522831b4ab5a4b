/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package graph

import (
	"context"
	"time"
)

// Provenance records where an account or edge row originated.
type Provenance string

const (
	// ProvenanceArchive marks rows ingested from an archive export.
	ProvenanceArchive Provenance = "archive"
	// ProvenanceScraped marks rows produced by the web scraper.
	ProvenanceScraped Provenance = "scraped"
	// ProvenanceShadow marks accounts known only through references from
	// other rows; their real identity has not been resolved yet.
	ProvenanceShadow Provenance = "shadow"
)

// Direction classifies a follow edge relative to its source account.
type Direction string

const (
	// DirectionOutbound is a follow from source to target.
	DirectionOutbound Direction = "outbound"
	// DirectionInbound is a follow recorded from the source's side: the
	// target follows the source.
	DirectionInbound Direction = "inbound"
	// DirectionMutualDerived marks an edge synthesized from two opposing
	// observations during ingestion.
	DirectionMutualDerived Direction = "mutual-derived"
)

// Account is a node in the follow graph. Accounts are immutable inside the
// core; the id is opaque and stable while usernames may be renamed.
type Account struct {
	ID          string     `json:"id" yaml:"id"`
	Username    string     `json:"username" yaml:"username"`
	DisplayName string     `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Followers   int64      `json:"followers" yaml:"followers"`
	Following   int64      `json:"following" yaml:"following"`
	Tweets      int64      `json:"tweets" yaml:"tweets"`
	Likes       int64      `json:"likes" yaml:"likes"`
	Bio         string     `json:"bio,omitempty" yaml:"bio,omitempty"`
	Provenance  Provenance `json:"provenance" yaml:"provenance"`
	FetchedAt   time.Time  `json:"fetched_at" yaml:"fetched_at"`

	// ObservationP is the estimated probability that this account's edges
	// were observed by ingestion. Used by inverse-probability weighting.
	// Zero means unknown and is treated as fully observed.
	ObservationP float64 `json:"observation_p,omitempty" yaml:"observation_p,omitempty"`
}

// Edge is a directed follow relation between two accounts.
type Edge struct {
	Source     string     `json:"source" yaml:"source"`
	Target     string     `json:"target" yaml:"target"`
	Direction  Direction  `json:"direction" yaml:"direction"`
	Provenance Provenance `json:"provenance" yaml:"provenance"`
	Weight     float64    `json:"weight,omitempty" yaml:"weight,omitempty"`
	FetchedAt  time.Time  `json:"fetched_at" yaml:"fetched_at"`
}

// AccountView is the read-only projection of an account returned to callers.
type AccountView struct {
	Account
	// Index is the node's position in the canonical node ordering.
	Index int `json:"index" yaml:"index"`
	// OutDegree and InDegree are counts in the directed graph.
	OutDegree int `json:"out_degree" yaml:"out_degree"`
	InDegree  int `json:"in_degree" yaml:"in_degree"`
}

// Source is the loader port. ArchiveFetcher, WebScraper, and bulk-blob
// readers implement it outside the core; tests implement it with fixtures.
type Source interface {
	// Accounts returns all node rows. Rows for the same id across multiple
	// sources are merged by Load keeping the latest fetched_at.
	Accounts(ctx context.Context) ([]Account, error)
	// Edges returns all edge rows.
	Edges(ctx context.Context) ([]Edge, error)
}

// SliceSource is a Source over in-memory slices.
type SliceSource struct {
	Nodes []Account
	Links []Edge
}

// Accounts implements Source.
func (s SliceSource) Accounts(context.Context) ([]Account, error) { return s.Nodes, nil }

// Edges implements Source.
func (s SliceSource) Edges(context.Context) ([]Edge, error) { return s.Links, nil }
