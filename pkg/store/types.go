/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package store

import (
	"context"
	"time"
)

// Polarity marks whether a tag asserts membership or non-membership.
type Polarity string

const (
	// PolarityIn asserts the account belongs to the tagged community.
	PolarityIn Polarity = "in"
	// PolarityNotIn asserts the account does not belong.
	PolarityNotIn Polarity = "not-in"
)

// TagAssignment is a human-authored community tag on an account. Unique
// per (workspace, ego, account, tag key); rewrites are last-writer-wins.
type TagAssignment struct {
	Workspace  string    `json:"workspace" yaml:"workspace"`
	Ego        string    `json:"ego" yaml:"ego"`
	Account    string    `json:"account" yaml:"account"`
	TagKey     string    `json:"tag_key" yaml:"tag_key"`
	Polarity   Polarity  `json:"polarity" yaml:"polarity"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
	Actor      string    `json:"actor" yaml:"actor"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// CommunitySeed is a curated community definition: a tag key with display
// metadata and optional soft prior weights over member accounts.
type CommunitySeed struct {
	Workspace string             `json:"workspace" yaml:"workspace"`
	TagKey    string             `json:"tag_key" yaml:"tag_key"`
	Label     string             `json:"label" yaml:"label"`
	Color     string             `json:"color,omitempty" yaml:"color,omitempty"`
	Priors    map[string]float64 `json:"priors,omitempty" yaml:"priors,omitempty"`
	UpdatedAt time.Time          `json:"updated_at" yaml:"updated_at"`
}

// ClusterLabel is a workspace-scoped user override of an auto-generated
// cluster label.
type ClusterLabel struct {
	Workspace  string    `json:"workspace" yaml:"workspace"`
	ClusterKey string    `json:"cluster_key" yaml:"cluster_key"`
	Label      string    `json:"label" yaml:"label"`
	Actor      string    `json:"actor,omitempty" yaml:"actor,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// Fingerprint is a per-account feature vector consumed as an optional
// alternate embedding basis.
type Fingerprint struct {
	Account       string    `json:"account" yaml:"account"`
	PromptVersion string    `json:"prompt_version" yaml:"prompt_version"`
	Posted        []float32 `json:"posted" yaml:"posted"`
	Liked         []float32 `json:"liked" yaml:"liked"`
	GraphFeatures []float32 `json:"graph_features,omitempty" yaml:"graph_features,omitempty"`
}

// Store abstracts the durable tables the core reads and writes. The
// embedded relational implementation lives in an external adapter; the
// core only depends on this port. Writes to the same workspace are
// serialized by the implementation; reads see the last successful write.
type Store interface {
	UpsertTag(ctx context.Context, tag TagAssignment) error
	DeleteTag(ctx context.Context, workspace, ego, account, tagKey string) error
	Tags(ctx context.Context, workspace string) ([]TagAssignment, error)

	UpsertSeed(ctx context.Context, seed CommunitySeed) error
	Seeds(ctx context.Context, workspace string) ([]CommunitySeed, error)

	SetClusterLabel(ctx context.Context, label ClusterLabel) error
	DeleteClusterLabel(ctx context.Context, workspace, clusterKey string) error
	ClusterLabel(ctx context.Context, workspace, clusterKey string) (ClusterLabel, bool, error)

	UpsertFingerprint(ctx context.Context, fp Fingerprint) error
	Fingerprints(ctx context.Context) ([]Fingerprint, error)
}
