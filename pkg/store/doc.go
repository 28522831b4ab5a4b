/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package store defines the durable-storage port for human-authored state:
// tag assignments, community seeds, cluster label overrides, and account
// fingerprints. The core depends only on the Store interface; Memory is the
// in-process reference implementation used by tests and single-host runs.
package store
