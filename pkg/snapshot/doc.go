/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package snapshot defines the immutable spectral artifact (embedding,
// eigenvalues, Ward linkage, manifest), its compressed on-disk layout, and
// the reference-counted holder through which the rest of the core reads it.
//
// Artifacts are written atomically and validated on load: each archive
// section carries a crc32 checksum, and the manifest's source graph hash
// must match the currently loaded graph before a snapshot is served.
package snapshot
