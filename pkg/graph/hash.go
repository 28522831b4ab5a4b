/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
)

// Hash is a deterministic 128-bit content hash of a loaded graph. It salts
// cache keys and validates snapshots against the live graph.
type Hash [16]byte

// String returns the hash as lowercase hex.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether the hash is unset.
func (h Hash) IsZero() bool { return h == Hash{} }

// ParseHash decodes a hex string produced by String.
func ParseHash(s string) (Hash, bool) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return Hash{}, false
	}
	copy(h[:], b)
	return h, true
}

// contentHash digests the canonical node ordering and the deduplicated edge
// table. Counts and timestamps participate so that refreshed metadata
// produces a new hash, forcing downstream rebuilds.
func contentHash(nodes []Account, edges []Edge) Hash {
	d := sha256.New()
	writeInt := func(v int64) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		d.Write(buf[:])
	}
	writeStr := func(s string) {
		writeInt(int64(len(s)))
		io.WriteString(d, s)
	}

	writeInt(int64(len(nodes)))
	for _, a := range nodes {
		writeStr(a.ID)
		writeStr(a.Username)
		writeInt(a.Followers)
		writeInt(a.Following)
		writeStr(string(a.Provenance))
		writeInt(a.FetchedAt.UnixNano())
	}
	writeInt(int64(len(edges)))
	for _, e := range edges {
		writeStr(e.Source)
		writeStr(e.Target)
		writeStr(string(e.Direction))
	}

	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}
